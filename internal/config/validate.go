package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSuno(); err != nil {
		return err
	}
	if err := c.validateWhatsApp(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/cantalab/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Edit %s (create with 'cantalab config init')", defaultPath)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateSuno() error {
	if strings.TrimSpace(c.Suno.APIKey) == "" {
		return errors.New("suno.api_key is required")
	}
	if strings.TrimSpace(c.Suno.CallbackBaseURL) == "" {
		return errors.New("suno.callback_base_url must be set so the provider can report completions")
	}
	return nil
}

func (c *Config) validateWhatsApp() error {
	if strings.TrimSpace(c.WhatsApp.BaseURL) == "" {
		return errors.New("whatsapp.base_url must be set")
	}
	if strings.TrimSpace(c.WhatsApp.APIKey) == "" {
		return errors.New("whatsapp.api_key is required")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set")
	}
	if c.Storage.SignedURLExpiryMins <= 0 {
		return errors.New("storage.signed_url_expiry_minutes must be positive")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if strings.TrimSpace(c.Media.FFmpegBinary) == "" {
		return errors.New("media.ffmpeg_binary must be set")
	}
	if c.Media.ClipSeconds <= 0 {
		return errors.New("media.clip_seconds must be positive")
	}
	if c.Media.WatermarkDelay < 0 {
		return errors.New("media.watermark_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	intervals := map[string]int{
		"pipeline.lyric_interval":         c.Pipeline.LyricInterval,
		"pipeline.lyric_deliver_interval": c.Pipeline.LyricDeliverInterval,
		"pipeline.music_lyric_interval":   c.Pipeline.MusicLyricInterval,
		"pipeline.style_prompt_interval":  c.Pipeline.StylePromptInterval,
		"pipeline.launch_interval":        c.Pipeline.LaunchInterval,
		"pipeline.clip_interval":          c.Pipeline.ClipInterval,
		"pipeline.music_deliver_interval": c.Pipeline.MusicDeliverInterval,
		"pipeline.sequence_interval":      c.Pipeline.SequenceInterval,
		"pipeline.reaper_interval":        c.Pipeline.ReaperInterval,
	}
	for key, value := range intervals {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Pipeline.ProcessingTimeoutMins <= 0 {
		return errors.New("pipeline.processing_timeout_minutes must be positive")
	}
	if c.Pipeline.DeliveryDelayMins < 0 {
		return errors.New("pipeline.delivery_delay_minutes must not be negative")
	}
	if c.Pipeline.MaxGenerationAttempts <= 0 {
		return errors.New("pipeline.max_generation_attempts must be positive")
	}
	if c.Pipeline.RetryBackoffSeconds < 0 {
		return errors.New("pipeline.retry_backoff_seconds must not be negative")
	}
	return nil
}
