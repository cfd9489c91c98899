package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// LLM contains the text-generation provider connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Suno contains the asynchronous music-generation provider settings.
type Suno struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	CallbackBaseURL string `toml:"callback_base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// WhatsApp contains the message delivery gateway settings.
type WhatsApp struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	Instance           string `toml:"instance"`
	DefaultCountryCode string `toml:"default_country_code"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Storage contains the blob bucket used for generated clips.
type Storage struct {
	Bucket              string `toml:"bucket"`
	CredentialsFile     string `toml:"credentials_file"`
	ClipPrefix          string `toml:"clip_prefix"`
	SignedURLExpiryMins int    `toml:"signed_url_expiry_minutes"`
}

// Media contains the local audio editing settings.
type Media struct {
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	ClipSeconds     int     `toml:"clip_seconds"`
	WatermarkPath   string  `toml:"watermark_path"`
	WatermarkGainDB float64 `toml:"watermark_gain_db"`
	WatermarkDelay  int     `toml:"watermark_delay_ms"`
}

// Pipeline contains stage cadences and retry policy. All intervals are seconds.
type Pipeline struct {
	LyricInterval        int `toml:"lyric_interval"`
	LyricDeliverInterval int `toml:"lyric_deliver_interval"`
	MusicLyricInterval   int `toml:"music_lyric_interval"`
	StylePromptInterval  int `toml:"style_prompt_interval"`
	LaunchInterval       int `toml:"launch_interval"`
	ClipInterval         int `toml:"clip_interval"`
	MusicDeliverInterval int `toml:"music_deliver_interval"`
	SequenceInterval     int `toml:"sequence_interval"`
	ReaperInterval       int `toml:"reaper_interval"`

	ProcessingTimeoutMins int `toml:"processing_timeout_minutes"`
	DeliveryDelayMins     int `toml:"delivery_delay_minutes"`
	MaxGenerationAttempts int `toml:"max_generation_attempts"`
	RetryBackoffSeconds   int `toml:"retry_backoff_seconds"`
}

// Assets contains the fixed message content sent alongside generated artifacts.
type Assets struct {
	LyricGreeting  string `toml:"lyric_greeting"`
	IntroAudioURL  string `toml:"intro_audio_url"`
	ExplainerVideo string `toml:"explainer_video_url"`
	PromoText      string `toml:"promo_text"`
	SongGreeting   string `toml:"song_greeting"`
	FeedbackPrompt string `toml:"feedback_prompt"`
	DeliveryTag    string `toml:"delivery_tag"`
}

// Notifications contains ntfy push notification settings for operators.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Deliveries     bool   `toml:"deliveries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the Cantalab server.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - LLM: text-generation provider (lyrics and style prompts)
//   - Suno: asynchronous music-generation provider and webhook callback base
//   - WhatsApp: message delivery gateway
//   - Storage: clip bucket and signed URL policy
//   - Media: ffmpeg clip/watermark settings
//   - Pipeline: stage cadences, reaper timeout, retry policy
//   - Assets: fixed greeting/promo/feedback content
//   - Notifications: operator ntfy alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Suno          Suno          `toml:"suno"`
	WhatsApp      WhatsApp      `toml:"whatsapp"`
	Storage       Storage       `toml:"storage"`
	Media         Media         `toml:"media"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Assets        Assets        `toml:"assets"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cantalab/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cantalab.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Storage.CredentialsFile, err = expandPath(c.Storage.CredentialsFile); err != nil {
		return err
	}
	if c.Media.WatermarkPath, err = expandPath(c.Media.WatermarkPath); err != nil {
		return err
	}
	c.Storage.ClipPrefix = strings.Trim(strings.TrimSpace(c.Storage.ClipPrefix), "/")
	c.WhatsApp.DefaultCountryCode = strings.TrimSpace(c.WhatsApp.DefaultCountryCode)
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.StagingDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StagingDir returns the scratch directory used for downloaded and edited audio.
func (c *Config) StagingDir() string {
	return filepath.Join(c.Paths.DataDir, "staging")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
