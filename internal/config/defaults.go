package config

const (
	defaultDataDir = "~/.local/share/cantalab/data"
	defaultLogDir  = "~/.local/share/cantalab/logs"
	defaultAPIBind = "127.0.0.1:8587"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://cantalab.com"
	defaultLLMTitle          = "Cantalab Lyric Writer"
	defaultLLMTimeoutSeconds = 60

	defaultSunoBaseURL        = "https://apibox.erweima.ai/api/v1/generate"
	defaultSunoTimeoutSeconds = 30

	defaultWhatsAppTimeoutSeconds = 20
	defaultCountryCode            = "52"

	defaultClipPrefix          = "clips"
	defaultSignedURLExpiryMins = 7 * 24 * 60

	defaultFFmpegBinary    = "ffmpeg"
	defaultClipSeconds     = 45
	defaultWatermarkGainDB = -12.0
	defaultWatermarkDelay  = 3000

	defaultLyricInterval        = 60
	defaultLyricDeliverInterval = 60
	defaultMusicLyricInterval   = 60
	defaultStylePromptInterval  = 60
	defaultLaunchInterval       = 30
	defaultClipInterval         = 45
	defaultMusicDeliverInterval = 60
	defaultSequenceInterval     = 30
	defaultReaperInterval       = 300

	defaultProcessingTimeoutMins = 10
	defaultDeliveryDelayMins     = 15
	defaultMaxAttempts           = 5
	defaultRetryBackoffSeconds   = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Suno: Suno{
			BaseURL:        defaultSunoBaseURL,
			TimeoutSeconds: defaultSunoTimeoutSeconds,
		},
		WhatsApp: WhatsApp{
			DefaultCountryCode: defaultCountryCode,
			TimeoutSeconds:     defaultWhatsAppTimeoutSeconds,
		},
		Storage: Storage{
			ClipPrefix:          defaultClipPrefix,
			SignedURLExpiryMins: defaultSignedURLExpiryMins,
		},
		Media: Media{
			FFmpegBinary:    defaultFFmpegBinary,
			ClipSeconds:     defaultClipSeconds,
			WatermarkGainDB: defaultWatermarkGainDB,
			WatermarkDelay:  defaultWatermarkDelay,
		},
		Pipeline: Pipeline{
			LyricInterval:         defaultLyricInterval,
			LyricDeliverInterval:  defaultLyricDeliverInterval,
			MusicLyricInterval:    defaultMusicLyricInterval,
			StylePromptInterval:   defaultStylePromptInterval,
			LaunchInterval:        defaultLaunchInterval,
			ClipInterval:          defaultClipInterval,
			MusicDeliverInterval:  defaultMusicDeliverInterval,
			SequenceInterval:      defaultSequenceInterval,
			ReaperInterval:        defaultReaperInterval,
			ProcessingTimeoutMins: defaultProcessingTimeoutMins,
			DeliveryDelayMins:     defaultDeliveryDelayMins,
			MaxGenerationAttempts: defaultMaxAttempts,
			RetryBackoffSeconds:   defaultRetryBackoffSeconds,
		},
		Assets: Assets{
			LyricGreeting:  "¡Hola {{nombre}}! Ya está lista la letra de tu canción 🎶",
			PromoText:      "¿Te gustó? Responde a este mensaje y convertimos tu letra en una canción completa.",
			SongGreeting:   "¡{{nombre}}, tu canción está lista! 🎵",
			FeedbackPrompt: "Cuéntanos qué te pareció tu canción.",
			DeliveryTag:    "letra-enviada",
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Errors:         true,
			Deliveries:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
