package config

const (
	defaultConfigPath          = "~/.config/artstudio/config.toml"
	defaultDataDir             = "~/.local/share/artstudio"
	defaultLogDir              = "~/.local/share/artstudio/logs"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultGeminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel         = "gemini-3-pro-image-preview"
	defaultGeminiAspectRatio   = "16:9"
	defaultGeminiImageSize     = "1K"
	defaultGeminiTimeout       = 120
	defaultGeminiRetryAttempts = 1
	defaultStyle               = "Watercolor Painting"
	defaultFrameCount          = 10
	defaultMaxFrameCount       = 30
	defaultPreviewIntervalMS   = 200
	defaultAnimationFPS        = 10
	defaultMaxUploadMB         = 200
	defaultStorageDriver       = "sqlite"
	defaultPDFMarginMM         = 15
	defaultPDFCaption          = "Art Studio"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

// DefaultStyles lists the style presets offered by the UI and CLI.
var DefaultStyles = []string{
	"Watercolor Painting",
	"Oil Painting",
	"Charcoal Sketch",
	"Pencil Drawing",
	"Impressionist Painting",
	"Pop Art",
	"Ukiyo-e Woodblock Print",
	"Stained Glass",
	"Pixel Art",
	"Cyberpunk Neon",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	styles := make([]string, len(DefaultStyles))
	copy(styles, DefaultStyles)
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			AspectRatio:    defaultGeminiAspectRatio,
			ImageSize:      defaultGeminiImageSize,
			TimeoutSeconds: defaultGeminiTimeout,
			RetryAttempts:  defaultGeminiRetryAttempts,
		},
		Studio: Studio{
			DefaultStyle:      defaultStyle,
			Styles:            styles,
			DefaultFrameCount: defaultFrameCount,
			MaxFrameCount:     defaultMaxFrameCount,
			PreviewIntervalMS: defaultPreviewIntervalMS,
			AnimationFPS:      defaultAnimationFPS,
			MaxUploadMB:       defaultMaxUploadMB,
		},
		Storage: Storage{
			Driver: defaultStorageDriver,
		},
		Export: Export{
			PDFMarginMM: defaultPDFMarginMM,
			PDFCaption:  defaultPDFCaption,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Generation:     true,
			Errors:         true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
