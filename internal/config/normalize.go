package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGemini()
	c.normalizeStudio()
	c.normalizeStorage()
	c.normalizeExport()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("ARTSTUDIO_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.Gemini.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gemini.BaseURL), "/")
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = defaultGeminiBaseURL
	}
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	c.Gemini.AspectRatio = strings.TrimSpace(c.Gemini.AspectRatio)
	if c.Gemini.AspectRatio == "" {
		c.Gemini.AspectRatio = defaultGeminiAspectRatio
	}
	c.Gemini.ImageSize = strings.ToUpper(strings.TrimSpace(c.Gemini.ImageSize))
	if c.Gemini.ImageSize == "" {
		c.Gemini.ImageSize = defaultGeminiImageSize
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultGeminiTimeout
	}
	if c.Gemini.RetryAttempts <= 0 {
		c.Gemini.RetryAttempts = defaultGeminiRetryAttempts
	}
}

func (c *Config) normalizeStudio() {
	c.Studio.DefaultStyle = strings.TrimSpace(c.Studio.DefaultStyle)
	if c.Studio.DefaultStyle == "" {
		c.Studio.DefaultStyle = defaultStyle
	}
	styles := make([]string, 0, len(c.Studio.Styles))
	seen := make(map[string]struct{}, len(c.Studio.Styles))
	for _, style := range c.Studio.Styles {
		trimmed := strings.TrimSpace(style)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		styles = append(styles, trimmed)
	}
	if len(styles) == 0 {
		styles = append(styles, DefaultStyles...)
	}
	c.Studio.Styles = styles
	if c.Studio.MaxFrameCount <= 0 {
		c.Studio.MaxFrameCount = defaultMaxFrameCount
	}
	if c.Studio.DefaultFrameCount <= 0 {
		c.Studio.DefaultFrameCount = defaultFrameCount
	}
	if c.Studio.DefaultFrameCount > c.Studio.MaxFrameCount {
		c.Studio.DefaultFrameCount = c.Studio.MaxFrameCount
	}
	if c.Studio.PreviewIntervalMS <= 0 {
		c.Studio.PreviewIntervalMS = defaultPreviewIntervalMS
	}
	if c.Studio.AnimationFPS <= 0 {
		c.Studio.AnimationFPS = defaultAnimationFPS
	}
	if c.Studio.MaxUploadMB <= 0 {
		c.Studio.MaxUploadMB = defaultMaxUploadMB
	}
	c.Studio.CameraDevice = strings.TrimSpace(c.Studio.CameraDevice)
	if c.Studio.RetentionDays < 0 {
		c.Studio.RetentionDays = 0
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "", "sqlite", "sqlite3":
		c.Storage.Driver = "sqlite"
	case "postgres", "postgresql", "pgx":
		c.Storage.Driver = "postgres"
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	if c.Storage.PostgresDSN == "" {
		if value, ok := os.LookupEnv("ARTSTUDIO_POSTGRES_DSN"); ok {
			c.Storage.PostgresDSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeExport() {
	if c.Export.PDFMarginMM <= 0 {
		c.Export.PDFMarginMM = defaultPDFMarginMM
	}
	c.Export.PDFCaption = strings.TrimSpace(c.Export.PDFCaption)
	if c.Export.PDFCaption == "" {
		c.Export.PDFCaption = defaultPDFCaption
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
