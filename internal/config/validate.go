package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var validImageSizes = map[string]struct{}{"1K": {}, "2K": {}, "4K": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateStudio(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateLogging()
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

func (c *Config) validateGemini() error {
	parsed, err := url.Parse(c.Gemini.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gemini.base_url: invalid url %q", c.Gemini.BaseURL)
	}
	if _, ok := validImageSizes[c.Gemini.ImageSize]; !ok {
		return fmt.Errorf("gemini.image_size: unsupported value %q (want 1K, 2K or 4K)", c.Gemini.ImageSize)
	}
	if err := validateAspectRatio(c.Gemini.AspectRatio); err != nil {
		return fmt.Errorf("gemini.aspect_ratio: %w", err)
	}
	return nil
}

func validateAspectRatio(value string) error {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return fmt.Errorf("expected W:H, got %q", value)
	}
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return fmt.Errorf("expected positive integers, got %q", value)
		}
	}
	return nil
}

func (c *Config) validateStudio() error {
	if c.Studio.AnimationFPS > 60 {
		return fmt.Errorf("studio.animation_fps: %d exceeds 60", c.Studio.AnimationFPS)
	}
	if c.Studio.MaxFrameCount > 120 {
		return fmt.Errorf("studio.max_frame_count: %d exceeds 120", c.Studio.MaxFrameCount)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn must be set when storage.driver is postgres")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver)
	}
}

func (c *Config) validateExport() error {
	// A4 is 210mm wide; leave room for the image.
	if c.Export.PDFMarginMM >= 100 {
		return fmt.Errorf("export.pdf_margin_mm: %.1f leaves no room for the image", c.Export.PDFMarginMM)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
