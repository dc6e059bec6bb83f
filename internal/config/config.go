package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Gemini contains connection settings for the generative image API.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	AspectRatio    string `toml:"aspect_ratio"`
	ImageSize      string `toml:"image_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// RetryAttempts counts total attempts per remote call. 1 disables retries.
	RetryAttempts int `toml:"retry_attempts"`
}

// Studio contains defaults for capture, extraction, and generation.
type Studio struct {
	DefaultStyle      string   `toml:"default_style"`
	Styles            []string `toml:"styles"`
	DefaultFrameCount int      `toml:"default_frame_count"`
	MaxFrameCount     int      `toml:"max_frame_count"`
	PreviewIntervalMS int      `toml:"preview_interval_ms"`
	AnimationFPS      int      `toml:"animation_fps"`
	MaxUploadMB       int      `toml:"max_upload_mb"`
	CameraDevice      string   `toml:"camera_device"`
	// RetentionDays prunes sessions untouched for this many days. 0 keeps
	// everything.
	RetentionDays int `toml:"retention_days"`
}

// Storage selects the session store backend.
type Storage struct {
	Driver      string `toml:"driver"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Export contains PDF layout settings.
type Export struct {
	PDFMarginMM float64 `toml:"pdf_margin_mm"`
	PDFCaption  string  `toml:"pdf_caption"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Generation     bool   `toml:"generation"`
	Errors         bool   `toml:"errors"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for artstudio.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Gemini: generative image API connection
//   - Studio: style, frame, and animation defaults
//   - Storage: session store backend (sqlite or postgres)
//   - Export: PDF layout
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Gemini        Gemini        `toml:"gemini"`
	Studio        Studio        `toml:"studio"`
	Storage       Storage       `toml:"storage"`
	Export        Export        `toml:"export"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("artstudio.toml")
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

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.UploadDir(), c.RenderDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// UploadDir is where uploaded source videos are kept for frame extraction.
func (c *Config) UploadDir() string {
	return filepath.Join(c.Paths.DataDir, "uploads")
}

// RenderDir is where composed animations are written.
func (c *Config) RenderDir() string {
	return filepath.Join(c.Paths.DataDir, "renders")
}

// SessionDBPath returns the SQLite database location.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "artstudio.lock")
}

// FFmpegBinary returns the ffmpeg executable name used for extraction and rendering.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// HasGeminiKey reports whether an API key is configured.
func (c *Config) HasGeminiKey() bool {
	return strings.TrimSpace(c.Gemini.APIKey) != ""
}

// Retention returns how long idle sessions are kept, or 0 for forever.
func (c *Config) Retention() time.Duration {
	if c.Studio.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Studio.RetentionDays) * 24 * time.Hour
}

// ClampFrameCount bounds a requested frame count to [1, MaxFrameCount].
// Zero or negative requests fall back to DefaultFrameCount.
func (c *Config) ClampFrameCount(n int) int {
	if n <= 0 {
		n = c.Studio.DefaultFrameCount
	}
	if n < 1 {
		n = 1
	}
	if c.Studio.MaxFrameCount > 0 && n > c.Studio.MaxFrameCount {
		n = c.Studio.MaxFrameCount
	}
	return n
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

// Encode renders the effective configuration as TOML, masking secrets.
func (c *Config) Encode() (string, error) {
	masked := *c
	masked.Gemini.APIKey = maskSecret(masked.Gemini.APIKey)
	masked.Paths.APIToken = maskSecret(masked.Paths.APIToken)
	masked.Storage.PostgresDSN = maskSecret(masked.Storage.PostgresDSN)
	data, err := toml.Marshal(masked)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

func maskSecret(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "********"
}
