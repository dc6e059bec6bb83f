package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"artstudio/internal/config"
	"artstudio/internal/logging"
	"artstudio/internal/media"
	"artstudio/internal/metrics"
	"artstudio/internal/notifications"
	"artstudio/internal/services/gemini"
	"artstudio/internal/session"
	"artstudio/internal/studio"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

// cliLogger returns the logger for one-shot commands: silent unless
// --verbose, in which case records go to stderr at the configured level.
func (c *commandContext) cliLogger(stderr io.Writer) *slog.Logger {
	if !c.verbose() {
		return logging.NewNop()
	}
	cfg := c.configValue()
	level, format := "info", "console"
	if cfg != nil {
		level, format = cfg.Logging.Level, cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      format,
		OutputPaths: []string{"stderr"},
		NoColor:     !shouldColorize(stderr),
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(session.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := session.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// studioRuntime bundles a studio with the collaborators that back it.
type studioRuntime struct {
	cfg     *config.Config
	store   session.Store
	studio  *studio.Studio
	metrics *metrics.Recorder
}

func (r *studioRuntime) Close() {
	if r == nil {
		return
	}
	if r.studio != nil {
		r.studio.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

// newStudioRuntime opens the configured store and wires the studio with the
// Gemini client, ffmpeg helpers, notifications and metrics.
func newStudioRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*studioRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	store, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	recorder := metrics.New()
	st := studio.New(cfg, store, newGenerator(cfg),
		studio.WithExtractor(media.NewExtractor(cfg.FFmpegBinary(), cfg.FFprobeBinary(), logger)),
		studio.WithRenderer(media.NewRenderer(cfg.FFmpegBinary(), cfg.Studio.AnimationFPS, logger)),
		studio.WithNotifier(notifications.NewService(cfg)),
		studio.WithMetrics(recorder),
		studio.WithLogger(logger),
	)
	return &studioRuntime{cfg: cfg, store: store, studio: st, metrics: recorder}, nil
}

// newGenerator returns nil without an API key so the studio reports the
// missing credential instead of calling the API.
func newGenerator(cfg *config.Config) studio.Generator {
	if !cfg.HasGeminiKey() {
		return nil
	}
	return gemini.NewClient(gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		AspectRatio:    cfg.Gemini.AspectRatio,
		ImageSize:      cfg.Gemini.ImageSize,
		TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
	}, gemini.WithRetryMaxAttempts(cfg.Gemini.RetryAttempts))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
