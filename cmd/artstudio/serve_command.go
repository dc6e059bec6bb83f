package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"artstudio/internal/daemon"
	"artstudio/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the studio daemon (HTTP API and browser UI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if value := strings.TrimSpace(bind); value != "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				cfg.Paths.APIBind = value
			}
			return runDaemonProcess(cmd.Context(), ctx, func(address string) {
				fmt.Fprintf(cmd.OutOrStdout(), "artstudio listening on http://%s\n", address)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind for this run")
	return cmd
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext, ready func(address string)) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := newStudioRuntime(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open studio", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, rt.store, rt.studio, logger, daemon.WithMetrics(rt.metrics))
	if err != nil {
		rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	if ready != nil {
		ready(d.Address())
	}
	if !cfg.HasGeminiKey() {
		logging.WarnWithContext(logger, "no Gemini API key configured; generation will fail until one is set", "missing_api_key")
	}

	<-signalCtx.Done()
	logger.Info("artstudio daemon shutting down")
	return nil
}
