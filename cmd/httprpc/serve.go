package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"httprpc/internal/config"
	"httprpc/internal/server"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Serve plugin handlers over the wire protocol",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rootOpts.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", configPath).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("metricsPort", cfg.MetricsPort).
		Int("endpoints", len(cfg.Endpoints)).
		Msg("starting httprpc")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}
