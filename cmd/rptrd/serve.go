// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jessicalh/rptr/internal/config"
	"github.com/jessicalh/rptr/internal/controller"
	"github.com/jessicalh/rptr/internal/h264"
	"github.com/jessicalh/rptr/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the encoder, assembler, and HTTP origin server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.WithComponent("daemon")
	holder := config.NewHolder(cfg, loader)
	if err := holder.WatchFile(resolveConfigPath()); err != nil {
		logger.Warn().Err(err).Msg("daemon.config_watch_unavailable")
	}
	defer func() { _ = holder.Close() }()

	backend := &h264.SoftwareBackend{}
	source := &syntheticSource{frameRate: cfg.FrameRate}

	ctrl, err := controller.New(cfg, backend, source, log.Base())
	if err != nil {
		return err
	}

	logger.Info().
		Str("event", "daemon.starting").
		Str("random_path", ctrl.RandomPath()).
		Str("listen_addr", cfg.ListenAddr).
		Msg("starting rptrd")

	if cfg.MetricsEnabled {
		go serveMetrics(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ctrl.Run(ctx)
}

// serveMetrics runs a tiny Prometheus exposition server on a separate
// port from the origin server, the way the teacher daemon keeps
// operational metrics off the public-facing listener.
func serveMetrics(logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
		logger.Warn().Err(err).Msg("daemon.metrics_server_failed")
	}
}
