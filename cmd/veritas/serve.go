package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"veritas/internal/platform/config"
	"veritas/internal/platform/httpserver"
	"veritas/internal/platform/logger"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the metrics endpoint and the background sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(globalFlags.config)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a, err := buildApp(ctx, cfg, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown cleanup failed", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	api := httpserver.New(cfg.Addr, a.router)
	g.Go(func() error {
		log.InfoContext(ctx, "starting api server", "addr", cfg.Addr, "storage", cfg.Storage, "chain_id", cfg.ChainID)
		return httpserver.Run(ctx, api, cfg.ShutdownTimeout)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := httpserver.New(cfg.MetricsAddr, mux)
		g.Go(func() error {
			log.InfoContext(ctx, "starting metrics server", "addr", cfg.MetricsAddr)
			return httpserver.Run(ctx, metricsSrv, cfg.ShutdownTimeout)
		})
	}
	if a.sweeper != nil {
		g.Go(func() error { return ignoreCancel(a.sweeper.Run(ctx)) })
	}
	if a.relay != nil {
		g.Go(func() error { return ignoreCancel(a.relay.Run(ctx)) })
	}

	err = g.Wait()
	log.Info("veritas stopped")
	return err
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
