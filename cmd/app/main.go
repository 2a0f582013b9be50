// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-hub/internal/bootstrap"
	"agent-hub/internal/config"
	"agent-hub/internal/infra/api"
	"agent-hub/internal/infra/api/apiv1"
	httpserver "agent-hub/internal/infra/http"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/infra/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, open API without credentials)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		bootLog := logging.New(config.LogConfig{}, true)
		bootLog.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap")
	}
	defer c.Close()

	// ---- Background loops ----
	wait, err := c.StartBackground(ctx, bootstrap.BackgroundOptions{
		Workers:   cfg.Worker.Enabled,
		Schedules: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("background")
	}

	// ---- HTTP ----
	server := apiv1.NewServer(c.Jobs, c.Projects, c.Objectives, apiv1.Options{
		SyncRunTimeout:  cfg.HTTP.SyncRunTimeout,
		DefaultRunItems: cfg.Jobs.DefaultMaxItems,
	}, logger)
	router := api.NewRouter(api.RouterOptions{
		API:            server,
		Auth:           api.NewAuthManager(cfg.HTTP.APIKey, cfg.HTTP.JWTSecret, cfg.Runtime.Dev, logger),
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Ready:          func(r *http.Request) error { return c.Ready(r.Context()) },
	}, logger)
	srv := httpserver.NewServer(cfg.HTTP.Addr, router, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	logger.Info().
		Str("version", version).
		Str("database", cfg.Database.Driver).
		Str("provider", cfg.Provider.Name).
		Bool("worker", cfg.Worker.Enabled).
		Msg("agent-hub started")

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	wait()
	logger.Info().Msg("bye")
}
