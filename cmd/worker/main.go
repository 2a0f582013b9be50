// File: cmd/worker/main.go
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
	httpserver "agent-hub/internal/infra/http"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/infra/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	workers := flag.Int("workers", 0, "number of worker loops (overrides worker.workers)")
	addr := flag.String("addr", ":9090", "listen address for /health and /metrics")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		bootLog := logging.New(config.LogConfig{}, true)
		bootLog.Fatal().Err(err).Msg("config")
	}
	if *workers > 0 {
		cfg.Worker.Workers = *workers
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("standalone worker on in-memory storage only sees its own jobs")
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

	// cron schedules run in the API process only
	wait, err := c.StartBackground(ctx, bootstrap.BackgroundOptions{Workers: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("background")
	}

	router := api.NewRouter(api.RouterOptions{
		Ready: func(r *http.Request) error { return c.Ready(r.Context()) },
	}, logger)
	srv := httpserver.NewServer(*addr, router, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested; waiting for in-flight jobs")
	wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("bye")
}
