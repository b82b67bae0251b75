package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/traderelay/internal/api"
	"github.com/betbot/traderelay/internal/app"
	"github.com/betbot/traderelay/internal/metrics"
	"github.com/betbot/traderelay/pkg/config"
	"github.com/betbot/traderelay/pkg/logger"
	"github.com/betbot/traderelay/pkg/shutdown"
)

const defaultConfigPath = "yml/relay.yaml"

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := flag.String("config", "", "config file (yaml); defaults to "+defaultConfigPath+" when present")
	listen := flag.String("listen", "", "HTTP listen address, overrides config")
	flag.Parse()

	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := app.InitLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	relay, err := app.BuildRelay(cfg)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Listen != "" {
		if addr, err := metrics.StartAsync(ctx, cfg.Metrics.Listen); err != nil {
			logger.Warnf("metrics server not started: %v", err)
		} else {
			logger.Infof("metrics listening on %s", addr)
		}
	}

	srv := api.New(relay.Reconciler, api.Config{
		Production:   cfg.IsProduction(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Infof("relay listening on %s (env=%s store=%s anchor=%s profit=%s)",
			cfg.Server.Listen, cfg.Environment, cfg.Store.Driver, cfg.Reconcile.ThreadAnchor, cfg.Reconcile.ProfitUnit)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
			cancel()
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-stopCh:
		logger.Infof("received %s", sig)
	case <-ctx.Done():
	}
	cancel()

	// in-flight requests finish before the store closes
	mgr := shutdown.NewManager()
	mgr.OnShutdown("http", func(ctx context.Context) {
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
		if err := relay.Close(); err != nil {
			logger.Warnf("store close: %v", err)
		}
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if !mgr.Shutdown(shutdownCtx) {
		os.Exit(1)
	}
}
