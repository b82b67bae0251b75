package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/traderelay/internal/app"
	"github.com/betbot/traderelay/internal/ingest"
	"github.com/betbot/traderelay/internal/metrics"
	"github.com/betbot/traderelay/pkg/config"
	"github.com/betbot/traderelay/pkg/logger"
	"github.com/betbot/traderelay/pkg/shutdown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := app.InitLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := cfg.ValidateKafka(); err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}
	relay, err := app.BuildRelay(cfg)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Metrics.Listen); err != nil {
			logger.Warnf("metrics server not started: %v", err)
		}
	}

	consumer := ingest.NewKafkaConsumer(app.KafkaConfig(cfg), relay.Reconciler)
	runErr := consumer.Run(ctx)
	if runErr != nil {
		logger.Errorf("consumer stopped: %v", runErr)
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown("kafka", func(context.Context) {
		if err := consumer.Close(); err != nil {
			logger.Warnf("kafka close: %v", err)
		}
	})
	mgr.OnShutdown("store", func(context.Context) {
		if err := relay.Close(); err != nil {
			logger.Warnf("store close: %v", err)
		}
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !mgr.Shutdown(shutdownCtx) || runErr != nil {
		os.Exit(1)
	}
}
