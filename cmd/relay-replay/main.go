package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/betbot/traderelay/internal/app"
	"github.com/betbot/traderelay/internal/notify"
	"github.com/betbot/traderelay/internal/reconcile"
	"github.com/betbot/traderelay/internal/store"
	"github.com/betbot/traderelay/pkg/config"
	"github.com/betbot/traderelay/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "config file (yaml)")
	file := flag.String("file", "", "JSON lines file of trade events; - reads stdin")
	dryRun := flag.Bool("dry-run", false, "render messages against an in-memory store without sending")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: relay-replay -file events.jsonl [-dry-run] [-config relay.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	lc := app.LoggerConfig(cfg)
	if *dryRun {
		// keep reconcile logs out of the rendered output
		lc.Level = "warn"
	}
	if err := logger.InitWithWriter(lc, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			logger.Errorf("open %s: %v", *file, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		rec      *reconcile.Reconciler
		recorder *notify.Recorder
	)
	if *dryRun {
		if err := cfg.ValidateCore(); err != nil {
			logger.Errorf("invalid config: %v", err)
			os.Exit(1)
		}
		recorder = notify.NewRecorder()
		rec = reconcile.New(store.NewMemoryStore(), recorder, app.ReconcileOptions(cfg))
	} else {
		relay, err := app.BuildRelay(cfg)
		if err != nil {
			logger.Errorf("startup failed: %v", err)
			os.Exit(1)
		}
		defer relay.Close()
		rec = relay.Reconciler
	}

	stats, err := replay(ctx, in, rec, recorder, os.Stdout)
	fmt.Println(stats)
	if err != nil {
		logger.Errorf("replay stopped: %v", err)
		os.Exit(1)
	}
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
