package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/zerotwo/weather-backfill/internal/config"
	"github.com/zerotwo/weather-backfill/internal/db"
	"github.com/zerotwo/weather-backfill/internal/derived"
	"github.com/zerotwo/weather-backfill/internal/runner"
	"github.com/zerotwo/weather-backfill/internal/visualcrossing"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("backfill failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	client := visualcrossing.New(&http.Client{Timeout: cfg.RequestTimeout}, cfg.BaseURL, cfg.APIKey)
	engine := derived.New(store, cfg.SiteID)

	summary, err := runner.New(store, client, engine, cfg).Run(ctx)
	log.Printf("run %s finished: %d stations, %d calls", summary.ID, len(summary.Locations), summary.Calls)
	return err
}
