package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/zerotwo/weather-backfill/internal/config"
	"github.com/zerotwo/weather-backfill/internal/db"
	"github.com/zerotwo/weather-backfill/internal/derived"
	"github.com/zerotwo/weather-backfill/internal/models"
	"github.com/zerotwo/weather-backfill/internal/runner"
	"github.com/zerotwo/weather-backfill/internal/visualcrossing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection error: %v", err)
	}
	defer store.Close()

	client := visualcrossing.New(&http.Client{Timeout: cfg.RequestTimeout}, cfg.BaseURL, cfg.APIKey)
	engine := derived.New(store, cfg.SiteID)
	r := runner.New(store, client, engine, cfg)

	holder := &runHolder{}

	// The trigger fires once per day; the run itself is idempotent, so a
	// duplicate invocation only finds fewer or no gaps. gocron runs jobs
	// singleton-style here to keep two runs from overlapping.
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err = sched.Every(1).Day().At(cfg.ScheduleAt).Do(func() {
		log.Printf("scheduler: starting daily backfill")
		summary, err := r.Run(ctx)
		holder.set(summary)
		if err != nil {
			log.Printf("scheduler: run %s failed: %v", summary.ID, err)
			return
		}
		log.Printf("scheduler: run %s completed", summary.ID)
	})
	if err != nil {
		log.Fatalf("failed to schedule backfill: %v", err)
	}
	sched.StartAsync()
	defer sched.Stop()

	srv := newServer(cfg, holder)
	log.Printf("status API listening on %s", cfg.ListenAddr())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runHolder keeps the most recent run summary for the status API.
type runHolder struct {
	mu      sync.RWMutex
	summary *models.RunSummary
}

func (h *runHolder) set(summary models.RunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = &summary
}

func (h *runHolder) last() (models.RunSummary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.summary == nil {
		return models.RunSummary{}, false
	}
	return *h.summary, true
}
