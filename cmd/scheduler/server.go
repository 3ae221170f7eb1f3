package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerotwo/weather-backfill/internal/config"
	"github.com/zerotwo/weather-backfill/internal/models"
)

// server exposes health and last-run status over HTTP.
type server struct {
	cfg    config.Config
	holder *runHolder
	engine *gin.Engine
}

func newServer(cfg config.Config, holder *runHolder) *server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	s := &server{cfg: cfg, holder: holder, engine: engine}
	s.registerRoutes()
	return s
}

// Run starts the HTTP server and blocks until shutdown.
func (s *server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.GET("/runs/last", s.handleLastRun)
}

func (s *server) handleLastRun(c *gin.Context) {
	summary, ok := s.holder.last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, runView(summary))
}

type locationView struct {
	StationID   int64  `json:"station_id"`
	Link        string `json:"link"`
	DaysFetched int    `json:"days_fetched"`
	RowsWritten int    `json:"rows_written"`
	Error       string `json:"error,omitempty"`
}

type runViewBody struct {
	ID           string         `json:"id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Calls        int            `json:"calls"`
	HadErrors    bool           `json:"had_errors"`
	DerivedError string         `json:"derived_error,omitempty"`
	Locations    []locationView `json:"locations"`
}

func runView(summary models.RunSummary) runViewBody {
	body := runViewBody{
		ID:         summary.ID.String(),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Calls:      summary.Calls,
		HadErrors:  summary.HadErrors(),
		Locations:  make([]locationView, 0, len(summary.Locations)),
	}
	if summary.DerivedErr != nil {
		body.DerivedError = summary.DerivedErr.Error()
	}
	for _, loc := range summary.Locations {
		view := locationView{
			StationID:   loc.StationID,
			Link:        loc.Link,
			DaysFetched: loc.DaysFetched,
			RowsWritten: loc.RowsWritten,
		}
		if loc.Err != nil {
			view.Error = loc.Err.Error()
		}
		body.Locations = append(body.Locations, view)
	}
	return body
}
