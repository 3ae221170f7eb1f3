package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBaseURL        = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"
	defaultLookback       = 4380 * time.Hour // half a year
	defaultSiteID         = 140
	defaultMaxCalls       = 1000
	defaultRequestTimeout = 30 * time.Second
	defaultScheduleAt     = "03:00"
	defaultPort           = 8080
)

// Config holds runtime configuration for the backfill service.
type Config struct {
	DatabaseURL    string
	APIKey         string
	BaseURL        string
	SiteID         int64
	Lookback       time.Duration
	MaxCallsPerRun int
	RequestTimeout time.Duration
	ScheduleAt     string
	Port           int
}

// Load reads configuration from environment variables (optionally .env).
// A missing API key or database URL is fatal before any work starts.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:        defaultBaseURL,
		SiteID:         defaultSiteID,
		Lookback:       defaultLookback,
		MaxCallsPerRun: defaultMaxCalls,
		RequestTimeout: defaultRequestTimeout,
		ScheduleAt:     defaultScheduleAt,
		Port:           defaultPort,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("VC_API_KEY"))
	if cfg.APIKey == "" {
		return cfg, errors.New("VC_API_KEY is not defined")
	}

	if v := strings.TrimSpace(os.Getenv("VC_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("SITE_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return cfg, fmt.Errorf("invalid SITE_ID: %s", v)
		}
		cfg.SiteID = id
	}

	if v := strings.TrimSpace(os.Getenv("BACKFILL_LOOKBACK")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid BACKFILL_LOOKBACK: %s", v)
		}
		cfg.Lookback = d
	}

	if v := strings.TrimSpace(os.Getenv("MAX_CALLS_PER_RUN")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid MAX_CALLS_PER_RUN: %s", v)
		}
		cfg.MaxCallsPerRun = n
	}

	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %s", v)
		}
		cfg.RequestTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("SCHEDULE_AT")); v != "" {
		if _, err := time.Parse("15:04", v); err != nil {
			return cfg, fmt.Errorf("invalid SCHEDULE_AT: %s", v)
		}
		cfg.ScheduleAt = v
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return cfg, fmt.Errorf("invalid PORT: %s", v)
		}
		cfg.Port = port
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the scheduler's status API.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
