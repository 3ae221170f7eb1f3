// Package visualcrossing fetches hourly observations from the Visual
// Crossing timeline API.
package visualcrossing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zerotwo/weather-backfill/internal/models"
)

// Client issues one timeline request per (location, day). The caller is
// responsible for the per-run call budget; the client only fails fast via
// its circuit breaker when the provider is down.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Client around the given HTTP client.
func New(httpClient *http.Client, baseURL, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "visualcrossing",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		breaker:    cb,
	}
}

// FetchDay requests the hourly records for one calendar day at the given
// coordinates. All fields are requested in a single call; any non-2xx
// response or timeout is returned as an error.
func (c *Client) FetchDay(ctx context.Context, lat, lon float64, day time.Time, fields []string) (models.DayData, error) {
	values := url.Values{}
	values.Set("key", c.apiKey)
	values.Set("include", "hours")
	values.Set("elements", strings.Join(fields, ","))

	coords := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	u := fmt.Sprintf("%s/%s/%s?%s",
		c.baseURL, coords, day.Format("2006-01-02"), values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.DayData{}, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request timeline: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}

		var payload timelineResponse
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		return models.DayData{}, err
	}

	payload := result.(timelineResponse)
	return payload.toDayData()
}

type timelineResponse struct {
	Timezone string `json:"timezone"`
	Days     []struct {
		Hours []map[string]any `json:"hours"`
	} `json:"days"`
}

func (t timelineResponse) toDayData() (models.DayData, error) {
	data := models.DayData{Timezone: t.Timezone}
	if len(t.Days) == 0 {
		return data, nil
	}

	for _, hour := range t.Days[0].Hours {
		rec, ok := parseHour(hour)
		if !ok {
			continue
		}
		data.Hours = append(data.Hours, rec)
	}
	return data, nil
}

// parseHour extracts the epoch timestamp and field values of one hour
// entry. Hours without a usable epoch are skipped; null or non-numeric
// field values are dropped from the record.
func parseHour(hour map[string]any) (models.HourlyRecord, bool) {
	rec := models.HourlyRecord{Fields: make(map[string]models.Value, len(hour))}

	epoch, ok := hour[models.EpochField]
	if !ok {
		return rec, false
	}
	num, ok := epoch.(json.Number)
	if !ok {
		return rec, false
	}
	sec, err := num.Int64()
	if err != nil {
		return rec, false
	}
	rec.Epoch = sec

	for key, raw := range hour {
		if key == models.EpochField {
			continue
		}
		val, ok := parseValue(raw)
		if !ok {
			continue
		}
		rec.Fields[key] = val
	}
	return rec, true
}

func parseValue(raw any) (models.Value, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return models.Value{}, false
		}
		return models.Value{Raw: v.String(), Numeric: f}, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return models.Value{}, false
		}
		return models.Value{Raw: v, Numeric: f}, true
	default:
		return models.Value{}, false
	}
}
