// Package alphavantage provides a client for the Alpha Vantage daily price API.
// The free tier allows 25 requests per day, so the client tracks a local
// daily counter and refuses calls past the quota instead of burning them.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

const (
	baseURL = "https://www.alphavantage.co/query"

	// DailyRequestLimit is the free-tier quota.
	DailyRequestLimit = 25

	// compactThreshold is the lookback below which the "compact" output size
	// (last 100 points) is sufficient.
	compactThreshold = 100
)

// ErrRateLimitExceeded is returned when the local daily quota is exhausted.
type ErrRateLimitExceeded struct{}

// Error implements the error interface.
func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alphavantage daily request limit (%d) exceeded", DailyRequestLimit)
}

// Client is an Alpha Vantage API client with local quota tracking.
type Client struct {
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu            sync.Mutex
	requestsToday int
	counterDay    string // YYYY-MM-DD the counter belongs to
}

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "alphavantage").Logger(),
		counterDay: time.Now().UTC().Format("2006-01-02"),
	}
}

// Name identifies the provider in logs and failure records.
func (c *Client) Name() string { return "alphavantage" }

// SetTimeout overrides the default HTTP timeout for provider calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// checkRateLimit consumes one request from the daily quota.
// The counter rolls over at UTC midnight.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if today != c.counterDay {
		c.counterDay = today
		c.requestsToday = 0
	}

	if c.requestsToday >= DailyRequestLimit {
		return ErrRateLimitExceeded{}
	}

	c.requestsToday++
	return nil
}

// GetRemainingRequests returns how many requests are left in today's quota.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if today != c.counterDay {
		return DailyRequestLimit
	}
	return DailyRequestLimit - c.requestsToday
}

// ResetDailyCounter resets the local quota counter.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsToday = 0
}

// dailyResponse mirrors the TIME_SERIES_DAILY payload. Alpha Vantage returns
// HTTP 200 for most failures and signals them through these fields instead.
type dailyResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

// FetchDailyHistory fetches daily bars for a ticker, oldest first.
func (c *Client) FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]marketdata.DailyBar, error) {
	if c.apiKey == "" {
		return nil, marketdata.NewAPIError(c.Name(), "no API key configured")
	}

	if err := c.checkRateLimit(); err != nil {
		return nil, marketdata.NewRateLimited(c.Name(), err.Error())
	}

	outputSize := "compact"
	if lookbackDays > compactThreshold {
		outputSize = "full"
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", ticker)
	params.Set("outputsize", outputSize)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, marketdata.AsProviderError(err, c.Name())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, marketdata.NewRateLimited(c.Name(), "HTTP 429")
	case resp.StatusCode >= 500:
		return nil, marketdata.NewAPIError(c.Name(), fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, marketdata.NewAPIError(c.Name(), fmt.Sprintf("unexpected HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, marketdata.NewAPIError(c.Name(), fmt.Sprintf("failed to read response: %v", err))
	}

	var payload dailyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, marketdata.NewAPIError(c.Name(), fmt.Sprintf("failed to parse response: %v", err))
	}

	// "Error Message" means unknown symbol; "Note"/"Information" means the
	// server-side quota kicked in before the local counter did.
	if payload.ErrorMessage != "" {
		return nil, marketdata.NewNotFound(c.Name(), ticker)
	}
	if payload.Note != "" {
		return nil, marketdata.NewRateLimited(c.Name(), payload.Note)
	}
	if payload.Information != "" {
		return nil, marketdata.NewRateLimited(c.Name(), payload.Information)
	}
	if len(payload.TimeSeries) == 0 {
		return nil, marketdata.NewNotFound(c.Name(), ticker)
	}

	bars, err := c.parseBars(payload.TimeSeries, lookbackDays)
	if err != nil {
		return nil, marketdata.NewAPIError(c.Name(), err.Error())
	}

	c.log.Debug().
		Str("ticker", ticker).
		Int("bars", len(bars)).
		Int("remaining_requests", c.GetRemainingRequests()).
		Msg("Fetched daily history")

	return bars, nil
}

// parseBars converts the date-keyed time series into ascending DailyBars,
// limited to the lookback window.
func (c *Client) parseBars(series map[string]map[string]string, lookbackDays int) ([]marketdata.DailyBar, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	bars := make([]marketdata.DailyBar, 0, len(series))
	for dateStr, fields := range series {
		date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in response: %w", dateStr, err)
		}
		if date.Before(cutoff) {
			continue
		}

		bar := marketdata.DailyBar{Date: date}
		if bar.Close, err = parseField(fields, "4. close"); err != nil {
			return nil, err
		}
		// OHLV fields are best-effort
		bar.Open, _ = parseField(fields, "1. open")
		bar.High, _ = parseField(fields, "2. high")
		bar.Low, _ = parseField(fields, "3. low")
		if v, verr := parseField(fields, "5. volume"); verr == nil {
			bar.Volume = int64(v)
		}

		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseField(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q in response", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q for field %q: %w", raw, key, err)
	}
	return v, nil
}
