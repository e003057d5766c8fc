// Package stooq provides a client for the Stooq daily CSV endpoint,
// used as a keyless fallback when the primary provider fails.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

const baseURL = "https://stooq.com/q/d/l/"

// Client fetches daily history from Stooq. No API key or quota applies.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Stooq client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "stooq").Logger(),
	}
}

// Name identifies the provider in logs and failure records.
func (c *Client) Name() string { return "stooq" }

// SetTimeout overrides the default HTTP timeout for provider calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// FetchDailyHistory fetches daily bars for a ticker, oldest first.
func (c *Client) FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]marketdata.DailyBar, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -lookbackDays)

	params := url.Values{}
	params.Set("s", normalizeTicker(ticker))
	params.Set("d1", from.Format("20060102"))
	params.Set("d2", now.Format("20060102"))
	params.Set("i", "d")

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

	// Stooq answers unknown symbols with 200 and a body of "No data".
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || strings.EqualFold(trimmed, "No data") {
		return nil, marketdata.NewNotFound(c.Name(), ticker)
	}
	if strings.Contains(trimmed, "Exceeded the daily hits limit") {
		return nil, marketdata.NewRateLimited(c.Name(), "daily hits limit exceeded")
	}

	bars, err := parseCSV(trimmed)
	if err != nil {
		return nil, marketdata.NewAPIError(c.Name(), err.Error())
	}
	if len(bars) == 0 {
		return nil, marketdata.NewNotFound(c.Name(), ticker)
	}

	c.log.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("Fetched daily history")
	return bars, nil
}

// normalizeTicker maps plain US tickers to Stooq's ".us" suffix convention.
// Tickers that already carry an exchange suffix pass through unchanged.
func normalizeTicker(ticker string) string {
	t := strings.ToLower(ticker)
	if strings.Contains(t, ".") {
		return t
	}
	return t + ".us"
}

// parseCSV parses the Date,Open,High,Low,Close,Volume payload.
// Rows already arrive oldest first.
func parseCSV(body string) ([]marketdata.DailyBar, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	bars := make([]marketdata.DailyBar, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 5 {
			continue
		}

		date, err := time.ParseInLocation("2006-01-02", row[0], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", row[0], err)
		}

		closePrice, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid close %q on %s: %w", row[4], row[0], err)
		}

		bar := marketdata.DailyBar{Date: date, Close: closePrice}
		bar.Open, _ = strconv.ParseFloat(row[1], 64)
		bar.High, _ = strconv.ParseFloat(row[2], 64)
		bar.Low, _ = strconv.ParseFloat(row[3], 64)
		if len(row) > 5 {
			if v, verr := strconv.ParseFloat(row[5], 64); verr == nil {
				bar.Volume = int64(v)
			}
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
