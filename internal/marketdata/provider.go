// Package marketdata defines the contract between the price acquisition
// service and external daily-price providers, plus the chained fetcher that
// tries providers in priority order.
package marketdata

import (
	"context"
	"time"
)

// DailyBar represents one day of OHLCV data from a provider.
// Only Close is required by the risk pipeline; the remaining fields are
// stored when the source supplies them.
type DailyBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Provider defines the interface for fetching daily price history.
type Provider interface {
	// FetchDailyHistory returns up to lookbackDays of daily bars for the
	// ticker, oldest first. Errors are classified via AsProviderError.
	FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]DailyBar, error)

	// Name identifies the provider in logs and failure records.
	Name() string
}
