package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio groups positions and names the benchmark used for beta.
type Portfolio struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	BenchmarkTicker string    `json:"benchmark_ticker"`
	CreatedAt       time.Time `json:"created_at"`
}

// Position is one holding. Manual positions are priced by hand and are
// never fetched from market-data providers.
type Position struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Ticker      string          `json:"ticker"`
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue decimal.Decimal `json:"market_value"`
	Manual      bool            `json:"manual"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
