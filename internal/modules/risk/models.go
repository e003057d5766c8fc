// Package risk computes per-position and portfolio-level risk metrics
// from cached daily price windows.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Risk level boundaries for the 0-100 composite score.
const (
	LowMaxScore      = 40.0
	ModerateMaxScore = 60.0
)

// RiskLevel classifies a composite risk score.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelModerate RiskLevel = "moderate"
	LevelHigh     RiskLevel = "high"
)

// LevelForScore maps a 0-100 score to a risk level.
// Boundaries: [0,40) low, [40,60) moderate, [60,100] high.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < LowMaxScore:
		return LevelLow
	case score < ModerateMaxScore:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// RiskDecomposition splits total variance into the part explained by the
// benchmark and the residual.
type RiskDecomposition struct {
	RSquared          float64 `json:"r_squared"`
	SystematicRisk    float64 `json:"systematic_risk"`
	IdiosyncraticRisk float64 `json:"idiosyncratic_risk"`
}

// BenchmarkExposure holds the benchmark-relative metrics for one benchmark.
type BenchmarkExposure struct {
	Beta          *float64           `json:"beta"`
	Decomposition *RiskDecomposition `json:"risk_decomposition"`
}

// PositionRisk is the full metric set for one ticker over a price window.
// Pointer fields are nil when the metric could not be computed (no benchmark
// data, zero variance); nil is distinct from zero and is excluded from
// portfolio averages rather than counted as zero.
type PositionRisk struct {
	Ticker           string  `json:"ticker"`
	Volatility       float64 `json:"volatility"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`

	// Beta and Decomposition mirror the primary benchmark's exposure;
	// Benchmarks carries the exposure per benchmark ticker.
	Beta          *float64                     `json:"beta"`
	Decomposition *RiskDecomposition           `json:"risk_decomposition"`
	Benchmarks    map[string]BenchmarkExposure `json:"benchmarks,omitempty"`
	Sharpe        *float64                     `json:"sharpe"`
	Sortino       *float64                     `json:"sortino"`

	VaR95 *float64 `json:"var_95"`
	VaR99 *float64 `json:"var_99"`
	ES95  *float64 `json:"expected_shortfall_95"`
	ES99  *float64 `json:"expected_shortfall_99"`

	RiskScore float64   `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`

	DataPoints  int       `json:"data_points"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// PositionRiskEntry pairs a position's weight with its risk assessment
// inside a portfolio aggregate.
type PositionRiskEntry struct {
	Ticker      string          `json:"ticker"`
	MarketValue decimal.Decimal `json:"market_value"`
	Weight      float64         `json:"weight"`
	Risk        *PositionRisk   `json:"risk_assessment"`
}

// ThresholdViolation records one metric breaching a configured threshold.
type ThresholdViolation struct {
	Ticker         string  `json:"ticker"`
	MetricName     string  `json:"metric_name"`
	MetricValue    float64 `json:"metric_value"`
	ThresholdValue float64 `json:"threshold_value"`
	Severity       string  `json:"severity"` // warning or critical
}

// PortfolioRisk aggregates weighted position risk. Weighted-average metrics
// ignore cross-position covariance and are approximations.
type PortfolioRisk struct {
	PortfolioID   string              `json:"portfolio_id"`
	PositionRisks []PositionRiskEntry `json:"position_risks"`

	RiskScore   float64   `json:"portfolio_risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Volatility  *float64  `json:"volatility"`
	MaxDrawdown *float64  `json:"max_drawdown"`
	Beta        *float64  `json:"beta"`
	Sharpe      *float64  `json:"sharpe"`

	DiversificationScore float64              `json:"diversification_score"`
	Violations           []ThresholdViolation `json:"threshold_violations"`
	ExcludedTickers      []string             `json:"excluded_tickers"`

	ComputedAt time.Time `json:"computed_at"`
}

// CorrelationMatrix is the pairwise Pearson correlation of daily returns
// over date-intersected windows. Symmetric, diagonal 1.0.
type CorrelationMatrix struct {
	Tickers            []string    `json:"tickers"`
	Matrix             [][]float64 `json:"matrix"`
	AverageCorrelation float64     `json:"average_correlation"`
	DataPoints         int         `json:"data_points"`
}
