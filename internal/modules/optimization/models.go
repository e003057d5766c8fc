// Package optimization derives rule-based rebalancing recommendations from
// aggregated portfolio risk.
package optimization

import "time"

// Recommendation types, one per rule.
const (
	TypeReduceConcentration     = "reduce_concentration"
	TypeReduceRisk              = "reduce_risk"
	TypeIncreaseDiversification = "increase_diversification"
	TypeImproveEfficiency       = "improve_efficiency"
)

// Severity levels in ascending order.
const (
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Portfolio health classifications.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
	HealthCritical  = "critical"
)

// PositionAdjustment is one suggested weight change.
type PositionAdjustment struct {
	Ticker          string  `json:"ticker"`
	CurrentWeight   float64 `json:"current_weight"`
	SuggestedWeight float64 `json:"suggested_weight"`
	Action          string  `json:"action"` // reduce or increase
}

// ExpectedImpact reports before/after aggregate metrics for a simulated
// rebalance under the suggested weights.
type ExpectedImpact struct {
	RiskScoreBefore       float64  `json:"risk_score_before"`
	RiskScoreAfter        float64  `json:"risk_score_after"`
	VolatilityBefore      *float64 `json:"volatility_before"`
	VolatilityAfter       *float64 `json:"volatility_after"`
	MaxDrawdownBefore     *float64 `json:"max_drawdown_before"`
	MaxDrawdownAfter      *float64 `json:"max_drawdown_after"`
	DiversificationBefore float64  `json:"diversification_before"`
	DiversificationAfter  float64  `json:"diversification_after"`
}

// Recommendation is one explainable, severity-ranked suggestion.
type Recommendation struct {
	ID                string               `json:"id"`
	Type              string               `json:"type"`
	Severity          string               `json:"severity"`
	Title             string               `json:"title"`
	Rationale         string               `json:"rationale"`
	AffectedPositions []PositionAdjustment `json:"affected_positions"`
	ExpectedImpact    *ExpectedImpact      `json:"expected_impact"`
	SuggestedActions  []string             `json:"suggested_actions"`
}

// Analysis is the full optimization output for one portfolio.
type Analysis struct {
	PortfolioID     string           `json:"portfolio_id"`
	Health          string           `json:"health"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
