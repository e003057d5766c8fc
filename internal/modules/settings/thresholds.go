package settings

import (
	"context"
	"fmt"
)

// MetricThreshold is a warning/critical pair for one risk metric.
type MetricThreshold struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// RiskThresholdSettings holds the per-portfolio thresholds the aggregator
// compares position metrics against. Drawdown thresholds are negative
// (a breach means the metric dropped below them).
type RiskThresholdSettings struct {
	Volatility  MetricThreshold `json:"volatility"`
	MaxDrawdown MetricThreshold `json:"max_drawdown"`
	Beta        MetricThreshold `json:"beta"`
	RiskScore   MetricThreshold `json:"risk_score"`
}

// DefaultRiskThresholds returns the built-in threshold set.
func DefaultRiskThresholds() RiskThresholdSettings {
	return RiskThresholdSettings{
		Volatility:  MetricThreshold{Warning: 30.0, Critical: 50.0},
		MaxDrawdown: MetricThreshold{Warning: -0.20, Critical: -0.35},
		Beta:        MetricThreshold{Warning: 1.5, Critical: 2.0},
		RiskScore:   MetricThreshold{Warning: 60.0, Critical: 80.0},
	}
}

func thresholdKey(portfolioID, metric, level string) string {
	return fmt.Sprintf("risk_thresholds.%s.%s.%s", portfolioID, metric, level)
}

// GetRiskThresholds loads the thresholds for a portfolio, falling back to
// defaults for any key not explicitly set.
func (r *Repository) GetRiskThresholds(ctx context.Context, portfolioID string) (RiskThresholdSettings, error) {
	defaults := DefaultRiskThresholds()
	result := defaults

	pairs := []struct {
		metric string
		target *MetricThreshold
		def    MetricThreshold
	}{
		{"volatility", &result.Volatility, defaults.Volatility},
		{"max_drawdown", &result.MaxDrawdown, defaults.MaxDrawdown},
		{"beta", &result.Beta, defaults.Beta},
		{"risk_score", &result.RiskScore, defaults.RiskScore},
	}

	for _, p := range pairs {
		warning, err := r.GetFloat(ctx, thresholdKey(portfolioID, p.metric, "warning"), p.def.Warning)
		if err != nil {
			return defaults, err
		}
		critical, err := r.GetFloat(ctx, thresholdKey(portfolioID, p.metric, "critical"), p.def.Critical)
		if err != nil {
			return defaults, err
		}
		p.target.Warning = warning
		p.target.Critical = critical
	}

	return result, nil
}

// SetRiskThreshold stores one warning/critical pair for a portfolio metric.
func (r *Repository) SetRiskThreshold(ctx context.Context, portfolioID, metric string, threshold MetricThreshold) error {
	if err := r.SetFloat(ctx, thresholdKey(portfolioID, metric, "warning"), threshold.Warning); err != nil {
		return err
	}
	return r.SetFloat(ctx, thresholdKey(portfolioID, metric, "critical"), threshold.Critical)
}
