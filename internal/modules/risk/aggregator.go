package risk

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/settings"
	"github.com/jeremycod/rustfolio-sub000/pkg/formulas"
)

// PositionInput feeds one position into the aggregator. Risk is nil for
// positions whose metrics could not be computed; those are excluded from
// aggregation and reported in ExcludedTickers.
type PositionInput struct {
	Ticker      string
	MarketValue decimal.Decimal
	Risk        *PositionRisk
}

// Aggregator combines per-position risk into portfolio-level risk.
// Weighted-average metrics ignore cross-position covariance.
type Aggregator struct {
	thresholds settings.RiskThresholdSettings
}

// NewAggregator creates an aggregator with the given threshold settings.
func NewAggregator(thresholds settings.RiskThresholdSettings) *Aggregator {
	return &Aggregator{thresholds: thresholds}
}

// Aggregate produces PortfolioRisk over the positions that have valid risk
// data. Weights are market-value proportions over included positions and sum
// to 1.0. A position without risk data never fails the whole portfolio.
func (a *Aggregator) Aggregate(portfolioID string, inputs []PositionInput, corr *CorrelationMatrix) *PortfolioRisk {
	result := &PortfolioRisk{
		PortfolioID: portfolioID,
		ComputedAt:  time.Now().UTC(),
	}

	var included []PositionInput
	totalValue := decimal.Zero
	for _, in := range inputs {
		if in.Risk == nil || in.MarketValue.IsZero() {
			if in.Risk == nil {
				result.ExcludedTickers = append(result.ExcludedTickers, in.Ticker)
			}
			continue
		}
		included = append(included, in)
		totalValue = totalValue.Add(in.MarketValue)
	}
	sort.Strings(result.ExcludedTickers)

	if len(included) == 0 || totalValue.IsZero() {
		result.RiskLevel = LevelLow
		return result
	}

	weights := make([]float64, len(included))
	for i, in := range included {
		weights[i], _ = in.MarketValue.Div(totalValue).Float64()
		result.PositionRisks = append(result.PositionRisks, PositionRiskEntry{
			Ticker:      in.Ticker,
			MarketValue: in.MarketValue,
			Weight:      weights[i],
			Risk:        in.Risk,
		})
	}

	// Aggregate metrics as renormalized weighted averages; positions whose
	// metric is nil drop out of that metric's average instead of skewing it.
	result.RiskScore = weightedAvg(included, weights, func(r *PositionRisk) *float64 { return &r.RiskScore })
	result.RiskLevel = LevelForScore(result.RiskScore)

	vol := weightedAvgPtr(included, weights, func(r *PositionRisk) *float64 { return &r.Volatility })
	result.Volatility = vol
	result.MaxDrawdown = weightedAvgPtr(included, weights, func(r *PositionRisk) *float64 { return &r.MaxDrawdown })
	result.Beta = weightedAvgPtr(included, weights, func(r *PositionRisk) *float64 { return r.Beta })
	result.Sharpe = weightedAvgPtr(included, weights, func(r *PositionRisk) *float64 { return r.Sharpe })

	avgCorr := 0.0
	if corr != nil {
		avgCorr = corr.AverageCorrelation
	}
	result.DiversificationScore = DiversificationScore(len(included), weights, avgCorr)
	result.Violations = a.violations(included)

	return result
}

func weightedAvg(inputs []PositionInput, weights []float64, metric func(*PositionRisk) *float64) float64 {
	if v := weightedAvgPtr(inputs, weights, metric); v != nil {
		return *v
	}
	return 0
}

// weightedAvgPtr averages a metric over positions where it is non-nil,
// renormalizing weights over those positions. Nil when no position has it.
func weightedAvgPtr(inputs []PositionInput, weights []float64, metric func(*PositionRisk) *float64) *float64 {
	var weightSum, total float64
	for i, in := range inputs {
		v := metric(in.Risk)
		if v == nil {
			continue
		}
		weightSum += weights[i]
		total += weights[i] * *v
	}
	if weightSum == 0 {
		return nil
	}
	avg := total / weightSum
	return &avg
}

// DiversificationScore maps position count, concentration, and average
// pairwise correlation onto a 0-10 scale. The base rises with sqrt(N), a
// Herfindahl-based penalty subtracts up to 4 points for concentration, and
// low correlation adds up to 4 bonus points. Clamped to [0, 10].
func DiversificationScore(n int, weights []float64, avgCorrelation float64) float64 {
	if n == 0 {
		return 0
	}

	base := 2 * math.Sqrt(float64(n))
	if base > 6 {
		base = 6
	}

	penalty := 0.0
	if n > 1 {
		hhi := 0.0
		for _, w := range weights {
			hhi += w * w
		}
		minHHI := 1.0 / float64(n)
		penalty = 4 * (hhi - minHHI) / (1 - minHHI)
	}

	bonus := 4 * (1 - avgCorrelation)
	if bonus < 0 {
		bonus = 0
	} else if bonus > 4 {
		bonus = 4
	}

	score := base - penalty + bonus
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// violations checks each included position against the configured
// warning/critical thresholds. A position can breach several metrics.
func (a *Aggregator) violations(inputs []PositionInput) []ThresholdViolation {
	var out []ThresholdViolation

	for _, in := range inputs {
		r := in.Risk
		out = appendAboveViolation(out, in.Ticker, "volatility", r.Volatility, a.thresholds.Volatility)
		out = appendBelowViolation(out, in.Ticker, "max_drawdown", r.MaxDrawdown, a.thresholds.MaxDrawdown)
		if r.Beta != nil {
			out = appendAboveViolation(out, in.Ticker, "beta", math.Abs(*r.Beta), a.thresholds.Beta)
		}
		out = appendAboveViolation(out, in.Ticker, "risk_score", r.RiskScore, a.thresholds.RiskScore)
	}
	return out
}

func appendAboveViolation(out []ThresholdViolation, ticker, metric string, value float64, t settings.MetricThreshold) []ThresholdViolation {
	switch {
	case value >= t.Critical:
		return append(out, ThresholdViolation{Ticker: ticker, MetricName: metric, MetricValue: value, ThresholdValue: t.Critical, Severity: "critical"})
	case value >= t.Warning:
		return append(out, ThresholdViolation{Ticker: ticker, MetricName: metric, MetricValue: value, ThresholdValue: t.Warning, Severity: "warning"})
	}
	return out
}

// appendBelowViolation handles negative-convention metrics like drawdown,
// where breaching means falling below the threshold.
func appendBelowViolation(out []ThresholdViolation, ticker, metric string, value float64, t settings.MetricThreshold) []ThresholdViolation {
	switch {
	case value <= t.Critical:
		return append(out, ThresholdViolation{Ticker: ticker, MetricName: metric, MetricValue: value, ThresholdValue: t.Critical, Severity: "critical"})
	case value <= t.Warning:
		return append(out, ThresholdViolation{Ticker: ticker, MetricName: metric, MetricValue: value, ThresholdValue: t.Warning, Severity: "warning"})
	}
	return out
}

// BuildCorrelationMatrix computes pairwise return correlations over the
// dates shared by every series. Returns nil when fewer than two tickers
// have enough overlapping history.
func BuildCorrelationMatrix(series map[string][]prices.PricePoint, minPoints int) *CorrelationMatrix {
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	if len(tickers) < 2 {
		return nil
	}

	// Intersect dates across every series.
	dateCounts := make(map[string]int)
	for _, points := range series {
		for _, p := range points {
			dateCounts[p.Date.Format("2006-01-02")]++
		}
	}
	var shared []string
	for date, count := range dateCounts {
		if count == len(tickers) {
			shared = append(shared, date)
		}
	}
	sort.Strings(shared)

	if len(shared) < minPoints {
		return nil
	}
	sharedSet := make(map[string]bool, len(shared))
	for _, d := range shared {
		sharedSet[d] = true
	}

	returns := make([][]float64, len(tickers))
	for i, t := range tickers {
		var closes []float64
		for _, p := range series[t] {
			if sharedSet[p.Date.Format("2006-01-02")] {
				closes = append(closes, p.Close)
			}
		}
		returns[i] = formulas.CalculateReturns(closes)
	}

	matrix := make([][]float64, len(tickers))
	var corrSum float64
	var pairs int
	for i := range tickers {
		matrix[i] = make([]float64, len(tickers))
		matrix[i][i] = 1.0
	}
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			c := formulas.Correlation(returns[i], returns[j])
			matrix[i][j] = c
			matrix[j][i] = c
			corrSum += c
			pairs++
		}
	}

	avg := 0.0
	if pairs > 0 {
		avg = corrSum / float64(pairs)
	}

	return &CorrelationMatrix{
		Tickers:            tickers,
		Matrix:             matrix,
		AverageCorrelation: avg,
		DataPoints:         len(shared),
	}
}
