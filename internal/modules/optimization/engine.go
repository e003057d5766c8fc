package optimization

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

// EngineConfig holds the rule thresholds.
type EngineConfig struct {
	ConcentrationWarning  float64 // weight above this triggers the concentration rule
	ConcentrationHigh     float64
	ConcentrationCritical float64
	RiskContribMultiple   float64 // contribution above this multiple of the average triggers reduce_risk
	DiversificationFloor  float64 // 0-10 scale
	SharpeFloor           float64
}

// DefaultEngineConfig returns the standard rule thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConcentrationWarning:  0.15,
		ConcentrationHigh:     0.25,
		ConcentrationCritical: 0.40,
		RiskContribMultiple:   2.0,
		DiversificationFloor:  5.0,
		SharpeFloor:           0.2,
	}
}

// Engine evaluates the rule set over aggregated portfolio risk. Each rule
// independently emits zero or one recommendation.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an optimization engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Analyze runs all rules and derives overall portfolio health.
// avgCorrelation feeds the diversification simulation; pass 0 when unknown.
func (e *Engine) Analyze(pr *risk.PortfolioRisk, avgCorrelation float64) *Analysis {
	analysis := &Analysis{
		PortfolioID: pr.PortfolioID,
		GeneratedAt: time.Now().UTC(),
	}

	if rec := e.concentrationRule(pr, avgCorrelation); rec != nil {
		analysis.Recommendations = append(analysis.Recommendations, *rec)
	}
	if rec := e.riskContributionRule(pr, avgCorrelation); rec != nil {
		analysis.Recommendations = append(analysis.Recommendations, *rec)
	}
	if rec := e.diversificationRule(pr, avgCorrelation); rec != nil {
		analysis.Recommendations = append(analysis.Recommendations, *rec)
	}
	if rec := e.efficiencyRule(pr, avgCorrelation); rec != nil {
		analysis.Recommendations = append(analysis.Recommendations, *rec)
	}

	sort.SliceStable(analysis.Recommendations, func(i, j int) bool {
		return severityRank(analysis.Recommendations[i].Severity) > severityRank(analysis.Recommendations[j].Severity)
	})

	analysis.Health = health(analysis.Recommendations)
	return analysis
}

func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// health maps the severity mix of triggered rules to a coarse label.
func health(recs []Recommendation) string {
	var criticals, highs, warnings int
	for _, r := range recs {
		switch r.Severity {
		case SeverityCritical:
			criticals++
		case SeverityHigh:
			highs++
		default:
			warnings++
		}
	}

	switch {
	case criticals > 0:
		return HealthCritical
	case highs >= 2:
		return HealthPoor
	case highs == 1:
		return HealthFair
	case warnings > 0:
		return HealthGood
	default:
		return HealthExcellent
	}
}

// concentrationRule flags the largest position when its weight exceeds the
// concentration threshold, suggesting a cap with proportional redistribution.
func (e *Engine) concentrationRule(pr *risk.PortfolioRisk, avgCorr float64) *Recommendation {
	idx := -1
	maxWeight := 0.0
	for i, entry := range pr.PositionRisks {
		if entry.Weight > maxWeight {
			maxWeight = entry.Weight
			idx = i
		}
	}
	if idx < 0 || maxWeight <= e.cfg.ConcentrationWarning {
		return nil
	}

	severity := SeverityWarning
	switch {
	case maxWeight > e.cfg.ConcentrationCritical:
		severity = SeverityCritical
	case maxWeight > e.cfg.ConcentrationHigh:
		severity = SeverityHigh
	}

	offender := pr.PositionRisks[idx]
	adjusted := capWeight(weightsOf(pr), idx, e.cfg.ConcentrationWarning)

	return &Recommendation{
		ID:       uuid.New().String(),
		Type:     TypeReduceConcentration,
		Severity: severity,
		Title:    fmt.Sprintf("Reduce concentration in %s", offender.Ticker),
		Rationale: fmt.Sprintf("%s is %.1f%% of the portfolio, above the %.0f%% concentration threshold",
			offender.Ticker, maxWeight*100, e.cfg.ConcentrationWarning*100),
		AffectedPositions: []PositionAdjustment{{
			Ticker:          offender.Ticker,
			CurrentWeight:   maxWeight,
			SuggestedWeight: e.cfg.ConcentrationWarning,
			Action:          "reduce",
		}},
		ExpectedImpact: e.simulate(pr, adjusted, avgCorr),
		SuggestedActions: []string{
			fmt.Sprintf("Trim %s to at most %.0f%% of portfolio value", offender.Ticker, e.cfg.ConcentrationWarning*100),
			"Redistribute proceeds across existing positions",
		},
	}
}

// riskContributionRule flags positions whose weight-times-score contribution
// dwarfs the average contribution.
func (e *Engine) riskContributionRule(pr *risk.PortfolioRisk, avgCorr float64) *Recommendation {
	n := len(pr.PositionRisks)
	if n < 2 {
		return nil
	}

	contributions := make([]float64, n)
	total := 0.0
	for i, entry := range pr.PositionRisks {
		contributions[i] = entry.Weight * entry.Risk.RiskScore
		total += contributions[i]
	}
	avg := total / float64(n)
	if avg == 0 {
		return nil
	}

	idx := -1
	maxContrib := 0.0
	for i, c := range contributions {
		if c > maxContrib {
			maxContrib = c
			idx = i
		}
	}
	if maxContrib <= e.cfg.RiskContribMultiple*avg {
		return nil
	}

	severity := SeverityWarning
	if maxContrib > 1.5*e.cfg.RiskContribMultiple*avg {
		severity = SeverityHigh
	}

	offender := pr.PositionRisks[idx]
	adjusted := scaleWeight(weightsOf(pr), idx, 0.75)

	return &Recommendation{
		ID:       uuid.New().String(),
		Type:     TypeReduceRisk,
		Severity: severity,
		Title:    fmt.Sprintf("Reduce risk contribution of %s", offender.Ticker),
		Rationale: fmt.Sprintf("%s contributes %.1fx the average position risk (weight %.1f%%, risk score %.0f)",
			offender.Ticker, maxContrib/avg, offender.Weight*100, offender.Risk.RiskScore),
		AffectedPositions: []PositionAdjustment{{
			Ticker:          offender.Ticker,
			CurrentWeight:   offender.Weight,
			SuggestedWeight: adjusted[idx],
			Action:          "reduce",
		}},
		ExpectedImpact: e.simulate(pr, adjusted, avgCorr),
		SuggestedActions: []string{
			fmt.Sprintf("Reduce %s exposure or hedge its downside", offender.Ticker),
		},
	}
}

// diversificationRule fires when the score sits below the floor, simulating
// a halfway move toward equal weights.
func (e *Engine) diversificationRule(pr *risk.PortfolioRisk, avgCorr float64) *Recommendation {
	if len(pr.PositionRisks) == 0 || pr.DiversificationScore >= e.cfg.DiversificationFloor {
		return nil
	}

	severity := SeverityWarning
	if pr.DiversificationScore < e.cfg.DiversificationFloor-2 {
		severity = SeverityHigh
	}

	weights := weightsOf(pr)
	equal := 1.0 / float64(len(weights))
	adjusted := make([]float64, len(weights))
	var affected []PositionAdjustment
	for i, w := range weights {
		adjusted[i] = (w + equal) / 2
		action := "increase"
		if adjusted[i] < w {
			action = "reduce"
		}
		affected = append(affected, PositionAdjustment{
			Ticker:          pr.PositionRisks[i].Ticker,
			CurrentWeight:   w,
			SuggestedWeight: adjusted[i],
			Action:          action,
		})
	}

	return &Recommendation{
		ID:       uuid.New().String(),
		Type:     TypeIncreaseDiversification,
		Severity: severity,
		Title:    "Increase portfolio diversification",
		Rationale: fmt.Sprintf("Diversification score is %.1f/10, below the %.0f/10 floor",
			pr.DiversificationScore, e.cfg.DiversificationFloor),
		AffectedPositions: affected,
		ExpectedImpact:    e.simulate(pr, adjusted, avgCorr),
		SuggestedActions: []string{
			"Add positions in uncorrelated sectors or asset classes",
			"Move position sizes toward equal weights",
		},
	}
}

// efficiencyRule fires when the portfolio Sharpe sits below the floor,
// simulating a 10-point weight shift from the worst to the best Sharpe.
func (e *Engine) efficiencyRule(pr *risk.PortfolioRisk, avgCorr float64) *Recommendation {
	if pr.Sharpe == nil || *pr.Sharpe >= e.cfg.SharpeFloor {
		return nil
	}

	severity := SeverityWarning
	if *pr.Sharpe < 0 {
		severity = SeverityHigh
	}

	rec := &Recommendation{
		ID:       uuid.New().String(),
		Type:     TypeImproveEfficiency,
		Severity: severity,
		Title:    "Improve risk-adjusted returns",
		Rationale: fmt.Sprintf("Portfolio Sharpe ratio is %.2f, below the %.2f floor",
			*pr.Sharpe, e.cfg.SharpeFloor),
		SuggestedActions: []string{
			"Rotate weight from low-Sharpe positions into higher-Sharpe holdings",
		},
	}

	worst, best := -1, -1
	for i, entry := range pr.PositionRisks {
		if entry.Risk.Sharpe == nil {
			continue
		}
		if worst < 0 || *entry.Risk.Sharpe < *pr.PositionRisks[worst].Risk.Sharpe {
			worst = i
		}
		if best < 0 || *entry.Risk.Sharpe > *pr.PositionRisks[best].Risk.Sharpe {
			best = i
		}
	}
	if worst >= 0 && best >= 0 && worst != best {
		weights := weightsOf(pr)
		shift := 0.10 * weights[worst]
		adjusted := make([]float64, len(weights))
		copy(adjusted, weights)
		adjusted[worst] -= shift
		adjusted[best] += shift

		rec.AffectedPositions = []PositionAdjustment{
			{Ticker: pr.PositionRisks[worst].Ticker, CurrentWeight: weights[worst], SuggestedWeight: adjusted[worst], Action: "reduce"},
			{Ticker: pr.PositionRisks[best].Ticker, CurrentWeight: weights[best], SuggestedWeight: adjusted[best], Action: "increase"},
		}
		rec.ExpectedImpact = e.simulate(pr, adjusted, avgCorr)
	}

	return rec
}

func weightsOf(pr *risk.PortfolioRisk) []float64 {
	weights := make([]float64, len(pr.PositionRisks))
	for i, entry := range pr.PositionRisks {
		weights[i] = entry.Weight
	}
	return weights
}

// capWeight caps one weight and redistributes the excess proportionally.
func capWeight(weights []float64, idx int, limit float64) []float64 {
	adjusted := make([]float64, len(weights))
	copy(adjusted, weights)

	excess := adjusted[idx] - limit
	if excess <= 0 || len(weights) < 2 {
		return adjusted
	}
	adjusted[idx] = limit

	othersTotal := 1.0 - weights[idx]
	for i := range adjusted {
		if i == idx || othersTotal == 0 {
			continue
		}
		adjusted[i] += excess * (weights[i] / othersTotal)
	}
	return adjusted
}

// scaleWeight multiplies one weight by factor and redistributes the
// difference proportionally.
func scaleWeight(weights []float64, idx int, factor float64) []float64 {
	adjusted := make([]float64, len(weights))
	copy(adjusted, weights)

	freed := adjusted[idx] * (1 - factor)
	adjusted[idx] *= factor

	othersTotal := 1.0 - weights[idx]
	for i := range adjusted {
		if i == idx || othersTotal == 0 {
			continue
		}
		adjusted[i] += freed * (weights[i] / othersTotal)
	}
	return adjusted
}

// simulate recomputes the weighted aggregate metrics under adjusted weights
// and reports before/after values.
func (e *Engine) simulate(pr *risk.PortfolioRisk, adjusted []float64, avgCorr float64) *ExpectedImpact {
	impact := &ExpectedImpact{
		RiskScoreBefore:       pr.RiskScore,
		VolatilityBefore:      pr.Volatility,
		MaxDrawdownBefore:     pr.MaxDrawdown,
		DiversificationBefore: pr.DiversificationScore,
	}

	var scoreSum, scoreW float64
	var volSum, volW float64
	var ddSum, ddW float64
	for i, entry := range pr.PositionRisks {
		w := adjusted[i]
		scoreSum += w * entry.Risk.RiskScore
		scoreW += w
		volSum += w * entry.Risk.Volatility
		volW += w
		ddSum += w * entry.Risk.MaxDrawdown
		ddW += w
	}

	if scoreW > 0 {
		impact.RiskScoreAfter = scoreSum / scoreW
	}
	if volW > 0 {
		v := volSum / volW
		impact.VolatilityAfter = &v
	}
	if ddW > 0 {
		d := ddSum / ddW
		impact.MaxDrawdownAfter = &d
	}
	impact.DiversificationAfter = risk.DiversificationScore(len(adjusted), adjusted, avgCorr)

	return impact
}
