package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	"github.com/jeremycod/rustfolio-sub000/pkg/formulas"
)

// ErrInsufficientData is returned when the price window is too short for
// reliable metrics.
var ErrInsufficientData = errors.New("insufficient price data")

// DefaultMinPoints is the shortest usable price window. It covers the
// 30-day rolling metrics with room for return-series shrinkage.
const DefaultMinPoints = 30

// EngineConfig injects the engine's tunables.
type EngineConfig struct {
	MinPoints    int
	RiskFreeRate float64
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinPoints:    DefaultMinPoints,
		RiskFreeRate: 0.02,
	}
}

// Engine computes PositionRisk from price windows. Pure and stateless.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates a risk engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = DefaultMinPoints
	}
	return &Engine{cfg: cfg}
}

// Compute produces the full metric set for one ticker. Benchmark windows are
// keyed by benchmark ticker and may be empty; benchmark-dependent fields are
// then nil. Beta and decomposition are computed per benchmark; the primary
// benchmark's exposure also feeds the composite score. Only a window shorter
// than MinPoints is a hard error - any single metric that cannot be computed
// degrades to nil instead.
func (e *Engine) Compute(ticker string, window []prices.PricePoint, benchmarks map[string][]prices.PricePoint, primaryBenchmark string) (*PositionRisk, error) {
	if len(window) < e.cfg.MinPoints {
		return nil, fmt.Errorf("%w: %s has %d points, need %d", ErrInsufficientData, ticker, len(window), e.cfg.MinPoints)
	}

	closes := make([]float64, len(window))
	for i, p := range window {
		closes[i] = p.Close
	}
	returns := formulas.CalculateReturns(closes)

	result := &PositionRisk{
		Ticker:           ticker,
		Volatility:       formulas.AnnualizedVolatility(returns) * 100,
		AnnualizedReturn: formulas.AnnualizedReturn(returns) * 100,
		DataPoints:       len(window),
		WindowStart:      window[0].Date,
		WindowEnd:        window[len(window)-1].Date,
	}

	if dd := formulas.MaxDrawdown(closes); dd != nil {
		result.MaxDrawdown = *dd
	}

	result.Sharpe = formulas.SharpeRatio(returns, e.cfg.RiskFreeRate)
	result.Sortino = formulas.SortinoRatio(returns, e.cfg.RiskFreeRate, 0)

	result.VaR95 = scalePct(formulas.HistoricalVaR(returns, 0.95))
	result.VaR99 = scalePct(formulas.HistoricalVaR(returns, 0.99))
	result.ES95 = scalePct(formulas.ExpectedShortfall(returns, 0.95))
	result.ES99 = scalePct(formulas.ExpectedShortfall(returns, 0.99))

	for id, benchmark := range benchmarks {
		if len(benchmark) < e.cfg.MinPoints {
			continue
		}
		assetAligned, benchAligned := alignReturns(window, benchmark)
		exposure := BenchmarkExposure{
			Beta:          formulas.Beta(assetAligned, benchAligned),
			Decomposition: decompose(assetAligned, benchAligned),
		}
		if result.Benchmarks == nil {
			result.Benchmarks = make(map[string]BenchmarkExposure)
		}
		result.Benchmarks[id] = exposure
	}

	if primary, ok := primaryExposure(result.Benchmarks, primaryBenchmark); ok {
		result.Beta = primary.Beta
		result.Decomposition = primary.Decomposition
	}

	result.RiskScore = e.score(result)
	result.RiskLevel = LevelForScore(result.RiskScore)

	return result, nil
}

// primaryExposure picks the exposure that drives the composite score: the
// named primary benchmark when present, otherwise the sole computed one.
func primaryExposure(exposures map[string]BenchmarkExposure, primary string) (BenchmarkExposure, bool) {
	if exp, ok := exposures[primary]; ok {
		return exp, true
	}
	if len(exposures) == 1 {
		for _, exp := range exposures {
			return exp, true
		}
	}
	return BenchmarkExposure{}, false
}

// scalePct converts a fractional return metric to a percentage, keeping nil.
func scalePct(v *float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * 100
	return &scaled
}

// alignReturns intersects the two windows by date and computes returns over
// the common dates only, so beta is not skewed by calendar gaps.
func alignReturns(asset, benchmark []prices.PricePoint) ([]float64, []float64) {
	benchByDate := make(map[string]float64, len(benchmark))
	for _, p := range benchmark {
		benchByDate[p.Date.Format("2006-01-02")] = p.Close
	}

	var assetCloses, benchCloses []float64
	for _, p := range asset {
		if close, ok := benchByDate[p.Date.Format("2006-01-02")]; ok {
			assetCloses = append(assetCloses, p.Close)
			benchCloses = append(benchCloses, close)
		}
	}

	return formulas.CalculateReturns(assetCloses), formulas.CalculateReturns(benchCloses)
}

// decompose splits total variance into systematic and idiosyncratic parts
// via R-squared against the benchmark. Nil when either series is degenerate.
func decompose(assetReturns, benchReturns []float64) *RiskDecomposition {
	if len(assetReturns) < 2 || len(assetReturns) != len(benchReturns) {
		return nil
	}

	totalVar := formulas.Variance(assetReturns)
	benchVar := formulas.Variance(benchReturns)
	if totalVar < 1e-12 || benchVar < 1e-12 {
		return nil
	}

	corr := formulas.Correlation(assetReturns, benchReturns)
	r2 := corr * corr
	systematic := r2 * totalVar

	return &RiskDecomposition{
		RSquared:          r2,
		SystematicRisk:    systematic,
		IdiosyncraticRisk: totalVar - systematic,
	}
}

// breakpoint tables mapping raw metric values onto 0-100 sub-scores,
// linearly interpolated between entries.
var (
	volatilityBreaks = []breakpoint{{0, 0}, {15, 25}, {30, 50}, {50, 75}, {80, 100}}
	drawdownBreaks   = []breakpoint{{0, 0}, {0.10, 25}, {0.20, 50}, {0.35, 75}, {0.60, 100}}
	betaBreaks       = []breakpoint{{0, 0}, {0.8, 25}, {1.0, 40}, {1.5, 70}, {2.5, 100}}
	varBreaks        = []breakpoint{{0, 0}, {1.0, 25}, {2.0, 50}, {3.5, 75}, {6.0, 100}}
)

type breakpoint struct {
	value float64
	score float64
}

func normalize(value float64, breaks []breakpoint) float64 {
	if value <= breaks[0].value {
		return breaks[0].score
	}
	last := breaks[len(breaks)-1]
	if value >= last.value {
		return last.score
	}

	i := sort.Search(len(breaks), func(i int) bool { return breaks[i].value >= value })
	lo, hi := breaks[i-1], breaks[i]
	frac := (value - lo.value) / (hi.value - lo.value)
	return lo.score + frac*(hi.score-lo.score)
}

// score combines the normalized sub-scores with weights 0.4 volatility,
// 0.3 drawdown, 0.2 beta, 0.1 VaR95. Weights of nil metrics are dropped and
// the rest renormalized, so missing data never reads as zero risk.
func (e *Engine) score(r *PositionRisk) float64 {
	type term struct {
		weight float64
		score  float64
		ok     bool
	}

	terms := []term{
		{0.4, normalize(r.Volatility, volatilityBreaks), true},
		{0.3, normalize(math.Abs(r.MaxDrawdown), drawdownBreaks), true},
		{0.2, 0, false},
		{0.1, 0, false},
	}
	if r.Beta != nil {
		terms[2].score = normalize(math.Abs(*r.Beta), betaBreaks)
		terms[2].ok = true
	}
	if r.VaR95 != nil {
		terms[3].score = normalize(math.Abs(*r.VaR95), varBreaks)
		terms[3].ok = true
	}

	var weightSum, total float64
	for _, t := range terms {
		if !t.ok {
			continue
		}
		weightSum += t.weight
		total += t.weight * t.score
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}
