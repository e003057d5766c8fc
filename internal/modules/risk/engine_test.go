package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
)

func pointsFromCloses(ticker string, closes []float64) []prices.PricePoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]prices.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = prices.PricePoint{
			Ticker: ticker,
			Date:   base.AddDate(0, 0, i),
			Close:  c,
		}
	}
	return points
}

func TestComputeInsufficientData(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	_, err := engine.Compute("AAPL", pointsFromCloses("AAPL", []float64{100, 101, 102}), nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeFlatSeries(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	closes := make([]float64, 90)
	for i := range closes {
		closes[i] = 100.0
	}

	result, err := engine.Compute("FLAT", pointsFromCloses("FLAT", closes), nil, "")
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Volatility)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Nil(t, result.Sharpe, "Sharpe is undefined with zero volatility")
	assert.Nil(t, result.Beta, "no benchmark was provided")
	assert.Nil(t, result.Decomposition)
	assert.Equal(t, LevelLow, result.RiskLevel)
}

func TestComputeVaROrdering(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 0, 250)
	price := 100.0
	for i := 0; i < 250; i++ {
		price *= 1 + rng.NormFloat64()*0.015
		closes = append(closes, price)
	}

	result, err := engine.Compute("VOL", pointsFromCloses("VOL", closes), nil, "")
	require.NoError(t, err)

	require.NotNil(t, result.VaR95)
	require.NotNil(t, result.VaR99)
	require.NotNil(t, result.ES95)
	require.NotNil(t, result.ES99)

	assert.LessOrEqual(t, *result.ES95, *result.VaR95)
	assert.LessOrEqual(t, *result.ES99, *result.VaR99)
	assert.LessOrEqual(t, *result.VaR99, *result.VaR95)
	assert.Less(t, *result.VaR95, 0.0)
}

func TestComputeBetaAgainstBenchmark(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	// Asset moves exactly 2x the benchmark each day.
	bench := make([]float64, 60)
	asset := make([]float64, 60)
	bench[0], asset[0] = 100, 100
	rng := rand.New(rand.NewSource(3))
	for i := 1; i < 60; i++ {
		r := rng.NormFloat64() * 0.01
		bench[i] = bench[i-1] * (1 + r)
		asset[i] = asset[i-1] * (1 + 2*r)
	}

	benchmarks := map[string][]prices.PricePoint{"SPY": pointsFromCloses("SPY", bench)}
	result, err := engine.Compute("LEV", pointsFromCloses("LEV", asset), benchmarks, "SPY")
	require.NoError(t, err)

	require.NotNil(t, result.Beta)
	assert.InDelta(t, 2.0, *result.Beta, 0.05)

	require.NotNil(t, result.Decomposition)
	assert.InDelta(t, 1.0, result.Decomposition.RSquared, 0.01, "perfectly correlated series")
	assert.InDelta(t, result.Decomposition.SystematicRisk+result.Decomposition.IdiosyncraticRisk,
		result.Decomposition.SystematicRisk/result.Decomposition.RSquared, 1e-9)
}

func TestComputeBetaPerBenchmark(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	// Asset moves 2x the first benchmark; the second benchmark is half the
	// first, so the asset moves 4x against it.
	spy := make([]float64, 60)
	agg := make([]float64, 60)
	asset := make([]float64, 60)
	spy[0], agg[0], asset[0] = 100, 100, 100
	rng := rand.New(rand.NewSource(11))
	for i := 1; i < 60; i++ {
		r := rng.NormFloat64() * 0.01
		spy[i] = spy[i-1] * (1 + r)
		agg[i] = agg[i-1] * (1 + r/2)
		asset[i] = asset[i-1] * (1 + 2*r)
	}

	benchmarks := map[string][]prices.PricePoint{
		"SPY": pointsFromCloses("SPY", spy),
		"AGG": pointsFromCloses("AGG", agg),
	}
	result, err := engine.Compute("LEV", pointsFromCloses("LEV", asset), benchmarks, "SPY")
	require.NoError(t, err)

	require.Len(t, result.Benchmarks, 2)
	require.NotNil(t, result.Benchmarks["SPY"].Beta)
	require.NotNil(t, result.Benchmarks["AGG"].Beta)
	assert.InDelta(t, 2.0, *result.Benchmarks["SPY"].Beta, 0.05)
	assert.InDelta(t, 4.0, *result.Benchmarks["AGG"].Beta, 0.1)

	// The primary benchmark's exposure drives the headline beta and the
	// composite score.
	require.NotNil(t, result.Beta)
	assert.Equal(t, *result.Benchmarks["SPY"].Beta, *result.Beta)
	assert.Equal(t, result.Benchmarks["SPY"].Decomposition, result.Decomposition)

	// A too-short benchmark window is skipped rather than computed badly.
	benchmarks["SHORT"] = pointsFromCloses("SHORT", spy[:10])
	result, err = engine.Compute("LEV", pointsFromCloses("LEV", asset), benchmarks, "SPY")
	require.NoError(t, err)
	_, ok := result.Benchmarks["SHORT"]
	assert.False(t, ok)
}

func TestScoreExcludesNilMetrics(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig())

	// Without beta and VaR the score is a renormalized blend of volatility
	// and drawdown sub-scores.
	r := &PositionRisk{Volatility: 30, MaxDrawdown: -0.20}
	score := engine.score(r)
	assert.InDelta(t, 50.0, score, 1e-9, "both sub-scores sit at the 50 breakpoint")

	// Adding a high beta raises the score.
	beta := 2.5
	withBeta := &PositionRisk{Volatility: 30, MaxDrawdown: -0.20, Beta: &beta}
	assert.Greater(t, engine.score(withBeta), score)
}

func TestNormalizeInterpolatesAndClamps(t *testing.T) {
	assert.Equal(t, 0.0, normalize(-5, volatilityBreaks))
	assert.Equal(t, 100.0, normalize(500, volatilityBreaks))
	assert.InDelta(t, 37.5, normalize(22.5, volatilityBreaks), 1e-9, "halfway between 15 and 30")
}

func TestLevelForScoreBoundaries(t *testing.T) {
	assert.Equal(t, LevelLow, LevelForScore(0))
	assert.Equal(t, LevelLow, LevelForScore(39.99))
	assert.Equal(t, LevelModerate, LevelForScore(40))
	assert.Equal(t, LevelModerate, LevelForScore(59.99))
	assert.Equal(t, LevelHigh, LevelForScore(60))
	assert.Equal(t, LevelHigh, LevelForScore(100))
}
