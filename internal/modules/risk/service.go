package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/portfolio"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/settings"
)

// DefaultWindowDays is the calendar lookback for risk windows, roughly one
// trading year with weekend/holiday slack.
const DefaultWindowDays = 365

// ErrPortfolioNotFound is returned for an unknown portfolio ID.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// PriceWindower supplies refreshed price windows. Satisfied by the prices
// service.
type PriceWindower interface {
	WindowWithRefresh(ctx context.Context, ticker string, from, to time.Time) ([]prices.PricePoint, error)
}

// PortfolioStore supplies portfolios and positions.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, id string) (*portfolio.Portfolio, error)
	ListPositions(ctx context.Context, portfolioID string) ([]portfolio.Position, error)
}

// ThresholdStore supplies per-portfolio risk thresholds.
type ThresholdStore interface {
	GetRiskThresholds(ctx context.Context, portfolioID string) (settings.RiskThresholdSettings, error)
}

// Service runs the risk pipeline: fresh price windows in, position and
// portfolio risk out.
type Service struct {
	priceData  PriceWindower
	portfolios PortfolioStore
	thresholds ThresholdStore
	snapshots  *SnapshotRepository
	engine     *Engine
	log        zerolog.Logger

	windowDays int
	now        func() time.Time
}

// NewService creates a risk service.
func NewService(priceData PriceWindower, portfolios PortfolioStore, thresholds ThresholdStore, snapshots *SnapshotRepository, engine *Engine, log zerolog.Logger) *Service {
	return &Service{
		priceData:  priceData,
		portfolios: portfolios,
		thresholds: thresholds,
		snapshots:  snapshots,
		engine:     engine,
		log:        log.With().Str("component", "risk").Logger(),
		windowDays: DefaultWindowDays,
		now:        time.Now,
	}
}

// GetPositionRisk computes the metric set for one ticker. Benchmark data is
// best-effort: if its window can't be refreshed or is too short, the
// benchmark-dependent fields come back nil.
func (s *Service) GetPositionRisk(ctx context.Context, ticker string, days int, benchmarkTicker string) (*PositionRisk, error) {
	if days <= 0 {
		days = s.windowDays
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	window, err := s.priceData.WindowWithRefresh(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load price window for %s: %w", ticker, err)
	}

	benchmarks := make(map[string][]prices.PricePoint)
	if benchmarkTicker != "" && benchmarkTicker != ticker {
		benchmark, err := s.priceData.WindowWithRefresh(ctx, benchmarkTicker, from, to)
		if err != nil {
			s.log.Warn().Err(err).
				Str("ticker", ticker).
				Str("benchmark", benchmarkTicker).
				Msg("Benchmark window unavailable, computing without beta")
		} else {
			benchmarks[benchmarkTicker] = benchmark
		}
	}

	return s.engine.Compute(ticker, window, benchmarks, benchmarkTicker)
}

// GetPortfolioRisk aggregates risk across a portfolio's positions. Positions
// whose data is blocked, missing, or too short are excluded from the
// aggregate and listed in ExcludedTickers; they never fail the whole view.
// The result is snapshotted for risk history.
func (s *Service) GetPortfolioRisk(ctx context.Context, portfolioID string) (*PortfolioRisk, error) {
	p, positions, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	thresholds, err := s.thresholds.GetRiskThresholds(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	inputs := make([]PositionInput, 0, len(positions))
	series := make(map[string][]prices.PricePoint)
	to := s.now()
	from := to.AddDate(0, 0, -s.windowDays)

	for _, pos := range positions {
		input := PositionInput{Ticker: pos.Ticker, MarketValue: pos.MarketValue}

		if !pos.Manual {
			if r, err := s.GetPositionRisk(ctx, pos.Ticker, s.windowDays, p.BenchmarkTicker); err == nil {
				input.Risk = r
				if window, werr := s.priceData.WindowWithRefresh(ctx, pos.Ticker, from, to); werr == nil {
					series[pos.Ticker] = window
				}
			} else {
				s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Position excluded from portfolio risk")
			}
		}
		inputs = append(inputs, input)
	}

	corr := BuildCorrelationMatrix(series, s.engine.cfg.MinPoints)
	result := NewAggregator(thresholds).Aggregate(portfolioID, inputs, corr)

	s.snapshot(ctx, result)
	return result, nil
}

// GetCorrelationMatrix computes pairwise return correlations across a
// portfolio's non-manual positions.
func (s *Service) GetCorrelationMatrix(ctx context.Context, portfolioID string) (*CorrelationMatrix, error) {
	_, positions, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	to := s.now()
	from := to.AddDate(0, 0, -s.windowDays)

	series := make(map[string][]prices.PricePoint)
	for _, pos := range positions {
		if pos.Manual {
			continue
		}
		window, err := s.priceData.WindowWithRefresh(ctx, pos.Ticker, from, to)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Ticker excluded from correlation matrix")
			continue
		}
		series[pos.Ticker] = window
	}

	corr := BuildCorrelationMatrix(series, s.engine.cfg.MinPoints)
	if corr == nil {
		return nil, fmt.Errorf("%w: need at least two tickers with overlapping history", ErrInsufficientData)
	}
	return corr, nil
}

// RiskHistory returns stored snapshots since the given time.
func (s *Service) RiskHistory(ctx context.Context, portfolioID, ticker string, since time.Time) ([]Snapshot, error) {
	return s.snapshots.History(ctx, portfolioID, ticker, since)
}

func (s *Service) loadPortfolio(ctx context.Context, portfolioID string) (*portfolio.Portfolio, []portfolio.Position, error) {
	p, err := s.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPortfolioNotFound, portfolioID)
	}

	positions, err := s.portfolios.ListPositions(ctx, portfolioID)
	if err != nil {
		return nil, nil, err
	}
	return p, positions, nil
}

// snapshot appends portfolio and per-position records. History failures are
// logged, not propagated - the computed result is still valid.
func (s *Service) snapshot(ctx context.Context, result *PortfolioRisk) {
	if s.snapshots == nil {
		return
	}
	date := s.now().UTC()

	if _, err := s.snapshots.Append(ctx, Snapshot{
		PortfolioID:  result.PortfolioID,
		SnapshotDate: date,
		RiskScore:    result.RiskScore,
		Volatility:   result.Volatility,
		MaxDrawdown:  result.MaxDrawdown,
		Sharpe:       result.Sharpe,
	}); err != nil {
		s.log.Error().Err(err).Msg("Failed to snapshot portfolio risk")
	}

	for _, entry := range result.PositionRisks {
		r := entry.Risk
		if _, err := s.snapshots.Append(ctx, Snapshot{
			PortfolioID:  result.PortfolioID,
			Ticker:       entry.Ticker,
			SnapshotDate: date,
			RiskScore:    r.RiskScore,
			Volatility:   &r.Volatility,
			MaxDrawdown:  &r.MaxDrawdown,
			Sharpe:       r.Sharpe,
		}); err != nil {
			s.log.Error().Err(err).Str("ticker", entry.Ticker).Msg("Failed to snapshot position risk")
		}
	}
}
