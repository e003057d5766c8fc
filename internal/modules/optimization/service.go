package optimization

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

// DefaultCacheTTL bounds how long a cached analysis is served before the
// pipeline is re-run.
const DefaultCacheTTL = 15 * time.Minute

// RiskProvider supplies aggregated portfolio risk. Satisfied by the risk
// service.
type RiskProvider interface {
	GetPortfolioRisk(ctx context.Context, portfolioID string) (*risk.PortfolioRisk, error)
	GetCorrelationMatrix(ctx context.Context, portfolioID string) (*risk.CorrelationMatrix, error)
}

type cachedAnalysis struct {
	analysis *Analysis
	expires  time.Time
}

// Service runs the optimization engine over fresh portfolio risk, caching
// results per portfolio with a TTL. Analyses are derived data and the cache
// is never authoritative.
type Service struct {
	risks  RiskProvider
	engine *Engine
	log    zerolog.Logger

	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cachedAnalysis
	now   func() time.Time
}

// NewService creates an optimization service.
func NewService(risks RiskProvider, engine *Engine, log zerolog.Logger) *Service {
	return &Service{
		risks:  risks,
		engine: engine,
		log:    log.With().Str("component", "optimization").Logger(),
		ttl:    DefaultCacheTTL,
		cache:  make(map[string]cachedAnalysis),
		now:    time.Now,
	}
}

// GetAnalysis returns the optimization analysis for a portfolio, re-running
// the pipeline when the cached copy has expired.
func (s *Service) GetAnalysis(ctx context.Context, portfolioID string) (*Analysis, error) {
	s.mu.Lock()
	if entry, ok := s.cache[portfolioID]; ok && s.now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.analysis, nil
	}
	s.mu.Unlock()

	pr, err := s.risks.GetPortfolioRisk(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	// Correlation is best-effort for the diversification simulation.
	avgCorr := 0.0
	if corr, err := s.risks.GetCorrelationMatrix(ctx, portfolioID); err == nil && corr != nil {
		avgCorr = corr.AverageCorrelation
	}

	analysis := s.engine.Analyze(pr, avgCorr)

	s.mu.Lock()
	s.cache[portfolioID] = cachedAnalysis{analysis: analysis, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Debug().
		Str("portfolio_id", portfolioID).
		Str("health", analysis.Health).
		Int("recommendations", len(analysis.Recommendations)).
		Msg("Optimization analysis generated")
	return analysis, nil
}

// Invalidate drops the cached analysis for a portfolio, forcing the next
// call to recompute.
func (s *Service) Invalidate(portfolioID string) {
	s.mu.Lock()
	delete(s.cache, portfolioID)
	s.mu.Unlock()
}
