package optimization

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

type stubRiskProvider struct {
	mu    sync.Mutex
	calls int
	pr    *risk.PortfolioRisk
}

func (s *stubRiskProvider) GetPortfolioRisk(ctx context.Context, portfolioID string) (*risk.PortfolioRisk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.pr, nil
}

func (s *stubRiskProvider) GetCorrelationMatrix(ctx context.Context, portfolioID string) (*risk.CorrelationMatrix, error) {
	return &risk.CorrelationMatrix{AverageCorrelation: 0.2}, nil
}

func (s *stubRiskProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAnalysisCacheTTL(t *testing.T) {
	provider := &stubRiskProvider{pr: portfolioWith(entry("A", 0.5, 40), entry("B", 0.5, 40))}
	svc := NewService(provider, NewEngine(DefaultEngineConfig()), zerolog.Nop())

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	ctx := context.Background()

	first, err := svc.GetAnalysis(ctx, "p1")
	require.NoError(t, err)
	second, err := svc.GetAnalysis(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.callCount(), "cached analysis is reused within the TTL")
	assert.Same(t, first, second)

	mu.Lock()
	current = current.Add(DefaultCacheTTL + time.Minute)
	mu.Unlock()

	_, err = svc.GetAnalysis(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount(), "expired cache triggers a recompute")
}

func TestInvalidateForcesRecompute(t *testing.T) {
	provider := &stubRiskProvider{pr: portfolioWith(entry("A", 0.5, 40), entry("B", 0.5, 40))}
	svc := NewService(provider, NewEngine(DefaultEngineConfig()), zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetAnalysis(ctx, "p1")
	require.NoError(t, err)

	svc.Invalidate("p1")

	_, err = svc.GetAnalysis(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())
}
