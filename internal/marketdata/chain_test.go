package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider returns canned bars or a canned error and counts calls.
type stubProvider struct {
	name  string
	bars  []DailyBar
	err   error
	calls int
}

func (s *stubProvider) FetchDailyHistory(_ context.Context, _ string, _ int) ([]DailyBar, error) {
	s.calls++
	return s.bars, s.err
}

func (s *stubProvider) Name() string { return s.name }

func testBars(n int) []DailyBar {
	bars := make([]DailyBar, n)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = DailyBar{Date: base.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return bars
}

func TestChainFetcherFirstProviderWins(t *testing.T) {
	primary := &stubProvider{name: "primary", bars: testBars(5)}
	fallback := &stubProvider{name: "fallback", bars: testBars(5)}

	chain := NewChainFetcher(zerolog.Nop(), primary, fallback)

	bars, source, err := chain.FetchDailyHistory(context.Background(), "AAPL", 60)
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Equal(t, "primary", source)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestChainFetcherFallsBackOnFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", err: NewNotFound("primary", "AAPL")}
	fallback := &stubProvider{name: "fallback", bars: testBars(3)}

	chain := NewChainFetcher(zerolog.Nop(), primary, fallback)

	bars, source, err := chain.FetchDailyHistory(context.Background(), "AAPL", 60)
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Equal(t, "fallback", source)
}

func TestChainFetcherClassificationPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		first    error
		second   error
		wantKind FailureKind
	}{
		{
			name:     "rate limit wins over not found",
			first:    NewRateLimited("primary", "quota exhausted"),
			second:   NewNotFound("fallback", "BADTICK"),
			wantKind: FailureRateLimited,
		},
		{
			name:     "api error wins over rate limit",
			first:    NewRateLimited("primary", "quota exhausted"),
			second:   NewAPIError("fallback", "502 bad gateway"),
			wantKind: FailureAPIError,
		},
		{
			name:     "all not found stays not found",
			first:    NewNotFound("primary", "BADTICK"),
			second:   NewNotFound("fallback", "BADTICK"),
			wantKind: FailureNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewChainFetcher(zerolog.Nop(),
				&stubProvider{name: "primary", err: tt.first},
				&stubProvider{name: "fallback", err: tt.second},
			)

			_, _, err := chain.FetchDailyHistory(context.Background(), "BADTICK", 60)
			require.Error(t, err)

			var provErr *ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.wantKind, provErr.Kind)
		})
	}
}

func TestChainFetcherEmptyBarsCountAsNotFound(t *testing.T) {
	chain := NewChainFetcher(zerolog.Nop(), &stubProvider{name: "primary"})

	_, _, err := chain.FetchDailyHistory(context.Background(), "AAPL", 60)
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, FailureNotFound, provErr.Kind)
}

func TestChainFetcherStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubProvider{name: "primary", err: errors.New("connection reset")}
	fallback := &stubProvider{name: "fallback", bars: testBars(3)}

	chain := NewChainFetcher(zerolog.Nop(), primary, fallback)

	_, _, err := chain.FetchDailyHistory(ctx, "AAPL", 60)
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestAsProviderErrorClassifiesTimeout(t *testing.T) {
	provErr := AsProviderError(context.DeadlineExceeded, "primary")
	require.NotNil(t, provErr)
	assert.Equal(t, FailureAPIError, provErr.Kind)
}
