package marketdata

import (
	"context"

	"github.com/rs/zerolog"
)

// ChainFetcher tries providers in priority order until one returns data.
// A not_found from one source still falls through to the next, since
// coverage differs between providers; only when every source has failed is
// the final error returned.
type ChainFetcher struct {
	providers []Provider
	log       zerolog.Logger
}

// NewChainFetcher creates a fetcher over the given providers, tried in order.
func NewChainFetcher(log zerolog.Logger, providers ...Provider) *ChainFetcher {
	return &ChainFetcher{
		providers: providers,
		log:       log.With().Str("component", "marketdata_chain").Logger(),
	}
}

// FetchDailyHistory fetches daily bars from the first provider that succeeds.
// Returns the bars and the name of the source that served them.
//
// Error classification across sources: rate_limited wins over not_found,
// api_error wins over rate_limited. A ticker that one source rate-limited
// must not be branded not_found just because a fallback source had no
// coverage.
func (f *ChainFetcher) FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]DailyBar, string, error) {
	var lastErr *ProviderError

	for _, p := range f.providers {
		bars, err := p.FetchDailyHistory(ctx, ticker, lookbackDays)
		if err == nil && len(bars) > 0 {
			f.log.Debug().
				Str("ticker", ticker).
				Str("source", p.Name()).
				Int("bars", len(bars)).
				Msg("Fetched daily history")
			return bars, p.Name(), nil
		}

		provErr := AsProviderError(err, p.Name())
		if provErr == nil {
			// nil error with zero bars counts as no coverage
			provErr = NewNotFound(p.Name(), ticker)
		}

		f.log.Warn().
			Str("ticker", ticker).
			Str("source", p.Name()).
			Str("kind", string(provErr.Kind)).
			Str("reason", provErr.Message).
			Msg("Provider fetch failed, trying next source")

		if lastErr == nil || severity(provErr.Kind) > severity(lastErr.Kind) {
			lastErr = provErr
		}

		// A cancelled or expired context stops the chain: retrying another
		// source with a dead context only burns quota.
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = NewAPIError("chain", "no providers configured")
	}
	return nil, "", lastErr
}

// severity orders failure kinds for cross-source classification.
func severity(k FailureKind) int {
	switch k {
	case FailureNotFound:
		return 0
	case FailureRateLimited:
		return 1
	case FailureAPIError:
		return 2
	default:
		return 2
	}
}
