package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

// DefaultLookbackDays is how much history a fetch requests. A year of daily
// closes plus slack for holidays covers every metric window.
const DefaultLookbackDays = 400

// Fetcher retrieves daily history from the provider chain.
type Fetcher interface {
	FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]marketdata.DailyBar, string, error)
}

// ManualChecker reports whether a ticker is a manually priced instrument.
// Manual instruments are never fetched from providers.
type ManualChecker interface {
	IsManual(ctx context.Context, ticker string) (bool, error)
}

// Service coordinates the price store, the failure cache, and the provider
// chain. Concurrent refreshes of the same ticker collapse into one fetch.
type Service struct {
	repo     *Repository
	failures *FailureRepository
	fetcher  Fetcher
	manual   ManualChecker
	log      zerolog.Logger

	freshness    time.Duration
	lookbackDays int

	group singleflight.Group
	now   func() time.Time
}

// NewService creates a price service.
func NewService(repo *Repository, failures *FailureRepository, fetcher Fetcher, manual ManualChecker, freshness time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		failures:     failures,
		fetcher:      fetcher,
		manual:       manual,
		log:          log.With().Str("component", "prices").Logger(),
		freshness:    freshness,
		lookbackDays: DefaultLookbackDays,
		now:          time.Now,
	}
}

// EnsureFresh guarantees the ticker's history is no older than the freshness
// threshold, fetching if needed. Manual instruments are skipped. An active
// failure entry blocks the fetch with a BlockedError. Provider failures are
// recorded in the failure cache before being returned.
func (s *Service) EnsureFresh(ctx context.Context, ticker string) error {
	if s.manual != nil {
		isManual, err := s.manual.IsManual(ctx, ticker)
		if err != nil {
			return fmt.Errorf("failed to check manual flag for %s: %w", ticker, err)
		}
		if isManual {
			return nil
		}
	}

	now := s.now()

	latest, err := s.repo.LatestPoint(ctx, ticker)
	if err != nil {
		return err
	}
	if latest != nil && now.Sub(latest.FetchedAt) < s.freshness {
		return nil
	}

	failure, err := s.failures.ActiveFailure(ctx, ticker, now)
	if err != nil {
		return err
	}
	if failure != nil {
		return &BlockedError{
			Ticker:      ticker,
			FailureType: failure.FailureType,
			RetryAfter:  failure.ExpiresAt,
		}
	}

	_, err, _ = s.group.Do(ticker, func() (interface{}, error) {
		return nil, s.fetch(ctx, ticker)
	})
	return err
}

// fetch runs one provider-chain call and reconciles both stores.
func (s *Service) fetch(ctx context.Context, ticker string) error {
	attemptAt := s.now()

	bars, source, err := s.fetcher.FetchDailyHistory(ctx, ticker, s.lookbackDays)
	if err != nil {
		perr := marketdata.AsProviderError(err, source)
		if recordErr := s.failures.RecordFailure(ctx, ticker, perr.Kind, perr.Source, perr.Message, attemptAt); recordErr != nil {
			s.log.Error().Err(recordErr).Str("ticker", ticker).Msg("Failed to record fetch failure")
		}
		s.log.Warn().
			Str("ticker", ticker).
			Str("failure_type", string(perr.Kind)).
			Str("source", perr.Source).
			Msg("Price fetch failed")
		return perr
	}

	fetchedAt := s.now()
	points := make([]PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, PricePoint{
			Ticker:    ticker,
			Date:      bar.Date,
			Close:     bar.Close,
			Source:    source,
			FetchedAt: fetchedAt,
		})
	}

	if err := s.repo.UpsertPoints(ctx, points); err != nil {
		return err
	}
	if err := s.failures.ClearFailure(ctx, ticker); err != nil {
		return err
	}

	s.log.Info().
		Str("ticker", ticker).
		Str("source", source).
		Int("points", len(points)).
		Msg("Price history refreshed")
	return nil
}

// Window returns stored points in [from, to] without triggering a fetch.
func (s *Service) Window(ctx context.Context, ticker string, from, to time.Time) ([]PricePoint, error) {
	return s.repo.Window(ctx, ticker, from, to)
}

// WindowWithRefresh refreshes the ticker and returns the window. When the
// refresh fails but cached points exist, the stale points are returned
// instead of the error; a first-ever fetch failure propagates because there
// is nothing to fall back to.
func (s *Service) WindowWithRefresh(ctx context.Context, ticker string, from, to time.Time) ([]PricePoint, error) {
	refreshErr := s.EnsureFresh(ctx, ticker)

	points, err := s.repo.Window(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	if refreshErr != nil {
		if len(points) == 0 {
			return nil, refreshErr
		}
		s.log.Warn().
			Err(refreshErr).
			Str("ticker", ticker).
			Int("points", len(points)).
			Msg("Serving stale prices after refresh failure")
	}
	return points, nil
}

// Latest returns the most recent stored point, or nil if none exists.
func (s *Service) Latest(ctx context.Context, ticker string) (*PricePoint, error) {
	return s.repo.LatestPoint(ctx, ticker)
}

// ActiveFailures lists unexpired failure-cache entries.
func (s *Service) ActiveFailures(ctx context.Context) ([]FetchFailure, error) {
	return s.failures.ListActive(ctx, s.now())
}
