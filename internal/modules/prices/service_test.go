package prices

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	bars  []marketdata.DailyBar
	err   error
}

func (f *stubFetcher) FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]marketdata.DailyBar, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, "stub", f.err
	}
	return f.bars, "stub", nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubManual struct {
	tickers map[string]bool
}

func (m *stubManual) IsManual(ctx context.Context, ticker string) (bool, error) {
	return m.tickers[ticker], nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleBars(n int, base time.Time) []marketdata.DailyBar {
	bars := make([]marketdata.DailyBar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, marketdata.DailyBar{
			Date:  base.AddDate(0, 0, i),
			Close: 100.0 + float64(i),
		})
	}
	return bars
}

func newTestService(t *testing.T, fetcher *stubFetcher, manual ManualChecker, clock *fakeClock) (*Service, *Repository, *FailureRepository) {
	t.Helper()
	db := testDB(t)
	ctx := context.Background()

	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema(ctx))
	failures := NewFailureRepository(db)
	require.NoError(t, failures.InitSchema(ctx))

	svc := NewService(repo, failures, fetcher, manual, 6*time.Hour, zerolog.Nop())
	svc.now = clock.Now
	return svc, repo, failures
}

func TestEnsureFreshFetchesOnceWhileFresh(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{bars: sampleBars(10, clock.Now().AddDate(0, 0, -10))}
	svc, repo, _ := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
	assert.Equal(t, 1, fetcher.callCount(), "fresh data should suppress a second fetch")

	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// Past the freshness threshold a new fetch happens.
	clock.Advance(7 * time.Hour)
	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
	assert.Equal(t, 2, fetcher.callCount())
}

func TestEnsureFreshRefetchIsIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{bars: sampleBars(10, clock.Now().AddDate(0, 0, -10))}
	svc, repo, _ := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
	clock.Advance(7 * time.Hour)
	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))

	// Same dates re-fetched, no duplicate rows.
	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestNegativeCacheBlocksUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{err: marketdata.NewNotFound("stub", "NOPE")}
	svc, _, failures := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	err := svc.EnsureFresh(ctx, "NOPE")
	require.Error(t, err)
	var perr *marketdata.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, marketdata.FailureNotFound, perr.Kind)
	assert.Equal(t, 1, fetcher.callCount())

	failure, ferr := failures.ActiveFailure(ctx, "NOPE", clock.Now())
	require.NoError(t, ferr)
	require.NotNil(t, failure)
	assert.Equal(t, 1, failure.ConsecutiveFailures)

	// Just inside the 24h not_found TTL: blocked without a provider call.
	clock.Advance(23*time.Hour + 59*time.Minute)
	err = svc.EnsureFresh(ctx, "NOPE")
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, marketdata.FailureNotFound, blocked.FailureType)
	assert.Equal(t, 1, fetcher.callCount())

	// Just past the TTL: the provider is consulted again.
	clock.Advance(2 * time.Minute)
	err = svc.EnsureFresh(ctx, "NOPE")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, fetcher.callCount())

	failure, ferr = failures.ActiveFailure(ctx, "NOPE", clock.Now())
	require.NoError(t, ferr)
	require.NotNil(t, failure)
	assert.Equal(t, 2, failure.ConsecutiveFailures)
}

func TestSuccessClearsFailureEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{err: marketdata.NewAPIError("stub", "boom")}
	svc, _, failures := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	require.Error(t, svc.EnsureFresh(ctx, "AAPL"))

	// Provider recovers after the 6h api_error TTL lapses.
	clock.Advance(6*time.Hour + time.Minute)
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.bars = sampleBars(5, clock.Now().AddDate(0, 0, -5))
	fetcher.mu.Unlock()

	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))

	failure, err := failures.ActiveFailure(ctx, "AAPL", clock.Now())
	require.NoError(t, err)
	assert.Nil(t, failure, "success should clear the negative cache")
}

func TestManualTickerSkipsProviders(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{err: marketdata.NewAPIError("stub", "should not be called")}
	manual := &stubManual{tickers: map[string]bool{"MYFUND": true}}
	svc, _, failures := newTestService(t, fetcher, manual, clock)
	ctx := context.Background()

	require.NoError(t, svc.EnsureFresh(ctx, "MYFUND"))
	assert.Equal(t, 0, fetcher.callCount())

	entries, err := failures.ListActive(ctx, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, entries, "manual tickers never touch the failure cache")
}

func TestEnsureFreshWithoutManualChecker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{bars: sampleBars(10, clock.Now().AddDate(0, 0, -10))}
	svc, repo, _ := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	// A service wired without a manual-instrument source must fetch
	// normally instead of panicking on the missing checker.
	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
	assert.Equal(t, 1, fetcher.callCount())

	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestWindowWithRefreshServesStaleOnFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{bars: sampleBars(10, clock.Now().AddDate(0, 0, -10))}
	svc, _, _ := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.EnsureFresh(ctx, "AAPL"))

	// Data goes stale and the provider starts failing.
	clock.Advance(8 * time.Hour)
	fetcher.mu.Lock()
	fetcher.err = marketdata.NewAPIError("stub", "outage")
	fetcher.mu.Unlock()

	points, err := svc.WindowWithRefresh(ctx, "AAPL", clock.Now().AddDate(0, 0, -30), clock.Now())
	require.NoError(t, err, "cached points should be served despite the refresh failure")
	assert.Len(t, points, 10)
}

func TestWindowWithRefreshFirstFetchFailurePropagates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &stubFetcher{err: marketdata.NewAPIError("stub", "outage")}
	svc, _, _ := newTestService(t, fetcher, nil, clock)
	ctx := context.Background()

	_, err := svc.WindowWithRefresh(ctx, "NEW", clock.Now().AddDate(0, 0, -30), clock.Now())
	require.Error(t, err, "no cached data means no fallback")
}

func TestConcurrentEnsureFreshCollapses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	slow := &slowFetcher{bars: sampleBars(5, clock.Now().AddDate(0, 0, -5))}
	svc, _, _ := newTestService(t, &stubFetcher{}, nil, clock)
	svc.fetcher = slow
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.EnsureFresh(ctx, "AAPL"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, slow.callCount(), "concurrent refreshes of one ticker share a single fetch")
}

type slowFetcher struct {
	mu    sync.Mutex
	calls int
	bars  []marketdata.DailyBar
}

func (f *slowFetcher) FetchDailyHistory(ctx context.Context, ticker string, lookbackDays int) ([]marketdata.DailyBar, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	return f.bars, "stub", nil
}

func (f *slowFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
