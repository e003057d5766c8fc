package prices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

func TestPriceRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	fetchedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	points := []PricePoint{
		{Ticker: "AAPL", Date: time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), Close: 101.0, Source: "stub", FetchedAt: fetchedAt},
		{Ticker: "AAPL", Date: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), Close: 102.5, Source: "stub", FetchedAt: fetchedAt},
		{Ticker: "MSFT", Date: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), Close: 410.0, Source: "stub", FetchedAt: fetchedAt},
	}
	require.NoError(t, repo.UpsertPoints(ctx, points))

	latest, err := repo.LatestPoint(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 102.5, latest.Close)
	assert.True(t, latest.FetchedAt.Equal(fetchedAt))

	window, err := repo.Window(ctx, "AAPL",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.True(t, window[0].Date.Before(window[1].Date), "window is ascending by date")

	// Unknown ticker yields nil, not an error.
	missing, err := repo.LatestPoint(ctx, "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPriceRepositoryUpsertOverwrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	date := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	first := PricePoint{Ticker: "AAPL", Date: date, Close: 100.0, Source: "alphavantage", FetchedAt: time.Now().UTC()}
	require.NoError(t, repo.UpsertPoints(ctx, []PricePoint{first}))

	second := first
	second.Close = 105.0
	second.Source = "stooq"
	require.NoError(t, repo.UpsertPoints(ctx, []PricePoint{second}))

	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	latest, err := repo.LatestPoint(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 105.0, latest.Close)
	assert.Equal(t, "stooq", latest.Source)
}

func TestPriceRepositoryDeleteOlderThan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	fetchedAt := time.Now().UTC()
	var points []PricePoint
	for i := 0; i < 10; i++ {
		points = append(points, PricePoint{
			Ticker:    "AAPL",
			Date:      time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Close:     100.0,
			Source:    "stub",
			FetchedAt: fetchedAt,
		})
	}
	require.NoError(t, repo.UpsertPoints(ctx, points))

	deleted, err := repo.DeleteOlderThan(ctx, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestFailureRepositoryLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewFailureRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordFailure(ctx, "AAPL", marketdata.FailureRateLimited, "alphavantage", "quota", now))

	failure, err := repo.ActiveFailure(ctx, "AAPL", now)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, marketdata.FailureRateLimited, failure.FailureType)
	assert.Equal(t, 1, failure.ConsecutiveFailures)
	assert.True(t, failure.ExpiresAt.Equal(now.Add(TTLRateLimited)))

	// Expired entries read as absent.
	afterTTL := now.Add(TTLRateLimited)
	failure, err = repo.ActiveFailure(ctx, "AAPL", afterTTL)
	require.NoError(t, err)
	assert.Nil(t, failure)

	// But they still exist until cleanup runs.
	deleted, err := repo.CleanupExpired(ctx, afterTTL)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestFailureRepositoryRepeatAttemptIncrements(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewFailureRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	require.NoError(t, repo.RecordFailure(ctx, "AAPL", marketdata.FailureAPIError, "alphavantage", "500", first))
	require.NoError(t, repo.RecordFailure(ctx, "AAPL", marketdata.FailureNotFound, "stooq", "no data", second))

	failure, err := repo.ActiveFailure(ctx, "AAPL", second)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, 2, failure.ConsecutiveFailures)
	assert.Equal(t, marketdata.FailureNotFound, failure.FailureType)
	assert.True(t, failure.FirstFailedAt.Equal(first), "first_failed_at is preserved across attempts")
	assert.True(t, failure.ExpiresAt.Equal(second.Add(TTLNotFound)))
}

func TestFailureRepositoryStaleWriteIsIgnored(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewFailureRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	newer := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-1 * time.Hour)

	require.NoError(t, repo.RecordFailure(ctx, "AAPL", marketdata.FailureNotFound, "alphavantage", "unknown symbol", newer))
	require.NoError(t, repo.RecordFailure(ctx, "AAPL", marketdata.FailureAPIError, "stooq", "late result", older))

	failure, err := repo.ActiveFailure(ctx, "AAPL", newer)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, marketdata.FailureNotFound, failure.FailureType, "an older attempt must not overwrite a newer entry")
	assert.Equal(t, 1, failure.ConsecutiveFailures)
}
