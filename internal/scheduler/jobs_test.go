package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
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

func TestFailureCleanupJob(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	failures := prices.NewFailureRepository(db)
	require.NoError(t, failures.InitSchema(ctx))

	// One long-expired entry, one active.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, failures.RecordFailure(ctx, "OLD", marketdata.FailureNotFound, "stub", "gone", old))
	require.NoError(t, failures.RecordFailure(ctx, "FRESH", marketdata.FailureNotFound, "stub", "gone", time.Now()))

	job := NewFailureCleanupJob(failures, zerolog.Nop())
	assert.Equal(t, "failure_cleanup", job.Name())
	require.NoError(t, job.Run())

	active, err := failures.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "FRESH", active[0].Ticker)
}

func TestPriceCleanupJob(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	repo := prices.NewRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	now := time.Now().UTC()
	points := []prices.PricePoint{
		{Ticker: "AAPL", Date: now.AddDate(0, 0, -10), Close: 100, Source: "stub", FetchedAt: now},
		{Ticker: "AAPL", Date: now.AddDate(-1, 0, -10), Close: 90, Source: "stub", FetchedAt: now},
	}
	require.NoError(t, repo.UpsertPoints(ctx, points))

	job := NewPriceCleanupJob(repo, 365, zerolog.Nop())
	assert.Equal(t, "price_cleanup", job.Name())
	require.NoError(t, job.Run())

	count, err := repo.CountPoints(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "points outside the retention window are removed")
}
