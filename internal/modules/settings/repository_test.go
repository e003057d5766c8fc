package settings

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func TestGetSetRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Set(ctx, "mode", "live"))
	got, err := repo.Get(ctx, "mode")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "live", *got)

	require.NoError(t, repo.Set(ctx, "mode", "paper"))
	got, err = repo.Get(ctx, "mode")
	require.NoError(t, err)
	assert.Equal(t, "paper", *got)
}

func TestTypedGetters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	v, err := repo.GetFloat(ctx, "missing", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	require.NoError(t, repo.SetFloat(ctx, "rate", 0.02))
	v, err = repo.GetFloat(ctx, "rate", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.02, v)

	require.NoError(t, repo.Set(ctx, "days", "12.0"))
	n, err := repo.GetInt(ctx, "days", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	require.NoError(t, repo.Set(ctx, "bad", "not-a-number"))
	n, err = repo.GetInt(ctx, "bad", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n, "unparseable values fall back to the default")
}

func TestRiskThresholdsDefaultsAndOverrides(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	thresholds, err := repo.GetRiskThresholds(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskThresholds(), thresholds)

	require.NoError(t, repo.SetRiskThreshold(ctx, "p1", "volatility", MetricThreshold{Warning: 25, Critical: 45}))

	thresholds, err = repo.GetRiskThresholds(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, thresholds.Volatility.Warning)
	assert.Equal(t, 45.0, thresholds.Volatility.Critical)
	// Untouched metrics keep defaults.
	assert.Equal(t, DefaultRiskThresholds().Beta, thresholds.Beta)

	// Overrides are per portfolio.
	other, err := repo.GetRiskThresholds(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskThresholds(), other)
}
