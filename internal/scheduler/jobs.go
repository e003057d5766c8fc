package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/optimization"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/portfolio"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

const jobTimeout = 10 * time.Minute

// RiskRefreshJob re-runs the risk and optimization pipeline for every
// portfolio, pre-warming caches and appending history snapshots. It goes
// through the same services as HTTP callers, so per-ticker fetch dedup
// and the failure cache apply unchanged.
type RiskRefreshJob struct {
	portfolios   *portfolio.Repository
	risks        *risk.Service
	optimization *optimization.Service
	log          zerolog.Logger
}

// NewRiskRefreshJob creates the periodic risk refresh job.
func NewRiskRefreshJob(portfolios *portfolio.Repository, risks *risk.Service, opt *optimization.Service, log zerolog.Logger) *RiskRefreshJob {
	return &RiskRefreshJob{
		portfolios:   portfolios,
		risks:        risks,
		optimization: opt,
		log:          log.With().Str("job", "risk_refresh").Logger(),
	}
}

// Name implements Job.
func (j *RiskRefreshJob) Name() string { return "risk_refresh" }

// Run implements Job.
func (j *RiskRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	portfolios, err := j.portfolios.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	var failed int
	for _, p := range portfolios {
		if _, err := j.risks.GetPortfolioRisk(ctx, p.ID); err != nil {
			j.log.Warn().Err(err).Str("portfolio_id", p.ID).Msg("Risk refresh failed for portfolio")
			failed++
			continue
		}
		j.optimization.Invalidate(p.ID)
		if _, err := j.optimization.GetAnalysis(ctx, p.ID); err != nil {
			j.log.Warn().Err(err).Str("portfolio_id", p.ID).Msg("Optimization refresh failed for portfolio")
			failed++
		}
	}

	j.log.Info().
		Int("portfolios", len(portfolios)).
		Int("failed", failed).
		Msg("Risk refresh completed")
	return nil
}

// FailureCleanupJob prunes expired entries from the failure cache. Expired
// entries no longer block fetches, so this is purely housekeeping.
type FailureCleanupJob struct {
	failures *prices.FailureRepository
	log      zerolog.Logger
}

// NewFailureCleanupJob creates the daily failure-cache cleanup job.
func NewFailureCleanupJob(failures *prices.FailureRepository, log zerolog.Logger) *FailureCleanupJob {
	return &FailureCleanupJob{
		failures: failures,
		log:      log.With().Str("job", "failure_cleanup").Logger(),
	}
}

// Name implements Job.
func (j *FailureCleanupJob) Name() string { return "failure_cleanup" }

// Run implements Job.
func (j *FailureCleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, err := j.failures.CleanupExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	j.log.Info().Int64("deleted", deleted).Msg("Failure cache cleanup completed")
	return nil
}

// PriceCleanupJob deletes price points older than the retention window.
type PriceCleanupJob struct {
	prices        *prices.Repository
	retentionDays int
	log           zerolog.Logger
}

// NewPriceCleanupJob creates the weekly price retention job.
func NewPriceCleanupJob(repo *prices.Repository, retentionDays int, log zerolog.Logger) *PriceCleanupJob {
	return &PriceCleanupJob{
		prices:        repo,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "price_cleanup").Logger(),
	}
}

// Name implements Job.
func (j *PriceCleanupJob) Name() string { return "price_cleanup" }

// Run implements Job.
func (j *PriceCleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.prices.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("deleted", deleted).
		Str("cutoff", cutoff.Format("2006-01-02")).
		Msg("Price retention cleanup completed")
	return nil
}
