package prices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

// FailureRepository persists the negative cache of fetch failures.
type FailureRepository struct {
	db *database.DB
}

// NewFailureRepository creates a failure repository.
func NewFailureRepository(db *database.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

// InitSchema creates the failure table if it doesn't exist.
func (r *FailureRepository) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetch_failures (
		ticker TEXT PRIMARY KEY,
		failure_type TEXT NOT NULL,
		source TEXT NOT NULL,
		message TEXT NOT NULL,
		first_failed_at TEXT NOT NULL,
		last_attempt_at TEXT NOT NULL,
		consecutive_failures INTEGER NOT NULL DEFAULT 1,
		expires_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fetch_failures_expires ON fetch_failures(expires_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create failure schema: %w", err)
	}
	return nil
}

// ActiveFailure returns the unexpired failure entry for a ticker, or nil.
// Expired entries are treated as absent but left for the cleanup job.
func (r *FailureRepository) ActiveFailure(ctx context.Context, ticker string, now time.Time) (*FetchFailure, error) {
	failure, err := r.getFailure(ctx, ticker)
	if err != nil || failure == nil {
		return nil, err
	}
	if failure.Expired(now) {
		return nil, nil
	}
	return failure, nil
}

// RecordFailure upserts a failure entry. A newer attempt replaces the entry
// and bumps consecutive_failures; a stale attempt (older last_attempt_at than
// what is stored) is a no-op, so concurrent writers resolve to the latest
// attempt.
func (r *FailureRepository) RecordFailure(ctx context.Context, ticker string, kind marketdata.FailureKind, source, message string, attemptAt time.Time) error {
	expiresAt := attemptAt.Add(FailureTTL(kind))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetch_failures
			(ticker, failure_type, source, message, first_failed_at, last_attempt_at, consecutive_failures, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			failure_type = excluded.failure_type,
			source = excluded.source,
			message = excluded.message,
			last_attempt_at = excluded.last_attempt_at,
			consecutive_failures = fetch_failures.consecutive_failures + 1,
			expires_at = excluded.expires_at
		WHERE excluded.last_attempt_at >= fetch_failures.last_attempt_at`,
		ticker,
		string(kind),
		source,
		message,
		attemptAt.UTC().Format(time.RFC3339),
		attemptAt.UTC().Format(time.RFC3339),
		expiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", ticker, err)
	}
	return nil
}

// ClearFailure removes the failure entry for a ticker after a successful fetch.
func (r *FailureRepository) ClearFailure(ctx context.Context, ticker string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fetch_failures WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to clear failure for %s: %w", ticker, err)
	}
	return nil
}

// ListActive returns all unexpired failure entries.
func (r *FailureRepository) ListActive(ctx context.Context, now time.Time) ([]FetchFailure, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, failure_type, source, message, first_failed_at, last_attempt_at, consecutive_failures, expires_at
		FROM fetch_failures
		WHERE expires_at > ?
		ORDER BY ticker`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to list active failures: %w", err)
	}
	defer rows.Close()

	var failures []FetchFailure
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, *failure)
	}
	return failures, rows.Err()
}

// CleanupExpired deletes expired failure entries and returns how many
// were removed.
func (r *FailureRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM fetch_failures WHERE expires_at <= ?`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired failures: %w", err)
	}
	return result.RowsAffected()
}

func (r *FailureRepository) getFailure(ctx context.Context, ticker string) (*FetchFailure, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ticker, failure_type, source, message, first_failed_at, last_attempt_at, consecutive_failures, expires_at
		FROM fetch_failures
		WHERE ticker = ?`, ticker)

	failure, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure for %s: %w", ticker, err)
	}
	return failure, nil
}

func scanFailure(row rowScanner) (*FetchFailure, error) {
	var f FetchFailure
	var kind, firstStr, lastStr, expiresStr string

	if err := row.Scan(&f.Ticker, &kind, &f.Source, &f.Message, &firstStr, &lastStr, &f.ConsecutiveFailures, &expiresStr); err != nil {
		return nil, err
	}
	f.FailureType = marketdata.FailureKind(kind)

	var err error
	if f.FirstFailedAt, err = time.Parse(time.RFC3339, firstStr); err != nil {
		return nil, fmt.Errorf("invalid stored first_failed_at %q: %w", firstStr, err)
	}
	if f.LastAttemptAt, err = time.Parse(time.RFC3339, lastStr); err != nil {
		return nil, fmt.Errorf("invalid stored last_attempt_at %q: %w", lastStr, err)
	}
	if f.ExpiresAt, err = time.Parse(time.RFC3339, expiresStr); err != nil {
		return nil, fmt.Errorf("invalid stored expires_at %q: %w", expiresStr, err)
	}

	return &f, nil
}
