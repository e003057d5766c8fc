package prices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
)

const dateLayout = "2006-01-02"

// Repository persists daily price points.
type Repository struct {
	db *database.DB
}

// NewRepository creates a price repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema creates the price tables if they don't exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS price_points (
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		source TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (ticker, date)
	);
	CREATE INDEX IF NOT EXISTS idx_price_points_ticker_date ON price_points(ticker, date DESC);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create price schema: %w", err)
	}
	return nil
}

// UpsertPoints inserts or replaces price points in a single transaction.
// Re-fetching the same dates is idempotent.
func (r *Repository) UpsertPoints(ctx context.Context, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO price_points (ticker, date, close, source, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(ticker, date) DO UPDATE SET
				close = excluded.close,
				source = excluded.source,
				fetched_at = excluded.fetched_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			_, err := stmt.ExecContext(ctx,
				p.Ticker,
				p.Date.UTC().Format(dateLayout),
				p.Close,
				p.Source,
				p.FetchedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert price point %s/%s: %w", p.Ticker, p.Date.Format(dateLayout), err)
			}
		}
		return nil
	})
}

// LatestPoint returns the most recent stored point for a ticker,
// or nil if none exists.
func (r *Repository) LatestPoint(ctx context.Context, ticker string) (*PricePoint, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ticker, date, close, source, fetched_at
		FROM price_points
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT 1`, ticker)

	point, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest point for %s: %w", ticker, err)
	}
	return point, nil
}

// Window returns points for a ticker within [from, to], ascending by date.
func (r *Repository) Window(ctx context.Context, ticker string, from, to time.Time) ([]PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, date, close, source, fetched_at
		FROM price_points
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		ticker, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query price window for %s: %w", ticker, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, *point)
	}
	return points, rows.Err()
}

// CountPoints returns the number of stored points for a ticker.
func (r *Repository) CountPoints(ctx context.Context, ticker string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_points WHERE ticker = ?`, ticker).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count points for %s: %w", ticker, err)
	}
	return count, nil
}

// DeleteOlderThan removes points with dates before the cutoff and returns
// how many were deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM price_points WHERE date < ?`, cutoff.UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price points: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoint(row rowScanner) (*PricePoint, error) {
	var p PricePoint
	var dateStr, fetchedStr string

	if err := row.Scan(&p.Ticker, &dateStr, &p.Close, &p.Source, &fetchedStr); err != nil {
		return nil, err
	}

	date, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", dateStr, err)
	}
	p.Date = date

	fetchedAt, err := time.Parse(time.RFC3339, fetchedStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stored fetched_at %q: %w", fetchedStr, err)
	}
	p.FetchedAt = fetchedAt

	return &p, nil
}
