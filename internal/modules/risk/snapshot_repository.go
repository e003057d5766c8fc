package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
)

// Snapshot is one immutable point-in-time record of a risk score. Ticker is
// empty for portfolio-level snapshots. Rows are never updated or deleted.
type Snapshot struct {
	ID           string    `json:"id"`
	PortfolioID  string    `json:"portfolio_id"`
	Ticker       string    `json:"ticker"`
	SnapshotDate time.Time `json:"snapshot_date"`
	RiskScore    float64   `json:"risk_score"`
	Volatility   *float64  `json:"volatility"`
	MaxDrawdown  *float64  `json:"max_drawdown"`
	Sharpe       *float64  `json:"sharpe"`
}

// SnapshotRepository persists the append-only risk history.
type SnapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// InitSchema creates the snapshot table if it doesn't exist.
func (r *SnapshotRepository) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS risk_snapshots (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		snapshot_date TEXT NOT NULL,
		risk_score REAL NOT NULL,
		volatility REAL,
		max_drawdown REAL,
		sharpe REAL
	);
	CREATE INDEX IF NOT EXISTS idx_risk_snapshots_lookup
		ON risk_snapshots(portfolio_id, ticker, snapshot_date);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// Append records a snapshot and returns its generated ID.
func (r *SnapshotRepository) Append(ctx context.Context, s Snapshot) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_snapshots
			(id, portfolio_id, ticker, snapshot_date, risk_score, volatility, max_drawdown, sharpe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PortfolioID, s.Ticker,
		s.SnapshotDate.UTC().Format(time.RFC3339),
		s.RiskScore, s.Volatility, s.MaxDrawdown, s.Sharpe)
	if err != nil {
		return "", fmt.Errorf("failed to append risk snapshot: %w", err)
	}
	return s.ID, nil
}

// History returns snapshots for (portfolio, ticker) since the given time,
// oldest first. Use an empty ticker for portfolio-level history.
func (r *SnapshotRepository) History(ctx context.Context, portfolioID, ticker string, since time.Time) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, ticker, snapshot_date, risk_score, volatility, max_drawdown, sharpe
		FROM risk_snapshots
		WHERE portfolio_id = ? AND ticker = ? AND snapshot_date >= ?
		ORDER BY snapshot_date ASC`,
		portfolioID, ticker, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query risk history: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var dateStr string
		if err := rows.Scan(&s.ID, &s.PortfolioID, &s.Ticker, &dateStr, &s.RiskScore, &s.Volatility, &s.MaxDrawdown, &s.Sharpe); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if s.SnapshotDate, err = time.Parse(time.RFC3339, dateStr); err != nil {
			return nil, fmt.Errorf("invalid stored snapshot_date %q: %w", dateStr, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// RiskIncrease reports the score delta between the oldest and newest
// snapshot in the window, or nil with fewer than two snapshots.
func (r *SnapshotRepository) RiskIncrease(ctx context.Context, portfolioID, ticker string, since time.Time) (*float64, error) {
	history, err := r.History(ctx, portfolioID, ticker, since)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, nil
	}
	delta := history[len(history)-1].RiskScore - history[0].RiskScore
	return &delta, nil
}
