// Package portfolio stores portfolios and their positions.
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jeremycod/rustfolio-sub000/internal/database"
)

// Repository persists portfolios and positions.
type Repository struct {
	db *database.DB
}

// NewRepository creates a portfolio repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema creates the portfolio tables if they don't exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		benchmark_ticker TEXT NOT NULL DEFAULT 'SPY',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		ticker TEXT NOT NULL,
		quantity TEXT NOT NULL,
		market_value TEXT NOT NULL,
		manual INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE (portfolio_id, ticker)
	);
	CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions(portfolio_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create portfolio schema: %w", err)
	}
	return nil
}

// CreatePortfolio inserts a portfolio and returns it with a generated ID.
func (r *Repository) CreatePortfolio(ctx context.Context, name, benchmarkTicker string) (*Portfolio, error) {
	if benchmarkTicker == "" {
		benchmarkTicker = "SPY"
	}
	p := &Portfolio{
		ID:              uuid.New().String(),
		Name:            name,
		BenchmarkTicker: benchmarkTicker,
		CreatedAt:       time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, benchmark_ticker, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.BenchmarkTicker, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	return p, nil
}

// ListPortfolios returns all portfolios, oldest first.
func (r *Repository) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, benchmark_ticker, created_at
		FROM portfolios ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		var p Portfolio
		var createdStr string
		if err := rows.Scan(&p.ID, &p.Name, &p.BenchmarkTicker, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
			return nil, fmt.Errorf("invalid stored created_at %q: %w", createdStr, err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// GetPortfolio returns a portfolio by ID, or nil if it doesn't exist.
func (r *Repository) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, benchmark_ticker, created_at
		FROM portfolios WHERE id = ?`, id)

	var p Portfolio
	var createdStr string
	err := row.Scan(&p.ID, &p.Name, &p.BenchmarkTicker, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}

	if p.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return nil, fmt.Errorf("invalid stored created_at %q: %w", createdStr, err)
	}
	return &p, nil
}

// UpsertPosition inserts or replaces a position for (portfolio, ticker).
func (r *Repository) UpsertPosition(ctx context.Context, pos Position) (*Position, error) {
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	pos.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (id, portfolio_id, ticker, quantity, market_value, manual, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, ticker) DO UPDATE SET
			quantity = excluded.quantity,
			market_value = excluded.market_value,
			manual = excluded.manual,
			updated_at = excluded.updated_at`,
		pos.ID, pos.PortfolioID, pos.Ticker,
		pos.Quantity.String(), pos.MarketValue.String(),
		boolToInt(pos.Manual), pos.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert position %s: %w", pos.Ticker, err)
	}
	return &pos, nil
}

// ListPositions returns all positions in a portfolio, ordered by ticker.
func (r *Repository) ListPositions(ctx context.Context, portfolioID string) ([]Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, ticker, quantity, market_value, manual, updated_at
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY ticker`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *pos)
	}
	return positions, rows.Err()
}

// DeletePosition removes a position by ID.
func (r *Repository) DeletePosition(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", id, err)
	}
	return nil
}

// IsManual reports whether any position holds the ticker as a manually
// priced instrument. Satisfies the price service's exclusion check.
func (r *Repository) IsManual(ctx context.Context, ticker string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE ticker = ? AND manual = 1`, ticker).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check manual flag for %s: %w", ticker, err)
	}
	return count > 0, nil
}

func scanPosition(rows *sql.Rows) (*Position, error) {
	var pos Position
	var quantityStr, valueStr, updatedStr string
	var manual int

	if err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.Ticker, &quantityStr, &valueStr, &manual, &updatedStr); err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}

	var err error
	if pos.Quantity, err = decimal.NewFromString(quantityStr); err != nil {
		return nil, fmt.Errorf("invalid stored quantity %q: %w", quantityStr, err)
	}
	if pos.MarketValue, err = decimal.NewFromString(valueStr); err != nil {
		return nil, fmt.Errorf("invalid stored market_value %q: %w", valueStr, err)
	}
	if pos.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return nil, fmt.Errorf("invalid stored updated_at %q: %w", updatedStr, err)
	}
	pos.Manual = manual == 1

	return &pos, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
