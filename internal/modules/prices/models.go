package prices

import (
	"fmt"
	"time"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

// PricePoint is one stored daily close for a ticker.
type PricePoint struct {
	Ticker    string    `json:"ticker"`
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FetchFailure is a negative-cache entry recording why the last fetch for a
// ticker failed. While unexpired it blocks further provider calls.
type FetchFailure struct {
	Ticker              string                 `json:"ticker"`
	FailureType         marketdata.FailureKind `json:"failure_type"`
	Source              string                 `json:"source"`
	Message             string                 `json:"message"`
	FirstFailedAt       time.Time              `json:"first_failed_at"`
	LastAttemptAt       time.Time              `json:"last_attempt_at"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	ExpiresAt           time.Time              `json:"expires_at"`
}

// Expired reports whether the entry no longer blocks fetches.
func (f *FetchFailure) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// BlockedError is returned when a fetch is suppressed by an active failure
// entry instead of being attempted.
type BlockedError struct {
	Ticker      string
	FailureType marketdata.FailureKind
	RetryAfter  time.Time
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetch for %s blocked by cached %s failure until %s",
		e.Ticker, e.FailureType, e.RetryAfter.Format(time.RFC3339))
}
