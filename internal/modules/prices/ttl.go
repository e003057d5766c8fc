package prices

import (
	"time"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

// Failure cache TTLs per failure classification. An unknown ticker stays
// wrong for a long time; a rate limit clears quickly; a provider outage
// sits in between.
const (
	TTLNotFound    = 24 * time.Hour
	TTLRateLimited = 1 * time.Hour
	TTLAPIError    = 6 * time.Hour
)

// FailureTTL returns the blocking window for a failure classification.
func FailureTTL(kind marketdata.FailureKind) time.Duration {
	switch kind {
	case marketdata.FailureNotFound:
		return TTLNotFound
	case marketdata.FailureRateLimited:
		return TTLRateLimited
	default:
		return TTLAPIError
	}
}
