package alphavantage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
)

func testClient() *Client {
	return NewClient("test-key", zerolog.Nop())
}

func TestRateLimiting(t *testing.T) {
	client := testClient()

	for i := 0; i < DailyRequestLimit; i++ {
		err := client.checkRateLimit()
		require.NoError(t, err, "request %d should be within quota", i+1)
	}

	err := client.checkRateLimit()
	require.Error(t, err)
	assert.IsType(t, ErrRateLimitExceeded{}, err)
	assert.Equal(t, 0, client.GetRemainingRequests())
}

func TestResetDailyCounter(t *testing.T) {
	client := testClient()

	for i := 0; i < 10; i++ {
		require.NoError(t, client.checkRateLimit())
	}
	assert.Equal(t, DailyRequestLimit-10, client.GetRemainingRequests())

	client.ResetDailyCounter()
	assert.Equal(t, DailyRequestLimit, client.GetRemainingRequests())
}

func TestCounterRollsOverAtMidnight(t *testing.T) {
	client := testClient()

	for i := 0; i < DailyRequestLimit; i++ {
		require.NoError(t, client.checkRateLimit())
	}
	require.Error(t, client.checkRateLimit())

	// Simulate the counter belonging to yesterday.
	client.mu.Lock()
	client.counterDay = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	client.mu.Unlock()

	assert.NoError(t, client.checkRateLimit())
}

func TestFetchWithoutAPIKey(t *testing.T) {
	client := NewClient("", zerolog.Nop())

	_, err := client.FetchDailyHistory(context.Background(), "AAPL", 365)
	require.Error(t, err)

	var perr *marketdata.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, marketdata.FailureAPIError, perr.Kind)
}

func TestQuotaExhaustionIsRateLimited(t *testing.T) {
	client := testClient()
	client.mu.Lock()
	client.requestsToday = DailyRequestLimit
	client.mu.Unlock()

	_, err := client.FetchDailyHistory(context.Background(), "AAPL", 365)
	require.Error(t, err)

	var perr *marketdata.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, marketdata.FailureRateLimited, perr.Kind)
}

func TestParseBars(t *testing.T) {
	client := testClient()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	dayBefore := time.Now().UTC().AddDate(0, 0, -2).Format("2006-01-02")
	ancient := "2001-01-02"

	series := map[string]map[string]string{
		yesterday: {
			"1. open":   "101.0",
			"2. high":   "103.5",
			"3. low":    "100.2",
			"4. close":  "102.5",
			"5. volume": "1200000",
		},
		dayBefore: {
			"1. open":   "100.0",
			"2. high":   "101.0",
			"3. low":    "99.0",
			"4. close":  "100.5",
			"5. volume": "900000",
		},
		ancient: {
			"4. close": "10.0",
		},
	}

	bars, err := client.parseBars(series, 30)
	require.NoError(t, err)
	require.Len(t, bars, 2, "bars outside the lookback window are dropped")

	// Ascending order.
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, 102.5, bars[1].Close)
	assert.Equal(t, int64(1200000), bars[1].Volume)
}

func TestParseBarsMissingClose(t *testing.T) {
	client := testClient()

	series := map[string]map[string]string{
		time.Now().UTC().Format("2006-01-02"): {
			"1. open": "100.0",
		},
	}

	_, err := client.parseBars(series, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4. close")
}
