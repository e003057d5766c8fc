package formulas

import (
	"sort"
)

// HistoricalVaR calculates historical Value at Risk from daily returns.
//
// VaR at confidence level c is the (1-c) empirical percentile of the return
// distribution: the loss threshold not exceeded with probability c. For a 95%
// confidence level this is the 5th percentile. The result is a return
// (negative in loss convention), not a currency amount.
//
// Returns nil when there is insufficient data.
func HistoricalVaR(returns []float64, confidence float64) *float64 {
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return nil
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// Index of the (1-confidence) percentile in the sorted series.
	idx := int(float64(len(sorted)) * (1 - confidence))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	v := sorted[idx]
	// Loss convention: VaR is never positive. A series with no losing days
	// has a positive empirical percentile, which reads as zero value at risk.
	if v > 0 {
		v = 0
	}
	return &v
}

// ExpectedShortfall calculates the Conditional VaR (Expected Shortfall):
// the mean of all returns at or below the VaR threshold. It is always at
// least as negative as the VaR itself.
//
// Returns nil when VaR itself is undefined.
func ExpectedShortfall(returns []float64, confidence float64) *float64 {
	varThreshold := HistoricalVaR(returns, confidence)
	if varThreshold == nil {
		return nil
	}

	var sum float64
	count := 0
	for _, ret := range returns {
		if ret <= *varThreshold {
			sum += ret
			count++
		}
	}

	if count == 0 {
		return varThreshold
	}

	es := sum / float64(count)
	return &es
}
