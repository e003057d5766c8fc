package formulas

import (
	"math"
)

// SharpeRatio calculates the Sharpe ratio from daily returns.
//
// Sharpe = (Annualized Return - Risk-free Rate) / Annualized Volatility
//
// Args:
//
//	returns: daily returns
//	riskFreeRate: annual risk-free rate as a decimal (0.02 for 2%)
//
// Returns nil when there is insufficient data or the volatility is zero
// (flat series), where the ratio is undefined.
func SharpeRatio(returns []float64, riskFreeRate float64) *float64 {
	if len(returns) < 2 {
		return nil
	}

	vol := AnnualizedVolatility(returns)
	if vol == 0 {
		return nil
	}

	sharpe := (AnnualizedReturn(returns) - riskFreeRate) / vol
	return &sharpe
}

// SortinoRatio calculates the Sortino ratio (downside deviation version of Sharpe).
// Only returns below the target/MAR contribute to the deviation.
//
// Sortino = (Annualized Return - Risk-free Rate) / Annualized Downside Deviation
// Downside Deviation = sqrt(mean of squared shortfalls below MAR)
//
// Args:
//
//	returns: daily returns
//	riskFreeRate: annual risk-free rate as a decimal
//	targetReturn: Minimum Acceptable Return (annual, as decimal; 0 by convention)
//
// Returns nil when no return falls below the MAR (no downside to measure).
func SortinoRatio(returns []float64, riskFreeRate float64, targetReturn float64) *float64 {
	if len(returns) < 2 {
		return nil
	}

	periodicMAR := targetReturn / TradingDaysPerYear

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < periodicMAR {
			deviation := ret - periodicMAR
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return nil
	}

	downsideDeviation := math.Sqrt(downsideSquaredSum/float64(len(returns))) * math.Sqrt(TradingDaysPerYear)
	if downsideDeviation == 0 {
		return nil
	}

	sortino := (AnnualizedReturn(returns) - riskFreeRate) / downsideDeviation
	return &sortino
}
