package analytics

import (
	"math"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/services/features"

	"github.com/shopspring/decimal"
)

const flatEpsilon = features.FlatEpsilon

// Volatility annualizes the sample standard deviation of returns. Needs at
// least two observations.
func Volatility(returns []float64, periodsPerYear float64) models.Optional {
	v, ok := features.RealizedVolatility(returns, periodsPerYear)
	if !ok {
		return models.Undefined()
	}
	return models.Some(v)
}

// Sharpe is (mean - rf per period) / stdev, annualized. Undefined for a flat
// series.
func Sharpe(returns []float64, riskFreeRate, periodsPerYear float64) models.Optional {
	sd, ok := features.SampleStdDev(returns)
	if !ok || sd <= flatEpsilon {
		return models.Undefined()
	}
	mean, _ := features.Mean(returns)
	rf := riskFreeRate / periodsPerYear
	return models.Some((mean - rf) / sd * math.Sqrt(periodsPerYear))
}

// BetaAlpha regresses aligned asset returns on benchmark returns. The inputs
// must already be truncated to common periods and of equal length. Alpha is
// the annualized CAPM residual.
func BetaAlpha(asset, bench []float64, riskFreeRate, periodsPerYear float64, minObs int) (beta, alpha models.Optional) {
	if minObs < 2 {
		minObs = 2
	}
	if len(asset) != len(bench) || len(asset) < minObs {
		return models.Undefined(), models.Undefined()
	}
	cov, ok := features.Covariance(asset, bench)
	if !ok {
		return models.Undefined(), models.Undefined()
	}
	varB, _ := features.SampleVariance(bench)
	if varB <= flatEpsilon*flatEpsilon {
		return models.Undefined(), models.Undefined()
	}
	b := cov / varB
	meanA, _ := features.Mean(asset)
	meanB, _ := features.Mean(bench)
	rf := riskFreeRate / periodsPerYear
	a := (meanA - (rf + b*(meanB-rf))) * periodsPerYear
	return models.Some(b), models.Some(a)
}

// HistoricalVaR is the loss at the given lower percentile of the sampled
// returns, scaled by value. Historical simulation, no distribution
// assumption. The result is never positive: a percentile that is still a
// gain reports zero loss.
func HistoricalVaR(returns []float64, value, percentile float64) models.Optional {
	if len(returns) < 2 || value <= 0 {
		return models.Undefined()
	}
	q, ok := features.Percentile(returns, percentile)
	if !ok {
		return models.Undefined()
	}
	if q > 0 {
		q = 0
	}
	v := decimal.NewFromFloat(q).Mul(decimal.NewFromFloat(value))
	return models.Some(v.InexactFloat64())
}
