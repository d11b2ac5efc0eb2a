package analytics

import "PortfolioPulse/internal/domain/models"

// DefaultRSIPeriod is the standard look-back.
const DefaultRSIPeriod = 14

// RSI computes the Wilder-smoothed relative strength index over closes. It
// needs period+1 closes and is undefined below that. A series with neither
// gains nor losses has no defined RSI either.
func RSI(closes []float64, period int) models.Optional {
	if period <= 0 || len(closes) < period+1 {
		return models.Undefined()
	}

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return models.Undefined()
		}
		return models.Some(100)
	}
	rs := avgGain / avgLoss
	return models.Some(100 - 100/(1+rs))
}
