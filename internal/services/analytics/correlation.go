package analytics

import (
	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/services/features"
)

// CorrelationMatrix computes pairwise Pearson coefficients on pairwise
// aligned returns. Cells with fewer than minObs common periods, or a flat
// side, are undefined.
func CorrelationMatrix(order []models.Ticker, returns map[models.Ticker][]features.Return, minObs int) models.CorrelationMatrix {
	if minObs < 2 {
		minObs = 2
	}
	m := models.CorrelationMatrix{
		Tickers: append([]models.Ticker(nil), order...),
		Values:  make([][]models.Optional, len(order)),
	}
	for i := range order {
		m.Values[i] = make([]models.Optional, len(order))
	}
	for i, a := range order {
		for j := i; j < len(order); j++ {
			x, y := features.Align(returns[a], returns[order[j]])
			cell := models.Undefined()
			if len(x) >= minObs {
				if r, ok := features.Correlation(x, y); ok {
					cell = models.Some(r)
				}
			}
			m.Values[i][j] = cell
			m.Values[j][i] = cell
		}
	}
	return m
}

// AverageCorrelation is the mean of defined off-diagonal cells.
func AverageCorrelation(m models.CorrelationMatrix) models.Optional {
	sum, n := 0.0, 0
	for i := range m.Values {
		for j := i + 1; j < len(m.Values[i]); j++ {
			if v, ok := m.Values[i][j].Get(); ok {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return models.Undefined()
	}
	return models.Some(sum / float64(n))
}
