package analytics

import (
	"PortfolioPulse/internal/domain/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PositionPL returns absolute and percentage P/L. Both are undefined when
// the cost basis is not positive or there is no price.
func PositionPL(quantity, costBasis, price float64) (pl, plPct models.Optional) {
	if costBasis <= 0 || price <= 0 {
		return models.Undefined(), models.Undefined()
	}
	q := decimal.NewFromFloat(quantity)
	c := decimal.NewFromFloat(costBasis)
	diff := decimal.NewFromFloat(price).Sub(c)
	return models.Some(diff.Mul(q).InexactFloat64()), models.Some(diff.Div(c).Mul(hundred).InexactFloat64())
}

// MarketValue is quantity times price.
func MarketValue(quantity, price float64) decimal.Decimal {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price))
}

// CostValue is quantity times the per-unit cost basis.
func CostValue(quantity, costBasis float64) decimal.Decimal {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(costBasis))
}

// pct returns part/whole in percent, undefined for a non-positive whole.
func pct(part, whole decimal.Decimal) models.Optional {
	if !whole.IsPositive() {
		return models.Undefined()
	}
	return models.Some(part.Div(whole).Mul(hundred).InexactFloat64())
}

// consolidate merges positions that share a ticker: quantities add and the
// cost basis becomes the quantity-weighted average.
func consolidate(positions []models.Position) []models.Position {
	idx := make(map[models.Ticker]int, len(positions))
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		i, ok := idx[p.Ticker]
		if !ok {
			idx[p.Ticker] = len(out)
			out = append(out, p)
			continue
		}
		cur := out[i]
		qty := decimal.NewFromFloat(cur.Quantity).Add(decimal.NewFromFloat(p.Quantity))
		if qty.IsPositive() && cur.CostBasis > 0 && p.CostBasis > 0 {
			cost := CostValue(cur.Quantity, cur.CostBasis).Add(CostValue(p.Quantity, p.CostBasis))
			cur.CostBasis = cost.Div(qty).InexactFloat64()
		} else {
			cur.CostBasis = 0
		}
		cur.Quantity = qty.InexactFloat64()
		if p.PurchaseDate.Before(cur.PurchaseDate) && !p.PurchaseDate.IsZero() {
			cur.PurchaseDate = p.PurchaseDate
		}
		out[i] = cur
	}
	return out
}
