package recommend

import (
	"fmt"
	"math"
	"sort"

	"PortfolioPulse/internal/domain/models"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Rebalance actions.
const (
	ActionBuy  = "increase"
	ActionSell = "reduce"
	ActionHold = "hold"
)

// BaseAllocations are the unnormalized target weights per asset type.
func BaseAllocations() map[models.AssetType]float64 {
	return map[models.AssetType]float64{
		models.AssetStock:     40,
		models.AssetETF:       25,
		models.AssetBond:      20,
		models.AssetCrypto:    5,
		models.AssetREIT:      5,
		models.AssetCommodity: 3,
		models.AssetCash:      2,
		models.AssetUnknown:   10,
	}
}

// SuggestRebalancing compares the current allocation by asset type against
// base targets normalized over the types actually held.
func (e *Engine) SuggestRebalancing(set models.MetricSet) []models.RebalanceSuggestion {
	if len(set.Breakdown) == 0 || set.Portfolio.TotalValue <= 0 {
		return []models.RebalanceSuggestion{}
	}

	var sum float64
	for _, s := range set.Breakdown {
		sum += e.target(s.AssetType)
	}
	if sum <= 0 {
		return []models.RebalanceSuggestion{}
	}

	total := decimal.NewFromFloat(set.Portfolio.TotalValue)
	out := make([]models.RebalanceSuggestion, 0, len(set.Breakdown))
	for _, s := range set.Breakdown {
		target := e.target(s.AssetType) / sum * 100
		drift := target - s.WeightPct
		delta := total.Mul(decimal.NewFromFloat(drift)).Div(decimal.NewFromInt(100)).Round(2)

		sg := models.RebalanceSuggestion{
			AssetType:  s.AssetType,
			CurrentPct: s.WeightPct,
			TargetPct:  target,
			DeltaValue: delta.InexactFloat64(),
		}
		amount := money.NewFromFloat(math.Abs(sg.DeltaValue), e.currency).Display()
		switch {
		case math.Abs(drift) < e.band:
			sg.Action = ActionHold
			sg.Message = fmt.Sprintf("%s is within %.0f%% of its %.1f%% target", s.AssetType, e.band, target)
		case drift > 0:
			sg.Action = ActionBuy
			sg.Message = fmt.Sprintf("add about %s to %s (%.1f%% -> %.1f%%)", amount, s.AssetType, s.WeightPct, target)
		default:
			sg.Action = ActionSell
			sg.Message = fmt.Sprintf("trim about %s from %s (%.1f%% -> %.1f%%)", amount, s.AssetType, s.WeightPct, target)
		}
		out = append(out, sg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TargetPct > out[j].TargetPct })
	return out
}

func (e *Engine) target(t models.AssetType) float64 {
	if v, ok := e.targets[t]; ok {
		return v
	}
	return e.targets[models.AssetUnknown]
}
