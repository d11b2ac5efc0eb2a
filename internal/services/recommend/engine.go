package recommend

import (
	"fmt"
	"sort"
	"strings"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/service"
	"PortfolioPulse/internal/services/analytics"
)

// Thresholds drive the rule set. Percent values are in percent (10 = 10%),
// volatility is an annualized fraction.
type Thresholds struct {
	RSIOverbought       float64
	RSIOversold         float64
	MaxPositionWeight   float64
	AssetConcentration  float64
	AssetMonitor        float64
	HighBeta            float64
	LowBeta             float64
	LowBetaMinPositions int
	HighVolatility      float64
	LargeLoss           float64
	LargeGain           float64
	StrongSharpe        float64
	NegativeSharpe      float64
	MinPositions        int
	MaxPositions        int
	HighCorrelation     float64
}

// DefaultThresholds returns the standard rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOverbought:       70,
		RSIOversold:         30,
		MaxPositionWeight:   10,
		AssetConcentration:  70,
		AssetMonitor:        50,
		HighBeta:            1.5,
		LowBeta:             0.5,
		LowBetaMinPositions: 5,
		HighVolatility:      0.40,
		LargeLoss:           -20,
		LargeGain:           100,
		StrongSharpe:        1,
		NegativeSharpe:      0,
		MinPositions:        5,
		MaxPositions:        50,
		HighCorrelation:     0.8,
	}
}

// Engine evaluates independent rules over a MetricSet.
type Engine struct {
	th       Thresholds
	targets  map[models.AssetType]float64
	currency string
	band     float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds replaces the rule thresholds.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) { e.th = th }
}

// WithCurrency sets the ISO code used when formatting amounts.
func WithCurrency(code string) Option {
	return func(e *Engine) {
		if code != "" {
			e.currency = strings.ToUpper(code)
		}
	}
}

// WithTargets overrides base allocations per asset type.
func WithTargets(targets map[models.AssetType]float64) Option {
	return func(e *Engine) {
		for k, v := range targets {
			e.targets[k] = v
		}
	}
}

// WithHoldBand sets the allocation drift, in percent, under which a type is
// left alone.
func WithHoldBand(pct float64) Option {
	return func(e *Engine) {
		if pct >= 0 {
			e.band = pct
		}
	}
}

// NewEngine creates an Engine with default thresholds.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		th:       DefaultThresholds(),
		targets:  BaseAllocations(),
		currency: "USD",
		band:     1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ service.Advisor = (*Engine)(nil)

type rule func(e *Engine, set models.MetricSet) []models.Recommendation

var rules = []rule{
	rsiRule,
	positionWeightRule,
	assetConcentrationRule,
	betaRule,
	volatilityRule,
	performanceRule,
	sharpeRule,
	sizeRule,
	correlationRule,
	dataQualityRule,
}

// Evaluate runs every rule. Rules never see each other's output; order of
// the result follows rule order, then position order.
func (e *Engine) Evaluate(set models.MetricSet) []models.Recommendation {
	out := []models.Recommendation{}
	for _, r := range rules {
		out = append(out, r(e, set)...)
	}
	return out
}

// positionsBy walks positions in request order, emitting for defined values.
func positionsBy(set models.MetricSet, get func(models.PositionMetrics) models.Optional, emit func(models.Ticker, float64)) {
	for _, t := range set.Order {
		if v, ok := get(set.PerPosition[t]).Get(); ok {
			emit(t, v)
		}
	}
}

func rsiRule(e *Engine, set models.MetricSet) []models.Recommendation {
	var out []models.Recommendation
	positionsBy(set, func(p models.PositionMetrics) models.Optional { return p.RSI }, func(t models.Ticker, v float64) {
		switch {
		case v > e.th.RSIOverbought:
			out = append(out, models.Recommendation{
				Tag: models.TagOverbought, Severity: models.SeverityInfo, Ticker: t,
				Metric: "rsi", Value: v, Threshold: e.th.RSIOverbought,
				Message: fmt.Sprintf("%s RSI %.1f > %.0f: watch for a pullback or consider taking profit", t, v, e.th.RSIOverbought),
			})
		case v < e.th.RSIOversold:
			out = append(out, models.Recommendation{
				Tag: models.TagOversold, Severity: models.SeverityInfo, Ticker: t,
				Metric: "rsi", Value: v, Threshold: e.th.RSIOversold,
				Message: fmt.Sprintf("%s RSI %.1f < %.0f: possible entry, confirm with other indicators", t, v, e.th.RSIOversold),
			})
		}
	})
	return out
}

func positionWeightRule(e *Engine, set models.MetricSet) []models.Recommendation {
	var out []models.Recommendation
	positionsBy(set, func(p models.PositionMetrics) models.Optional { return p.WeightPct }, func(t models.Ticker, v float64) {
		if v > e.th.MaxPositionWeight {
			out = append(out, models.Recommendation{
				Tag: models.TagConcentrationRisk, Severity: models.SeverityWarning, Ticker: t,
				Metric: "weight_pct", Value: v, Threshold: e.th.MaxPositionWeight,
				Message: fmt.Sprintf("%s is %.1f%% of the portfolio, above %.0f%%", t, v, e.th.MaxPositionWeight),
			})
		}
	})
	return out
}

func assetConcentrationRule(e *Engine, set models.MetricSet) []models.Recommendation {
	if len(set.Breakdown) == 0 {
		return nil
	}
	top := set.Breakdown[0]
	switch {
	case top.WeightPct > e.th.AssetConcentration:
		return []models.Recommendation{{
			Tag: models.TagAssetConcentration, Severity: models.SeverityWarning,
			Metric: "asset_weight_pct", Value: top.WeightPct, Threshold: e.th.AssetConcentration,
			Message: fmt.Sprintf("portfolio is heavily concentrated in %s (%.1f%%); consider other asset classes", top.AssetType, top.WeightPct),
		}}
	case top.WeightPct > e.th.AssetMonitor:
		return []models.Recommendation{{
			Tag: models.TagAssetConcentration, Severity: models.SeverityInfo,
			Metric: "asset_weight_pct", Value: top.WeightPct, Threshold: e.th.AssetMonitor,
			Message: fmt.Sprintf("significant exposure to %s (%.1f%%); monitor this allocation", top.AssetType, top.WeightPct),
		}}
	}
	return nil
}

func betaRule(e *Engine, set models.MetricSet) []models.Recommendation {
	b, ok := set.Portfolio.Beta.Get()
	if !ok {
		return nil
	}
	switch {
	case b > e.th.HighBeta:
		return []models.Recommendation{{
			Tag: models.TagHighMarketSensitivity, Severity: models.SeverityWarning,
			Metric: "beta", Value: b, Threshold: e.th.HighBeta,
			Message: fmt.Sprintf("portfolio beta %.2f amplifies market moves", b),
		}}
	case b < e.th.LowBeta && set.Portfolio.Positions > e.th.LowBetaMinPositions:
		return []models.Recommendation{{
			Tag: models.TagLowMarketSensitivity, Severity: models.SeverityInfo,
			Metric: "beta", Value: b, Threshold: e.th.LowBeta,
			Message: fmt.Sprintf("portfolio beta %.2f is defensive", b),
		}}
	}
	return nil
}

func volatilityRule(e *Engine, set models.MetricSet) []models.Recommendation {
	var out []models.Recommendation
	positionsBy(set, func(p models.PositionMetrics) models.Optional { return p.Volatility }, func(t models.Ticker, v float64) {
		if v > e.th.HighVolatility {
			out = append(out, models.Recommendation{
				Tag: models.TagHighVolatility, Severity: models.SeverityWarning, Ticker: t,
				Metric: "volatility", Value: v, Threshold: e.th.HighVolatility,
				Message: fmt.Sprintf("%s annualized volatility %.1f%%; size the position accordingly", t, v*100),
			})
		}
	})
	if v, ok := set.Portfolio.Volatility.Get(); ok && v > e.th.HighVolatility {
		out = append(out, models.Recommendation{
			Tag: models.TagHighVolatility, Severity: models.SeverityAlert,
			Metric: "volatility", Value: v, Threshold: e.th.HighVolatility,
			Message: fmt.Sprintf("portfolio annualized volatility %.1f%%", v*100),
		})
	}
	return out
}

func performanceRule(e *Engine, set models.MetricSet) []models.Recommendation {
	var out []models.Recommendation
	positionsBy(set, func(p models.PositionMetrics) models.Optional { return p.PLPct }, func(t models.Ticker, v float64) {
		switch {
		case v < e.th.LargeLoss:
			out = append(out, models.Recommendation{
				Tag: models.TagLargeLoss, Severity: models.SeverityWarning, Ticker: t,
				Metric: "pl_pct", Value: v, Threshold: e.th.LargeLoss,
				Message: fmt.Sprintf("%s is down %.1f%%; review the thesis", t, -v),
			})
		case v > e.th.LargeGain:
			out = append(out, models.Recommendation{
				Tag: models.TagLargeGain, Severity: models.SeverityInfo, Ticker: t,
				Metric: "pl_pct", Value: v, Threshold: e.th.LargeGain,
				Message: fmt.Sprintf("%s is up %.1f%%; consider taking partial profit", t, v),
			})
		}
	})
	return out
}

func sharpeRule(e *Engine, set models.MetricSet) []models.Recommendation {
	var out []models.Recommendation
	positionsBy(set, func(p models.PositionMetrics) models.Optional { return p.Sharpe }, func(t models.Ticker, v float64) {
		switch {
		case v > e.th.StrongSharpe:
			out = append(out, models.Recommendation{
				Tag: models.TagStrongRiskAdjusted, Severity: models.SeverityInfo, Ticker: t,
				Metric: "sharpe", Value: v, Threshold: e.th.StrongSharpe,
				Message: fmt.Sprintf("%s Sharpe %.2f: strong return per unit of risk", t, v),
			})
		case v < e.th.NegativeSharpe:
			out = append(out, models.Recommendation{
				Tag: models.TagNegativeRiskAdjusted, Severity: models.SeverityWarning, Ticker: t,
				Metric: "sharpe", Value: v, Threshold: e.th.NegativeSharpe,
				Message: fmt.Sprintf("%s Sharpe %.2f: return does not cover the risk-free rate", t, v),
			})
		}
	})
	return out
}

func sizeRule(e *Engine, set models.MetricSet) []models.Recommendation {
	n := set.Portfolio.Positions
	switch {
	case n < e.th.MinPositions:
		return []models.Recommendation{{
			Tag: models.TagUnderDiversified, Severity: models.SeverityInfo,
			Metric: "positions", Value: float64(n), Threshold: float64(e.th.MinPositions),
			Message: fmt.Sprintf("only %d positions; add holdings across sectors and asset classes", n),
		}}
	case n > e.th.MaxPositions:
		return []models.Recommendation{{
			Tag: models.TagOverDiversified, Severity: models.SeverityInfo,
			Metric: "positions", Value: float64(n), Threshold: float64(e.th.MaxPositions),
			Message: fmt.Sprintf("%d positions are hard to monitor; consider consolidating", n),
		}}
	}
	return nil
}

func correlationRule(e *Engine, set models.MetricSet) []models.Recommendation {
	avg, ok := analytics.AverageCorrelation(set.Correlation).Get()
	if !ok || avg <= e.th.HighCorrelation {
		return nil
	}
	return []models.Recommendation{{
		Tag: models.TagHighCorrelation, Severity: models.SeverityWarning,
		Metric: "avg_correlation", Value: avg, Threshold: e.th.HighCorrelation,
		Message: fmt.Sprintf("average pairwise correlation %.2f; holdings move together", avg),
	}}
}

func dataQualityRule(_ *Engine, set models.MetricSet) []models.Recommendation {
	var missing, stale []string
	for _, t := range set.Order {
		pm := set.PerPosition[t]
		if !pm.Price.Valid {
			missing = append(missing, t.String())
		} else if pm.Stale {
			stale = append(stale, t.String())
		}
	}
	var out []models.Recommendation
	if len(missing) > 0 {
		out = append(out, models.Recommendation{
			Tag: models.TagMissingData, Severity: models.SeverityWarning,
			Metric: "price", Value: float64(len(missing)),
			Message: "no current price for " + strings.Join(missing, ", ") + "; verify the symbols",
		})
	}
	if len(stale) > 0 {
		out = append(out, models.Recommendation{
			Tag: models.TagStaleData, Severity: models.SeverityInfo,
			Metric: "price", Value: float64(len(stale)),
			Message: "using cached prices for " + strings.Join(stale, ", "),
		})
	}
	excluded := make(map[models.Ticker]struct{})
	for _, x := range set.Exclusions {
		if x.Metric == analytics.MetricPortfolioRisk && x.Reason != models.ExcludedMissingPrice {
			excluded[x.Ticker] = struct{}{}
		}
	}
	if len(excluded) > 0 {
		names := make([]string, 0, len(excluded))
		for t := range excluded {
			names = append(names, t.String())
		}
		sort.Strings(names)
		out = append(out, models.Recommendation{
			Tag: models.TagMissingData, Severity: models.SeverityInfo,
			Metric: analytics.MetricPortfolioRisk, Value: float64(len(names)),
			Message: "not enough history to include " + strings.Join(names, ", ") + " in portfolio risk",
		})
	}
	return out
}
