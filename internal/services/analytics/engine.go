package analytics

import (
	"sort"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/service"
	"PortfolioPulse/internal/services/features"

	"github.com/shopspring/decimal"
)

// Metric names used in exclusions.
const (
	MetricTotalPL       = "total_pl"
	MetricTotalValue    = "total_value"
	MetricPortfolioRisk = "portfolio_risk"
	MetricBeta          = "beta"
	MetricCorrelation   = "correlation"
)

// Engine computes a MetricSet from a settled snapshot. It performs no I/O
// and keeps no state between calls.
type Engine struct {
	rsiPeriod     int
	varPercentile float64
	minBetaObs    int
	minCorrObs    int
	topN          int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRSIPeriod overrides the RSI look-back.
func WithRSIPeriod(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rsiPeriod = n
		}
	}
}

// WithVaRConfidence sets the VaR confidence, e.g. 0.95.
func WithVaRConfidence(c float64) Option {
	return func(e *Engine) {
		if c > 0 && c < 1 {
			e.varPercentile = (1 - c) * 100
		}
	}
}

// WithMinBetaObservations sets how many aligned returns beta and alpha need.
func WithMinBetaObservations(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.minBetaObs = n
		}
	}
}

// WithMinCorrelationObservations sets how many aligned returns a pair needs.
func WithMinCorrelationObservations(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.minCorrObs = n
		}
	}
}

// WithTopN sets how many best and worst performers are listed.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.topN = n
		}
	}
}

// NewEngine creates an Engine with standard parameters.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rsiPeriod:     DefaultRSIPeriod,
		varPercentile: 5,
		minBetaObs:    10,
		minCorrObs:    2,
		topN:          5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ service.MetricsEngine = (*Engine)(nil)

// Compute runs one analytics pass.
func (e *Engine) Compute(in models.AnalyticsInput) models.MetricSet {
	ppy := in.PeriodsPerYear
	if ppy <= 0 {
		ppy = 252
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	positions := consolidate(in.Positions)
	set := models.MetricSet{
		ComputedAt:  now,
		Order:       make([]models.Ticker, 0, len(positions)),
		PerPosition: make(map[models.Ticker]models.PositionMetrics, len(positions)),
		Exclusions:  []models.Exclusion{},
	}
	set.Benchmark = in.BenchmarkTicker
	if in.Benchmark != nil {
		set.Benchmark = in.Benchmark.Ticker
	}

	exclude := func(t models.Ticker, metric string, reason models.ExclusionReason) {
		set.Exclusions = append(set.Exclusions, models.Exclusion{Ticker: t, Metric: metric, Reason: reason})
	}

	var benchReturns []features.Return
	if in.Benchmark != nil {
		benchReturns = features.SimpleReturns(in.Benchmark)
	}
	if len(benchReturns) < 2 {
		// beta and alpha stay undefined everywhere; one entry says why
		benchReturns = nil
		if set.Benchmark != "" {
			exclude(set.Benchmark, MetricBeta, models.ExcludedMissingBenchmark)
		}
	}

	var (
		totalValue = decimal.Zero
		plCost     = decimal.Zero
		plSum      = decimal.Zero
		plCount    int
		allCost    = decimal.Zero
		values     = make(map[models.Ticker]decimal.Decimal, len(positions))
		returns    = make(map[models.Ticker][]features.Return, len(positions))
	)

	for _, p := range positions {
		set.Order = append(set.Order, p.Ticker)
		pm := models.PositionMetrics{
			Ticker:    p.Ticker,
			AssetType: p.AssetType,
			Quantity:  p.Quantity,
			CostBasis: p.CostBasis,
			Stale:     in.StaleQuotes[p.Ticker],
		}
		if p.CostBasis > 0 {
			cv := CostValue(p.Quantity, p.CostBasis)
			pm.CostValue = cv.InexactFloat64()
			allCost = allCost.Add(cv)
		}

		q, priced := in.Quotes[p.Ticker]
		priced = priced && q.Price > 0
		if priced {
			pm.Price = models.Some(q.Price)
			pm.ChangePct = q.ChangePct()
			mv := MarketValue(p.Quantity, q.Price)
			pm.MarketValue = models.Some(mv.InexactFloat64())
			values[p.Ticker] = mv
			totalValue = totalValue.Add(mv)
			set.Portfolio.Priced++
		} else {
			exclude(p.Ticker, MetricTotalValue, models.ExcludedMissingPrice)
		}

		pm.PL, pm.PLPct = PositionPL(p.Quantity, p.CostBasis, q.Price)
		switch {
		case !priced:
			exclude(p.Ticker, MetricTotalPL, models.ExcludedMissingPrice)
		case p.CostBasis <= 0:
			exclude(p.Ticker, MetricTotalPL, models.ExcludedInvalidCostBasis)
		default:
			plSum = plSum.Add(MarketValue(p.Quantity, q.Price).Sub(CostValue(p.Quantity, p.CostBasis)))
			plCost = plCost.Add(CostValue(p.Quantity, p.CostBasis))
			plCount++
		}

		series := in.History[p.Ticker]
		pm.RSI = RSI(series.Closes(), e.rsiPeriod)

		rs := features.SimpleReturns(series)
		vals := features.Values(rs)
		pm.Volatility = Volatility(vals, ppy)
		pm.Sharpe = Sharpe(vals, in.RiskFreeRate, ppy)
		if len(rs) >= 2 {
			returns[p.Ticker] = rs
		}
		if benchReturns != nil {
			x, y := features.Align(rs, benchReturns)
			pm.Beta, pm.Alpha = BetaAlpha(x, y, in.RiskFreeRate, ppy, e.minBetaObs)
			if !pm.Beta.Valid && len(rs) >= e.minBetaObs {
				exclude(p.Ticker, MetricBeta, models.ExcludedMisalignedSeries)
			}
		}
		if priced {
			pm.VaR95 = HistoricalVaR(vals, pm.MarketValue.Value, e.varPercentile)
		}

		set.PerPosition[p.Ticker] = pm
	}

	set.Portfolio.Positions = len(positions)
	set.Portfolio.TotalValue = totalValue.InexactFloat64()
	set.Portfolio.TotalCost = allCost.InexactFloat64()
	if plCount > 0 {
		set.Portfolio.TotalPL = models.Some(plSum.InexactFloat64())
		set.Portfolio.TotalPLPct = pct(plSum, plCost)
	}

	for _, t := range set.Order {
		pm := set.PerPosition[t]
		if mv, ok := values[t]; ok {
			pm.WeightPct = pct(mv, totalValue)
		}
		set.PerPosition[t] = pm
	}

	e.portfolioRisk(&set, in, ppy, values, returns, benchReturns, exclude)

	corrOrder := make([]models.Ticker, 0, len(returns))
	for _, t := range set.Order {
		if _, ok := returns[t]; ok {
			corrOrder = append(corrOrder, t)
		} else {
			exclude(t, MetricCorrelation, models.ExcludedInsufficientHistory)
		}
	}
	set.Correlation = CorrelationMatrix(corrOrder, returns, e.minCorrObs)

	set.Breakdown = Breakdown(set)
	set.Top, set.Worst = TopAndWorst(set, e.topN)
	return set
}

// portfolioRisk aggregates risk over positions that have both a price and a
// usable return series. Weights are renormalized over that subset and
// returns are truncated to the periods every included series shares.
func (e *Engine) portfolioRisk(
	set *models.MetricSet,
	in models.AnalyticsInput,
	ppy float64,
	values map[models.Ticker]decimal.Decimal,
	returns map[models.Ticker][]features.Return,
	benchReturns []features.Return,
	exclude func(models.Ticker, string, models.ExclusionReason),
) {
	included := make(map[models.Ticker][]features.Return)
	riskValue := decimal.Zero
	for _, t := range set.Order {
		_, priced := values[t]
		rs, hasReturns := returns[t]
		switch {
		case !priced:
			exclude(t, MetricPortfolioRisk, models.ExcludedMissingPrice)
		case !hasReturns:
			exclude(t, MetricPortfolioRisk, models.ExcludedInsufficientHistory)
		default:
			included[t] = rs
			riskValue = riskValue.Add(values[t])
		}
	}
	if len(included) == 0 || !riskValue.IsPositive() {
		return
	}

	keys, aligned := features.AlignAll(included)
	if len(keys) < 2 {
		for _, t := range set.Order {
			if _, ok := included[t]; ok {
				exclude(t, MetricPortfolioRisk, models.ExcludedMisalignedSeries)
			}
		}
		return
	}

	portfolio := make([]features.Return, len(keys))
	for i, k := range keys {
		portfolio[i].Key = k
	}
	for t, vals := range aligned {
		w := values[t].Div(riskValue).InexactFloat64()
		for i, v := range vals {
			portfolio[i].Value += w * v
		}
	}
	pv := features.Values(portfolio)

	set.Portfolio.RiskIncluded = len(included)
	set.Portfolio.Observations = len(pv)
	set.Portfolio.Volatility = Volatility(pv, ppy)
	set.Portfolio.Sharpe = Sharpe(pv, in.RiskFreeRate, ppy)
	set.Portfolio.VaR95 = HistoricalVaR(pv, riskValue.InexactFloat64(), e.varPercentile)
	if benchReturns != nil {
		x, y := features.Align(portfolio, benchReturns)
		set.Portfolio.Beta, set.Portfolio.Alpha = BetaAlpha(x, y, in.RiskFreeRate, ppy, e.minBetaObs)
	}
}

// Breakdown groups priced positions by asset type, largest first.
func Breakdown(set models.MetricSet) []models.AssetSlice {
	idx := make(map[models.AssetType]int)
	var out []models.AssetSlice
	values := make([]decimal.Decimal, 0)
	total := decimal.Zero
	for _, t := range set.Order {
		pm := set.PerPosition[t]
		mv, ok := pm.MarketValue.Get()
		if !ok {
			continue
		}
		at := pm.AssetType
		if at == "" {
			at = models.AssetUnknown
		}
		i, seen := idx[at]
		if !seen {
			i = len(out)
			idx[at] = i
			out = append(out, models.AssetSlice{AssetType: at})
			values = append(values, decimal.Zero)
		}
		d := decimal.NewFromFloat(mv)
		values[i] = values[i].Add(d)
		total = total.Add(d)
		out[i].Count++
	}
	for i := range out {
		out[i].Value = values[i].InexactFloat64()
		out[i].WeightPct = pct(values[i], total).Or(0)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// TopAndWorst ranks positions with a defined P/L% and returns up to n from
// each end.
func TopAndWorst(set models.MetricSet, n int) (top, worst []models.Performer) {
	ranked := make([]models.Performer, 0, len(set.Order))
	for _, t := range set.Order {
		if v, ok := set.PerPosition[t].PLPct.Get(); ok {
			ranked = append(ranked, models.Performer{Ticker: t, PLPct: v})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].PLPct > ranked[j].PLPct })
	if n > len(ranked) {
		n = len(ranked)
	}
	top = append([]models.Performer{}, ranked[:n]...)
	worst = make([]models.Performer, 0, n)
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		worst = append(worst, ranked[i])
	}
	return top, worst
}
