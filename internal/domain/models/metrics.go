package models

import "time"

// ExclusionReason says why a position was left out of a metric.
type ExclusionReason string

const (
	ExcludedMissingPrice        ExclusionReason = "missingPrice"
	ExcludedInvalidCostBasis    ExclusionReason = "invalidCostBasis"
	ExcludedInsufficientHistory ExclusionReason = "insufficientHistory"
	ExcludedMisalignedSeries    ExclusionReason = "misalignedSeries"
	ExcludedMissingBenchmark    ExclusionReason = "missingBenchmark"
)

// Exclusion records one position dropped from one aggregate.
type Exclusion struct {
	Ticker Ticker          `json:"ticker"`
	Metric string          `json:"metric"`
	Reason ExclusionReason `json:"reason"`
}

// PositionMetrics holds per-holding results. Undefined metrics stay undefined.
type PositionMetrics struct {
	Ticker      Ticker    `json:"ticker"`
	AssetType   AssetType `json:"asset_type"`
	Quantity    float64   `json:"quantity"`
	CostBasis   float64   `json:"cost_basis"`
	Price       Optional  `json:"price"`
	Stale       bool      `json:"stale"`
	MarketValue Optional  `json:"market_value"`
	CostValue   float64   `json:"cost_value"`
	PL          Optional  `json:"pl"`
	PLPct       Optional  `json:"pl_pct"`
	WeightPct   Optional  `json:"weight_pct"`
	ChangePct   Optional  `json:"change_pct"`
	Volatility  Optional  `json:"volatility"`
	Beta        Optional  `json:"beta"`
	Alpha       Optional  `json:"alpha"`
	Sharpe      Optional  `json:"sharpe"`
	VaR95       Optional  `json:"var_95"`
	RSI         Optional  `json:"rsi"`
}

// PortfolioMetrics aggregates over positions with defined inputs only.
type PortfolioMetrics struct {
	TotalValue   float64  `json:"total_value"`
	TotalCost    float64  `json:"total_cost"`
	TotalPL      Optional `json:"total_pl"`
	TotalPLPct   Optional `json:"total_pl_pct"`
	Beta         Optional `json:"beta"`
	Alpha        Optional `json:"alpha"`
	Volatility   Optional `json:"volatility"`
	Sharpe       Optional `json:"sharpe"`
	VaR95        Optional `json:"var_95"`
	Positions    int      `json:"positions"`
	Priced       int      `json:"priced"`
	RiskIncluded int      `json:"risk_included"`
	Observations int      `json:"observations"`
}

// CorrelationMatrix is symmetric over Tickers; Values[i][j] pairs Tickers[i], Tickers[j].
type CorrelationMatrix struct {
	Tickers []Ticker     `json:"tickers"`
	Values  [][]Optional `json:"values"`
}

// Get looks up the coefficient for a pair.
func (m CorrelationMatrix) Get(a, b Ticker) Optional {
	ia, ib := -1, -1
	for i, t := range m.Tickers {
		if t == a {
			ia = i
		}
		if t == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return Undefined()
	}
	return m.Values[ia][ib]
}

// AssetSlice is one row of the allocation breakdown.
type AssetSlice struct {
	AssetType AssetType `json:"asset_type"`
	Value     float64   `json:"value"`
	WeightPct float64   `json:"weight_pct"`
	Count     int       `json:"count"`
}

// Performer ranks a position by P/L%.
type Performer struct {
	Ticker Ticker  `json:"ticker"`
	PLPct  float64 `json:"pl_pct"`
}

// MetricSet is recomputed wholesale on every analytics pass.
type MetricSet struct {
	ComputedAt  time.Time                  `json:"computed_at"`
	Benchmark   Ticker                     `json:"benchmark,omitempty"`
	Order       []Ticker                   `json:"order"`
	PerPosition map[Ticker]PositionMetrics `json:"per_position"`
	Portfolio   PortfolioMetrics           `json:"portfolio"`
	Correlation CorrelationMatrix          `json:"correlation"`
	Breakdown   []AssetSlice               `json:"breakdown"`
	Top         []Performer                `json:"top"`
	Worst       []Performer                `json:"worst"`
	Exclusions  []Exclusion                `json:"exclusions"`
}

// Excluded reports whether ticker was excluded from metric.
func (m MetricSet) Excluded(t Ticker, metric string) bool {
	for _, e := range m.Exclusions {
		if e.Ticker == t && e.Metric == metric {
			return true
		}
	}
	return false
}
