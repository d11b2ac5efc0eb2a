package models

import "time"

// AnalyticsInput is everything one analytics pass reads. It is a settled
// snapshot: no value in it changes while the pass runs. BenchmarkTicker names
// the requested benchmark even when its history could not be fetched.
type AnalyticsInput struct {
	Positions       []Position
	Quotes          map[Ticker]Quote
	StaleQuotes     map[Ticker]bool
	History         map[Ticker]*HistoricalSeries
	Benchmark       *HistoricalSeries
	BenchmarkTicker Ticker
	RiskFreeRate    float64
	PeriodsPerYear  float64
	Now             time.Time
}

// AnalysisRequest drives one portfolio pass.
type AnalysisRequest struct {
	Positions []Position
	Benchmark Ticker
	Interval  string
	Range     string
}

// AnalysisRun is the full result of a pass, published and recorded as a unit.
type AnalysisRun struct {
	ID              string                  `json:"run_id"`
	StartedAt       time.Time               `json:"started_at"`
	Duration        time.Duration           `json:"duration_ns"`
	Benchmark       Ticker                  `json:"benchmark"`
	Interval        string                  `json:"interval"`
	Range           string                  `json:"range"`
	Metrics         MetricSet               `json:"metrics"`
	Recommendations []Recommendation        `json:"recommendations"`
	Rebalancing     []RebalanceSuggestion   `json:"rebalancing"`
	Quotes          map[Ticker]FetchOutcome `json:"quotes"`
	History         map[Ticker]FetchOutcome `json:"history"`
}

// Warnings lists tickers whose quote did not come back fresh.
func (r *AnalysisRun) Warnings() []FetchOutcome {
	var out []FetchOutcome
	for _, t := range r.Metrics.Order {
		if o, ok := r.Quotes[t]; ok && !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
