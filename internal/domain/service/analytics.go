package service

import (
	"context"

	"PortfolioPulse/internal/domain/models"
)

// QuoteFetcher resolves current prices for many tickers. It never fails as a
// whole; every ticker gets its own outcome.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome
	FetchHistories(ctx context.Context, tickers []models.Ticker, interval, rng string) map[models.Ticker]models.FetchOutcome
}

// MetricsEngine computes a MetricSet from a settled snapshot.
type MetricsEngine interface {
	Compute(in models.AnalyticsInput) models.MetricSet
}

// Advisor turns metrics into tagged advice.
type Advisor interface {
	Evaluate(set models.MetricSet) []models.Recommendation
	SuggestRebalancing(set models.MetricSet) []models.RebalanceSuggestion
}
