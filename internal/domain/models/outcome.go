package models

// OutcomeStatus tags a FetchOutcome.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusStale   OutcomeStatus = "stale_cache_fallback"
	StatusFailure OutcomeStatus = "failure"
)

// FailureReason classifies why a fetch produced no fresh value.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonInvalidTicker FailureReason = "invalidTicker"
	ReasonRateLimited   FailureReason = "rateLimited"
	ReasonNetworkError  FailureReason = "networkError"
	ReasonNoData        FailureReason = "noData"
)

// Retryable reports whether another provider call could change the result.
func (r FailureReason) Retryable() bool {
	return r == ReasonRateLimited || r == ReasonNetworkError
}

// DataKind distinguishes cached quotes from cached series.
type DataKind string

const (
	KindQuote   DataKind = "quote"
	KindHistory DataKind = "history"
)

// FetchOutcome is the result of fetching one ticker. Exactly one of Quote or
// Series is set unless Status is StatusFailure.
type FetchOutcome struct {
	Ticker   Ticker            `json:"ticker"`
	Kind     DataKind          `json:"kind"`
	Status   OutcomeStatus     `json:"status"`
	Quote    *Quote            `json:"quote,omitempty"`
	Series   *HistoricalSeries `json:"series,omitempty"`
	Reason   FailureReason     `json:"reason,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Attempts int               `json:"attempts"`
	// Batched marks outcomes produced by a multi-ticker provider call.
	Batched bool `json:"-"`
}

// QuoteSuccess builds a successful quote outcome.
func QuoteSuccess(q Quote) FetchOutcome {
	return FetchOutcome{Ticker: q.Ticker, Kind: KindQuote, Status: StatusSuccess, Quote: &q}
}

// SeriesSuccess builds a successful history outcome.
func SeriesSuccess(s HistoricalSeries) FetchOutcome {
	return FetchOutcome{Ticker: s.Ticker, Kind: KindHistory, Status: StatusSuccess, Series: &s}
}

// Failure builds a classified failure.
func Failure(t Ticker, kind DataKind, reason FailureReason, detail string) FetchOutcome {
	return FetchOutcome{Ticker: t, Kind: kind, Status: StatusFailure, Reason: reason, Detail: detail}
}

// OK reports a fresh success.
func (o FetchOutcome) OK() bool { return o.Status == StatusSuccess }

// Usable reports whether the outcome carries a value, fresh or stale.
func (o FetchOutcome) Usable() bool { return o.Status == StatusSuccess || o.Status == StatusStale }
