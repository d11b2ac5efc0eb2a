package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/repository"
	xhttp "PortfolioPulse/pkg/http"
	"PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/util"
)

const (
	// DefaultBaseURL is the public chart API host.
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	sourceName = "yahoo"
)

var errNoData = errors.New("no data returned")

// Yahoo adapts a Yahoo-chart-compatible HTTP API to repository.Provider. It
// validates and normalizes; it never caches or retries.
type Yahoo struct {
	client   *xhttp.Client
	baseURL  string
	currency string
	aliases  map[string]string
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// Option configures Yahoo.
type Option func(*Yahoo)

// WithBaseURL points the adapter at another host (mirrors, tests).
func WithBaseURL(u string) Option {
	return func(y *Yahoo) {
		if u != "" {
			y.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithClient replaces the HTTP client.
func WithClient(c *xhttp.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// WithDisplayCurrency sets the currency assumed when the provider omits one.
func WithDisplayCurrency(code string) Option {
	return func(y *Yahoo) {
		if code != "" {
			y.currency = strings.ToUpper(code)
		}
	}
}

// WithAliases adds symbol aliases on top of the defaults.
func WithAliases(aliases map[string]string) Option {
	return func(y *Yahoo) {
		for k, v := range aliases {
			y.aliases[strings.ToUpper(k)] = v
		}
	}
}

// WithMetrics records call latency.
func WithMetrics(m repository.Metrics) Option {
	return func(y *Yahoo) { y.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(y *Yahoo) { y.log = l }
}

// NewYahoo creates the adapter.
func NewYahoo(opts ...Option) *Yahoo {
	y := &Yahoo{
		client:   xhttp.NewClient(xhttp.WithTimeout(30*time.Second), xhttp.WithUserAgent("Mozilla/5.0")),
		baseURL:  DefaultBaseURL,
		currency: "USD",
		aliases:  DefaultAliases(),
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

var _ repository.Provider = (*Yahoo)(nil)

func (y *Yahoo) Name() string { return sourceName }

func (y *Yahoo) symbol(t models.Ticker) string {
	if mapped, ok := y.aliases[t.String()]; ok {
		return mapped
	}
	return t.String()
}

type chartMeta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	PreviousClose      float64 `json:"previousClose"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta       chartMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			Currency                   string  `json:"currency"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketTime          int64   `json:"regularMarketTime"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string { return e.Code + ": " + e.Description }

func (e *apiError) notFound() bool {
	return strings.EqualFold(e.Code, "Not Found")
}

// FetchQuote returns the latest price from the chart endpoint.
func (y *Yahoo) FetchQuote(ctx context.Context, t models.Ticker) models.FetchOutcome {
	if !t.Valid() {
		return models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "malformed ticker")
	}

	var resp chartResponse
	err := y.call(ctx, "quote", y.chartURL(t), map[string][]string{
		"interval": {"1d"},
		"range":    {"5d"},
	}, &resp)
	if err == nil && resp.Chart.Error != nil {
		err = resp.Chart.Error
	}
	if err != nil {
		return y.fail(t, models.KindQuote, err)
	}
	if len(resp.Chart.Result) == 0 {
		return models.Failure(t, models.KindQuote, models.ReasonNoData, errNoData.Error())
	}

	r := resp.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	if price <= 0 && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 {
				price = *closes[i]
				break
			}
		}
	}
	prev := r.Meta.ChartPreviousClose
	if r.Meta.PreviousClose > 0 {
		prev = r.Meta.PreviousClose
	}
	return y.quote(t, price, prev, r.Meta.Currency, r.Meta.RegularMarketTime)
}

// FetchQuotesBatch fetches many quotes in one call. Symbols the provider
// leaves out come back as noData so the caller can isolate them.
func (y *Yahoo) FetchQuotesBatch(ctx context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome {
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	bySymbol := make(map[string]models.Ticker, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !t.Valid() {
			out[t] = models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "malformed ticker")
			continue
		}
		s := y.symbol(t)
		if _, dup := bySymbol[s]; dup {
			continue
		}
		bySymbol[s] = t
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return out
	}

	var resp quoteResponse
	err := y.call(ctx, "quote_batch", y.baseURL+"/v7/finance/quote", map[string][]string{
		"symbols": {strings.Join(symbols, ",")},
	}, &resp)
	if err == nil && resp.QuoteResponse.Error != nil {
		err = resp.QuoteResponse.Error
	}
	if err != nil {
		for _, s := range symbols {
			o := y.fail(bySymbol[s], models.KindQuote, err)
			o.Batched = true
			out[bySymbol[s]] = o
		}
		return out
	}

	for _, r := range resp.QuoteResponse.Result {
		t, ok := bySymbol[r.Symbol]
		if !ok {
			continue
		}
		o := y.quote(t, r.RegularMarketPrice, r.RegularMarketPreviousClose, r.Currency, r.RegularMarketTime)
		o.Batched = true
		out[t] = o
	}
	for _, s := range symbols {
		t := bySymbol[s]
		if _, ok := out[t]; !ok {
			o := models.Failure(t, models.KindQuote, models.ReasonNoData, "symbol missing from batch response")
			o.Batched = true
			out[t] = o
		}
	}
	// aliased duplicates share the canonical outcome
	for _, t := range tickers {
		if _, ok := out[t]; !ok {
			o := out[bySymbol[y.symbol(t)]]
			o.Ticker = t
			if o.Quote != nil {
				q := *o.Quote
				q.Ticker = t
				o.Quote = &q
			}
			out[t] = o
		}
	}
	return out
}

// FetchHistory returns closes for interval/range, oldest first. Null bars
// are skipped.
func (y *Yahoo) FetchHistory(ctx context.Context, t models.Ticker, interval, rng string) models.FetchOutcome {
	if !t.Valid() {
		return models.Failure(t, models.KindHistory, models.ReasonInvalidTicker, "malformed ticker")
	}
	if !util.ValidInterval(interval) || !util.ValidRange(rng) {
		return models.Failure(t, models.KindHistory, models.ReasonNoData, fmt.Sprintf("unsupported interval/range %s/%s", interval, rng))
	}

	var resp chartResponse
	err := y.call(ctx, "history", y.chartURL(t), map[string][]string{
		"interval": {interval},
		"range":    {rng},
	}, &resp)
	if err == nil && resp.Chart.Error != nil {
		err = resp.Chart.Error
	}
	if err != nil {
		return y.fail(t, models.KindHistory, err)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return models.Failure(t, models.KindHistory, models.ReasonNoData, errNoData.Error())
	}

	r := resp.Chart.Result[0]
	q := r.Indicators.Quote[0]
	currency, div := normalizeCurrency(r.Meta.Currency, y.currency)
	points := make([]models.Point, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil || *q.Close[i] <= 0 {
			continue
		}
		p := models.Point{Time: time.Unix(ts, 0).UTC(), Close: *q.Close[i] / div}
		if i < len(q.Volume) && q.Volume[i] != nil {
			p.Volume = *q.Volume[i]
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return models.Failure(t, models.KindHistory, models.ReasonNoData, errNoData.Error())
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	return models.SeriesSuccess(models.HistoricalSeries{
		Ticker:   t,
		Interval: interval,
		Range:    rng,
		Currency: currency,
		Points:   points,
	})
}

func (y *Yahoo) chartURL(t models.Ticker) string {
	return y.baseURL + "/v8/finance/chart/" + url.PathEscape(y.symbol(t))
}

func (y *Yahoo) call(ctx context.Context, op, u string, query map[string][]string, dest interface{}) error {
	start := time.Now()
	err := y.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         u,
		QueryParams: query,
	}, dest)
	if y.metrics != nil {
		y.metrics.RecordProviderLatency(op, time.Since(start).Seconds())
	}
	return err
}

func (y *Yahoo) quote(t models.Ticker, price, prev float64, currency string, ts int64) models.FetchOutcome {
	if price <= 0 {
		return models.Failure(t, models.KindQuote, models.ReasonNoData, "no price")
	}
	cur, div := normalizeCurrency(currency, y.currency)
	asOf := y.now().UTC()
	if ts > 0 {
		asOf = time.Unix(ts, 0).UTC()
	}
	q := models.Quote{
		Ticker:   t,
		Price:    price / div,
		Currency: cur,
		AsOf:     asOf,
		Source:   sourceName,
	}
	if prev > 0 {
		q.PreviousClose = prev / div
	}
	return models.QuoteSuccess(q)
}

func (y *Yahoo) fail(t models.Ticker, kind models.DataKind, err error) models.FetchOutcome {
	reason := Classify(err)
	y.log.Debug("provider call failed",
		logger.String("ticker", t.String()),
		logger.String("kind", string(kind)),
		logger.String("reason", string(reason)),
		logger.Error(err),
	)
	return models.Failure(t, kind, reason, err.Error())
}

// Classify maps a provider error to a failure reason.
func Classify(err error) models.FailureReason {
	var (
		se *xhttp.StatusError
		ae *apiError
	)
	switch {
	case err == nil:
		return models.ReasonNone
	case errors.As(err, &se):
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return models.ReasonRateLimited
		case se.StatusCode == http.StatusNotFound:
			return models.ReasonInvalidTicker
		case se.StatusCode >= 500:
			return models.ReasonNetworkError
		case strings.Contains(se.Body, "Not Found"):
			return models.ReasonInvalidTicker
		default:
			return models.ReasonNetworkError
		}
	case errors.As(err, &ae):
		if ae.notFound() {
			return models.ReasonInvalidTicker
		}
		return models.ReasonNoData
	case errors.Is(err, errNoData):
		return models.ReasonNoData
	default:
		// transport failures, timeouts and undecodable bodies
		return models.ReasonNetworkError
	}
}
