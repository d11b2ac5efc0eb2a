package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PortfolioPulse/internal/domain/models"
	xhttp "PortfolioPulse/pkg/http"
)

const chartOK = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","regularMarketPrice":189.5,"regularMarketTime":1717000000,"chartPreviousClose":187.0},
"timestamp":[1716800000,1716713600,1716886400],
"indicators":{"quote":[{"close":[188.0,186.5,null],"volume":[100,200,null]}]}}],"error":null}}`

const chartPence = `{"chart":{"result":[{"meta":{"currency":"GBp","symbol":"VOD.L","regularMarketPrice":7250,"chartPreviousClose":7100},
"timestamp":[1716713600,1716800000],
"indicators":{"quote":[{"close":[7100,7250]}]}}],"error":null}}`

const chartNotFound = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestYahoo(t *testing.T, h http.HandlerFunc) *Yahoo {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewYahoo(WithBaseURL(srv.URL), WithClient(xhttp.NewClient(xhttp.WithTimeout(2*time.Second))))
}

func TestFetchQuote(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(chartOK))
	})
	o := y.FetchQuote(context.Background(), "AAPL")
	if !o.OK() || o.Quote == nil {
		t.Fatalf("expected success, got %+v", o)
	}
	if o.Quote.Price != 189.5 || o.Quote.Currency != "USD" || o.Quote.Source != "yahoo" {
		t.Fatalf("unexpected quote %+v", o.Quote)
	}
	if o.Quote.PreviousClose != 187 {
		t.Fatalf("previous close = %v", o.Quote.PreviousClose)
	}
}

func TestFetchQuoteMinorUnits(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartPence))
	})
	o := y.FetchQuote(context.Background(), "VOD.L")
	if !o.OK() {
		t.Fatalf("expected success, got %+v", o)
	}
	if o.Quote.Currency != "GBP" || o.Quote.Price != 72.5 || o.Quote.PreviousClose != 71 {
		t.Fatalf("pence not converted: %+v", o.Quote)
	}
}

func TestFetchQuoteAlias(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/^GSPC" {
			t.Errorf("alias not applied: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(chartOK))
	})
	o := y.FetchQuote(context.Background(), "SPX")
	if !o.OK() || o.Ticker != "SPX" || o.Quote.Ticker != "SPX" {
		t.Fatalf("outcome should stay keyed by the requested ticker: %+v", o)
	}
}

func TestFetchQuoteClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   models.FailureReason
	}{
		{"rate limited", http.StatusTooManyRequests, "Too Many Requests", models.ReasonRateLimited},
		{"unknown symbol", http.StatusNotFound, chartNotFound, models.ReasonInvalidTicker},
		{"server error", http.StatusBadGateway, "bad gateway", models.ReasonNetworkError},
		{"not found in body", http.StatusOK, chartNotFound, models.ReasonInvalidTicker},
		{"zero price", http.StatusOK, `{"chart":{"result":[{"meta":{"regularMarketPrice":0},"timestamp":[],"indicators":{"quote":[{"close":[]}]}}]}}`, models.ReasonNoData},
		{"empty result", http.StatusOK, `{"chart":{"result":[]}}`, models.ReasonNoData},
		{"garbage", http.StatusOK, `<html>`, models.ReasonNetworkError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			o := y.FetchQuote(context.Background(), "AAPL")
			if o.Status != models.StatusFailure || o.Reason != tc.want {
				t.Fatalf("got %s/%s, want failure/%s", o.Status, o.Reason, tc.want)
			}
		})
	}
}

func TestFetchQuoteTimeout(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(chartOK))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if o := y.FetchQuote(ctx, "AAPL"); o.Reason != models.ReasonNetworkError {
		t.Fatalf("timeout should classify as networkError, got %+v", o)
	}
}

func TestMalformedTickerNeverCallsOut(t *testing.T) {
	called := false
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	o := y.FetchQuote(context.Background(), "not a ticker")
	if o.Reason != models.ReasonInvalidTicker || called {
		t.Fatalf("expected local invalidTicker, got %+v (called=%v)", o, called)
	}
}

func TestFetchQuotesBatch(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v7/finance/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL,MSFT,ZZZZ" {
			t.Errorf("symbols = %q", got)
		}
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"AAPL","currency":"USD","regularMarketPrice":190,"regularMarketPreviousClose":188},
			{"symbol":"MSFT","currency":"USD","regularMarketPrice":410}
		],"error":null}}`))
	})
	out := y.FetchQuotesBatch(context.Background(), []models.Ticker{"AAPL", "MSFT", "ZZZZ"})
	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
	if !out["AAPL"].OK() || out["AAPL"].Quote.Price != 190 || !out["AAPL"].Batched {
		t.Fatalf("unexpected AAPL %+v", out["AAPL"])
	}
	z := out["ZZZZ"]
	if z.Status != models.StatusFailure || z.Reason != models.ReasonNoData || !z.Batched {
		t.Fatalf("missing symbol should be a batched noData failure: %+v", z)
	}
}

func TestFetchQuotesBatchWholeFailure(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	out := y.FetchQuotesBatch(context.Background(), []models.Ticker{"AAPL", "MSFT"})
	for _, tk := range []models.Ticker{"AAPL", "MSFT"} {
		if o := out[tk]; o.Reason != models.ReasonRateLimited || !o.Batched {
			t.Fatalf("%s: expected batched rateLimited, got %+v", tk, o)
		}
	}
}

func TestFetchHistory(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("interval") != "1d" || q.Get("range") != "6mo" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(chartOK))
	})
	o := y.FetchHistory(context.Background(), "AAPL", "1d", "6mo")
	if !o.OK() || o.Series == nil {
		t.Fatalf("expected success, got %+v", o)
	}
	s := o.Series
	if s.Len() != 2 {
		t.Fatalf("null bar should be skipped, got %d points", s.Len())
	}
	if !s.Points[0].Time.Before(s.Points[1].Time) || s.Points[0].Close != 186.5 {
		t.Fatalf("points not sorted ascending: %+v", s.Points)
	}
	if s.Interval != "1d" || s.Range != "6mo" || s.Currency != "USD" {
		t.Fatalf("unexpected series header %+v", s)
	}
}

func TestFetchHistoryUnsupportedInterval(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not call out")
	})
	o := y.FetchHistory(context.Background(), "AAPL", "7h", "6mo")
	if o.Status != models.StatusFailure || !strings.Contains(o.Detail, "unsupported") {
		t.Fatalf("unexpected outcome %+v", o)
	}
}
