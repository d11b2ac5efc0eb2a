package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/services/catalog"
)

type stubAnalyzer struct {
	got models.AnalysisRequest
}

func (s *stubAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest) (*models.AnalysisRun, error) {
	s.got = req
	t := req.Positions[0].Ticker
	return &models.AnalysisRun{
		ID:        "run-42",
		Benchmark: "^GSPC",
		Metrics: models.MetricSet{
			Order:       []models.Ticker{t},
			PerPosition: map[models.Ticker]models.PositionMetrics{t: {Ticker: t, PL: models.Some(150)}},
		},
		Quotes: map[models.Ticker]models.FetchOutcome{
			t: models.QuoteSuccess(models.Quote{Ticker: t, Price: 115}),
		},
		History: map[models.Ticker]models.FetchOutcome{
			t: models.SeriesSuccess(models.HistoricalSeries{Ticker: t, Points: []models.Point{{Close: 1}}}),
		},
	}, nil
}

type stubFetcher struct {
	window [2]string
}

func (s *stubFetcher) FetchQuotes(_ context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome {
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	for _, t := range tickers {
		if t == "ZZZZ" {
			out[t] = models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "not found")
			continue
		}
		out[t] = models.QuoteSuccess(models.Quote{Ticker: t, Price: 10})
	}
	return out
}

func (s *stubFetcher) FetchHistories(_ context.Context, tickers []models.Ticker, interval, rng string) map[models.Ticker]models.FetchOutcome {
	s.window = [2]string{interval, rng}
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	for _, t := range tickers {
		if t == "ZZZZ" {
			out[t] = models.Failure(t, models.KindHistory, models.ReasonInvalidTicker, "not found")
			continue
		}
		out[t] = models.SeriesSuccess(models.HistoricalSeries{Ticker: t, Interval: interval, Range: rng})
	}
	return out
}

type stubRecorder struct{}

func (stubRecorder) Record(context.Context, *models.AnalysisRun) error { return nil }
func (stubRecorder) Recent(_ context.Context, limit int) ([]domrepo.RunSummary, error) {
	return []domrepo.RunSummary{{ID: "run-1", Tags: []string{"overbought"}}}, nil
}
func (stubRecorder) Close() error { return nil }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(a PortfolioAnalyzer, f *stubFetcher) *echo.Echo {
	e := echo.New()
	h := NewPortfolioEchoHandler(nil, a, f, stubRecorder{})
	h.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	h.RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestAnalyzeEndpoint(t *testing.T) {
	a := &stubAnalyzer{}
	e := newTestServer(a, &stubFetcher{})

	body := `{"positions":[{"ticker":"aapl","quantity":10,"cost_basis":100,"asset_type":"ETF","purchase_date":"2024-01-02"}],"interval":"1wk"}`
	rec, env := do(t, e, http.MethodPost, "/api/v1/portfolio/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	p := a.got.Positions[0]
	if p.Ticker != "AAPL" || p.AssetType != models.AssetETF || p.PurchaseDate.IsZero() || a.got.Interval != "1wk" {
		t.Fatalf("request not normalized: %+v", a.got)
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.RunID != "run-42" || len(resp.Outcomes) != 1 || resp.Outcomes[0].Quote == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.History) != 1 || resp.History[0].Series != nil {
		t.Fatalf("history series should be stripped: %+v", resp.History)
	}
	if resp.Recommendations == nil || resp.Rebalancing == nil {
		t.Fatalf("lists must be non-null")
	}
}

func TestAnalyzeValidation(t *testing.T) {
	e := newTestServer(&stubAnalyzer{}, &stubFetcher{})
	cases := []struct {
		name string
		body string
	}{
		{"no positions", `{"positions":[]}`},
		{"bad ticker", `{"positions":[{"ticker":"not a ticker","quantity":1,"cost_basis":1}]}`},
		{"zero quantity", `{"positions":[{"ticker":"AAPL","quantity":0,"cost_basis":1}]}`},
		{"bad interval", `{"positions":[{"ticker":"AAPL","quantity":1,"cost_basis":1}],"interval":"7d"}`},
		{"malformed json", `{"positions":`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec, _ := do(t, e, http.MethodPost, "/api/v1/portfolio/analyze", c.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rec.Code)
			}
		})
	}
}

func TestQuotesEndpoint(t *testing.T) {
	e := newTestServer(&stubAnalyzer{}, &stubFetcher{})
	rec, env := do(t, e, http.MethodGet, "/api/v1/quotes?tickers=aapl,ZZZZ,bad%20one", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var out map[string]models.FetchOutcome
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["AAPL"].Status != models.StatusSuccess {
		t.Fatalf("AAPL: %+v", out["AAPL"])
	}
	if out["ZZZZ"].Reason != models.ReasonInvalidTicker || out["bad one"].Reason != models.ReasonInvalidTicker {
		t.Fatalf("invalid tickers not reported: %+v", out)
	}

	rec, _ = do(t, e, http.MethodGet, "/api/v1/quotes", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing tickers: status %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := &stubFetcher{}
	e := newTestServer(&stubAnalyzer{}, f)

	rec, _ := do(t, e, http.MethodGet, "/api/v1/history/msft", "")
	if rec.Code != http.StatusOK || f.window != [2]string{"1d", "6mo"} {
		t.Fatalf("status %d window %v", rec.Code, f.window)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/v1/history/MSFT?interval=1wk&range=1y", "")
	if rec.Code != http.StatusOK || f.window != [2]string{"1wk", "1y"} {
		t.Fatalf("status %d window %v", rec.Code, f.window)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/v1/history/ZZZZ", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown ticker: status %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/v1/history/MSFT?range=forever", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad range: status %d", rec.Code)
	}
}

func TestMarketStatusAndRuns(t *testing.T) {
	e := newTestServer(&stubAnalyzer{}, &stubFetcher{})
	_, env := do(t, e, http.MethodGet, "/api/v1/market/status", "")
	var st struct {
		Open bool `json:"open"`
	}
	if err := json.Unmarshal(env.Data, &st); err != nil || !st.Open {
		t.Fatalf("expected market open at 11:00 New York: %s", env.Data)
	}

	rec, env := do(t, e, http.MethodGet, "/api/v1/runs?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), "run-1") {
		t.Fatalf("runs: %d %s", rec.Code, env.Data)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/v1/runs?limit=500", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=500: status %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		archiveErr error
		wantCode   int
		wantStatus string
		wantCheck  string
	}{
		{"healthy", nil, http.StatusOK, "ok", "ok"},
		{"archive down", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "degraded", "dial tcp: connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			h := NewPortfolioEchoHandler(nil, &stubAnalyzer{}, &stubFetcher{}, stubRecorder{},
				WithHealthCheck("archive", func(context.Context) error { return tc.archiveErr }),
				WithHealthCheck("redis", func(context.Context) error { return nil }),
				WithHealthCheck("unused", nil),
			)
			h.RegisterRoutes(e)

			rec, env := do(t, e, http.MethodGet, "/api/v1/health", "")
			if rec.Code != tc.wantCode || env.Status != tc.wantCode {
				t.Fatalf("code = %d / %d, want %d", rec.Code, env.Status, tc.wantCode)
			}
			var got HealthResponse
			if err := json.Unmarshal(env.Data, &got); err != nil {
				t.Fatalf("decode health: %v", err)
			}
			if got.Status != tc.wantStatus || got.Checks["archive"] != tc.wantCheck || got.Checks["redis"] != "ok" {
				t.Fatalf("unexpected health %+v", got)
			}
			if _, ok := got.Checks["unused"]; ok {
				t.Fatal("nil checks must not be registered")
			}
		})
	}
}

type failingRecorder struct{ stubRecorder }

func (failingRecorder) Recent(context.Context, int) ([]domrepo.RunSummary, error) {
	return nil, errors.New("database is locked")
}

func TestClientErrorCodes(t *testing.T) {
	e := echo.New()
	NewPortfolioEchoHandler(nil, &stubAnalyzer{}, &stubFetcher{}, failingRecorder{}).RegisterRoutes(e)

	many := strings.TrimSuffix(strings.Repeat("T,", maxQuoteTickers+1), ",")
	cases := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"too many tickers", "/api/v1/quotes?tickers=" + many, http.StatusBadRequest, "ERR_LIMIT_EXCEEDED"},
		{"recorder down", "/api/v1/runs", http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodGet, tc.path, "")
			if rec.Code != tc.wantCode {
				t.Fatalf("status %d, want %d", rec.Code, tc.wantCode)
			}
			var errs []struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 {
				t.Fatalf("decode %s: %v", env.Data, err)
			}
			if errs[0].Code != tc.wantErr {
				t.Fatalf("code = %s, want %s", errs[0].Code, tc.wantErr)
			}
			if strings.Contains(string(env.Data), "database is locked") {
				t.Fatalf("cause leaked to client: %s", env.Data)
			}
		})
	}
}

func newCatalogServer(t *testing.T, a PortfolioAnalyzer) *echo.Echo {
	t.Helper()
	c, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := echo.New()
	NewPortfolioEchoHandler(nil, a, &stubFetcher{}, stubRecorder{}, WithCatalog(c)).RegisterRoutes(e)
	return e
}

func TestAssetsEndpoint(t *testing.T) {
	e := newCatalogServer(t, &stubAnalyzer{})
	cases := []struct {
		path     string
		wantCode int
		first    models.Ticker
		size     int
	}{
		{"/api/v1/assets?q=bnd", http.StatusOK, "BND", 1},
		{"/api/v1/assets?q=v&limit=2", http.StatusOK, "V", 2},
		{"/api/v1/assets?q=zzzz", http.StatusOK, "", 0},
		{"/api/v1/assets", http.StatusBadRequest, "", 0},
		{"/api/v1/assets?q=a&limit=500", http.StatusBadRequest, "", 0},
	}
	for _, tc := range cases {
		rec, env := do(t, e, http.MethodGet, tc.path, "")
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: status %d", tc.path, rec.Code)
		}
		if tc.wantCode != http.StatusOK {
			continue
		}
		var got []catalog.Asset
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("%s: decode %s: %v", tc.path, env.Data, err)
		}
		if len(got) != tc.size || (tc.size > 0 && got[0].Ticker != tc.first) {
			t.Fatalf("%s: got %+v", tc.path, got)
		}
	}
}

func TestBlankAssetTypeFromCatalog(t *testing.T) {
	a := &stubAnalyzer{}
	e := newCatalogServer(t, a)

	body := `{"positions":[{"ticker":"bnd","quantity":1},{"ticker":"btc-usd","quantity":1},{"ticker":"spy","quantity":1,"asset_type":"stock"},{"ticker":"ZZZZ","quantity":1}]}`
	if rec, _ := do(t, e, http.MethodPost, "/api/v1/portfolio/analyze", body); rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	want := []models.AssetType{models.AssetBond, models.AssetCrypto, models.AssetStock, models.AssetStock}
	for i, p := range a.got.Positions {
		if p.AssetType != want[i] {
			t.Fatalf("%s: asset type %s, want %s", p.Ticker, p.AssetType, want[i])
		}
	}
}
