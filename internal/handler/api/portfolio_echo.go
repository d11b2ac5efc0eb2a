package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/domain/service"
	apimetrics "PortfolioPulse/internal/service/metrics"
	"PortfolioPulse/internal/services/catalog"
	"PortfolioPulse/internal/usecase"
	xhttp "PortfolioPulse/pkg/http"
	xlogger "PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/util"
)

const (
	maxQuoteTickers = 200
	healthTimeout   = 2 * time.Second
)

// HealthCheck reports whether one backing store answers.
type HealthCheck func(ctx context.Context) error

// PortfolioAnalyzer runs one analysis pass.
type PortfolioAnalyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisRun, error)
}

// PortfolioEchoHandler serves the analytics API.
type PortfolioEchoHandler struct {
	logger   *xlogger.Logger
	analyzer PortfolioAnalyzer
	fetcher  service.QuoteFetcher
	recorder domrepo.RunRecorder
	assets   *catalog.Catalog
	checks   map[string]HealthCheck
	now      func() time.Time
}

// HandlerOption configures PortfolioEchoHandler.
type HandlerOption func(*PortfolioEchoHandler)

// WithHealthCheck adds a named dependency to /api/v1/health. Nil checks are
// ignored.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *PortfolioEchoHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithCatalog enables /api/v1/assets and fills blank asset types of
// analyzed positions from the catalog.
func WithCatalog(c *catalog.Catalog) HandlerOption {
	return func(h *PortfolioEchoHandler) {
		h.assets = c
	}
}

func NewPortfolioEchoHandler(logger *xlogger.Logger, analyzer PortfolioAnalyzer, fetcher service.QuoteFetcher, recorder domrepo.RunRecorder, opts ...HandlerOption) *PortfolioEchoHandler {
	apimetrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &PortfolioEchoHandler{
		logger:   logger,
		analyzer: analyzer,
		fetcher:  fetcher,
		recorder: recorder,
		checks:   make(map[string]HealthCheck),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ xhttp.Handler = (*PortfolioEchoHandler)(nil)

func (h *PortfolioEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/portfolio/analyze", h.Analyze)
	g.GET("/quotes", h.Quotes)
	g.GET("/history/:ticker", h.History)
	g.GET("/market/status", h.MarketStatus)
	g.GET("/runs", h.Runs)
	g.GET("/assets", h.Assets)
	g.GET("/health", h.Health)
}

func (h *PortfolioEchoHandler) Analyze(c echo.Context) error {
	defer apimetrics.ObserveSince("analyze", time.Now())
	req := &AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		apimetrics.APIErrors.WithLabelValues("analyze", "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.analyzer.Analyze(c.Request().Context(), req.toDomain(h.assetTypes()))
	if err != nil {
		apimetrics.APIErrors.WithLabelValues("analyze", "usecase").Inc()
		if errors.Is(err, usecase.ErrNoPositions) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
		}
		h.logger.Error("analyze usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, newAnalyzeResponse(run))
}

func newAnalyzeResponse(run *models.AnalysisRun) AnalyzeResponse {
	quotes := usecase.Ordered(run.Metrics.Order, run.Quotes)
	order := append(append([]models.Ticker{}, run.Metrics.Order...), run.Benchmark)
	history := usecase.Ordered(order, run.History)
	for i := range history {
		history[i].Series = nil
	}
	recs := run.Recommendations
	if recs == nil {
		recs = []models.Recommendation{}
	}
	reb := run.Rebalancing
	if reb == nil {
		reb = []models.RebalanceSuggestion{}
	}
	return AnalyzeResponse{
		RunID:           run.ID,
		StartedAt:       run.StartedAt,
		DurationMs:      run.Duration.Milliseconds(),
		Benchmark:       run.Benchmark,
		Metrics:         run.Metrics,
		Recommendations: recs,
		Rebalancing:     reb,
		Outcomes:        quotes,
		History:         history,
	}
}

// Quotes returns one outcome per requested ticker. Malformed symbols come
// back as invalidTicker failures rather than a 400.
func (h *PortfolioEchoHandler) Quotes(c echo.Context) error {
	defer apimetrics.ObserveSince("quotes", time.Now())
	req := &QuotesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		apimetrics.APIErrors.WithLabelValues("quotes", "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	raw := util.SplitCSV(req.Tickers)
	if len(raw) > maxQuoteTickers {
		apimetrics.APIErrors.WithLabelValues("quotes", "limit").Inc()
		return xhttp.AppErrorResponse(c, xhttp.LimitError("tickers", maxQuoteTickers))
	}

	valid, invalid := models.ParseTickers(raw)
	out := make(map[string]models.FetchOutcome, len(raw))
	if len(valid) > 0 {
		for t, o := range h.fetcher.FetchQuotes(c.Request().Context(), valid) {
			out[t.String()] = o
		}
	}
	for _, s := range invalid {
		out[s] = models.Failure(models.Ticker(s), models.KindQuote, models.ReasonInvalidTicker, "malformed symbol")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, out)
}

func (h *PortfolioEchoHandler) History(c echo.Context) error {
	defer apimetrics.ObserveSince("history", time.Now())
	req := &HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		apimetrics.APIErrors.WithLabelValues("history", "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	t := models.MustTicker(req.Ticker)
	res := h.fetcher.FetchHistories(c.Request().Context(), []models.Ticker{t}, req.Interval, req.Range)
	o, ok := res[t]
	if !ok {
		return xhttp.InternalServerErrorResponse(c)
	}
	if o.Status == models.StatusFailure && o.Reason == models.ReasonInvalidTicker {
		return xhttp.NotFoundResponse(c, o)
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *PortfolioEchoHandler) assetTypes() assetTyper {
	if h.assets == nil {
		return nil
	}
	return h.assets
}

// Assets searches the catalog by ticker or name.
func (h *PortfolioEchoHandler) Assets(c echo.Context) error {
	req := &AssetsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out := []catalog.Asset{}
	if h.assets != nil {
		if hits := h.assets.Search(req.Query, req.Limit); hits != nil {
			out = hits
		}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *PortfolioEchoHandler) MarketStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, util.USMarketStatus(h.now()))
}

// Health checks every registered dependency. Any failure answers 503 with
// the per-dependency results.
func (h *PortfolioEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			apimetrics.APIErrors.WithLabelValues("health", name).Inc()
			h.logger.Warn("dependency unhealthy", xlogger.String("dependency", name), xlogger.Error(err))
			continue
		}
		resp.Checks[name] = "ok"
	}
	if resp.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, resp)
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *PortfolioEchoHandler) Runs(c echo.Context) error {
	req := &RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.recorder == nil {
		return xhttp.DataResponse(c, http.StatusOK, []domrepo.RunSummary{})
	}
	runs, err := h.recorder.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		apimetrics.APIErrors.WithLabelValues("runs", "recorder").Inc()
		h.logger.Error("recent runs error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("run history unavailable").WithError(err))
	}
	if runs == nil {
		runs = []domrepo.RunSummary{}
	}
	return xhttp.SuccessResponse(c, runs)
}
