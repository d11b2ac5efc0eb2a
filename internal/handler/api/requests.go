package api

import (
	"strings"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/pkg/util"
)

// PositionInput is one holding in an analyze request.
type PositionInput struct {
	Ticker       string  `json:"ticker" validate:"required,ticker"`
	Quantity     float64 `json:"quantity" validate:"gt=0"`
	CostBasis    float64 `json:"cost_basis"`
	AssetType    string  `json:"asset_type"`
	PurchaseDate string  `json:"purchase_date,omitempty"`
}

// AnalyzeRequest is the body of POST /api/v1/portfolio/analyze.
type AnalyzeRequest struct {
	Positions []PositionInput `json:"positions" validate:"required,min=1,max=500,dive"`
	Benchmark string          `json:"benchmark" validate:"omitempty,ticker"`
	Interval  string          `json:"interval" validate:"omitempty,oneof=1m 2m 5m 15m 30m 60m 90m 1h 1d 5d 1wk 1mo 3mo"`
	Range     string          `json:"range" validate:"omitempty,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
}

type assetTyper interface {
	TypeOf(t models.Ticker) (models.AssetType, bool)
}

// toDomain normalizes tickers and asset types. Validation has already
// guaranteed every ticker is well formed. A blank asset type comes from
// types when it knows the ticker and defaults to stock otherwise.
func (r AnalyzeRequest) toDomain(types assetTyper) models.AnalysisRequest {
	out := models.AnalysisRequest{
		Positions: make([]models.Position, 0, len(r.Positions)),
		Interval:  r.Interval,
		Range:     r.Range,
	}
	if r.Benchmark != "" {
		out.Benchmark = models.MustTicker(r.Benchmark)
	}
	for _, p := range r.Positions {
		t := models.MustTicker(p.Ticker)
		asset := models.AssetStock
		if strings.TrimSpace(p.AssetType) != "" {
			asset = models.NormalizeAssetType(p.AssetType)
		} else if types != nil {
			if known, ok := types.TypeOf(t); ok {
				asset = known
			}
		}
		pos := models.Position{
			Ticker:    t,
			Quantity:  p.Quantity,
			CostBasis: p.CostBasis,
			AssetType: asset,
		}
		if ts, ok := util.ParseTime(p.PurchaseDate); ok {
			pos.PurchaseDate = ts
		}
		out.Positions = append(out.Positions, pos)
	}
	return out
}

// QuotesRequest binds GET /api/v1/quotes.
type QuotesRequest struct {
	Tickers string `query:"tickers" validate:"required"`
}

// HistoryRequest binds GET /api/v1/history/:ticker.
type HistoryRequest struct {
	Ticker   string `param:"ticker" validate:"required,ticker"`
	Interval string `query:"interval" default:"1d" validate:"oneof=1m 2m 5m 15m 30m 60m 90m 1h 1d 5d 1wk 1mo 3mo"`
	Range    string `query:"range" default:"6mo" validate:"oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
}

// RunsRequest binds GET /api/v1/runs.
type RunsRequest struct {
	Limit int `query:"limit" default:"20" validate:"min=1,max=200"`
}

// AssetsRequest binds GET /api/v1/assets.
type AssetsRequest struct {
	Query string `query:"q" validate:"required,max=32"`
	Limit int    `query:"limit" default:"20" validate:"min=1,max=50"`
}

// AnalyzeResponse is the analyze payload.
type AnalyzeResponse struct {
	RunID           string                       `json:"run_id"`
	StartedAt       time.Time                    `json:"started_at"`
	DurationMs      int64                        `json:"duration_ms"`
	Benchmark       models.Ticker                `json:"benchmark"`
	Metrics         models.MetricSet             `json:"metrics"`
	Recommendations []models.Recommendation      `json:"recommendations"`
	Rebalancing     []models.RebalanceSuggestion `json:"rebalancing"`
	Outcomes        []models.FetchOutcome        `json:"outcomes"`
	History         []models.FetchOutcome        `json:"history"`
}

// HealthResponse reports each dependency check by name.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
