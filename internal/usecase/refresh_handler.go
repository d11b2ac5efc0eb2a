package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/domain/service"
	pkgkafka "PortfolioPulse/pkg/kafka"
	"PortfolioPulse/pkg/logger"
)

// RefreshRequest asks the engine to re-fetch tickers, typically sent by a
// dashboard's refresh button.
type RefreshRequest struct {
	Tickers  []string        `json:"tickers"`
	Kind     models.DataKind `json:"kind"`
	Interval string          `json:"interval,omitempty"`
	Range    string          `json:"range,omitempty"`
}

// RefreshHandler consumes refresh requests and runs them through the fetcher,
// which warms the cache for the next read.
type RefreshHandler struct {
	topic   string
	fetcher service.QuoteFetcher
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewRefreshHandler(topic string, fetcher service.QuoteFetcher, metrics drepo.Metrics, log *logger.Logger) *RefreshHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshHandler{topic: topic, fetcher: fetcher, metrics: metrics, log: log}
}

var _ pkgkafka.MessageHandler = (*RefreshHandler)(nil)

func (h *RefreshHandler) Topic() string { return h.topic }

// Handle returns an error only for undecodable requests; fetch failures are
// outcomes and are logged.
func (h *RefreshHandler) Handle(ctx context.Context, b []byte) error {
	var req RefreshRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("refresh_unmarshal")
		return fmt.Errorf("decode refresh request: %w", err)
	}
	tickers, invalid := models.ParseTickers(req.Tickers)
	if len(invalid) > 0 {
		h.log.Warn("refresh request has malformed tickers", logger.Strings("tickers", invalid))
	}
	if len(tickers) == 0 {
		return nil
	}

	var outcomes map[models.Ticker]models.FetchOutcome
	switch req.Kind {
	case models.KindHistory:
		interval, rng := req.Interval, req.Range
		if interval == "" {
			interval = DefaultInterval
		}
		if rng == "" {
			rng = DefaultRange
		}
		outcomes = h.fetcher.FetchHistories(ctx, tickers, interval, rng)
	case models.KindQuote, "":
		outcomes = h.fetcher.FetchQuotes(ctx, tickers)
	default:
		h.recordError("refresh_kind")
		return fmt.Errorf("unknown refresh kind %q", req.Kind)
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Usable() {
			failed++
		}
	}
	h.log.Debug("refresh handled",
		logger.String("kind", string(req.Kind)),
		logger.Int("tickers", len(tickers)),
		logger.Int("failed", failed),
	)
	return nil
}

func (h *RefreshHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
