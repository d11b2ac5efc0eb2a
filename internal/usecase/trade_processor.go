package usecase

import (
	"context"
	"fmt"
	"time"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
)

// StreamSource tags quotes written from the live stream.
const StreamSource = "finnhub"

// TradeProcessor turns live prints into cached quotes so the next fetch is a
// fresh cache hit. Prints older than the cached quote are ignored.
type TradeProcessor struct {
	cache    drepo.PriceCache
	metrics  drepo.Metrics
	currency string
	now      func() time.Time
}

func NewTradeProcessor(cache drepo.PriceCache, metrics drepo.Metrics, currency string) *TradeProcessor {
	if currency == "" {
		currency = "USD"
	}
	return &TradeProcessor{cache: cache, metrics: metrics, currency: currency, now: time.Now}
}

func (p *TradeProcessor) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	key := models.QuoteKey(t.Ticker)
	if e, ok := p.cache.Get(ctx, key); ok && e.Value.Quote != nil && e.Value.Quote.AsOf.After(t.Timestamp) {
		return nil
	}
	q := t.AsQuote(p.currency, StreamSource)
	p.cache.Put(ctx, key, models.CachedValue{Quote: &q}, p.now())
	if p.metrics != nil {
		p.metrics.RecordLastPrice(t.Ticker.String(), t.Price)
		p.metrics.RecordCache("stream_put")
	}
	return nil
}
