package usecase

import (
	"context"
	"errors"
	"sync"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	mid "PortfolioPulse/internal/middleware"
	"PortfolioPulse/pkg/logger"
)

// TradeCollector drains a MarketStream into a processor, reconnecting on
// stream errors until its context ends.
type TradeCollector struct {
	stream  drepo.MarketStream
	proc    mid.Proc
	metrics drepo.Metrics
	log     *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTradeCollector wires stream to proc; proc is usually a RealtimePipeline
// in front of a TradeProcessor.
func NewTradeCollector(stream drepo.MarketStream, proc mid.Proc, metrics drepo.Metrics, log *logger.Logger) *TradeCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &TradeCollector{stream: stream, proc: proc, metrics: metrics, log: log}
}

func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects and subscribes, then consumes in the background.
func (c *TradeCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	if err := c.stream.Connect(ctx); err != nil {
		c.cancel()
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		c.cancel()
		_ = c.stream.Close()
		return err
	}
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

func (c *TradeCollector) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.recordError("stream")
		c.log.Warn("market stream dropped, reconnecting", logger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.recordError("stream_reconnect")
			c.log.Error("market stream reconnect failed", logger.Error(rerr))
		}
	}
}

// consume returns when the stream ends, with the error that ended it.
func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			errCh = nil
		case t, ok := <-trCh:
			if !ok {
				return errors.New("stream closed")
			}
			if t == nil {
				continue
			}
			if err := c.proc.Process(ctx, t); err != nil && !errors.Is(err, mid.ErrThrottled) {
				c.log.Debug("trade dropped", logger.String("ticker", t.Ticker.String()), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the consumer loop, closes the stream and waits up to ctx.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *TradeCollector) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}
