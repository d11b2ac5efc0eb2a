package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"PortfolioPulse/internal/scheduler"
	"PortfolioPulse/internal/usecase"
	"PortfolioPulse/pkg/config"
	xhttp "PortfolioPulse/pkg/http"
	pkgkafka "PortfolioPulse/pkg/kafka"
	applogger "PortfolioPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	collector  *usecase.TradeCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	scheduler  *scheduler.Scheduler
	closers    []namedCloser
	httpServer *xhttp.Server
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option attaches an optional component. Nil components are ignored so DI
// can pass through whatever the config disabled.
type Option func(*App)

func WithTradeCollector(c *usecase.TradeCollector) Option {
	return func(a *App) { a.collector = c }
}

func WithRefreshConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) { a.consumer, a.kh = c, h }
}

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithCloser registers a resource closed after every producer of work has
// stopped, in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, handler xhttp.Handler, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{cfg: cfg, log: log, handler: handler}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start brings up background workers first and the HTTP server last.
func (a *App) Start(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return fmt.Errorf("start trade collector: %w", err)
		}
		a.log.Info("trade collector started", applogger.Strings("symbols", a.cfg.Finnhub.Symbols))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start refresh consumer: %w", err)
		}
		a.log.Info("refresh consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath(a.cfg)),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
		xhttp.WithLogger(a.log),
	)
	return a.httpServer.Start()
}

// Shutdown stops intake first, then background workers, then closes
// infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var firstErr error
	keep := func(what string, err error) {
		if err == nil {
			return
		}
		a.log.Warn(what+" stop error", applogger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.httpServer != nil {
		keep("http", a.httpServer.Stop(ctx))
	}
	if a.scheduler != nil {
		keep("scheduler", a.scheduler.Stop(ctx))
	}
	if a.consumer != nil {
		keep("kafka consumer", a.consumer.Stop(ctx))
	}
	if a.collector != nil {
		keep("trade collector", a.collector.Shutdown(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		keep(a.closers[i].name, a.closers[i].c.Close())
	}

	a.log.Info("shutdown complete")
	return firstErr
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}
