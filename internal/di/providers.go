package di

import (
	"context"
	"fmt"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/handler/api"
	mid "PortfolioPulse/internal/middleware"
	internalrepo "PortfolioPulse/internal/repository"
	"PortfolioPulse/internal/scheduler"
	icache "PortfolioPulse/internal/service/cache"
	"PortfolioPulse/internal/service/finnhub"
	"PortfolioPulse/internal/service/provider"
	"PortfolioPulse/internal/service/ratelimit"
	"PortfolioPulse/internal/services/analytics"
	"PortfolioPulse/internal/services/catalog"
	"PortfolioPulse/internal/services/recommend"
	"PortfolioPulse/internal/usecase"
	pkgcache "PortfolioPulse/pkg/cache"
	pkgch "PortfolioPulse/pkg/clickhouse"
	"PortfolioPulse/pkg/config"
	xhttp "PortfolioPulse/pkg/http"
	pkgkafka "PortfolioPulse/pkg/kafka"
	applogger "PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/metrics"
	"PortfolioPulse/pkg/server"
)

const initTimeout = 10 * time.Second

// Engine is the engine graph without any long-running intake, used by the
// operator CLI.
type Engine struct {
	Log      *applogger.Logger
	Fetcher  *usecase.Fetcher
	Analyzer *usecase.Analyzer
	Recorder repository.RunRecorder
}

// ProvideLogger builds the app logger. When a collect topic is configured
// and Kafka is up, error digests are shipped through the producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Log.CollectTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Service:      "portfolio-pulse/" + cfg.Environment,
			TimeInterval: cfg.Log.CollectEvery,
			Topic:        cfg.Log.CollectTopic,
			Publisher:    producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvidePriceCache creates the shared price cache, backed by Redis when
// available.
func ProvidePriceCache(cfg *config.Config, rc *pkgcache.RedisCache, m repository.Metrics, l *applogger.Logger) repository.PriceCache {
	opts := []icache.Option{
		icache.WithMaxEntries(cfg.Engine.CacheCapacity),
		icache.WithShards(cfg.Engine.CacheShards),
		icache.WithMetrics(m),
		icache.WithLogger(l),
	}
	if rc != nil {
		opts = append(opts, icache.WithBackend(icache.NewRedisBackend(rc, cfg.Redis.Retention)))
	}
	return icache.NewPriceCache(opts...)
}

// ProvideProvider creates the chart API adapter.
func ProvideProvider(cfg *config.Config, m repository.Metrics, l *applogger.Logger) repository.Provider {
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Engine.RequestTimeout),
		xhttp.WithUserAgent(cfg.Provider.UserAgent),
	)
	return provider.NewYahoo(
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithClient(client),
		provider.WithDisplayCurrency(cfg.Engine.DisplayCurrency),
		provider.WithAliases(cfg.Provider.Aliases),
		provider.WithMetrics(m),
		provider.WithLogger(l),
	)
}

// ProvideFetcher creates the cache-first fetcher.
func ProvideFetcher(
	cfg *config.Config,
	p repository.Provider,
	c repository.PriceCache,
	archive repository.HistoryArchive,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.Fetcher, error) {
	opts := []usecase.FetcherOption{
		usecase.WithCacheTTL(cfg.CacheTTL()),
		usecase.WithMaxBatchSize(cfg.Engine.MaxBatchSize),
		usecase.WithMaxRetries(cfg.Engine.MaxRetries),
		usecase.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
		usecase.WithRequestTimeout(cfg.Engine.RequestTimeout),
		usecase.WithBackoff(cfg.Engine.BackoffBase, cfg.Engine.BackoffCap),
		usecase.WithRateLimit(ratelimit.New(), cfg.Engine.RateLimitPerSec, cfg.Engine.RateLimitBurst),
		usecase.WithFetcherMetrics(m),
		usecase.WithFetcherLogger(l),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchiveFallback(archive))
	}
	return usecase.NewFetcher(p, c, opts...)
}

// ProvideAnalyticsEngine creates the metrics engine.
func ProvideAnalyticsEngine(cfg *config.Config) *analytics.Engine {
	return analytics.NewEngine(
		analytics.WithRSIPeriod(cfg.Engine.RSIPeriod),
		analytics.WithVaRConfidence(cfg.Engine.VaRConfidence),
	)
}

// ProvideAdvisor creates the recommendation engine.
func ProvideAdvisor(cfg *config.Config) *recommend.Engine {
	targets := make(map[models.AssetType]float64, len(cfg.Engine.TargetAllocation))
	for k, v := range cfg.Engine.TargetAllocation {
		targets[models.AssetType(k)] = v
	}
	return recommend.NewEngine(
		recommend.WithCurrency(cfg.Engine.DisplayCurrency),
		recommend.WithTargets(targets),
	)
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRunPublisher publishes runs to Kafka, or drops them.
func ProvideRunPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RunPublisher {
	if producer == nil {
		return internalrepo.NoopRunPublisher{}
	}
	return internalrepo.NewKafkaRunPublisher(producer, cfg.Kafka.RunsTopic)
}

// ProvideClickHouseClient connects to ClickHouse when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithEndpoint(cfg.ClickHouse.Host, cfg.ClickHouse.Port, cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithQueryLimits(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryArchive creates the series archive and its table. Nil when
// ClickHouse is disabled.
func ProvideHistoryArchive(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.HistoryArchive, error) {
	if ch == nil {
		return nil, nil
	}
	archive := internalrepo.NewCHHistoryArchive(ch, cfg.ClickHouse.Table, l)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, fmt.Errorf("history archive: %w", err)
	}
	return archive, nil
}

// ProvideRunRecorder opens the SQLite run log, or a no-op without a path.
func ProvideRunRecorder(cfg *config.Config, l *applogger.Logger) (repository.RunRecorder, error) {
	if cfg.Recorder.Path == "" {
		return internalrepo.NoopRunRecorder{}, nil
	}
	r, err := internalrepo.NewSQLiteRunRecorder(cfg.Recorder.Path, l)
	if err != nil {
		return nil, fmt.Errorf("run recorder: %w", err)
	}
	return r, nil
}

// ProvideAnalyzer creates the analysis use case.
func ProvideAnalyzer(
	cfg *config.Config,
	fetcher *usecase.Fetcher,
	engine *analytics.Engine,
	advisor *recommend.Engine,
	archive repository.HistoryArchive,
	publisher repository.RunPublisher,
	recorder repository.RunRecorder,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Analyzer {
	opts := []usecase.AnalyzerOption{
		usecase.WithPublisher(publisher),
		usecase.WithRecorder(recorder),
		usecase.WithAnalyzerMetrics(m),
		usecase.WithAnalyzerLogger(l),
		usecase.WithHistoryDefaults(models.Ticker(cfg.Engine.Benchmark), cfg.Engine.Interval, cfg.Engine.Range),
		usecase.WithRiskFreeRate(cfg.Engine.RiskFreeRate),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	return usecase.NewAnalyzer(fetcher, engine, advisor, opts...)
}

// ProvideCatalog loads the embedded asset catalog.
func ProvideCatalog() (*catalog.Catalog, error) {
	return catalog.New()
}

// ProvideHTTPHandler creates the REST API handler with dependency health
// checks for whichever stores are enabled.
func ProvideHTTPHandler(
	l *applogger.Logger,
	analyzer *usecase.Analyzer,
	fetcher *usecase.Fetcher,
	recorder repository.RunRecorder,
	archive repository.HistoryArchive,
	rc *pkgcache.RedisCache,
	assets *catalog.Catalog,
) xhttp.Handler {
	opts := []api.HandlerOption{api.WithCatalog(assets)}
	if archive != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", archive.Health))
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", rc.Ping))
	}
	return api.NewPortfolioEchoHandler(l, analyzer, fetcher, recorder, opts...)
}

// ProvideKafkaConsumer creates the refresh-request consumer when Kafka is
// enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RefreshTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Log: l, Slow: cfg.Server.SlowThreshold})
	return consumer, nil
}

// ProvideRefreshHandler handles refresh requests from the refresh topic.
func ProvideRefreshHandler(cfg *config.Config, fetcher *usecase.Fetcher, m repository.Metrics, l *applogger.Logger) *usecase.RefreshHandler {
	return usecase.NewRefreshHandler(cfg.Kafka.RefreshTopic, fetcher, m, l)
}

// ProvideScheduler creates the watchlist warm-up scheduler when enabled.
func ProvideScheduler(cfg *config.Config, fetcher *usecase.Fetcher, m repository.Metrics, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}
	watchlist, invalid := models.ParseTickers(cfg.Schedule.Watchlist)
	if len(invalid) > 0 {
		return nil, fmt.Errorf("schedule.watchlist: malformed tickers %v", invalid)
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	s := scheduler.New(fetcher, watchlist,
		scheduler.WithLocation(loc),
		scheduler.WithBenchmark(models.Ticker(cfg.Engine.Benchmark)),
		scheduler.WithHistoryWindow(cfg.Engine.Interval, cfg.Engine.Range),
		scheduler.WithMarketHoursOnly(true),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(l),
	)
	if err := s.Register(cfg.Schedule.QuoteCron, cfg.Schedule.HistoryCron); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideTradeCollector streams Finnhub trades into the price cache when
// enabled.
func ProvideTradeCollector(cfg *config.Config, c repository.PriceCache, m repository.Metrics, l *applogger.Logger) (*usecase.TradeCollector, error) {
	if !cfg.Finnhub.Enabled {
		return nil, nil
	}
	stream, err := finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, cfg.Finnhub.Symbols,
		finnhub.WithReconnectDelay(cfg.Finnhub.ReconnectDelay),
		finnhub.WithPingInterval(cfg.Finnhub.PingInterval),
		finnhub.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("finnhub stream: %w", err)
	}
	proc := usecase.NewTradeProcessor(c, m, cfg.Engine.DisplayCurrency)
	pipe := mid.NewRealtimePipeline(proc, m, mid.WithMaxRPS(cfg.Finnhub.MaxRPS))
	return usecase.NewTradeCollector(stream, pipe, m, l), nil
}

// ProvideEngine assembles the CLI graph.
func ProvideEngine(l *applogger.Logger, fetcher *usecase.Fetcher, analyzer *usecase.Analyzer, recorder repository.RunRecorder) *Engine {
	return &Engine{Log: l, Fetcher: fetcher, Analyzer: analyzer, Recorder: recorder}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.RefreshHandler,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
	rc *pkgcache.RedisCache,
	ch *pkgch.Client,
	archive repository.HistoryArchive,
	recorder repository.RunRecorder,
) *server.App {
	// closers run in reverse, so register dependencies before their users
	opts := []server.Option{
		server.WithTradeCollector(collector),
		server.WithScheduler(sched),
	}
	if consumer != nil {
		opts = append(opts, server.WithRefreshConsumer(consumer, kh))
	}
	if producer != nil {
		opts = append(opts,
			server.WithCloser("kafka producer", producer),
			server.WithCloser("logger collector", collectorCloser{l}),
		)
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	if archive != nil {
		opts = append(opts, server.WithCloser("history archive", archive))
	}
	opts = append(opts, server.WithCloser("run recorder", recorder))
	return server.New(cfg, l, handler, opts...)
}

// collectorCloser flushes the logger's digest collector before the producer
// it publishes through is closed.
type collectorCloser struct{ l *applogger.Logger }

func (c collectorCloser) Close() error {
	c.l.RemoveCollector()
	return nil
}
