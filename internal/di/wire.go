//go:build wireinject
// +build wireinject

package di

import (
	"PortfolioPulse/pkg/config"
	"PortfolioPulse/pkg/server"

	"github.com/google/wire"
)

var engineSet = wire.NewSet(
	// Observability
	ProvideMetrics,
	ProvideLogger,

	// Infrastructure clients
	ProvideKafkaProducer,
	ProvideRedisCache,
	ProvideClickHouseClient,

	// Repositories
	ProvidePriceCache,
	ProvideProvider,
	ProvideRunPublisher,
	ProvideHistoryArchive,
	ProvideRunRecorder,

	// Engines and use cases
	ProvideFetcher,
	ProvideAnalyticsEngine,
	ProvideAdvisor,
	ProvideAnalyzer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		engineSet,

		// Intake
		ProvideCatalog,
		ProvideHTTPHandler,
		ProvideKafkaConsumer,
		ProvideRefreshHandler,
		ProvideScheduler,
		ProvideTradeCollector,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeEngine wires the engine without HTTP, Kafka intake or schedules.
func InitializeEngine(cfg *config.Config) (*Engine, error) {
	wire.Build(engineSet, ProvideEngine)
	return &Engine{}, nil
}
