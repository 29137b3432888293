//go:build wireinject
// +build wireinject

package di

import (
	"StockIt/pkg/config"
	"StockIt/pkg/server"

	"github.com/google/wire"
)

var coreSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,

	// Market data
	ProvideRedisCache,
	ProvideCache,
	ProvidePolygonClient,
	ProvideBarSource,
	ProvideBlueChipService,

	// Scanning
	ProvideScanner,
	ProvideBulkScanner,

	// Persistence
	ProvideClickHouseClient,
	ProvideScanArchive,
	ProvideKafkaProducer,
	ProvideKafkaPublisher,
	ProvideUpdateProcessor,
)

// InitializeApp wires the long-running service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,

		// Live tracking
		ProvideStreamDialer,
		ProvideSubscriptionManager,
		ProvidePipeline,
		ProvideOpportunityFeed,

		ProvideForecaster,
		ProvideForecastUseCase,

		// Jobs
		ProvideScanJob,
		ProvideJobQueue,
		ProvideScheduler,
		ProvideJobs,
		ProvideArchiver,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeCLI wires only what the one-shot commands use.
func InitializeCLI(cfg *config.Config) (*CLI, func(), error) {
	wire.Build(coreSet, ProvideCLI)
	return nil, nil, nil
}
