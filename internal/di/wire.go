//go:build wireinject
// +build wireinject

package di

import (
	"FinansLab/pkg/config"
	"FinansLab/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideSignalStore,
		ProvideSignalPublisher,
		ProvideMarketData,
		ProvideMarketStream,

		// Detectors and engine components
		ProvideIndicatorConfig,
		ProvideBiasDetector,
		ProvideFVGDetector,
		ProvideScalpDetector,
		ProvideScorer,
		ProvideRiskPlanner,
		ProvideScheduler,
		ProvideTracker,
		ProvideNotifier,

		// Use cases
		ProvideScanner,
		ProvideTickCollector,
		ProvideKafkaBarsHandler,
		ProvideSignalQuery,

		// HTTP
		ProvideAPIHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
