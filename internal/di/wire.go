//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Shared state
		ProvideTickCache,
		ProvideRegistry,
		ProvideBroker,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideTickStore,
		ProvideTickSink,
		ProvideResultCache,
		ProvideCryptoREST,

		// Forecast pipeline
		ProvideHistories,
		ProvideModelRunners,
		ProvideForecastDispatcher,
		ProvideSentimentAggregator,

		// Streaming and transport
		ProvideManagers,
		ProvideHub,
		ProvideRouter,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
