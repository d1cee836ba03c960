//go:build wireinject
// +build wireinject

package di

import (
	"ChainWatch/pkg/config"
	"ChainWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,

		// Repositories
		ProvideSnapshotStore,
		ProvideAnomalyStore,
		ProvideRunStore,
		ProvideBaselines,
		ProvidePublisher,
		ProvideTickerSource,

		// Collection
		ProvideGateway,
		ProvideCollector,

		// Detection
		ProvideDetector,
		ProvideScorer,
		ProvideAssembler,

		// Use cases and surface
		ProvidePipeline,
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
