// Package bootstrap assembles the engine: infrastructure first, then the
// usecases, then the facade, each layer handed the one below it.
package bootstrap

import (
	"github.com/KingCyberX/insiderdept-sub000/internal/app/engine"
	"github.com/KingCyberX/insiderdept-sub000/pkg/config"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

// Bootstrap holds every constructed component.
type Bootstrap struct {
	Logger logger.Interface
	Config *config.Config

	Infrastructure Infrastructure
	Usecase        Usecase
	Engine         *engine.Engine
}

// BootstrapConfig is the input for Init.
type BootstrapConfig struct {
	Logger logger.Interface
	Config *config.Config
}

// Init wires the whole process.
func (b *Bootstrap) Init(cfg BootstrapConfig) Bootstrap {
	b.Logger = cfg.Logger
	b.Config = cfg.Config

	b.registerInfrastructure()
	b.registerUsecase()
	b.registerEngine()

	return *b
}

// registerEngine builds the facade and attaches the feed client to it. The
// feed comes last because its event callbacks belong to the engine.
func (b *Bootstrap) registerEngine() {
	b.Engine = engine.NewEngine(
		b.Usecase.Cache,
		b.Usecase.Filler,
		b.Usecase.Generator,
		b.Usecase.Registry,
		b.Logger,
		engine.Config{
			GapCheckInterval: b.Config.Engine.GapCheckInterval,
			ShutdownTimeout:  b.Config.Engine.ShutdownTimeout,
		},
	)
	b.registerFeed()
	b.Engine.SetFeed(b.Infrastructure.Feed)
}
