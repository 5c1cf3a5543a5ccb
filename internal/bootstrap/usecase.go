package bootstrap

import (
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/cache"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/dispatch"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/gapfill"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/synthetic"
)

// Usecase collects the domain logic components.
type Usecase struct {
	Filler    *gapfill.Filler
	Cache     *cache.Cache
	Generator *synthetic.Generator
	Registry  *dispatch.Registry
}

// registerUsecase builds filler, cache, generator and registry, in
// dependency order.
func (b *Bootstrap) registerUsecase() {
	b.Usecase.Filler = gapfill.NewFiller(b.Infrastructure.History, b.Logger, gapfill.Config{
		Threshold:        b.Config.Gap.Threshold,
		BackfillBuffer:   b.Config.Gap.BackfillBuffer,
		StructuralWindow: b.Config.Gap.StructuralWindow,
	})

	b.Usecase.Cache = cache.NewCache(b.Infrastructure.History, b.Usecase.Filler, b.Logger, cache.Config{
		SeriesCap:   b.Config.Cache.SeriesCap,
		SnapshotTTL: b.Config.Cache.SnapshotTTL,
	})

	b.Usecase.Generator = synthetic.NewGenerator(b.Usecase.Cache, b.Logger, synthetic.Config{
		DefaultPrice:  b.Config.Synthetic.DefaultPrice,
		NoiseFraction: b.Config.Synthetic.NoiseFraction,
		FreshWindow:   b.Config.Synthetic.FreshWindow,
	})

	b.Usecase.Registry = dispatch.NewRegistry(b.Logger)
}
