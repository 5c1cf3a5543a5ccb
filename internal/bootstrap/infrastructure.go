package bootstrap

import (
	historyv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/history/v1"
	"github.com/KingCyberX/insiderdept-sub000/internal/infrastructure/feed"
	"github.com/KingCyberX/insiderdept-sub000/internal/infrastructure/history"
)

// Infrastructure collects the outward-facing components.
type Infrastructure struct {
	History historyv1.Provider
	Feed    *feed.Client
}

// registerInfrastructure builds the history connector. The feed client is
// registered separately, after the engine exists.
func (b *Bootstrap) registerInfrastructure() {
	b.Infrastructure.History = history.NewProvider(b.Logger, history.Config{
		BaseURL: b.Config.History.BaseURL,
		Timeout: b.Config.History.Timeout,
	})
}

// registerFeed builds the push-feed client around the engine's callbacks.
func (b *Bootstrap) registerFeed() {
	b.Infrastructure.Feed = feed.NewClient(
		feed.WebsocketDialer{},
		b.Engine.Events(),
		b.Logger,
		feed.Config{
			URL:                  b.Config.Feed.URL,
			BackoffBase:          b.Config.Feed.BackoffBase,
			BackoffMax:           b.Config.Feed.BackoffMax,
			MaxReconnectAttempts: b.Config.Feed.MaxReconnectAttempts,
			MaxFailures:          b.Config.Feed.MaxFailures,
			CircuitResetTimeout:  b.Config.Feed.CircuitResetTimeout,
			HeartbeatInterval:    b.Config.Feed.HeartbeatInterval,
			AckFallbackDelay:     b.Config.Feed.AckFallbackDelay,
			ResubscribeStagger:   b.Config.Feed.ResubscribeStagger,
		},
	)
}
