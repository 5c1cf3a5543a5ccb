package feedv1

import (
	"context"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
)

// Client owns the single push-feed connection and its subscriptions.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=feedv1_mock
type Client interface {
	// Connect starts the connection lifecycle, including reconnection.
	// It returns immediately; state transitions are reported via Events.
	Connect(ctx context.Context) error
	// Close shuts the connection down cleanly and resets all breaker state.
	Close() error
	// Subscribe reference-counts the key; the first subscriber sends a
	// subscribe frame (or triggers the synthetic fallback when the feed is
	// down or the breaker is open).
	Subscribe(key candlev1.Key)
	// Unsubscribe drops one reference; the last one sends an unsubscribe
	// frame and clears any fallback timer.
	Unsubscribe(key candlev1.Key)
	// State returns the current connection state.
	State() State
}

// Events carries the callbacks a Client invokes as frames and state changes
// arrive. Handlers run on the client's read loop and must not block.
type Events struct {
	// OnUpdate delivers one live candle for a subscribed key.
	OnUpdate func(key candlev1.Key, update Update)
	// OnStateChange reports every connection state transition.
	OnStateChange func(state State)
	// OnFallback fires when a subscription cannot be serviced by the real
	// feed (circuit open, disconnected, or no ack within the fallback
	// window) and synthetic generation should take over.
	OnFallback func(key candlev1.Key)
	// OnSubscribed fires when the feed acknowledges a subscription,
	// meaning any synthetic fallback for the key should stand down.
	OnSubscribed func(key candlev1.Key)
}
