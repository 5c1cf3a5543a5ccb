// Package feed implements the push-feed connection manager: a single
// duplex JSON connection with reconnect backoff, a failure circuit
// breaker, heartbeats, and reference-counted subscriptions.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	feedv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/feed/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

// Config holds the connection-manager tunables.
type Config struct {
	URL string
	// BackoffBase seeds the reconnect delay: min(base*1.5^(n-1), BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxReconnectAttempts trips the breaker when dialing keeps failing.
	MaxReconnectAttempts int
	// MaxFailures trips the breaker on consecutive unclean closures.
	MaxFailures int
	// CircuitResetTimeout is how long the breaker stays open.
	CircuitResetTimeout time.Duration
	// HeartbeatInterval is the ping cadence on an open connection.
	HeartbeatInterval time.Duration
	// AckFallbackDelay is how long a subscribe may go unacknowledged
	// before synthetic fallback kicks in.
	AckFallbackDelay time.Duration
	// ResubscribeStagger spaces out re-sent subscriptions after reconnect.
	ResubscribeStagger time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase:          time.Second,
		BackoffMax:           30 * time.Second,
		MaxReconnectAttempts: 10,
		MaxFailures:          3,
		CircuitResetTimeout:  30 * time.Second,
		HeartbeatInterval:    10 * time.Second,
		AckFallbackDelay:     5 * time.Second,
		ResubscribeStagger:   100 * time.Millisecond,
	}
}

type subscription struct {
	refs     int
	acked    bool
	fallback *time.Timer
}

// Client manages the single push-feed connection. It satisfies
// feedv1.Client.
type Client struct {
	dialer Dialer
	events feedv1.Events
	logger logger.Interface
	config Config

	mu                  sync.Mutex
	state               feedv1.State
	conn                Conn
	subs                map[candlev1.Key]*subscription
	reconnectAttempts   int
	consecutiveFailures int
	cancel              context.CancelFunc

	wg sync.WaitGroup
}

// NewClient builds a connection manager. Connect must be called before
// any real subscription can be serviced.
func NewClient(dialer Dialer, events feedv1.Events, log logger.Interface, config Config) *Client {
	def := DefaultConfig()
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = def.BackoffMax
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.CircuitResetTimeout <= 0 {
		config.CircuitResetTimeout = def.CircuitResetTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if config.AckFallbackDelay <= 0 {
		config.AckFallbackDelay = def.AckFallbackDelay
	}
	return &Client{
		dialer: dialer,
		events: events,
		logger: log,
		config: config,
		state:  feedv1.StateDisconnected,
		subs:   make(map[candlev1.Key]*subscription),
	}
}

// Connect starts the connection lifecycle and returns immediately.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Close stops the lifecycle, closes the connection, and resets breaker
// and subscription timer state. The client can be reconnected afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.conn = nil
	for _, sub := range c.subs {
		if sub.fallback != nil {
			sub.fallback.Stop()
			sub.fallback = nil
		}
	}
	c.reconnectAttempts = 0
	c.consecutiveFailures = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.setState(feedv1.StateDisconnected)
	return nil
}

// State returns the current connection state.
func (c *Client) State() feedv1.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s feedv1.State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.events.OnStateChange != nil {
		c.events.OnStateChange(s)
	}
}

// run is the connection lifecycle loop: dial, service, classify the
// close, back off or trip the breaker, repeat.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		if c.State() == feedv1.StateCircuitOpen {
			select {
			case <-time.After(c.config.CircuitResetTimeout):
			case <-ctx.Done():
				return
			}
			c.mu.Lock()
			c.reconnectAttempts = 0
			c.consecutiveFailures = 0
			c.mu.Unlock()
			c.setState(feedv1.StateDisconnected)
			c.logger.Info("circuit closed, resuming reconnects")
		}

		c.setState(feedv1.StateConnecting)
		conn, err := c.dialer.Dial(ctx, c.config.URL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.onDialFailure(ctx, errors.WrapCoded(errors.TransportConnectError, err))
			continue
		}

		c.onOpen(ctx, conn)
		readErr := c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.setState(feedv1.StateDisconnected)
		if isCleanClose(readErr) {
			c.logger.Info("feed closed cleanly, reconnecting")
			continue
		}
		c.onUncleanClose(ctx, readErr)
	}
}

// onDialFailure counts the failed handshake (an unclean Connecting →
// Disconnected transition), applies backoff, and trips the breaker once
// either budget is exhausted.
func (c *Client) onDialFailure(ctx context.Context, err error) {
	c.mu.Lock()
	c.reconnectAttempts++
	c.consecutiveFailures++
	attempt := c.reconnectAttempts
	exhausted := attempt >= c.config.MaxReconnectAttempts
	tripped := c.consecutiveFailures >= c.config.MaxFailures
	c.mu.Unlock()

	c.logger.Warn("connect failed",
		logger.Field{Key: "attempt", Value: attempt},
		logger.Field{Key: "error", Value: err.Error()},
	)
	c.setState(feedv1.StateDisconnected)

	if exhausted {
		c.tripCircuit("reconnect attempts exhausted")
		return
	}
	if tripped {
		c.tripCircuit("consecutive unclean closures")
		return
	}

	select {
	case <-time.After(c.backoffDelay(attempt)):
	case <-ctx.Done():
	}
}

// onUncleanClose counts consecutive failures and trips the breaker at the
// threshold, otherwise waits out the backoff before the next dial.
func (c *Client) onUncleanClose(ctx context.Context, err error) {
	c.mu.Lock()
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	tripped := failures >= c.config.MaxFailures
	c.mu.Unlock()

	c.logger.Warn("connection closed uncleanly",
		logger.Field{Key: "consecutive_failures", Value: failures},
		logger.Field{Key: "error", Value: fmt.Sprint(err)},
	)

	if tripped {
		c.tripCircuit("consecutive unclean closures")
		return
	}

	select {
	case <-time.After(c.backoffDelay(failures)):
	case <-ctx.Done():
	}
}

func (c *Client) tripCircuit(reason string) {
	c.logger.Warn("circuit opened", logger.Field{Key: "reason", Value: reason})
	c.setState(feedv1.StateCircuitOpen)

	// Every active subscription loses its real feed; hand them all over
	// to synthetic generation.
	for _, key := range c.subscribedKeys() {
		c.notifyFallback(key)
	}
}

// backoffDelay returns min(base*1.5^(n-1), max) for the nth attempt.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(c.config.BackoffBase) * math.Pow(1.5, float64(attempt-1)))
	if d > c.config.BackoffMax {
		return c.config.BackoffMax
	}
	return d
}

// onOpen installs the connection, resets the breaker counters, starts the
// heartbeat, and replays active subscriptions with stagger delays.
func (c *Client) onOpen(ctx context.Context, conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.reconnectAttempts = 0
	c.consecutiveFailures = 0
	for _, sub := range c.subs {
		sub.acked = false
	}
	c.mu.Unlock()

	c.setState(feedv1.StateOpen)
	c.logger.Info("feed connected", logger.Field{Key: "url", Value: c.config.URL})

	keys := c.subscribedKeys()
	c.wg.Add(2)
	go c.heartbeat(ctx, conn)
	go func() {
		defer c.wg.Done()
		for i, key := range keys {
			if i > 0 && c.config.ResubscribeStagger > 0 {
				select {
				case <-time.After(c.config.ResubscribeStagger):
				case <-ctx.Done():
					return
				}
			}
			c.sendSubscribe(conn, key)
		}
	}()
}

func (c *Client) heartbeat(ctx context.Context, conn Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.isCurrent(conn) {
				return
			}
			if err := c.send(conn, feedv1.Message{Type: feedv1.TypePing}); err != nil {
				// Kick the read loop so the lifecycle reconnects.
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) isCurrent(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.handleMessage(conn, data)
	}
}

func (c *Client) handleMessage(conn Conn, data []byte) {
	var msg feedv1.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping malformed frame",
			logger.Field{Key: "error", Value: errors.WrapCoded(errors.ProtocolMessageError, err).Error()})
		return
	}

	switch msg.Type {
	case feedv1.TypeUpdate:
		c.handleUpdate(msg)
	case feedv1.TypeSubscribed:
		c.handleSubscribed(msg)
	case feedv1.TypeUnsubscribed:
		c.logger.Debug("unsubscribed", logger.Field{Key: "key", Value: keyOf(msg).String()})
	case feedv1.TypePing:
		if err := c.send(conn, feedv1.Message{Type: feedv1.TypePong}); err != nil {
			conn.Close()
		}
	case feedv1.TypePong:
		// Heartbeat ack, nothing to do.
	case feedv1.TypeStatus:
		c.logger.Debug("feed status", logger.Field{Key: "connected", Value: msg.Connected})
	case feedv1.TypeStatusRequest:
		connected := true
		if err := c.send(conn, feedv1.Message{Type: feedv1.TypeStatus, Connected: &connected}); err != nil {
			conn.Close()
		}
	case feedv1.TypeError:
		c.logger.Warn("feed error frame", logger.Field{Key: "message", Value: msg.Message})
	default:
		c.logger.Warn("dropping frame with unknown type",
			logger.Field{Key: "type", Value: msg.Type})
	}
}

func (c *Client) handleUpdate(msg feedv1.Message) {
	if msg.Data == nil {
		c.logger.Warn("dropping update without payload",
			logger.Field{Key: "key", Value: keyOf(msg).String()})
		return
	}

	// Updates normally echo the interval; older feeds omit it, in which
	// case the update fans out to every subscribed interval of the pair.
	var keys []candlev1.Key
	if msg.Interval != "" {
		keys = []candlev1.Key{keyOf(msg)}
	} else {
		for _, key := range c.subscribedKeys() {
			if key.Exchange == msg.Exchange && key.Symbol == msg.Symbol {
				keys = append(keys, key)
			}
		}
	}

	for _, key := range keys {
		if !c.isSubscribed(key) {
			continue
		}
		if c.events.OnUpdate != nil {
			c.events.OnUpdate(key, *msg.Data)
		}
	}
}

func (c *Client) handleSubscribed(msg feedv1.Message) {
	key := keyOf(msg)

	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		sub.acked = true
		if sub.fallback != nil {
			sub.fallback.Stop()
			sub.fallback = nil
		}
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("ack for unknown subscription",
			logger.Field{Key: "key", Value: key.String()})
		return
	}
	if c.events.OnSubscribed != nil {
		c.events.OnSubscribed(key)
	}
}

// Subscribe adds one reference for the key. The first reference sends a
// subscribe frame and arms the ack-fallback timer, or hands the key to
// synthetic generation right away when no real feed is available.
func (c *Client) Subscribe(key candlev1.Key) {
	c.mu.Lock()
	if sub, ok := c.subs[key]; ok {
		sub.refs++
		c.mu.Unlock()
		return
	}
	c.subs[key] = &subscription{refs: 1}
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state != feedv1.StateOpen || conn == nil {
		c.notifyFallback(key)
		return
	}
	c.sendSubscribe(conn, key)
}

// Unsubscribe drops one reference; the last one sends an unsubscribe
// frame and clears the fallback timer.
func (c *Client) Unsubscribe(key candlev1.Key) {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	sub.refs--
	if sub.refs > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.subs, key)
	if sub.fallback != nil {
		sub.fallback.Stop()
		sub.fallback = nil
	}
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state == feedv1.StateOpen && conn != nil {
		if err := c.send(conn, feedv1.Message{
			Type:     feedv1.TypeUnsubscribe,
			Exchange: key.Exchange,
			Symbol:   key.Symbol,
			Interval: key.Interval,
			Stream:   "kline",
		}); err != nil {
			c.logger.Warn("unsubscribe send failed",
				logger.Field{Key: "key", Value: key.String()},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}

// sendSubscribe writes the subscribe frame and arms the ack-fallback
// timer. A send failure falls back immediately and kicks the connection.
func (c *Client) sendSubscribe(conn Conn, key candlev1.Key) {
	err := c.send(conn, feedv1.Message{
		Type:     feedv1.TypeSubscribe,
		Exchange: key.Exchange,
		Symbol:   key.Symbol,
		Interval: key.Interval,
		Stream:   "kline",
	})
	if err != nil {
		c.logger.Warn("subscribe send failed",
			logger.Field{Key: "key", Value: key.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)
		conn.Close()
		c.notifyFallback(key)
		return
	}

	c.mu.Lock()
	if sub, ok := c.subs[key]; ok && !sub.acked {
		if sub.fallback != nil {
			sub.fallback.Stop()
		}
		sub.fallback = time.AfterFunc(c.config.AckFallbackDelay, func() {
			c.onAckTimeout(key)
		})
	}
	c.mu.Unlock()
}

func (c *Client) onAckTimeout(key candlev1.Key) {
	c.mu.Lock()
	sub, ok := c.subs[key]
	pending := ok && !sub.acked
	c.mu.Unlock()

	if !pending {
		return
	}
	c.logger.Warn("no subscribe ack, falling back",
		logger.Field{Key: "key", Value: key.String()})
	c.notifyFallback(key)
}

func (c *Client) notifyFallback(key candlev1.Key) {
	if c.events.OnFallback != nil {
		c.events.OnFallback(key)
	}
}

func (c *Client) send(conn Conn, msg feedv1.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapCoded(errors.ProtocolMessageError, err)
	}
	if err := conn.WriteMessage(data); err != nil {
		return errors.WrapCoded(errors.TransportSendError, err)
	}
	return nil
}

func (c *Client) isSubscribed(key candlev1.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

func (c *Client) subscribedKeys() []candlev1.Key {
	c.mu.Lock()
	keys := make([]candlev1.Key, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func keyOf(msg feedv1.Message) candlev1.Key {
	return candlev1.Key{Exchange: msg.Exchange, Symbol: msg.Symbol, Interval: msg.Interval}
}
