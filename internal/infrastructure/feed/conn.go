package feed

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one established duplex connection. Implementations must allow
// one concurrent reader and serialize writers themselves.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes connections. The client owns reconnection; a Dialer
// only performs the handshake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// isCleanClose reports whether a read error represents an orderly
// shutdown by the peer. Clean closes reconnect without counting toward
// the circuit breaker.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// WebsocketDialer dials with gorilla's default dialer.
type WebsocketDialer struct{}

// Dial performs the websocket handshake against url.
func (WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &websocketConn{ws: ws}, nil
}

// websocketConn wraps *websocket.Conn. Gorilla permits one writer at a
// time; heartbeat and subscribe frames come from different goroutines, so
// writes take a mutex.
type websocketConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	c.writeMu.Lock()
	// Best effort: tell the peer this is a clean shutdown.
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
