package feedv1

// State is the lifecycle state of the push-feed connection. CircuitOpen is
// a side state that suppresses reconnection until its cooldown elapses.
type State string

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = "disconnected"
	// StateConnecting means a handshake is in flight.
	StateConnecting State = "connecting"
	// StateOpen means the connection is established and serviced.
	StateOpen State = "open"
	// StateCircuitOpen means repeated failures tripped the breaker; subscribe
	// requests are served synthetically until the cooldown elapses.
	StateCircuitOpen State = "circuit_open"
)

// Wire message types exchanged over the push feed.
const (
	TypeSubscribe     = "subscribe"
	TypeUnsubscribe   = "unsubscribe"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypeUpdate        = "update"
	TypeStatus        = "status"
	TypeStatusRequest = "status_request"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
)

// Message is the JSON envelope for every frame on the duplex connection.
// Fields are populated per Type; unknown types are dropped as protocol
// errors without closing the connection.
type Message struct {
	Type      string  `json:"type"`
	Exchange  string  `json:"exchange,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Interval  string  `json:"interval,omitempty"`
	Stream    string  `json:"stream,omitempty"`
	Data      *Update `json:"data,omitempty"`
	Connected *bool   `json:"connected,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Update is the kline payload of an "update" frame. Time may arrive in
// seconds or milliseconds.
type Update struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
