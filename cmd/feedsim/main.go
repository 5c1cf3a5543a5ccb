// feedsim is a local push-feed simulator for manual testing. It speaks
// the engine's wire protocol over a websocket endpoint: subscribe acks,
// periodic kline updates with a random-walk price, heartbeat pongs, and
// status replies.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type message struct {
	Type      string  `json:"type"`
	Exchange  string  `json:"exchange,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Interval  string  `json:"interval,omitempty"`
	Stream    string  `json:"stream,omitempty"`
	Data      *update `json:"data,omitempty"`
	Connected *bool   `json:"connected,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type update struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

var (
	addr      = flag.String("addr", ":9443", "listen address")
	tick      = flag.Duration("tick", 2*time.Second, "update period per subscription")
	basePrice = flag.Float64("base-price", 50000, "starting price for the random walk")
	spread    = flag.Float64("spread", 0.001, "max fractional move per update")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	subs   map[string]chan struct{} // key -> stop channel
	prices map[string]float64
}

func main() {
	flag.Parse()

	http.HandleFunc("/", serve)
	log.Printf("feedsim listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade: %v", err)
		return
	}
	s := &session{
		conn:   conn,
		subs:   make(map[string]chan struct{}),
		prices: make(map[string]float64),
	}
	defer s.close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(message{Type: "error", Message: "malformed frame"})
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg message) {
	switch msg.Type {
	case "subscribe":
		s.subscribe(msg)
	case "unsubscribe":
		s.unsubscribe(msg)
	case "ping":
		s.send(message{Type: "pong"})
	case "pong":
		// Heartbeat reply, ignore.
	case "status_request":
		connected := true
		s.send(message{Type: "status", Connected: &connected})
	default:
		s.send(message{Type: "error", Message: "unknown type " + msg.Type})
	}
}

func (s *session) subscribe(msg message) {
	key := msg.Exchange + ":" + msg.Symbol + ":" + msg.Interval

	s.mu.Lock()
	if _, ok := s.subs[key]; ok {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.subs[key] = stop
	s.prices[key] = *basePrice
	s.mu.Unlock()

	s.send(message{Type: "subscribed", Exchange: msg.Exchange, Symbol: msg.Symbol, Interval: msg.Interval})
	log.Printf("subscribed %s", key)

	go s.stream(msg, key, stop)
}

func (s *session) unsubscribe(msg message) {
	key := msg.Exchange + ":" + msg.Symbol + ":" + msg.Interval

	s.mu.Lock()
	stop, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()

	if ok {
		close(stop)
		s.send(message{Type: "unsubscribed", Exchange: msg.Exchange, Symbol: msg.Symbol, Interval: msg.Interval})
		log.Printf("unsubscribed %s", key)
	}
}

// stream emits one random-walk kline per tick until unsubscribed.
func (s *session) stream(msg message, key string, stop chan struct{}) {
	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			price := s.prices[key]
			move := (rand.Float64()*2 - 1) * price * *spread
			next := price + move
			s.prices[key] = next
			s.mu.Unlock()

			high, low := price, next
			if next > price {
				high, low = next, price
			}
			s.send(message{
				Type:     "update",
				Exchange: msg.Exchange,
				Symbol:   msg.Symbol,
				Interval: msg.Interval,
				Data: &update{
					Time:   time.Now().Unix(),
					Open:   price,
					High:   high,
					Low:    low,
					Close:  next,
					Volume: rand.Float64() * 10,
				},
			})
		}
	}
}

func (s *session) send(msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("write: %v", err)
	}
}

func (s *session) close() {
	s.mu.Lock()
	for key, stop := range s.subs {
		close(stop)
		delete(s.subs, key)
	}
	s.mu.Unlock()
	s.conn.Close()
}
