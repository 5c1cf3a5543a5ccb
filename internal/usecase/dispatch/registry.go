// Package dispatch fans candle updates out to registered observers.
package dispatch

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/oklog/ulid/v2"
)

// Handler receives the full refreshed snapshot for a key. Handlers must not
// retain the slice past the call; the dispatcher reuses nothing, but the
// engine may.
type Handler func(key candlev1.Key, candles []candlev1.Candle)

type observer struct {
	id      ulid.ULID
	handler Handler
}

// Registry maps series keys to ordered observer lists. Observer handles are
// ULIDs, so iteration order is registration order and unregistering one
// handler never disturbs the others.
type Registry struct {
	logger logger.Interface

	mu        sync.RWMutex
	observers map[candlev1.Key][]observer
	entropy   *ulid.MonotonicEntropy
}

// NewRegistry builds an empty registry.
func NewRegistry(log logger.Interface) *Registry {
	return &Registry{
		logger:    log,
		observers: make(map[candlev1.Key][]observer),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Register adds a handler for the key and returns its handle.
func (r *Registry) Register(key candlev1.Key, handler Handler) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy)
	r.observers[key] = append(r.observers[key], observer{id: id, handler: handler})
	return id.String()
}

// Unregister removes the handler with the given handle and reports whether
// it was present. Removing the last observer leaves no entry behind.
func (r *Registry) Unregister(key candlev1.Key, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.observers[key]
	if !ok {
		return false
	}
	for i, o := range list {
		if o.id.String() == id {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.observers, key)
			} else {
				r.observers[key] = list
			}
			return true
		}
	}
	return false
}

// Count returns the number of observers for a key. The connection manager
// uses this for reference-counted subscriptions.
func (r *Registry) Count(key candlev1.Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers[key])
}

// Keys returns every key with at least one observer, sorted for stable
// resubscription order.
func (r *Registry) Keys() []candlev1.Key {
	r.mu.RLock()
	keys := make([]candlev1.Key, 0, len(r.observers))
	for key := range r.observers {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Notify calls every handler for the key in registration order. A panicking
// handler is logged and skipped; it never takes down its neighbours or the
// dispatch goroutine.
func (r *Registry) Notify(key candlev1.Key, candles []candlev1.Candle) {
	r.mu.RLock()
	list := make([]observer, len(r.observers[key]))
	copy(list, r.observers[key])
	r.mu.RUnlock()

	for _, o := range list {
		r.dispatch(key, o, candles)
	}
}

func (r *Registry) dispatch(key candlev1.Key, o observer, candles []candlev1.Candle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Errorf("observer panic: %v", rec),
				logger.Field{Key: "key", Value: key.String()},
				logger.Field{Key: "observer", Value: o.id.String()},
			)
		}
	}()
	o.handler(key, candles)
}
