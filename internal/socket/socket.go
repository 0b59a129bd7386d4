// Package socket provides the bidirectional event channel the sync core
// subscribes to and emits on.
package socket

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/adamavenir/streamsync/internal/types"
)

var (
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("socket closed")
	// ErrBackpressure is returned when the outbound queue is full.
	ErrBackpressure = errors.New("socket send queue full")
)

// Handler receives the raw payload of one inbound event. Handlers run on the
// delivering goroutine, one at a time, in delivery order.
type Handler func(payload json.RawMessage)

// Transport is the event channel contract.
type Transport interface {
	Subscribe(event types.EventKind, h Handler) (unsubscribe func())
	Emit(event types.EventKind, payload any) error
}

type registry struct {
	mu       sync.RWMutex
	next     int
	handlers map[types.EventKind]map[int]Handler
	// deliver serializes dispatch so handlers never overlap.
	deliver sync.Mutex
}

func newRegistry() *registry {
	return &registry{handlers: make(map[types.EventKind]map[int]Handler)}
}

func (r *registry) subscribe(event types.EventKind, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[int]Handler)
	}
	r.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers[event], id)
			if len(r.handlers[event]) == 0 {
				delete(r.handlers, event)
			}
		})
	}
}

// dispatch runs every handler for event in subscription order and reports how
// many ran.
func (r *registry) dispatch(event types.EventKind, payload json.RawMessage) int {
	r.mu.RLock()
	subs := r.handlers[event]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)

	r.deliver.Lock()
	defer r.deliver.Unlock()
	ran := 0
	for _, id := range ids {
		r.mu.RLock()
		h, ok := r.handlers[event][id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		h(payload)
		ran++
	}
	return ran
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
