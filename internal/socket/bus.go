package socket

import (
	"encoding/json"
	"sync"

	"github.com/adamavenir/streamsync/internal/types"
)

// Frame is one emitted event as seen by a Bus.
type Frame struct {
	Kind    types.EventKind
	Payload json.RawMessage
}

// Bus is an in-process Transport. Deliver plays the server side; emitted
// frames are recorded and handed to OnEmit.
type Bus struct {
	reg *registry

	mu      sync.Mutex
	emitted []Frame
	onEmit  func(Frame)
	closed  bool
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{reg: newRegistry()}
}

func (b *Bus) Subscribe(event types.EventKind, h Handler) func() {
	return b.reg.subscribe(event, h)
}

func (b *Bus) Emit(event types.EventKind, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	frame := Frame{Kind: event, Payload: data}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.emitted = append(b.emitted, frame)
	hook := b.onEmit
	b.mu.Unlock()

	if hook != nil {
		hook(frame)
	}
	return nil
}

// OnEmit installs a hook that sees every emitted frame. It runs on the
// emitting goroutine.
func (b *Bus) OnEmit(fn func(Frame)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEmit = fn
}

// Deliver dispatches an inbound event to subscribers and reports how many
// handlers ran.
func (b *Bus) Deliver(event types.EventKind, payload any) (int, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return b.reg.dispatch(event, data), nil
}

// Emitted returns a copy of every frame emitted so far.
func (b *Bus) Emitted() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.emitted...)
}

// EmittedKinds lists the kinds of emitted frames in order.
func (b *Bus) EmittedKinds() []types.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]types.EventKind, len(b.emitted))
	for i, f := range b.emitted {
		kinds[i] = f.Kind
	}
	return kinds
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
