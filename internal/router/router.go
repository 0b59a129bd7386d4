// Package router translates inbound socket events into store and
// reconciliation operations for the open streams.
package router

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/socket"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/adamavenir/streamsync/internal/wire"
)

// Stream is one open conversation scope the router can drive.
type Stream interface {
	ConversationID() string
	Store() *store.Store
	Engine() *reconcile.Engine
	// Arrived runs after a confirmed message enters the stream.
	Arrived(res reconcile.Result)
}

// Streams yields the currently open scopes. Either may be nil.
type Streams interface {
	Channel() Stream
	Thread() Stream
}

// Outcome reports what routing one event did.
type Outcome struct {
	Event     types.Event
	Malformed bool
	// Applied counts streams that changed.
	Applied int
	Results []reconcile.Result
}

type handler func(r *Router, ev types.Event, out *Outcome)

var table = map[types.EventKind]handler{
	types.EventMessageCreated:   onCreated,
	types.EventMessageEdited:    onEdited,
	types.EventMessageDeleted:   onDeleted,
	types.EventReactionUpdated:  onReactions,
	types.EventMessagePinned:    onPinned(true),
	types.EventMessageUnpinned:  onPinned(false),
	types.EventThreadReplyAdded: onThreadReply,
}

// Router applies events to the streams returned by Streams. Every handler is
// fail-soft and idempotent under redelivery.
type Router struct {
	streams Streams
	lock    sync.Locker
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	observers []func(Outcome)

	// counted remembers replies already added to a parent's count, oldest
	// first in countedOrder so the set stays bounded.
	counted      map[string]struct{}
	countedOrder []string
	countedScope string
	countLimit   int
}

// maxCountedReplies bounds the reply dedupe set; the oldest keys go first.
const maxCountedReplies = 4096

// New builds a router. lock serializes routing with every other mutation of
// the same streams; nil means the caller serializes.
func New(streams Streams, lock sync.Locker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if lock == nil {
		lock = noLock{}
	}
	return &Router{
		streams: streams,
		lock:    lock,
		log:     logger,
		now:     time.Now,
		counted:    make(map[string]struct{}),
		countLimit: maxCountedReplies,
	}
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Observe registers fn to see every routed event after it is applied.
func (r *Router) Observe(fn func(Outcome)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Attach subscribes the router to every inbound event on t.
func (r *Router) Attach(t socket.Transport) (detach func()) {
	unsubs := make([]func(), 0, len(types.InboundEvents))
	for _, kind := range types.InboundEvents {
		unsubs = append(unsubs, t.Subscribe(kind, func(payload json.RawMessage) {
			r.HandleRaw(kind, payload)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// HandleRaw decodes and routes one payload. Undecodable payloads are dropped.
func (r *Router) HandleRaw(kind types.EventKind, payload []byte) Outcome {
	ev, err := wire.DecodeEvent(kind, payload)
	if err != nil {
		r.log.Debug("router: malformed event", "kind", kind, "err", err)
		out := Outcome{Event: ev, Malformed: true}
		r.notify(out)
		return out
	}
	return r.Route(ev)
}

// Route applies a decoded event.
func (r *Router) Route(ev types.Event) Outcome {
	out := Outcome{Event: ev}
	h, ok := table[ev.Kind]
	if !ok {
		r.log.Debug("router: unhandled event", "kind", ev.Kind)
		r.notify(out)
		return out
	}
	r.lock.Lock()
	h(r, ev, &out)
	r.lock.Unlock()
	r.notify(out)
	return out
}

func (r *Router) notify(out Outcome) {
	r.mu.Lock()
	observers := append([]func(Outcome){}, r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(out)
	}
}

// open lists non-nil streams, channel first.
func (r *Router) open() []Stream {
	var out []Stream
	if s := r.streams.Channel(); s != nil {
		out = append(out, s)
	}
	if s := r.streams.Thread(); s != nil {
		out = append(out, s)
	}
	return out
}

func onCreated(r *Router, ev types.Event, out *Outcome) {
	if ev.Message == nil {
		return
	}
	msg := *ev.Message
	var target Stream
	if msg.ParentID != "" {
		// Replies belong to the thread panel, if it shows that parent.
		if th := r.streams.Thread(); th != nil && th.ConversationID() == msg.ParentID {
			target = th
		}
	} else if ch := r.streams.Channel(); ch != nil && ch.ConversationID() == ev.ConversationID {
		target = ch
	}
	if target == nil {
		return
	}
	confirm(target, msg, out)
}

func confirm(s Stream, msg types.Message, out *Outcome) {
	if msg.ConversationID == "" {
		msg.ConversationID = s.ConversationID()
	}
	res := s.Engine().Confirm(msg)
	out.Results = append(out.Results, res)
	if res.Outcome == reconcile.Inserted || res.Outcome == reconcile.Replaced {
		out.Applied++
		s.Arrived(res)
	}
}

func onEdited(r *Router, ev types.Event, out *Outcome) {
	updated := r.now()
	if ev.UpdatedAt != nil {
		updated = *ev.UpdatedAt
	}
	for _, s := range r.open() {
		if s.Store().Mutate(ev.MessageID, func(m *types.Message) {
			m.Content = ev.Content
			ts := updated
			m.UpdatedAt = &ts
		}) {
			out.Applied++
		}
	}
}

func onDeleted(r *Router, ev types.Event, out *Outcome) {
	for _, s := range r.open() {
		if s.Store().Remove(ev.MessageID) {
			out.Applied++
		}
	}
}

func onReactions(r *Router, ev types.Event, out *Outcome) {
	for _, s := range r.open() {
		if s.Engine().ApplyReactions(ev.MessageID, ev.Reactions) {
			out.Applied++
		}
	}
}

func onPinned(pinned bool) handler {
	return func(r *Router, ev types.Event, out *Outcome) {
		for _, s := range r.open() {
			if s.Store().Mutate(ev.MessageID, func(m *types.Message) { m.Pinned = pinned }) {
				out.Applied++
			}
		}
	}
}

// onThreadReply updates the parent's count in the channel and reconciles the
// reply into the thread panel showing that parent.
func onThreadReply(r *Router, ev types.Event, out *Outcome) {
	if ch := r.streams.Channel(); ch != nil && (ev.ConversationID == "" || ev.ConversationID == ch.ConversationID()) {
		if r.countReply(ch.ConversationID(), ev) {
			if ch.Store().Mutate(ev.ParentID, func(m *types.Message) { m.ThreadReplyCount++ }) {
				out.Applied++
			}
		}
	}
	if th := r.streams.Thread(); th != nil && th.ConversationID() == ev.ParentID && ev.Message != nil {
		confirm(th, *ev.Message, out)
	}
}

// countReply reports whether this reply has not been counted yet. Replies
// without an id cannot be deduplicated and always count.
func (r *Router) countReply(scope string, ev types.Event) bool {
	if r.countedScope != scope {
		r.counted = make(map[string]struct{})
		r.countedOrder = nil
		r.countedScope = scope
	}
	if ev.Message == nil || ev.Message.ID == "" {
		return true
	}
	key := ev.ParentID + "/" + ev.Message.ID
	if _, seen := r.counted[key]; seen {
		return false
	}
	r.counted[key] = struct{}{}
	r.countedOrder = append(r.countedOrder, key)
	if len(r.countedOrder) > r.countLimit {
		delete(r.counted, r.countedOrder[0])
		r.countedOrder = r.countedOrder[1:]
	}
	return true
}
