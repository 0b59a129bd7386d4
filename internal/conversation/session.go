package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adamavenir/streamsync/internal/router"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/adamavenir/streamsync/internal/wire"
)

// Session owns the channel view and at most one thread panel, and routes
// socket events into them. Socket handlers, page results and user actions
// all take the same lock, so each runs to completion before the next.
type Session struct {
	mu      sync.Mutex
	opts    Options
	channel *View
	thread  *View

	router *router.Router
	detach func()
}

// NewSession subscribes a session to opts.Transport.
func NewSession(opts Options) (*Session, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("session: fetcher is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("session: %w", ErrNoTransport)
	}
	opts = opts.withDefaults()
	s := &Session{opts: opts}
	s.channel = newView(&s.mu, opts, false)
	s.router = router.New(sessionStreams{s}, &s.mu, opts.Logger)
	s.router.Observe(s.record)
	s.detach = s.router.Attach(opts.Transport)
	return s, nil
}

// sessionStreams is read by the router while it holds s.mu.
type sessionStreams struct{ s *Session }

func (ss sessionStreams) Channel() router.Stream {
	if ss.s.channel == nil || !ss.s.channel.open {
		return nil
	}
	return ss.s.channel
}

func (ss sessionStreams) Thread() router.Stream {
	if ss.s.thread == nil || !ss.s.thread.open {
		return nil
	}
	return ss.s.thread
}

func (s *Session) record(out router.Outcome) {
	s.opts.Metrics.Event(out.Event.Kind)
	for _, res := range out.Results {
		s.opts.Metrics.Result(res)
	}
}

// Router exposes the router so callers can observe routed events.
func (s *Session) Router() *router.Router {
	return s.router
}

// Channel returns the channel view.
func (s *Session) Channel() *View {
	return s.channel
}

// Thread returns the open thread panel, or nil.
func (s *Session) Thread() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}

// Open switches the channel view to conversationID, leaving the previous one.
// Any open thread panel is closed.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.switchTo(conversationID)
	return s.channel.Open(ctx, conversationID)
}

// OpenAround switches to conversationID anchored at targetID.
func (s *Session) OpenAround(ctx context.Context, conversationID, targetID string) error {
	s.switchTo(conversationID)
	return s.channel.OpenAround(ctx, conversationID, targetID)
}

func (s *Session) switchTo(conversationID string) {
	prev := s.channel.ConversationID()
	s.CloseThread()
	if prev != "" && prev != conversationID {
		s.emit(types.EventLeaveConversation, wire.Membership{ConversationID: prev})
	}
	if prev != conversationID {
		s.emit(types.EventJoinConversation, wire.Membership{ConversationID: conversationID})
	}
}

// Rejoin re-emits join for the open channel, for use after a reconnect.
func (s *Session) Rejoin() {
	if conv := s.channel.ConversationID(); conv != "" {
		s.emit(types.EventJoinConversation, wire.Membership{ConversationID: conv})
	}
}

// OpenThread opens the thread panel for parentID, replacing any open one.
func (s *Session) OpenThread(ctx context.Context, parentID string) (*View, error) {
	if parentID == "" {
		return nil, errors.New("open thread: empty parent id")
	}
	s.mu.Lock()
	if !s.channel.open {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	if s.thread == nil {
		s.thread = newView(&s.mu, s.opts, true)
	}
	th := s.thread
	th.channel = s.channel.ConversationID()
	s.mu.Unlock()

	return th, th.Open(ctx, parentID)
}

// CloseThread discards the thread panel's stream.
func (s *Session) CloseThread() {
	s.mu.Lock()
	th := s.thread
	s.thread = nil
	s.mu.Unlock()
	if th != nil {
		th.Close()
	}
}

// Close leaves the channel and stops routing events.
func (s *Session) Close() {
	if conv := s.channel.ConversationID(); conv != "" {
		s.emit(types.EventLeaveConversation, wire.Membership{ConversationID: conv})
	}
	s.CloseThread()
	s.channel.Close()
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

func (s *Session) emit(kind types.EventKind, payload any) {
	if err := s.opts.Transport.Emit(kind, payload); err != nil {
		s.opts.Logger.Warn("emit failed", "kind", kind, "err", err)
	}
}
