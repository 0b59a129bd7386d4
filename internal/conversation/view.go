// Package conversation composes the store, reconciliation engine, pager and
// read tracker into one view per open scope, and wires views to the socket.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/metrics"
	"github.com/adamavenir/streamsync/internal/paging"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/reads"
	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/socket"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/adamavenir/streamsync/internal/wire"
)

var (
	ErrNotOpen      = errors.New("conversation not open")
	ErrLoadInFlight = errors.New("page load already in flight")
	ErrExhausted    = errors.New("no older messages")
	// ErrSuperseded is returned by a load whose conversation was switched or
	// reloaded before the response arrived. The response was discarded.
	ErrSuperseded   = errors.New("load superseded")
	ErrTransientID  = errors.New("message is not confirmed yet")
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoTransport  = errors.New("no socket transport configured")
)

// Fetcher is the data-access contract.
type Fetcher interface {
	FetchPage(ctx context.Context, conversationID string, req types.PageRequest) (types.Page, error)
	FetchAround(ctx context.Context, conversationID, targetID string, limit int) (types.Page, error)
}

// Options configure views and sessions.
type Options struct {
	SelfID   string
	SelfName string

	PageSize     int
	JumpPageSize int

	Fetcher Fetcher
	// ThreadFetcher loads thread panels; conversation ids passed to it are
	// parent message ids. Defaults to Fetcher.
	ThreadFetcher Fetcher
	Transport     socket.Transport
	// ReadState persists watermarks and unread counts. Defaults to memory.
	ReadState readstate.Store

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.ReadState == nil {
		o.ReadState = readstate.NewMemory()
	}
	if o.ThreadFetcher == nil {
		o.ThreadFetcher = o.Fetcher
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// View is one open message stream: a channel, or a thread panel scoped to a
// parent message. All mutations are serialized on the lock the view was
// built with.
type View struct {
	lock    sync.Locker
	opts    Options
	fetch   Fetcher
	thread  bool
	log     *slog.Logger
	metrics *metrics.Metrics

	store   *store.Store
	engine  *reconcile.Engine
	pager   *paging.Controller
	tracker *reads.Tracker

	open   bool
	scope  context.Context
	cancel context.CancelFunc
	// channel is the conversation a thread panel's parent belongs to.
	channel string
}

// NewView builds a channel view with its own lock.
func NewView(opts Options) *View {
	return newView(&sync.Mutex{}, opts.withDefaults(), false)
}

func newView(lock sync.Locker, opts Options, thread bool) *View {
	st := store.New("")
	fetch := opts.Fetcher
	if thread {
		fetch = opts.ThreadFetcher
	}
	log := opts.Logger.With("scope", scopeName(thread))
	return &View{
		lock:    lock,
		opts:    opts,
		fetch:   fetch,
		thread:  thread,
		log:     log,
		metrics: opts.Metrics,
		store:   st,
		engine:  reconcile.New(st, opts.SelfID, log),
		pager:   paging.New(opts.PageSize, opts.JumpPageSize),
		tracker: reads.New(opts.ReadState, opts.SelfID, log),
	}
}

func scopeName(thread bool) string {
	if thread {
		return "thread"
	}
	return "channel"
}

// ConversationID is the open scope, or "" when closed. For thread panels it
// is the parent message id.
func (v *View) ConversationID() string {
	return v.store.ConversationID()
}

func (v *View) Store() *store.Store { return v.store }
func (v *View) Engine() *reconcile.Engine { return v.engine }
func (v *View) Snapshot() store.Snapshot { return v.store.Snapshot() }
func (v *View) PagingState() paging.State { return v.pager.State() }
func (v *View) Cursor() paging.Cursor { return v.pager.Cursor() }
func (v *View) Observing() bool { return v.pager.Observing() }
func (v *View) DividerID() string { return v.tracker.DividerID() }
func (v *View) Unread() int { return v.tracker.Unread() }
func (v *View) LastRead() (int64, bool) { return v.tracker.LastRead() }
func (v *View) Observe(fn store.Observer) func() { return v.store.Observe(fn) }

// IsOpen reports whether a conversation is open.
func (v *View) IsOpen() bool {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.open
}

// Arrived is called under the view lock after a confirmed message enters the
// stream from a live event.
func (v *View) Arrived(res reconcile.Result) {
	v.tracker.Arrived(res.Message)
	v.publishUnread()
}

func (v *View) publishUnread() {
	if !v.thread {
		v.metrics.SetUnread(v.tracker.Unread())
	}
}

func (v *View) readKey(conversationID string) string {
	if v.thread {
		return "thread:" + conversationID
	}
	return conversationID
}

// Open discards whatever was shown and loads the newest page of
// conversationID.
func (v *View) Open(ctx context.Context, conversationID string) error {
	t, scope := v.begin(conversationID, "")
	return v.load(ctx, scope, t)
}

// OpenAround opens conversationID anchored at targetID. If that load fails the
// view falls back to the newest page and the jump error is returned.
func (v *View) OpenAround(ctx context.Context, conversationID, targetID string) error {
	if _, ok := core.NumericID(targetID); !ok {
		return fmt.Errorf("open around %q: invalid target id", targetID)
	}
	t, scope := v.begin(conversationID, targetID)
	return v.jump(ctx, scope, t)
}

// Reload restarts the open conversation from its newest page.
func (v *View) Reload(ctx context.Context) error {
	v.lock.Lock()
	if !v.open {
		v.lock.Unlock()
		return ErrNotOpen
	}
	t := v.pager.BeginInitial()
	scope := v.scope
	v.lock.Unlock()
	return v.load(ctx, scope, t)
}

// begin resets every piece of per-conversation state before any fetch for the
// new conversation is issued.
func (v *View) begin(conversationID, targetID string) (paging.Ticket, context.Context) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.cancel != nil {
		v.cancel()
	}
	v.scope, v.cancel = context.WithCancel(context.Background())
	v.open = true

	v.store.Reset(conversationID)
	v.pager.Reset(conversationID)
	v.tracker.End()
	v.tracker.Begin(v.readKey(conversationID))
	v.publishUnread()

	if targetID != "" {
		return v.pager.BeginJump(targetID), v.scope
	}
	return v.pager.BeginInitial(), v.scope
}

// JumpTo replaces the stream with the page around targetID.
func (v *View) JumpTo(ctx context.Context, targetID string) error {
	if _, ok := core.NumericID(targetID); !ok {
		return fmt.Errorf("jump to %q: invalid target id", targetID)
	}
	v.lock.Lock()
	if !v.open {
		v.lock.Unlock()
		return ErrNotOpen
	}
	t := v.pager.BeginJump(targetID)
	scope := v.scope
	v.lock.Unlock()
	return v.jump(ctx, scope, t)
}

func (v *View) jump(ctx context.Context, scope context.Context, t paging.Ticket) error {
	err := v.load(ctx, scope, t)
	if err == nil || errors.Is(err, ErrSuperseded) {
		return err
	}
	v.log.Warn("jump failed, loading newest page", "conversation", t.ConversationID, "target", t.TargetID, "err", err)

	v.lock.Lock()
	if !v.pager.Current(t) {
		v.lock.Unlock()
		return err
	}
	fallback := v.pager.BeginInitial()
	v.lock.Unlock()

	if ferr := v.load(ctx, scope, fallback); ferr != nil && !errors.Is(ferr, ErrSuperseded) {
		return errors.Join(err, ferr)
	}
	return err
}

// LoadOlder fetches the page before the oldest loaded message. A second call
// while one is in flight is rejected with ErrLoadInFlight.
func (v *View) LoadOlder(ctx context.Context) error {
	v.lock.Lock()
	if !v.open {
		v.lock.Unlock()
		return ErrNotOpen
	}
	t, ok := v.pager.BeginOlder()
	if !ok {
		state := v.pager.State()
		cursor := v.pager.Cursor()
		v.lock.Unlock()
		if state == paging.Exhausted || (state == paging.Idle && !cursor.HasMoreOlder) {
			return ErrExhausted
		}
		return ErrLoadInFlight
	}
	scope := v.scope
	v.lock.Unlock()
	return v.load(ctx, scope, t)
}

// load performs the fetch for t outside the lock and applies the result
// under it, discarding it if t was superseded meanwhile.
func (v *View) load(ctx context.Context, scope context.Context, t paging.Ticket) error {
	fctx, stop := linkContext(ctx, scope)
	defer stop()

	var (
		page types.Page
		err  error
	)
	if t.Kind == paging.KindJump {
		page, err = v.fetch.FetchAround(fctx, t.ConversationID, t.TargetID, t.Limit)
	} else {
		page, err = v.fetch.FetchPage(fctx, t.ConversationID, types.PageRequest{Cursor: t.Cursor, Limit: t.Limit})
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.pager.Current(t) {
		v.metrics.StaleDiscarded()
		v.log.Debug("discarding stale page", "conversation", t.ConversationID, "kind", t.Kind)
		return ErrSuperseded
	}
	if err != nil {
		v.pager.Fail(t)
		v.metrics.FetchFailed(t.Kind.String())
		return fmt.Errorf("load %s page for %s: %w", t.Kind, t.ConversationID, err)
	}

	v.pager.Complete(t, page)
	switch t.Kind {
	case paging.KindJump:
		v.replaceKeepingPending(page.Messages)
	default:
		v.store.InsertMany(page.Messages)
	}
	if t.Kind != paging.KindOlder {
		v.tracker.Loaded(v.store.Snapshot().Messages)
		v.publishUnread()
	}
	v.log.Debug("page loaded", "conversation", t.ConversationID, "kind", t.Kind, "count", len(page.Messages), "state", v.pager.State())
	return nil
}

// replaceKeepingPending swaps the stream for msgs but keeps unconfirmed sends.
func (v *View) replaceKeepingPending(msgs []types.Message) {
	var pending []types.Message
	for _, m := range v.store.Snapshot().Messages {
		if core.IsTransientID(m.ID) {
			pending = append(pending, m)
		}
	}
	v.store.ReplaceAll(msgs)
	v.store.InsertMany(pending)
}

func linkContext(ctx, scope context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(scope, cancel)
	return fctx, func() {
		stop()
		cancel()
	}
}

// SetAnchored feeds the viewport's bottom-anchoring into the read tracker.
func (v *View) SetAnchored(anchored bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if !v.open {
		return
	}
	v.tracker.SetAnchored(anchored, v.store.Snapshot().Messages)
	v.publishUnread()
}

// RefreshReadState reloads persisted counters after another process wrote them.
func (v *View) RefreshReadState() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.tracker.Refresh()
	v.publishUnread()
}

// Send inserts an optimistic message and emits it. The optimistic entry stays
// even if the emit fails; it is replaced when the server echoes it back.
func (v *View) Send(content string, files []types.Attachment) (types.Message, error) {
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return types.Message{}, ErrEmptyMessage
	}
	v.lock.Lock()
	if !v.open {
		v.lock.Unlock()
		return types.Message{}, ErrNotOpen
	}
	conv := v.store.ConversationID()
	now := v.opts.Now()
	msg := types.Message{
		ID:             core.GenerateTransientID(now),
		ConversationID: v.wireConversation(),
		SenderID:       v.opts.SelfID,
		SenderName:     v.opts.SelfName,
		Content:        content,
		CreatedAt:      now,
		Files:          files,
	}
	payload := wire.SendMessage{ConversationID: v.wireConversation(), Content: content, Files: files}
	if v.thread {
		msg.ParentID = conv
		payload.ParentID = conv
	}
	v.store.Insert(msg)
	v.lock.Unlock()

	if err := v.emit(types.EventSendMessage, payload); err != nil {
		return msg, err
	}
	return msg, nil
}

// Edit asks the server to change a message's content. The change is applied
// when the edit event comes back.
func (v *View) Edit(id, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	conv, err := v.confirmedTarget(id)
	if err != nil {
		return err
	}
	return v.emit(types.EventEditMessage, wire.EditMessage{ConversationID: conv, MessageID: id, Content: content})
}

func (v *View) Delete(id string) error {
	conv, err := v.confirmedTarget(id)
	if err != nil {
		return err
	}
	return v.emit(types.EventDeleteMessage, wire.MessageRef{ConversationID: conv, MessageID: id})
}

func (v *View) Pin(id string) error {
	conv, err := v.confirmedTarget(id)
	if err != nil {
		return err
	}
	return v.emit(types.EventPinMessage, wire.MessageRef{ConversationID: conv, MessageID: id})
}

func (v *View) Unpin(id string) error {
	conv, err := v.confirmedTarget(id)
	if err != nil {
		return err
	}
	return v.emit(types.EventUnpinMessage, wire.MessageRef{ConversationID: conv, MessageID: id})
}

// ToggleReaction flips this user's reaction locally, then emits it.
func (v *View) ToggleReaction(id, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("toggle reaction: empty emoji")
	}
	v.lock.Lock()
	if !v.open {
		v.lock.Unlock()
		return ErrNotOpen
	}
	if core.IsTransientID(id) {
		v.lock.Unlock()
		return ErrTransientID
	}
	v.engine.ToggleLocal(id, emoji, v.opts.SelfName)
	conv := v.wireConversation()
	v.lock.Unlock()
	return v.emit(types.EventReactMessage, wire.ReactMessage{ConversationID: conv, MessageID: id, Emoji: emoji})
}

// PurgeTransient drops every unconfirmed send, for when the server will never
// confirm them (for example after losing access to the conversation).
func (v *View) PurgeTransient() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	n := v.engine.PurgeTransient()
	if n > 0 {
		v.log.Info("purged unconfirmed messages", "conversation", v.store.ConversationID(), "count", n)
	}
	return n
}

// Close discards the stream and the session's divider. In-flight loads are
// cancelled and their results dropped.
func (v *View) Close() {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.open = false
	v.pager.Reset("")
	v.store.Reset("")
	v.tracker.End()
	v.publishUnread()
}

func (v *View) confirmedTarget(id string) (string, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if !v.open {
		return "", ErrNotOpen
	}
	if _, ok := core.NumericID(id); !ok {
		if core.IsTransientID(id) {
			return "", ErrTransientID
		}
		if id == "" {
			return "", fmt.Errorf("empty message id")
		}
	}
	return v.wireConversation(), nil
}

// wireConversation is the conversation id outbound frames carry.
func (v *View) wireConversation() string {
	if v.thread && v.channel != "" {
		return v.channel
	}
	return v.store.ConversationID()
}

func (v *View) emit(kind types.EventKind, payload any) error {
	if v.opts.Transport == nil {
		return fmt.Errorf("%s: %w", kind, ErrNoTransport)
	}
	if err := v.opts.Transport.Emit(kind, payload); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}
