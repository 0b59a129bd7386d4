// Package reads tracks what the user has seen in one conversation: the
// persisted watermark, the persisted unread counter, and the session's
// new-messages divider.
package reads

import (
	"log/slog"
	"sync"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
)

// Tracker is scoped to one open conversation at a time. Persistence errors are
// logged and swallowed; the in-memory state keeps going.
type Tracker struct {
	mu     sync.Mutex
	st     readstate.Store
	selfID string
	log    *slog.Logger

	conversationID string
	openMark       int64
	hasOpenMark    bool
	placed         bool
	dividerID      string
	unread         int
	anchored       bool
}

// New returns a tracker backed by st.
func New(st readstate.Store, selfID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{st: st, selfID: selfID, log: logger}
}

// Begin starts a session for conversationID. It snapshots the watermark as it
// stands now; the snapshot is only used to place the divider.
func (t *Tracker) Begin(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conversationID = conversationID
	t.openMark, t.hasOpenMark = 0, false
	t.placed = false
	t.dividerID = ""
	t.unread = 0
	t.anchored = false

	id, ok, err := t.st.LastRead(conversationID)
	if err != nil {
		t.log.Warn("read state: load watermark", "conversation", conversationID, "err", err)
	} else if ok {
		t.openMark, t.hasOpenMark = id, true
	}
	n, err := t.st.UnreadCount(conversationID)
	if err != nil {
		t.log.Warn("read state: load unread count", "conversation", conversationID, "err", err)
	} else {
		t.unread = n
	}
}

// Loaded places the divider from the first page of a session. Later calls are
// ignored so older pages never move it.
func (t *Tracker) Loaded(msgs []types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.placed || t.conversationID == "" {
		return
	}
	t.placed = true

	if !t.hasOpenMark {
		// Nothing recorded yet: treat what is on screen as read.
		if highest, ok := store.HighestNumericID(msgs); ok {
			t.advance(highest)
		}
		return
	}
	// A live arrival during the fetch may already hold the divider; an older
	// unread message from the page comes first.
	for _, msg := range msgs {
		id, ok := core.NumericID(msg.ID)
		if !ok || id <= t.openMark {
			continue
		}
		if cur, ok := core.NumericID(t.dividerID); !ok || id < cur {
			t.dividerID = msg.ID
		}
		return
	}
}

// Arrived accounts for a confirmed message entering the stream while the
// session is live.
func (t *Tracker) Arrived(msg types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversationID == "" {
		return
	}
	id, ok := core.NumericID(msg.ID)
	if !ok {
		return
	}
	if msg.SenderID == t.selfID || t.anchored {
		t.advance(id)
		return
	}
	n, err := t.st.IncrementUnreadCount(t.conversationID)
	if err != nil {
		t.log.Warn("read state: increment unread", "conversation", t.conversationID, "err", err)
		t.unread++
	} else {
		t.unread = n
	}
	if t.dividerID == "" {
		t.dividerID = msg.ID
	}
}

// SetAnchored records whether the viewport sits at the bottom. Entering the
// anchored state with unread messages marks everything in stream read. It
// reports whether the unread counter was cleared.
func (t *Tracker) SetAnchored(anchored bool, stream []types.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.anchored
	t.anchored = anchored
	if !anchored || was || t.unread == 0 || t.conversationID == "" {
		return false
	}
	if err := t.st.ClearUnreadCount(t.conversationID); err != nil {
		t.log.Warn("read state: clear unread", "conversation", t.conversationID, "err", err)
	}
	t.unread = 0
	if highest, ok := store.HighestNumericID(stream); ok {
		t.advance(highest)
	}
	return true
}

// Refresh reloads the persisted counter, for when another process wrote it.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversationID == "" {
		return
	}
	n, err := t.st.UnreadCount(t.conversationID)
	if err != nil {
		t.log.Warn("read state: refresh unread", "conversation", t.conversationID, "err", err)
		return
	}
	t.unread = n
}

// End closes the session. The divider goes with it.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversationID = ""
	t.dividerID = ""
	t.placed = false
	t.unread = 0
	t.anchored = false
}

func (t *Tracker) advance(id int64) {
	moved, err := t.st.SetLastRead(t.conversationID, id)
	if err != nil {
		t.log.Warn("read state: advance watermark", "conversation", t.conversationID, "id", id, "err", err)
		return
	}
	if moved {
		t.log.Debug("read state: watermark advanced", "conversation", t.conversationID, "id", id)
	}
}

// DividerID is the session's first unread message, or "".
func (t *Tracker) DividerID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dividerID
}

func (t *Tracker) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// OpenMark returns the watermark captured by Begin.
func (t *Tracker) OpenMark() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openMark, t.hasOpenMark
}

// LastRead returns the persisted watermark.
func (t *Tracker) LastRead() (int64, bool) {
	t.mu.Lock()
	conv := t.conversationID
	t.mu.Unlock()
	if conv == "" {
		return 0, false
	}
	id, ok, err := t.st.LastRead(conv)
	if err != nil {
		t.log.Warn("read state: load watermark", "conversation", conv, "err", err)
		return 0, false
	}
	return id, ok
}
