// Package reconcile collapses optimistic local messages into their
// server-confirmed counterparts and merges reaction updates.
package reconcile

import (
	"log/slog"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
)

// Outcome describes what Confirm did with an inbound message.
type Outcome int

const (
	// Inserted means no optimistic entry matched and the message was added.
	Inserted Outcome = iota
	// Replaced means an optimistic entry was swapped for the confirmed message.
	Replaced
	// Duplicate means the confirmed id was already loaded; nothing changed.
	Duplicate
	// Ignored means the message was unusable (no id).
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Result is returned by Confirm.
type Result struct {
	Outcome     Outcome
	TransientID string
	Message     types.Message
}

// Engine reconciles one store. It is not safe for concurrent use on its own;
// callers serialize access the same way they serialize store mutations.
type Engine struct {
	store  *store.Store
	selfID string
	log    *slog.Logger
}

// New creates an engine for st acting on behalf of selfID.
func New(st *store.Store, selfID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: st, selfID: selfID, log: logger}
}

// SelfID returns the user the engine treats as "this client".
func (e *Engine) SelfID() string {
	return e.selfID
}

// IsSelf reports whether msg was authored by this client's user.
func (e *Engine) IsSelf(msg types.Message) bool {
	return e.selfID != "" && msg.SenderID == e.selfID
}

// MatchOptimistic finds the newest self-authored transient entry whose content
// is byte-identical to msg's.
func (e *Engine) MatchOptimistic(msg types.Message) (types.Message, bool) {
	if !e.IsSelf(msg) {
		return types.Message{}, false
	}
	return e.store.FindLast(func(m types.Message) bool {
		return m.SenderID == e.selfID && core.IsTransientID(m.ID) && m.Content == msg.Content
	})
}

// Confirm applies a server-confirmed message, whether it came from a push
// event or a direct send acknowledgement. A matching optimistic entry is
// replaced in place; otherwise the message is inserted unless its id is
// already present.
func (e *Engine) Confirm(msg types.Message) Result {
	if msg.ID == "" || core.IsTransientID(msg.ID) {
		e.log.Debug("reconcile_ignored", "reason", "unconfirmed id", "id", msg.ID)
		return Result{Outcome: Ignored, Message: msg}
	}

	if match, ok := e.MatchOptimistic(msg); ok {
		if e.store.Replace(match.ID, msg) {
			e.log.Debug("reconcile_replaced", "transient_id", match.ID, "id", msg.ID)
			return Result{Outcome: Replaced, TransientID: match.ID, Message: msg}
		}
	}

	if e.store.Insert(msg) {
		return Result{Outcome: Inserted, Message: msg}
	}
	e.log.Debug("reconcile_duplicate", "id", msg.ID)
	return Result{Outcome: Duplicate, Message: msg}
}

// PurgeTransient removes every optimistic entry this client still holds.
// Used when the server tells us our pending sends will never be confirmed.
func (e *Engine) PurgeTransient() int {
	return e.store.RemoveWhere(func(m types.Message) bool {
		return core.IsTransientID(m.ID)
	})
}
