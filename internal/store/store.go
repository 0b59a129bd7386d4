// Package store holds the ordered message collection for one conversation scope.
//
// Every mutation reads the current snapshot, builds the next one and publishes
// it in a single step. Published snapshots are never modified afterwards, so a
// renderer can hold on to one while the store keeps moving.
package store

import (
	"sort"
	"sync"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/types"
)

// Snapshot is an immutable, ordered view of a conversation's messages.
// Callers must not modify Messages or anything reachable from it.
type Snapshot struct {
	ConversationID string
	Version        uint64
	Messages       []types.Message
}

// Len returns the number of messages in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Messages)
}

// Index returns the position of id, or -1.
func (s Snapshot) Index(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Observer is called after every published change. Observers may read the
// store but must not mutate it.
type Observer func(Snapshot)

// Store is the canonical message list for one conversation.
type Store struct {
	pubMu     sync.Mutex // serializes mutate+notify
	mu        sync.RWMutex
	current   Snapshot
	observers map[int]Observer
	nextObs   int
}

// New creates an empty store scoped to conversationID.
func New(conversationID string) *Store {
	return &Store{
		current:   Snapshot{ConversationID: conversationID},
		observers: make(map[int]Observer),
	}
}

// Snapshot returns the current ordered view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ConversationID returns the scope the store currently holds.
func (s *Store) ConversationID() string {
	return s.Snapshot().ConversationID
}

// Observe registers fn for change notifications and returns a function that removes it.
func (s *Store) Observe(fn Observer) func() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.pubMu.Lock()
		defer s.pubMu.Unlock()
		delete(s.observers, id)
	}
}

// update runs fn against the current messages. fn returns the next message
// list and whether anything changed; unchanged results are not published.
func (s *Store) update(fn func(cur Snapshot) ([]types.Message, string, bool)) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	cur := s.Snapshot()
	next, conversationID, changed := fn(cur)
	if !changed {
		return false
	}
	snap := Snapshot{
		ConversationID: conversationID,
		Version:        cur.Version + 1,
		Messages:       next,
	}
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	for _, obs := range s.observers {
		obs(snap)
	}
	return true
}

// Reset empties the store and rescopes it to conversationID.
func (s *Store) Reset(conversationID string) {
	s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		return nil, conversationID, true
	})
}

// Insert adds msg in createdAt order. Equal timestamps keep arrival order.
// Inserting an id that is already present is a no-op.
func (s *Store) Insert(msg types.Message) bool {
	return s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		if cur.Index(msg.ID) >= 0 {
			return nil, "", false
		}
		return insertSorted(copyMessages(cur.Messages, 1), msg.Clone()), cur.ConversationID, true
	})
}

// InsertMany merges msgs into the stream, skipping ids already present.
// It returns the number of messages added.
func (s *Store) InsertMany(msgs []types.Message) int {
	added := 0
	s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		next := copyMessages(cur.Messages, len(msgs))
		seen := make(map[string]bool, len(next)+len(msgs))
		for _, m := range next {
			seen[m.ID] = true
		}
		for _, m := range msgs {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			next = insertSorted(next, m.Clone())
			added++
		}
		return next, cur.ConversationID, added > 0
	})
	return added
}

// ReplaceAll swaps the whole stream for msgs, deduplicated and sorted.
func (s *Store) ReplaceAll(msgs []types.Message) {
	s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		next := make([]types.Message, 0, len(msgs))
		seen := make(map[string]bool, len(msgs))
		for _, m := range msgs {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			next = insertSorted(next, m.Clone())
		}
		return next, cur.ConversationID, true
	})
}

// Replace swaps the entry at oldID for msg in one step. The entry keeps its
// position unless msg.CreatedAt no longer fits there, in which case it moves
// to its sorted position. If msg.ID is already held by another entry, the
// old entry is dropped so no duplicate appears. A missing oldID is a no-op.
func (s *Store) Replace(oldID string, msg types.Message) bool {
	return s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		idx := cur.Index(oldID)
		if idx < 0 {
			return nil, "", false
		}
		next := copyMessages(cur.Messages, 0)
		if msg.ID != oldID {
			if cur.Index(msg.ID) >= 0 {
				return removeAt(next, idx), cur.ConversationID, true
			}
		}
		replacement := msg.Clone()
		if fitsAt(next, idx, replacement) {
			next[idx] = replacement
			return next, cur.ConversationID, true
		}
		next = removeAt(next, idx)
		return insertSorted(next, replacement), cur.ConversationID, true
	})
}

// Remove deletes id. A missing id is a no-op.
func (s *Store) Remove(id string) bool {
	return s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		idx := cur.Index(id)
		if idx < 0 {
			return nil, "", false
		}
		return removeAt(copyMessages(cur.Messages, 0), idx), cur.ConversationID, true
	})
}

// RemoveWhere deletes every message matching pred and returns how many went.
func (s *Store) RemoveWhere(pred func(types.Message) bool) int {
	removed := 0
	s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		next := make([]types.Message, 0, len(cur.Messages))
		for _, m := range cur.Messages {
			if pred(m) {
				removed++
				continue
			}
			next = append(next, m)
		}
		return next, cur.ConversationID, removed > 0
	})
	return removed
}

// Mutate applies a field-level patch to id. The patch works on a private copy;
// id, conversation and createdAt are restored afterwards so identity and order
// never change. Reactions left with a zero count are dropped.
// A missing id is a no-op.
func (s *Store) Mutate(id string, patch func(*types.Message)) bool {
	return s.update(func(cur Snapshot) ([]types.Message, string, bool) {
		idx := cur.Index(id)
		if idx < 0 {
			return nil, "", false
		}
		next := copyMessages(cur.Messages, 0)
		orig := next[idx]
		edited := orig.Clone()
		patch(&edited)
		edited.ID = orig.ID
		edited.ConversationID = orig.ConversationID
		edited.CreatedAt = orig.CreatedAt
		edited.Reactions = dropEmptyReactions(edited.Reactions)
		next[idx] = edited
		return next, cur.ConversationID, true
	})
}

// Get returns a copy of the message with id.
func (s *Store) Get(id string) (types.Message, bool) {
	snap := s.Snapshot()
	idx := snap.Index(id)
	if idx < 0 {
		return types.Message{}, false
	}
	return snap.Messages[idx].Clone(), true
}

// Has reports whether id is loaded.
func (s *Store) Has(id string) bool {
	return s.Snapshot().Index(id) >= 0
}

// FindLast returns the newest message matching pred.
func (s *Store) FindLast(pred func(types.Message) bool) (types.Message, bool) {
	snap := s.Snapshot()
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if pred(snap.Messages[i]) {
			return snap.Messages[i].Clone(), true
		}
	}
	return types.Message{}, false
}

// HighestNumericID returns the largest confirmed id in the stream.
func (s *Store) HighestNumericID() (int64, bool) {
	return HighestNumericID(s.Snapshot().Messages)
}

// HighestNumericID returns the largest confirmed id among msgs.
func HighestNumericID(msgs []types.Message) (int64, bool) {
	var best int64
	found := false
	for _, m := range msgs {
		n, ok := core.NumericID(m.ID)
		if !ok {
			continue
		}
		if !found || n > best {
			best = n
			found = true
		}
	}
	return best, found
}

func copyMessages(msgs []types.Message, extra int) []types.Message {
	out := make([]types.Message, len(msgs), len(msgs)+extra)
	copy(out, msgs)
	return out
}

// insertSorted places msg after every entry whose createdAt is not later than its own.
func insertSorted(msgs []types.Message, msg types.Message) []types.Message {
	idx := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(msg.CreatedAt)
	})
	msgs = append(msgs, types.Message{})
	copy(msgs[idx+1:], msgs[idx:])
	msgs[idx] = msg
	return msgs
}

func removeAt(msgs []types.Message, idx int) []types.Message {
	return append(msgs[:idx], msgs[idx+1:]...)
}

func fitsAt(msgs []types.Message, idx int, msg types.Message) bool {
	if idx > 0 && msgs[idx-1].CreatedAt.After(msg.CreatedAt) {
		return false
	}
	if idx+1 < len(msgs) && msg.CreatedAt.After(msgs[idx+1].CreatedAt) {
		return false
	}
	return true
}

func dropEmptyReactions(reactions []types.Reaction) []types.Reaction {
	if reactions == nil {
		return nil
	}
	out := reactions[:0]
	for _, r := range reactions {
		if r.Count <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
