package readstate

import (
	"errors"
	"strings"
	"sync"

	"github.com/adamavenir/streamsync/internal/types"
	"github.com/cockroachdb/pebble"
)

// Pebble stores read state in an embedded Pebble key-value directory.
type Pebble struct {
	mu   sync.Mutex
	db   *pebble.DB
	path string
}

// OpenPebble opens (or creates) a Pebble database at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db, path: path}, nil
}

const pebblePrefix = "readstate:"

func pebbleKey(conversationID string) []byte {
	return []byte(pebblePrefix + conversationID)
}

func (p *Pebble) get(conversationID string) (types.ReadState, error) {
	value, closer, err := p.db.Get(pebbleKey(conversationID))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.ReadState{ConversationID: conversationID}, nil
	}
	if err != nil {
		return types.ReadState{}, err
	}
	defer closer.Close()
	// value is only valid until closer.Close; decodeState copies out of it.
	return decodeState(conversationID, value)
}

func (p *Pebble) update(conversationID string, fn mutation) (types.ReadState, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.get(conversationID)
	if err != nil {
		return types.ReadState{}, false, err
	}
	if !fn(&state) {
		return state, false, nil
	}
	encoded, err := encodeState(state)
	if err != nil {
		return types.ReadState{}, false, err
	}
	if err := p.db.Set(pebbleKey(conversationID), encoded, pebble.Sync); err != nil {
		return types.ReadState{}, false, err
	}
	return state, true, nil
}

func (p *Pebble) LastRead(conversationID string) (int64, bool, error) {
	state, err := p.get(conversationID)
	if err != nil {
		return 0, false, err
	}
	return state.LastReadID, state.HasLastRead, nil
}

func (p *Pebble) SetLastRead(conversationID string, id int64) (bool, error) {
	_, changed, err := p.update(conversationID, advanceLastRead(id))
	return changed, err
}

func (p *Pebble) UnreadCount(conversationID string) (int, error) {
	state, err := p.get(conversationID)
	if err != nil {
		return 0, err
	}
	return state.UnreadCount, nil
}

func (p *Pebble) SetUnreadCount(conversationID string, count int) error {
	_, _, err := p.update(conversationID, setUnread(count))
	return err
}

func (p *Pebble) IncrementUnreadCount(conversationID string) (int, error) {
	state, _, err := p.update(conversationID, incrementUnread)
	if err != nil {
		return 0, err
	}
	return state.UnreadCount, nil
}

func (p *Pebble) ClearUnreadCount(conversationID string) error {
	return p.SetUnreadCount(conversationID, 0)
}

func (p *Pebble) Delete(conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Delete(pebbleKey(conversationID), pebble.Sync)
}

// List scans every record under the read state prefix.
func (p *Pebble) List() ([]types.ReadState, error) {
	prefix := []byte(pebblePrefix)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []types.ReadState
	for iter.First(); iter.Valid(); iter.Next() {
		conv := strings.TrimPrefix(string(iter.Key()), pebblePrefix)
		state, err := decodeState(conv, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, iter.Error()
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
