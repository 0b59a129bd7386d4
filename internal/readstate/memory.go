package readstate

import (
	"sort"
	"sync"

	"github.com/adamavenir/streamsync/internal/types"
)

type memoryEntry struct {
	lastRead    int64
	hasLastRead bool
	unread      int
}

// Memory keeps read state for the life of the process only.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

func (m *Memory) entry(conversationID string) *memoryEntry {
	e, ok := m.entries[conversationID]
	if !ok {
		e = &memoryEntry{}
		m.entries[conversationID] = e
	}
	return e
}

func (m *Memory) LastRead(conversationID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[conversationID]
	if !ok || !e.hasLastRead {
		return 0, false, nil
	}
	return e.lastRead, true, nil
}

func (m *Memory) SetLastRead(conversationID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(conversationID)
	if e.hasLastRead && id <= e.lastRead {
		return false, nil
	}
	e.lastRead = id
	e.hasLastRead = true
	return true, nil
}

func (m *Memory) UnreadCount(conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[conversationID]; ok {
		return e.unread, nil
	}
	return 0, nil
}

func (m *Memory) SetUnreadCount(conversationID string, count int) error {
	if count < 0 {
		count = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(conversationID).unread = count
	return nil
}

func (m *Memory) IncrementUnreadCount(conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(conversationID)
	e.unread++
	return e.unread, nil
}

func (m *Memory) ClearUnreadCount(conversationID string) error {
	return m.SetUnreadCount(conversationID, 0)
}

func (m *Memory) Delete(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, conversationID)
	return nil
}

func (m *Memory) List() ([]types.ReadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ReadState, 0, len(m.entries))
	for conv, e := range m.entries {
		out = append(out, types.ReadState{
			ConversationID: conv,
			LastReadID:     e.lastRead,
			HasLastRead:    e.hasLastRead,
			UnreadCount:    e.unread,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
