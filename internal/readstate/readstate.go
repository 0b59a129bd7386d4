// Package readstate persists per-conversation read watermarks and unread
// counters outside the process lifetime.
package readstate

import (
	"fmt"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/types"
)

// Store is the persistence contract used by the read tracker. Watermark
// writes are monotonic: SetLastRead ignores values that do not raise the
// stored id and reports whether it moved.
type Store interface {
	LastRead(conversationID string) (id int64, ok bool, err error)
	SetLastRead(conversationID string, id int64) (bool, error)
	UnreadCount(conversationID string) (int, error)
	SetUnreadCount(conversationID string, count int) error
	IncrementUnreadCount(conversationID string) (int, error)
	ClearUnreadCount(conversationID string) error
	Close() error
}

// Deleter is implemented by backends that can forget a conversation.
type Deleter interface {
	Delete(conversationID string) error
}

// Lister is implemented by backends that can enumerate what they hold.
type Lister interface {
	List() ([]types.ReadState, error)
}

// Open builds the backend selected by cfg.
func Open(cfg core.ReadStateConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "pebble":
		return OpenPebble(cfg.Path)
	case "redis":
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown read state backend %q", cfg.Backend)
	}
}
