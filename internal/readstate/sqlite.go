package readstate

import (
	"database/sql"

	"github.com/adamavenir/streamsync/internal/db"
	"github.com/adamavenir/streamsync/internal/types"
)

// SQLite stores read state in a local SQLite file.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := db.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{conn: conn, path: path}, nil
}

// Path returns the database file, for watchers.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) LastRead(conversationID string) (int64, bool, error) {
	state, err := db.GetReadState(s.conn, conversationID)
	if err != nil || state == nil {
		return 0, false, err
	}
	return state.LastReadID, state.HasLastRead, nil
}

func (s *SQLite) SetLastRead(conversationID string, id int64) (bool, error) {
	return db.SetLastRead(s.conn, conversationID, id)
}

func (s *SQLite) UnreadCount(conversationID string) (int, error) {
	state, err := db.GetReadState(s.conn, conversationID)
	if err != nil || state == nil {
		return 0, err
	}
	return state.UnreadCount, nil
}

func (s *SQLite) SetUnreadCount(conversationID string, count int) error {
	return db.SetUnreadCount(s.conn, conversationID, count)
}

func (s *SQLite) IncrementUnreadCount(conversationID string) (int, error) {
	return db.IncrementUnreadCount(s.conn, conversationID)
}

func (s *SQLite) ClearUnreadCount(conversationID string) error {
	return db.SetUnreadCount(s.conn, conversationID, 0)
}

func (s *SQLite) Delete(conversationID string) error {
	return db.DeleteReadState(s.conn, conversationID)
}

// List returns every conversation's state, most recently written first.
func (s *SQLite) List() ([]types.ReadState, error) {
	return db.ListReadStates(s.conn)
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}
