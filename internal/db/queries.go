package db

import (
	"database/sql"
	"time"

	"github.com/adamavenir/streamsync/internal/types"
)

// GetReadState returns the stored read state for a conversation, or nil.
func GetReadState(db DBTX, conversationID string) (*types.ReadState, error) {
	row := db.QueryRow(`
		SELECT conversation_id, last_read_id, unread_count, updated_at
		FROM streamsync_read_state
		WHERE conversation_id = ?
	`, conversationID)
	var (
		state    types.ReadState
		lastRead sql.NullInt64
	)
	if err := row.Scan(&state.ConversationID, &lastRead, &state.UnreadCount, &state.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	state.LastReadID = lastRead.Int64
	state.HasLastRead = lastRead.Valid
	return &state, nil
}

// ListReadStates returns every stored read state, newest write first.
func ListReadStates(db DBTX) ([]types.ReadState, error) {
	rows, err := db.Query(`
		SELECT conversation_id, last_read_id, unread_count, updated_at
		FROM streamsync_read_state
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ReadState
	for rows.Next() {
		var (
			state    types.ReadState
			lastRead sql.NullInt64
		)
		if err := rows.Scan(&state.ConversationID, &lastRead, &state.UnreadCount, &state.UpdatedAt); err != nil {
			return nil, err
		}
		state.LastReadID = lastRead.Int64
		state.HasLastRead = lastRead.Valid
		results = append(results, state)
	}
	return results, rows.Err()
}

// SetLastRead advances the watermark. Writes that would not raise it are
// ignored; the return value reports whether the row moved.
func SetLastRead(db DBTX, conversationID string, messageID int64) (bool, error) {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO streamsync_read_state (conversation_id, last_read_id, unread_count, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_read_id = excluded.last_read_id,
			updated_at = excluded.updated_at
		WHERE streamsync_read_state.last_read_id IS NULL
			OR excluded.last_read_id > streamsync_read_state.last_read_id
	`, conversationID, messageID, now)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetUnreadCount stores count as the conversation's unread counter.
func SetUnreadCount(db DBTX, conversationID string, count int) error {
	if count < 0 {
		count = 0
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO streamsync_read_state (conversation_id, last_read_id, unread_count, updated_at)
		VALUES (?, NULL, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at
	`, conversationID, count, now)
	return err
}

// IncrementUnreadCount bumps the counter by one and returns the new value.
func IncrementUnreadCount(db DBTX, conversationID string) (int, error) {
	now := time.Now().UnixMilli()
	row := db.QueryRow(`
		INSERT INTO streamsync_read_state (conversation_id, last_read_id, unread_count, updated_at)
		VALUES (?, NULL, 1, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			unread_count = streamsync_read_state.unread_count + 1,
			updated_at = excluded.updated_at
		RETURNING unread_count
	`, conversationID, now)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteReadState removes everything stored for a conversation.
func DeleteReadState(db DBTX, conversationID string) error {
	_, err := db.Exec(`DELETE FROM streamsync_read_state WHERE conversation_id = ?`, conversationID)
	return err
}
