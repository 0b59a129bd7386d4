package db

import "database/sql"

const schemaSQL = `
-- Per-conversation read position and unread counter
CREATE TABLE IF NOT EXISTS streamsync_read_state (
  conversation_id TEXT PRIMARY KEY,    -- channel id or thread parent id
  last_read_id INTEGER,                -- highest confirmed message id seen, null if never set
  unread_count INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL          -- unix millis of last write
);
`

// InitSchema creates the read-state tables if they do not exist.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SchemaExists reports whether the read-state schema is present.
func SchemaExists(db DBTX) (bool, error) {
	row := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='streamsync_read_state'
	`)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
