package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session histories in a local SQLite database, for
// deployments that want chat context to survive a restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		batch TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id, id);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, batch json.RawMessage) error {
	query := `INSERT INTO history (session_id, batch) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, sessionID, string(batch)); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]json.RawMessage, error) {
	query := `SELECT batch FROM history WHERE session_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var batches []json.RawMessage
	for rows.Next() {
		var batch string
		if err := rows.Scan(&batch); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, json.RawMessage(batch))
	}
	return batches, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
