package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keeeei13c/speedy-english-training/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS turns_session_idx ON turns(session_id, id);`

// SQLiteStore keeps histories in a sqlite database, one row per turn.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT role, content
        FROM turns
        WHERE session_id = ?
        ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Reset(ctx context.Context, sessionID string, system models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO turns (session_id, role, content, created_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)`, sessionID, system.Role, system.Content); err != nil {
		return fmt.Errorf("failed to insert system turn: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO turns (session_id, role, content, created_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)`, sessionID, turn.Role, turn.Content)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
