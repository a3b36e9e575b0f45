package db

import (
	"context"
	"fmt"

	"github.com/keeeei13c/speedy-english-training/internal/models"
)

// HistoryStore holds one conversation history per session. Callers that need
// a read-modify-write sequence to be atomic must serialize per session
// themselves; the store only guarantees each call is consistent on its own.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	// Reset replaces the session's history with the single system turn.
	Reset(ctx context.Context, sessionID string, system models.Turn) error
	Append(ctx context.Context, sessionID string, turn models.Turn) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open returns the store for the configured backend.
func Open(backend, dsn string) (HistoryStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
