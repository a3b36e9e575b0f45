package db

import (
	"context"
	"sync"

	"github.com/keeeei13c/speedy-english-training/internal/models"
)

// MemoryStore keeps histories in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]models.Turn),
	}
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context, sessionID string, system models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = []models.Turn{system}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
