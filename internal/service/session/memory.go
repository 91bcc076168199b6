package session

import (
	"context"
	"sync"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// NewMemoryStore keeps records in process. A zero ttl never expires them.
func NewMemoryStore(ttl time.Duration, log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Named("session.memory"),
	}
}

func (s *MemoryStore) Save(_ context.Context, id string, rec Record) error {
	entry := memoryEntry{rec: rec}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	s.logger.Debug("saved session record", "session_id", id, "filename", rec.Artifact.Filename)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, notFound()
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, notFound()
	}

	rec := entry.rec
	return &rec, nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}
