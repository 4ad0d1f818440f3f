package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinical-decision-support-server/internal/domain"
)

const (
	defaultMemoryItems = 1024
	defaultMemoryTTL   = time.Hour
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore is an in-process session cache bounded by item count. Records are
// stored serialized so callers never share mutable state with the cache.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemorySessionStore creates a store holding at most size records. maxTTL caps how long
// any record survives regardless of the TTL it was saved with.
func NewMemorySessionStore(size int, maxTTL time.Duration) *MemorySessionStore {
	if size <= 0 {
		size = defaultMemoryItems
	}
	if maxTTL <= 0 {
		maxTTL = defaultMemoryTTL
	}
	return &MemorySessionStore{
		entries: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now:     time.Now,
	}
}

// SaveSession writes the record once; see RedisSessionStore.SaveSession.
func (s *MemorySessionStore) SaveSession(_ context.Context, record *domain.SessionRecord, ttl time.Duration) error {
	if record == nil || record.SessionID == "" {
		return domain.NewValidationError("sessionId", "session id is required", nil)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries.Get(record.SessionID); ok && !existing.expired(now) {
		return fmt.Errorf("session %s: %w", record.SessionID, domain.ErrSessionExists)
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.entries.Add(record.SessionID, entry)
	return nil
}

// GetSession returns a fresh copy of the stored record
func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*domain.SessionRecord, error) {
	s.mu.Lock()
	entry, ok := s.entries.Get(sessionID)
	if ok && entry.expired(s.now()) {
		s.entries.Remove(sessionID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	var record domain.SessionRecord
	if err := json.Unmarshal(entry.data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &record, nil
}

// Len reports how many records are held, including ones not yet swept after expiry
func (s *MemorySessionStore) Len() int {
	return s.entries.Len()
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
