package chatstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/parley/pkg/chat"
)

// MemoryQueryCache is a mutex-guarded in-process cache store. Used by tests
// and by deployments that run without a database for the cache.
type MemoryQueryCache struct {
	mu      sync.Mutex
	entries map[memoryCacheKey]*chat.CacheEntry
	now     func() time.Time
}

type memoryCacheKey struct {
	questionHash   string
	userID         string
	conversationID string
}

var _ QueryCacheStore = &MemoryQueryCache{}

func NewMemoryQueryCache() *MemoryQueryCache {
	return &MemoryQueryCache{
		entries: map[memoryCacheKey]*chat.CacheEntry{},
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (m *MemoryQueryCache) SetNowFunc(now func() time.Time) { m.now = now }

func (m *MemoryQueryCache) Lookup(_ context.Context, questionHash, userID, conversationID string) (*chat.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[memoryCacheKey{questionHash, userID, conversationID}]
	if !ok || entry.Expired(m.now()) {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (m *MemoryQueryCache) Insert(_ context.Context, entry chat.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryCacheKey{entry.QuestionHash, entry.UserID, entry.ConversationID}
	if _, exists := m.entries[key]; exists {
		return nil
	}
	if entry.HitCount <= 0 {
		entry.HitCount = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.entries[key] = &entry
	return nil
}

func (m *MemoryQueryCache) RecordHit(_ context.Context, questionHash, userID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[memoryCacheKey{questionHash, userID, conversationID}]; ok {
		entry.HitCount++
	}
	return nil
}
