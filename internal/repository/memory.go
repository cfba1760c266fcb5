package repository

import (
	"context"
	"sync"
	"time"

	"agenda/internal/models"
)

// MemorySessionRepository is the in-process session store used when Redis is unavailable.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]*models.Session),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, tokenID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[tokenID]
	if !ok {
		return nil, nil
	}
	if s.Expired(r.now()) {
		delete(r.sessions, tokenID)
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *MemorySessionRepository) SetSession(_ context.Context, session *models.Session) error {
	copied := *session
	if copied.ExpiresAt.IsZero() && r.ttl > 0 {
		copied.ExpiresAt = r.now().Add(r.ttl)
	}

	r.mu.Lock()
	r.sessions[session.TokenID] = &copied
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, tokenID string) error {
	r.mu.Lock()
	delete(r.sessions, tokenID)
	r.mu.Unlock()
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
