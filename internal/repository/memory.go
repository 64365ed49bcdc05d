package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bookfront/internal/models"
)

// MemorySessionRepository keeps serialized copies so callers never share a
// session pointer, matching the Redis behaviour.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]memoryEntry
	rateLimits map[string]*rateLimitEntry
	attempts   map[string]time.Time
	ttl        time.Duration
	now        func() time.Time
	nextSweep  time.Time
}

// sweepInterval bounds how often writes scan the maps for expired entries.
const sweepInterval = time.Minute

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]memoryEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		attempts:   make(map[string]time.Time),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, id string) (*models.WizardSession, error) {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if ok && r.expired(entry.expiresAt) {
		delete(r.sessions, id)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var session models.WizardSession
	if err := json.Unmarshal(entry.data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.EnsureCart()
	return &session, nil
}

func (r *MemorySessionRepository) SaveSession(ctx context.Context, session *models.WizardSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.sessions[session.ID] = memoryEntry{data: data, expiresAt: r.deadline(r.ttl)}
	return nil
}

func (r *MemorySessionRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}

func (r *MemorySessionRepository) ClaimAttempt(ctx context.Context, attemptID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	if expiresAt, ok := r.attempts[attemptID]; ok && !r.expired(expiresAt) {
		return false, nil
	}
	r.attempts[attemptID] = r.deadline(ttl)
	return true, nil
}

// deadline of zero means no expiry
func (r *MemorySessionRepository) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemorySessionRepository) expired(at time.Time) bool {
	return !at.IsZero() && r.now().After(at)
}

// sweepLocked drops every expired entry.
// Caller holds r.mu.
func (r *MemorySessionRepository) sweepLocked() {
	now := r.now()
	if now.Before(r.nextSweep) {
		return
	}
	r.nextSweep = now.Add(sweepInterval)

	for id, entry := range r.sessions {
		if r.expired(entry.expiresAt) {
			delete(r.sessions, id)
		}
	}
	for key, entry := range r.rateLimits {
		if now.After(entry.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
	for id, expiresAt := range r.attempts {
		if r.expired(expiresAt) {
			delete(r.attempts, id)
		}
	}
}
