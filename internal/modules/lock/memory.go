// README: In-memory lease store; mirrors the redis semantics under a mutex.
package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore backs the coordinator in tests and single-node deployments.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]Lease

	// now is swappable so tests can move time instead of sleeping.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[string]Lease),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Acquire(_ context.Context, key, ownerID, ownerName string, ttl time.Duration) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.leases[key]; ok && cur.ExpiresAt.After(now) && cur.OwnerID != ownerID {
		holder := cur
		return &holder, ErrLeaseHeld
	}
	lease := Lease{ResourceKey: key, OwnerID: ownerID, OwnerName: ownerName, ExpiresAt: now.Add(ttl)}
	s.leases[key] = lease
	return &lease, nil
}

func (s *MemoryStore) Extend(_ context.Context, key, ownerID string, ttl time.Duration) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur, ok := s.leases[key]
	if !ok || !cur.ExpiresAt.After(now) {
		delete(s.leases, key)
		return nil, ErrLeaseExpired
	}
	if cur.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	cur.ExpiresAt = now.Add(ttl)
	s.leases[key] = cur
	return &cur, nil
}

func (s *MemoryStore) Release(_ context.Context, key, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[key]
	if !ok || !cur.ExpiresAt.After(s.now()) {
		delete(s.leases, key)
		return nil
	}
	if cur.OwnerID != ownerID {
		return ErrNotOwner
	}
	delete(s.leases, key)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[key]
	if !ok || !cur.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	holder := cur
	return &holder, nil
}
