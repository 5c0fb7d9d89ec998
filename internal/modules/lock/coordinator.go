// README: Lock coordinator; grants, heartbeats, and releases edit leases.
package lock

import (
	"context"
	"time"
)

// Coordinator arbitrates exclusive manual-edit access to a resource. The
// injected store is the single source of truth for lease state; leases are
// never renewed automatically, the holder must heartbeat via Extend faster
// than the TTL or the lease lapses.
type Coordinator struct {
	store Store
	ttl   time.Duration
}

func NewCoordinator(store Store, ttl time.Duration) *Coordinator {
	return &Coordinator{store: store, ttl: ttl}
}

func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// Acquire grants a lease on the resource, idempotently for the same owner.
// On ErrLeaseHeld the returned lease describes the current holder.
func (c *Coordinator) Acquire(ctx context.Context, resourceKey, ownerID, ownerName string) (*Lease, error) {
	return c.store.Acquire(ctx, resourceKey, ownerID, ownerName, c.ttl)
}

// Extend heartbeats the lease. A failure means the caller no longer holds
// exclusivity and must re-synchronize before further writes.
func (c *Coordinator) Extend(ctx context.Context, resourceKey, ownerID string) (*Lease, error) {
	return c.store.Extend(ctx, resourceKey, ownerID, c.ttl)
}

// Release drops the lease. Releasing an already-expired lease is a no-op.
func (c *Coordinator) Release(ctx context.Context, resourceKey, ownerID string) error {
	return c.store.Release(ctx, resourceKey, ownerID)
}

// Holder returns the current unexpired lease, or nil when the resource is
// free. Automated mutation paths consult this before touching a session.
func (c *Coordinator) Holder(ctx context.Context, resourceKey string) (*Lease, error) {
	return c.store.Get(ctx, resourceKey)
}

// HeldBy reports whether ownerID currently holds the resource.
func (c *Coordinator) HeldBy(ctx context.Context, resourceKey, ownerID string) (bool, error) {
	lease, err := c.store.Get(ctx, resourceKey)
	if err != nil {
		return false, err
	}
	return lease != nil && lease.OwnerID == ownerID, nil
}
