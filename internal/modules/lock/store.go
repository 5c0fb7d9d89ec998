// README: Expiring KV contract for leases; implementations must be atomic.
package lock

import (
	"context"
	"time"
)

// Store is the shared expiring key-value surface leases live in. Each
// operation must be atomic at the store level so two concurrent Acquire
// calls can never both succeed.
type Store interface {
	// Acquire grants the lease when the key is absent or already held by
	// the same owner (idempotent re-acquire, TTL refreshed). On conflict it
	// returns the current holder together with ErrLeaseHeld.
	Acquire(ctx context.Context, key, ownerID, ownerName string, ttl time.Duration) (*Lease, error)

	// Extend refreshes the TTL for the current owner. ErrLeaseExpired when
	// the lease already lapsed, ErrNotOwner when someone else holds it.
	Extend(ctx context.Context, key, ownerID string, ttl time.Duration) (*Lease, error)

	// Release deletes the lease if ownerID holds it. Releasing an absent
	// lease is a no-op: passive expiry is equivalent to release.
	Release(ctx context.Context, key, ownerID string) error

	// Get returns the current unexpired lease, or nil when none exists.
	Get(ctx context.Context, key string) (*Lease, error)
}
