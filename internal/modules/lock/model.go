// README: Edit lease model and lock error taxonomy.
package lock

import (
	"errors"
	"time"

	"gatehouse/internal/types"
)

var (
	// ErrLeaseHeld: another owner holds an unexpired lease. Recoverable;
	// the caller retries or shows the holder to the operator.
	ErrLeaseHeld = errors.New("lease held by another owner")
	// ErrLeaseExpired: extend attempted after TTL lapse. The caller no
	// longer holds exclusivity and must re-acquire.
	ErrLeaseExpired = errors.New("lease expired")
	// ErrNotOwner: extend/release by a non-holder.
	ErrNotOwner = errors.New("lease held by a different owner")
)

// Lease is a time-boxed exclusive-edit grant on one resource. It lives only
// in the expiring store; nothing durable references it.
type Lease struct {
	ResourceKey string    `json:"resource_key"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionKey names the lease resource for a parking session.
func SessionKey(sessionID types.ID) string {
	return "lock:session:" + string(sessionID)
}
