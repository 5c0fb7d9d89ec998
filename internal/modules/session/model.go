// README: Parking session aggregate and lifecycle status definitions.
package session

import (
	"time"

	"gatehouse/internal/modules/billing"
	"gatehouse/internal/types"
)

type Status string

const (
	StatusPendingEntry   Status = "PENDING_ENTRY"
	StatusPending        Status = "PENDING"
	StatusPreSettled     Status = "PRE_SETTLED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusCompleted      Status = "COMPLETED"
	StatusForceCompleted Status = "FORCE_COMPLETED"
	StatusUnrecognized   Status = "UNRECOGNIZED"
	StatusCanceled       Status = "CANCELED"
	StatusRunaway        Status = "RUNAWAY"
)

// AllowedTransitions represents the session state flow as code. Terminal
// states have no outgoing transitions; administrative correction of a
// terminal session is logged as a side effect, not modeled as a state.
var AllowedTransitions = map[Status][]Status{
	StatusPendingEntry: {StatusPending, StatusCanceled, StatusUnrecognized},
	StatusPending: {
		StatusPreSettled, StatusPaymentPending, StatusCanceled,
		StatusRunaway, StatusUnrecognized, StatusForceCompleted,
	},
	StatusPreSettled: {
		StatusPreSettled, // re-quote replaces the previous pre-settlement
		StatusPaymentPending, StatusCanceled, StatusRunaway, StatusForceCompleted,
	},
	StatusPaymentPending: {
		StatusCompleted, StatusCanceled, StatusRunaway, StatusForceCompleted,
	},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// ParkingSession is one vehicle's occupancy record from entry to terminal
// resolution. Zone/lane references are denormalized at entry and exit so the
// audit trail survives later org-structure changes.
type ParkingSession struct {
	ID            types.ID
	SiteID        types.ID
	CarNumber     string
	Status        Status
	StatusVersion int

	EntryZoneID string
	EntryLaneID string
	EntryTime   time.Time

	ExitZoneID *string
	ExitLaneID *string
	ExitTime   *time.Time

	// Invariant: PaidFee = TotalFee - DiscountFee, DiscountFee <= TotalFee.
	TotalFee         int64
	DiscountFee      int64
	PaidFee          int64
	AppliedDiscounts []billing.AppliedDiscount
	MemberCovered    bool

	CreatedAt time.Time
}

type Event struct {
	ID         int64
	SessionID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string // "device", "operator", "system"
	ActorID    *string
	CreatedAt  time.Time
}

// Operator identifies the human behind a manual edit; nil on a command
// means the mutation is automated (device/system driven).
type Operator struct {
	ID   string
	Name string
}
