// README: Billing result shapes: quotes and the applied-discount audit trail.
package billing

import (
	"time"

	"gatehouse/internal/types"
)

// AppliedDiscount records one discount application with the actual deducted
// amount. The list on a session is append-only within a computation pass and
// replaced wholesale on recomputation.
type AppliedDiscount struct {
	PolicyID  types.ID  `json:"policy_id"`
	Code      string    `json:"code"`
	Type      string    `json:"type"`
	Value     int64     `json:"value"`
	Method    string    `json:"method"`
	Amount    int64     `json:"amount"`
	AppliedAt time.Time `json:"applied_at"`
}

// Quote is the payable breakdown for a session.
// Invariant: PaidFee = TotalFee - DiscountFee, DiscountFee in [0, TotalFee].
type Quote struct {
	TotalFee      int64             `json:"total_fee"`
	DiscountFee   int64             `json:"discount_fee"`
	PaidFee       int64             `json:"paid_fee"`
	Applied       []AppliedDiscount `json:"applied_discounts"`
	MemberCovered bool              `json:"member_covered"`
}
