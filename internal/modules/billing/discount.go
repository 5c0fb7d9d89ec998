// README: Discount engine; sequential stacking over the remaining balance.
package billing

import (
	"time"

	"gatehouse/internal/modules/policy"
)

// Compute prices the interval under feeRule and folds the candidate
// discounts, in the order given (ActivePolicies order, priority DESC), over
// the remaining balance. Candidates must already be condition-matched and
// filtered to the apply methods the caller wants; non-DISCOUNT policies are
// skipped. The payable amount never goes below zero.
func Compute(entry, exit time.Time, feeRule policy.FeeRule, candidates []policy.Policy, asOf time.Time) Quote {
	base := BaseFee(entry, exit, feeRule)
	q := Quote{TotalFee: base, PaidFee: base, Applied: []AppliedDiscount{}}
	for _, p := range candidates {
		applyOne(&q, p, entry, exit, &feeRule, asOf)
	}
	return q
}

// ApplyOne applies a single discount policy to the quote's remaining
// balance, appending an audit entry with the actual deducted amount.
// It reports whether anything was deducted.
func ApplyOne(q *Quote, p policy.Policy, entry, exit time.Time, feeRule *policy.FeeRule, asOf time.Time) bool {
	return applyOne(q, p, entry, exit, feeRule, asOf)
}

func applyOne(q *Quote, p policy.Policy, entry, exit time.Time, feeRule *policy.FeeRule, asOf time.Time) bool {
	rule := p.Discount
	if p.Type != policy.TypeDiscount || rule == nil {
		return false
	}
	remaining := q.PaidFee
	if remaining <= 0 {
		return false
	}

	var amount int64
	switch rule.DiscountType {
	case policy.DiscountPercent:
		amount = remaining * rule.Value / 100
		if rule.MaxAmount != nil && amount > *rule.MaxAmount {
			amount = *rule.MaxAmount
		}
	case policy.DiscountFixedAmount:
		amount = rule.Value
	case policy.DiscountFreeTime:
		if feeRule == nil {
			return false
		}
		minutes := ceilMinutes(exit.Sub(entry))
		reduced := minutes - int(rule.Value)
		amount = FeeForMinutes(minutes, entry, *feeRule) - FeeForMinutes(reduced, entry, *feeRule)
	default:
		return false
	}

	if amount < 0 {
		amount = 0
	}
	if amount > remaining {
		amount = remaining
	}
	if amount == 0 {
		return false
	}

	q.PaidFee = remaining - amount
	q.DiscountFee = q.TotalFee - q.PaidFee
	q.Applied = append(q.Applied, AppliedDiscount{
		PolicyID:  p.ID,
		Code:      rule.TargetGroup,
		Type:      string(rule.DiscountType),
		Value:     rule.Value,
		Method:    string(rule.ApplyMethod),
		Amount:    amount,
		AppliedAt: asOf,
	})
	return true
}

// AutoCandidates narrows matched discount policies to those applied
// automatically. MANUAL discounts only enter a quote through an explicit
// operator request.
func AutoCandidates(policies []policy.Policy) []policy.Policy {
	out := make([]policy.Policy, 0, len(policies))
	for _, p := range policies {
		if p.Discount != nil && p.Discount.ApplyMethod == policy.ApplyAuto {
			out = append(out, p)
		}
	}
	return out
}
