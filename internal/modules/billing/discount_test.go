// README: Discount engine tests (stacking, caps, free time, monotonicity).
package billing

import (
	"testing"
	"time"

	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

var asOf = time.Date(2026, 3, 10, 10, 5, 0, 0, time.Local)

// 65-minute stay under the standard rule: base fee 3000.
var feeRule = policy.FeeRule{
	BaseTimeMinutes:  30,
	BaseFee:          1000,
	UnitTimeMinutes:  10,
	UnitFee:          500,
	GraceTimeMinutes: 5,
}

var (
	entry = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	exit  = time.Date(2026, 3, 10, 10, 5, 0, 0, time.Local)
)

func percent(id string, value int64, maxAmount *int64) policy.Policy {
	return policy.Policy{
		ID:   types.ID(id),
		Type: policy.TypeDiscount,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountPercent,
			Value:        value,
			MaxAmount:    maxAmount,
			ApplyMethod:  policy.ApplyAuto,
		},
	}
}

func fixed(id string, value int64) policy.Policy {
	return policy.Policy{
		ID:   types.ID(id),
		Type: policy.TypeDiscount,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountFixedAmount,
			Value:        value,
			ApplyMethod:  policy.ApplyAuto,
		},
	}
}

func freeTime(id string, minutes int64) policy.Policy {
	return policy.Policy{
		ID:   types.ID(id),
		Type: policy.TypeDiscount,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountFreeTime,
			Value:        minutes,
			ApplyMethod:  policy.ApplyAuto,
		},
	}
}

func TestComputeNoDiscounts(t *testing.T) {
	q := Compute(entry, exit, feeRule, nil, asOf)
	if q.TotalFee != 3000 || q.PaidFee != 3000 || q.DiscountFee != 0 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if len(q.Applied) != 0 {
		t.Fatalf("expected empty audit trail, got %v", q.Applied)
	}
}

func TestPercentClippedToMaxAmount(t *testing.T) {
	cap := int64(1000)
	q := Compute(entry, exit, feeRule, []policy.Policy{percent("dc-50", 50, &cap)}, asOf)
	// 50% of 3000 = 1500, clipped to 1000.
	if q.PaidFee != 2000 || q.DiscountFee != 1000 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if len(q.Applied) != 1 || q.Applied[0].Amount != 1000 {
		t.Fatalf("unexpected audit: %+v", q.Applied)
	}
}

func TestSequentialStackingUsesRemainingBalance(t *testing.T) {
	q := Compute(entry, exit, feeRule, []policy.Policy{
		percent("dc-half", 50, nil), // 1500 off 3000
		percent("dc-half2", 50, nil), // 750 off remaining 1500
	}, asOf)
	if q.PaidFee != 750 || q.DiscountFee != 2250 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if q.Applied[0].Amount != 1500 || q.Applied[1].Amount != 750 {
		t.Fatalf("unexpected audit amounts: %+v", q.Applied)
	}
}

func TestFixedAmountFloorsAtZero(t *testing.T) {
	q := Compute(entry, exit, feeRule, []policy.Policy{fixed("dc-big", 5000)}, asOf)
	if q.PaidFee != 0 {
		t.Fatalf("paid fee must floor at zero, got %d", q.PaidFee)
	}
	// The audit records the actual deducted amount, not the nominal value.
	if q.Applied[0].Amount != 3000 {
		t.Fatalf("unexpected audit amount: %d", q.Applied[0].Amount)
	}
	if q.PaidFee != q.TotalFee-q.DiscountFee {
		t.Fatalf("invariant broken: %+v", q)
	}
}

func TestFreeTimeDiscountIsFeeDelta(t *testing.T) {
	// 65min -> 3000; 65-30=35min -> billable 5 -> 1000+500. Delta 1500.
	q := Compute(entry, exit, feeRule, []policy.Policy{freeTime("dc-free30", 30)}, asOf)
	if q.DiscountFee != 1500 || q.PaidFee != 1500 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestFreeTimeCoveringWholeStay(t *testing.T) {
	q := Compute(entry, exit, feeRule, []policy.Policy{freeTime("dc-free-all", 120)}, asOf)
	if q.PaidFee != 0 || q.DiscountFee != 3000 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestZeroAmountDiscountLeavesNoAuditEntry(t *testing.T) {
	q := Compute(entry, exit, feeRule, []policy.Policy{
		fixed("dc-all", 3000),
		percent("dc-late", 50, nil), // nothing left to deduct
	}, asOf)
	if q.PaidFee != 0 {
		t.Fatalf("unexpected paid fee: %d", q.PaidFee)
	}
	if len(q.Applied) != 1 {
		t.Fatalf("expected single audit entry, got %+v", q.Applied)
	}
}

// Stacking is monotonic: adding a discount never increases the payable fee.
func TestStackingMonotonic(t *testing.T) {
	all := []policy.Policy{
		percent("a", 30, nil),
		fixed("b", 400),
		freeTime("c", 15),
		percent("d", 10, int64Ptr(100)),
	}
	for cut := 0; cut <= len(all); cut++ {
		subset := Compute(entry, exit, feeRule, all[:cut], asOf)
		full := Compute(entry, exit, feeRule, all, asOf)
		if full.PaidFee > subset.PaidFee {
			t.Fatalf("full stack paid %d > subset(%d) paid %d", full.PaidFee, cut, subset.PaidFee)
		}
		if subset.DiscountFee < 0 || subset.PaidFee != subset.TotalFee-subset.DiscountFee {
			t.Fatalf("invariant broken at cut %d: %+v", cut, subset)
		}
	}
}

func TestApplyOneManual(t *testing.T) {
	q := Compute(entry, exit, feeRule, nil, asOf)
	manual := policy.Policy{
		ID:   "dc-manual",
		Type: policy.TypeDiscount,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountFixedAmount,
			Value:        1000,
			ApplyMethod:  policy.ApplyManual,
			TargetGroup:  "merchant_validation",
		},
	}
	if !ApplyOne(&q, manual, entry, exit, &feeRule, asOf) {
		t.Fatal("expected manual discount to apply")
	}
	if q.PaidFee != 2000 || q.Applied[0].Method != string(policy.ApplyManual) {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if q.Applied[0].Code != "merchant_validation" {
		t.Fatalf("unexpected code: %q", q.Applied[0].Code)
	}
}

func TestAutoCandidatesExcludesManual(t *testing.T) {
	manual := fixed("m", 100)
	manual.Discount.ApplyMethod = policy.ApplyManual
	got := AutoCandidates([]policy.Policy{percent("a", 10, nil), manual})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
