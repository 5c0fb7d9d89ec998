// README: Session service tests over in-memory fakes (entry, exit, discounts, lease guard).
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatehouse/internal/modules/billing"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/modules/membership"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

// memStorage mirrors the postgres store's CAS semantics in memory.
type memStorage struct {
	mu       sync.Mutex
	sessions map[types.ID]ParkingSession
	events   []Event
}

func newMemStorage() *memStorage {
	return &memStorage{sessions: make(map[types.ID]ParkingSession)}
}

func (m *memStorage) Create(_ context.Context, s *ParkingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStorage) Get(_ context.Context, id types.ID) (*ParkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (m *memStorage) ActiveByPlate(_ context.Context, siteID types.ID, carNumber string) (*ParkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.SiteID == siteID && s.CarNumber == carNumber && !IsTerminal(s.Status) {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStorage) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from || s.StatusVersion != version {
		return false, nil
	}
	s.Status = to
	s.StatusVersion++
	m.sessions[id] = s
	return true, nil
}

func (m *memStorage) UpdateQuote(_ context.Context, id types.ID, from, to Status, version int, q billing.Quote, exit *ExitPoint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from || s.StatusVersion != version {
		return false, nil
	}
	s.Status = to
	s.StatusVersion++
	s.TotalFee, s.DiscountFee, s.PaidFee = q.TotalFee, q.DiscountFee, q.PaidFee
	s.AppliedDiscounts = q.Applied
	s.MemberCovered = q.MemberCovered
	if exit != nil {
		zone, lane, at := exit.ZoneID, exit.LaneID, exit.Time
		s.ExitZoneID, s.ExitLaneID, s.ExitTime = &zone, &lane, &at
	}
	m.sessions[id] = s
	return true, nil
}

func (m *memStorage) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

type fakePolicies struct {
	policies []policy.Policy
}

func (f *fakePolicies) ActivePolicies(_ context.Context, _ types.ID, ptype policy.Type) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, p := range f.policies {
		if p.Type == ptype && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePolicies) Get(_ context.Context, id types.ID) (*policy.Policy, error) {
	for i := range f.policies {
		if f.policies[i].ID == id {
			return &f.policies[i], nil
		}
	}
	return nil, policy.ErrNotFound
}

func (f *fakePolicies) CalendarFor(context.Context, types.ID) (*policy.HolidayCalendar, error) {
	return policy.NewCalendar(nil), nil
}

type fakeClassifier struct {
	byPlate map[string]membership.Classification
}

func (f *fakeClassifier) Classify(_ context.Context, carNumber string, _ types.ID, _ time.Time) (membership.Classification, error) {
	return f.byPlate[carNumber], nil
}

var (
	entryAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	exitAt  = time.Date(2026, 3, 10, 10, 5, 0, 0, time.Local) // 65 minutes
)

func standardFeePolicy() policy.Policy {
	return policy.Policy{
		ID:       "fee-std",
		Type:     policy.TypeFee,
		Priority: 10,
		IsActive: true,
		Fee: &policy.FeeRule{
			BaseTimeMinutes:  30,
			BaseFee:          1000,
			UnitTimeMinutes:  10,
			UnitFee:          500,
			GraceTimeMinutes: 5,
		},
	}
}

func autoPercentPolicy() policy.Policy {
	maxAmount := int64(1000)
	return policy.Policy{
		ID:       "dc-auto",
		Type:     policy.TypeDiscount,
		Priority: 5,
		IsActive: true,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountPercent,
			Value:        50,
			MaxAmount:    &maxAmount,
			ApplyMethod:  policy.ApplyAuto,
		},
	}
}

func manualFixedPolicy() policy.Policy {
	return policy.Policy{
		ID:       "dc-manual",
		Type:     policy.TypeDiscount,
		Priority: 1,
		IsActive: true,
		Discount: &policy.DiscountRule{
			DiscountType: policy.DiscountFixedAmount,
			Value:        500,
			ApplyMethod:  policy.ApplyManual,
			TargetGroup:  "merchant_validation",
		},
	}
}

type fixture struct {
	svc   *Service
	store *memStorage
	locks *lock.Coordinator
}

func newFixture(policies []policy.Policy, cls map[string]membership.Classification) fixture {
	store := newMemStorage()
	locks := lock.NewCoordinator(lock.NewMemoryStore(), time.Minute)
	if cls == nil {
		cls = map[string]membership.Classification{}
	}
	svc := NewService(store, &fakePolicies{policies: policies}, &fakeClassifier{byPlate: cls}, locks)
	return fixture{svc: svc, store: store, locks: locks}
}

func mustEnter(t *testing.T, f fixture, plate string) *ParkingSession {
	t.Helper()
	sess, err := f.svc.Enter(context.Background(), EnterCommand{
		SiteID:    "site-1",
		ZoneID:    "z1",
		LaneID:    "lane-in",
		CarNumber: plate,
		EntryTime: entryAt,
	})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := f.svc.ConfirmEntry(context.Background(), sess.ID); err != nil {
		t.Fatalf("confirm entry: %v", err)
	}
	return sess
}

func TestEnterBlockedPlate(t *testing.T) {
	f := newFixture(nil, map[string]membership.Classification{
		"13X9999": {Blocked: true, BlockMessage: "banned by site manager"},
	})
	_, err := f.svc.Enter(context.Background(), EnterCommand{
		SiteID: "site-1", CarNumber: "13X9999", EntryTime: entryAt,
	})
	if !errors.Is(err, ErrEntryBlocked) {
		t.Fatalf("expected ErrEntryBlocked, got %v", err)
	}
	var blocked *EntryBlockedError
	if !errors.As(err, &blocked) || blocked.Message != "banned by site manager" {
		t.Fatalf("expected block message, got %v", err)
	}
	if len(f.store.sessions) != 0 {
		t.Fatal("no session may be created for a blocked plate")
	}
}

func TestEnterForceClosesStaleSession(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	stale := mustEnter(t, f, "11AA1111")

	fresh, err := f.svc.Enter(context.Background(), EnterCommand{
		SiteID: "site-1", ZoneID: "z1", LaneID: "lane-in", CarNumber: "11AA1111",
		EntryTime: entryAt.Add(26 * time.Hour),
	})
	if err != nil {
		t.Fatalf("re-entry: %v", err)
	}
	closed, _ := f.svc.Get(context.Background(), stale.ID)
	if closed.Status != StatusForceCompleted {
		t.Fatalf("stale session status = %s, want FORCE_COMPLETED", closed.Status)
	}
	if fresh.ID == stale.ID {
		t.Fatal("re-entry must create a new session")
	}
}

func TestComputeExitAppliesAutoDiscounts(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy(), autoPercentPolicy(), manualFixedPolicy()}, nil)
	sess := mustEnter(t, f, "22BB2222")

	got, err := f.svc.ComputeExit(context.Background(), ExitCommand{
		SessionID: sess.ID, ZoneID: "z1", LaneID: "lane-out", ExitTime: exitAt,
	})
	if err != nil {
		t.Fatalf("compute exit: %v", err)
	}
	// 65min -> 3000 base; AUTO 50% capped at 1000; MANUAL excluded.
	if got.TotalFee != 3000 || got.DiscountFee != 1000 || got.PaidFee != 2000 {
		t.Fatalf("unexpected fees: total=%d discount=%d paid=%d", got.TotalFee, got.DiscountFee, got.PaidFee)
	}
	if got.PaidFee != got.TotalFee-got.DiscountFee {
		t.Fatalf("fee invariant broken: %+v", got)
	}
	if len(got.AppliedDiscounts) != 1 || got.AppliedDiscounts[0].PolicyID != "dc-auto" {
		t.Fatalf("unexpected audit: %+v", got.AppliedDiscounts)
	}
	if got.Status != StatusPaymentPending {
		t.Fatalf("status = %s, want PAYMENT_PENDING", got.Status)
	}
	if got.ExitLaneID == nil || *got.ExitLaneID != "lane-out" {
		t.Fatal("exit lane must be denormalized onto the session")
	}
}

func TestComputeExitIdempotent(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "33CC3333")

	first, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt})
	if err != nil {
		t.Fatalf("first exit: %v", err)
	}
	second, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second exit: %v", err)
	}
	if second.PaidFee != first.PaidFee || second.StatusVersion != first.StatusVersion {
		t.Fatalf("repeat exit must be a no-op: %+v vs %+v", second, first)
	}
}

func TestComputeExitNoFeePolicyIsConfigurationFault(t *testing.T) {
	f := newFixture(nil, nil)
	sess := mustEnter(t, f, "44DD4444")

	_, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt})
	if !errors.Is(err, ErrNoFeePolicy) {
		t.Fatalf("expected ErrNoFeePolicy, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.Status != StatusPending {
		t.Fatalf("session must stay PENDING on configuration fault, got %s", got.Status)
	}
}

func TestComputeExitMemberCovered(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy(), autoPercentPolicy()}, map[string]membership.Classification{
		"55EE5555": {MemberActive: true},
	})
	sess := mustEnter(t, f, "55EE5555")

	got, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt})
	if err != nil {
		t.Fatalf("compute exit: %v", err)
	}
	if got.TotalFee != 0 || got.PaidFee != 0 || got.DiscountFee != 0 {
		t.Fatalf("member exit must be zero-fee, got %+v", got)
	}
	if !got.MemberCovered {
		t.Fatal("member coverage must be recorded distinctly from discounts")
	}
	if len(got.AppliedDiscounts) != 0 {
		t.Fatal("membership is not a discount; audit must stay empty")
	}
}

func TestAutomatedExitDeferredWhileLeaseHeld(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "66FF6666")

	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), "op1", "Kim"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt})
	if !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
}

func TestManualExitRequiresHeldLease(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "77GG7777")
	op := &Operator{ID: "op1", Name: "Kim"}

	// No lease at all: the operator must acquire first.
	_, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt, Operator: op})
	if !errors.Is(err, lock.ErrLeaseExpired) {
		t.Fatalf("expected ErrLeaseExpired, got %v", err)
	}

	// Someone else holds it.
	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), "op2", "Lee"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt, Operator: op})
	if !errors.Is(err, lock.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}

	// Holding the lease unblocks the manual path.
	if err := f.locks.Release(context.Background(), lock.SessionKey(sess.ID), "op2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), "op1", "Kim"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt, Operator: op}); err != nil {
		t.Fatalf("manual exit with lease: %v", err)
	}
}

func TestApplyManualDiscount(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy(), manualFixedPolicy()}, nil)
	sess := mustEnter(t, f, "88HH8888")
	op := Operator{ID: "op1", Name: "Kim"}

	if _, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt}); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), op.ID, op.Name); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got, err := f.svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{
		SessionID: sess.ID, PolicyID: "dc-manual", AsOf: exitAt, Operator: op,
	})
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if got.PaidFee != 2500 || got.DiscountFee != 500 {
		t.Fatalf("unexpected fees after manual discount: %+v", got)
	}
	if len(got.AppliedDiscounts) != 1 || got.AppliedDiscounts[0].Method != string(policy.ApplyManual) {
		t.Fatalf("unexpected audit: %+v", got.AppliedDiscounts)
	}

	// Idempotent per policy id.
	again, err := f.svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{
		SessionID: sess.ID, PolicyID: "dc-manual", AsOf: exitAt, Operator: op,
	})
	if err != nil {
		t.Fatalf("repeat apply: %v", err)
	}
	if again.PaidFee != 2500 || len(again.AppliedDiscounts) != 1 {
		t.Fatalf("repeat apply must be a no-op: %+v", again)
	}
}

func TestApplyDiscountRejectsAutoPolicy(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy(), autoPercentPolicy()}, nil)
	sess := mustEnter(t, f, "99JJ9999")
	op := Operator{ID: "op1", Name: "Kim"}

	if _, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt}); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), op.ID, op.Name); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err := f.svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{
		SessionID: sess.ID, PolicyID: "dc-auto", AsOf: exitAt, Operator: op,
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for AUTO policy, got %v", err)
	}
}

func TestPreSettleThenExit(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "10KK1010")

	pre, err := f.svc.PreSettle(context.Background(), PreSettleCommand{SessionID: sess.ID, AsOf: exitAt})
	if err != nil {
		t.Fatalf("pre-settle: %v", err)
	}
	if pre.Status != StatusPreSettled || pre.TotalFee != 3000 {
		t.Fatalf("unexpected pre-settlement: %+v", pre)
	}
	if pre.ExitTime != nil {
		t.Fatal("pre-settlement must not record a physical exit")
	}

	// Re-quote replaces the previous pre-settlement wholesale.
	re, err := f.svc.PreSettle(context.Background(), PreSettleCommand{SessionID: sess.ID, AsOf: exitAt.Add(10 * time.Minute)})
	if err != nil {
		t.Fatalf("re-quote: %v", err)
	}
	if re.TotalFee != 3500 {
		t.Fatalf("re-quote total = %d, want 3500", re.TotalFee)
	}

	got, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt.Add(10 * time.Minute)})
	if err != nil {
		t.Fatalf("exit after pre-settle: %v", err)
	}
	if got.Status != StatusPaymentPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestAdminTransitions(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "20LL2020")
	op := &Operator{ID: "op1", Name: "Kim"}

	if _, err := f.locks.Acquire(context.Background(), lock.SessionKey(sess.ID), op.ID, op.Name); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := f.svc.Cancel(context.Background(), sess.ID, op); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.Status != StatusCanceled {
		t.Fatalf("status = %s, want CANCELED", got.Status)
	}
	// Terminal sessions reject further transitions.
	if err := f.svc.MarkRunaway(context.Background(), sess.ID, op); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteAfterPayment(t *testing.T) {
	f := newFixture([]policy.Policy{standardFeePolicy()}, nil)
	sess := mustEnter(t, f, "30MM3030")

	if _, err := f.svc.ComputeExit(context.Background(), ExitCommand{SessionID: sess.ID, ExitTime: exitAt}); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := f.svc.Complete(context.Background(), CompleteCommand{SessionID: sess.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
}
