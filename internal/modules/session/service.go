// README: Session service; entry/exit orchestration, fee computation, manual edits.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/modules/billing"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/modules/membership"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrConflict     = errors.New("session state conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrBadRequest   = errors.New("bad request")

	// ErrNoFeePolicy is a configuration fault: no active FEE policy matched
	// the exit instant. It is surfaced to the operator, never treated as a
	// zero fee.
	ErrNoFeePolicy = errors.New("no matching fee policy")

	// ErrSessionLocked rejects automated mutation while an operator holds
	// the edit lease on the session.
	ErrSessionLocked = errors.New("session is being edited by an operator")

	// ErrEntryBlocked matches any EntryBlockedError via errors.Is.
	ErrEntryBlocked = errors.New("entry blocked")
)

// EntryBlockedError is the expected business outcome for a blacklisted
// plate, carrying the policy's message for the lane display.
type EntryBlockedError struct {
	Message string
}

func (e *EntryBlockedError) Error() string {
	if e.Message == "" {
		return "entry blocked"
	}
	return "entry blocked: " + e.Message
}

func (e *EntryBlockedError) Is(target error) bool { return target == ErrEntryBlocked }

// Storage is the session persistence surface. The postgres Store implements
// it; tests use an in-memory fake.
type Storage interface {
	Create(ctx context.Context, s *ParkingSession) error
	Get(ctx context.Context, id types.ID) (*ParkingSession, error)
	ActiveByPlate(ctx context.Context, siteID types.ID, carNumber string) (*ParkingSession, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	UpdateQuote(ctx context.Context, id types.ID, from, to Status, version int, q billing.Quote, exit *ExitPoint) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// ExitPoint carries the denormalized exit references persisted with a quote.
type ExitPoint struct {
	ZoneID string
	LaneID string
	Time   time.Time
}

// Policies is the slice of the policy store the service reads.
type Policies interface {
	ActivePolicies(ctx context.Context, siteID types.ID, ptype policy.Type) ([]policy.Policy, error)
	Get(ctx context.Context, id types.ID) (*policy.Policy, error)
	CalendarFor(ctx context.Context, siteID types.ID) (*policy.HolidayCalendar, error)
}

// Classifier answers the pre-entry and exit-time membership/blacklist checks.
type Classifier interface {
	Classify(ctx context.Context, carNumber string, siteID types.ID, asOf time.Time) (membership.Classification, error)
}

// Locks is the read side of the lock coordinator the service consults.
type Locks interface {
	Holder(ctx context.Context, resourceKey string) (*lock.Lease, error)
}

type Service struct {
	store      Storage
	policies   Policies
	classifier Classifier
	locks      Locks
}

func NewService(store Storage, policies Policies, classifier Classifier, locks Locks) *Service {
	return &Service{store: store, policies: policies, classifier: classifier, locks: locks}
}

type EnterCommand struct {
	SiteID    types.ID
	ZoneID    string
	LaneID    string
	CarNumber string
	EntryTime time.Time
}

// Enter admits a recognized plate. Blacklist runs before anything else; a
// stale PENDING session for the same plate (missed exit) is force-closed
// before the new entry is accepted.
func (s *Service) Enter(ctx context.Context, cmd EnterCommand) (*ParkingSession, error) {
	if cmd.SiteID == "" || cmd.CarNumber == "" || cmd.EntryTime.IsZero() {
		return nil, ErrBadRequest
	}
	plate := membership.NormalizePlate(cmd.CarNumber)

	cls, err := s.classifier.Classify(ctx, plate, cmd.SiteID, cmd.EntryTime)
	if err != nil {
		return nil, err
	}
	if cls.Blocked {
		return nil, &EntryBlockedError{Message: cls.BlockMessage}
	}
	if cls.WarnAdmin {
		// Out-of-band alert; entry proceeds.
		log.Printf("blacklist warning for plate %s at site %s: %s", plate, cmd.SiteID, cls.WarnMessage)
	}

	if stale, err := s.store.ActiveByPlate(ctx, cmd.SiteID, plate); err != nil {
		return nil, err
	} else if stale != nil {
		if err := s.forceClose(ctx, stale, "re-entry with open session"); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	sess := &ParkingSession{
		ID:               types.ID(uuid.NewString()),
		SiteID:           cmd.SiteID,
		CarNumber:        plate,
		Status:           StatusPendingEntry,
		EntryZoneID:      cmd.ZoneID,
		EntryLaneID:      cmd.LaneID,
		EntryTime:        cmd.EntryTime,
		AppliedDiscounts: []billing.AppliedDiscount{},
		MemberCovered:    cls.MemberActive,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		SessionID:  sess.ID,
		FromStatus: "",
		ToStatus:   StatusPendingEntry,
		ActorType:  "device",
		CreatedAt:  now,
	})
	return sess, nil
}

// ConfirmEntry marks the entry gate pass-through complete.
func (s *Service) ConfirmEntry(ctx context.Context, id types.ID) error {
	return s.transition(ctx, id, StatusPending, "device", nil)
}

type PreSettleCommand struct {
	SessionID types.ID
	AsOf      time.Time
	Operator  *Operator
}

// PreSettle computes the fee before physical exit so grace-time eligibility
// at the lane is exact. Re-running it replaces the previous quote wholesale.
func (s *Service) PreSettle(ctx context.Context, cmd PreSettleCommand) (*ParkingSession, error) {
	sess, err := s.store.Get(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.guardEdit(ctx, sess.ID, cmd.Operator); err != nil {
		return nil, err
	}
	if !CanTransition(sess.Status, StatusPreSettled) {
		return nil, ErrInvalidState
	}
	asOf := cmd.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	q, err := s.quote(ctx, sess, asOf)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateQuote(ctx, sess.ID, sess.Status, StatusPreSettled, sess.StatusVersion, q, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, sess, StatusPreSettled, cmd.Operator)
	return s.store.Get(ctx, sess.ID)
}

type ExitCommand struct {
	SessionID types.ID
	ZoneID    string
	LaneID    string
	ExitTime  time.Time
	Operator  *Operator // nil for device-driven exits
}

// ComputeExit resolves the final quote and moves the session to
// PAYMENT_PENDING. Idempotent: a session already past exit returns as-is.
// Automated exits are rejected while an operator holds the edit lease.
func (s *Service) ComputeExit(ctx context.Context, cmd ExitCommand) (*ParkingSession, error) {
	sess, err := s.store.Get(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusPaymentPending {
		return sess, nil // already exited guard
	}
	if err := s.guardEdit(ctx, sess.ID, cmd.Operator); err != nil {
		return nil, err
	}
	if !CanTransition(sess.Status, StatusPaymentPending) {
		return nil, ErrInvalidState
	}
	exitTime := cmd.ExitTime
	if exitTime.IsZero() {
		exitTime = time.Now()
	}
	q, err := s.quote(ctx, sess, exitTime)
	if err != nil {
		return nil, err
	}
	exit := &ExitPoint{ZoneID: cmd.ZoneID, LaneID: cmd.LaneID, Time: exitTime}
	ok, err := s.store.UpdateQuote(ctx, sess.ID, sess.Status, StatusPaymentPending, sess.StatusVersion, q, exit)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; if the concurrent writer already completed the
		// exit this call is idempotent, otherwise surface the conflict.
		cur, err := s.store.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status == StatusPaymentPending {
			return cur, nil
		}
		return nil, ErrConflict
	}
	s.appendEvent(ctx, sess, StatusPaymentPending, cmd.Operator)
	return s.store.Get(ctx, sess.ID)
}

type ApplyDiscountCommand struct {
	SessionID types.ID
	PolicyID  types.ID
	AsOf      time.Time
	Operator  Operator // manual path only; the operator must hold the lease
}

// ApplyDiscount applies one MANUAL discount policy to the session's
// remaining balance. Idempotent per policy id within a computation pass.
func (s *Service) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (*ParkingSession, error) {
	sess, err := s.store.Get(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.guardEdit(ctx, sess.ID, &cmd.Operator); err != nil {
		return nil, err
	}
	if sess.Status != StatusPreSettled && sess.Status != StatusPaymentPending {
		return nil, ErrInvalidState
	}
	p, err := s.policies.Get(ctx, cmd.PolicyID)
	if err != nil {
		return nil, err
	}
	asOf := cmd.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	if p.Type != policy.TypeDiscount || p.Discount == nil || p.Discount.ApplyMethod != policy.ApplyManual {
		return nil, ErrBadRequest
	}
	for _, d := range sess.AppliedDiscounts {
		if d.PolicyID == cmd.PolicyID {
			return sess, nil
		}
	}
	cal, err := s.policies.CalendarFor(ctx, sess.SiteID)
	if err != nil {
		return nil, err
	}
	if !p.Condition.Matches(asOf, p.SiteID, cal) {
		return nil, ErrBadRequest
	}

	exitTime := asOf
	if sess.ExitTime != nil {
		exitTime = *sess.ExitTime
	}
	feeRule, err := s.feeRule(ctx, sess, exitTime)
	if err != nil && !errors.Is(err, ErrNoFeePolicy) {
		return nil, err
	}

	q := billing.Quote{
		TotalFee:      sess.TotalFee,
		DiscountFee:   sess.DiscountFee,
		PaidFee:       sess.PaidFee,
		Applied:       sess.AppliedDiscounts,
		MemberCovered: sess.MemberCovered,
	}
	billing.ApplyOne(&q, *p, sess.EntryTime, exitTime, feeRule, asOf)

	ok, err := s.store.UpdateQuote(ctx, sess.ID, sess.Status, sess.Status, sess.StatusVersion, q, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, sess.ID)
}

type CompleteCommand struct {
	SessionID types.ID
	Operator  *Operator
}

// Complete closes the session after payment capture.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	return s.adminTransition(ctx, cmd.SessionID, StatusCompleted, cmd.Operator)
}

// Administrative resolutions. All require the caller to hold the edit lease
// when operator-attributed; automation uses them with a nil operator (e.g.
// runaway detection).

func (s *Service) Cancel(ctx context.Context, id types.ID, op *Operator) error {
	return s.adminTransition(ctx, id, StatusCanceled, op)
}

func (s *Service) ForceComplete(ctx context.Context, id types.ID, op *Operator) error {
	return s.adminTransition(ctx, id, StatusForceCompleted, op)
}

func (s *Service) MarkRunaway(ctx context.Context, id types.ID, op *Operator) error {
	return s.adminTransition(ctx, id, StatusRunaway, op)
}

func (s *Service) MarkUnrecognized(ctx context.Context, id types.ID, op *Operator) error {
	return s.adminTransition(ctx, id, StatusUnrecognized, op)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*ParkingSession, error) {
	return s.store.Get(ctx, id)
}

// quote computes the payable breakdown at exitTime. An active membership
// skips fee computation entirely; that is not a 100% discount and leaves no
// discount audit entries.
func (s *Service) quote(ctx context.Context, sess *ParkingSession, exitTime time.Time) (billing.Quote, error) {
	cls, err := s.classifier.Classify(ctx, sess.CarNumber, sess.SiteID, exitTime)
	if err != nil {
		return billing.Quote{}, err
	}
	if cls.MemberActive {
		return billing.Quote{Applied: []billing.AppliedDiscount{}, MemberCovered: true}, nil
	}

	feeRule, err := s.feeRule(ctx, sess, exitTime)
	if err != nil {
		return billing.Quote{}, err
	}

	discounts, err := s.policies.ActivePolicies(ctx, sess.SiteID, policy.TypeDiscount)
	if err != nil {
		return billing.Quote{}, err
	}
	cal, err := s.policies.CalendarFor(ctx, sess.SiteID)
	if err != nil {
		return billing.Quote{}, err
	}
	matched := policy.FilterMatching(discounts, exitTime, cal)
	candidates := billing.AutoCandidates(matched)
	return billing.Compute(sess.EntryTime, exitTime, *feeRule, candidates, exitTime), nil
}

func (s *Service) feeRule(ctx context.Context, sess *ParkingSession, asOf time.Time) (*policy.FeeRule, error) {
	fees, err := s.policies.ActivePolicies(ctx, sess.SiteID, policy.TypeFee)
	if err != nil {
		return nil, err
	}
	cal, err := s.policies.CalendarFor(ctx, sess.SiteID)
	if err != nil {
		return nil, err
	}
	match := policy.FirstMatch(fees, asOf, cal)
	if match == nil || match.Fee == nil {
		return nil, ErrNoFeePolicy
	}
	return match.Fee, nil
}

// guardEdit enforces the lease invariant: manual paths must hold the lease,
// automated paths must find no person-held lease.
func (s *Service) guardEdit(ctx context.Context, id types.ID, op *Operator) error {
	holder, err := s.locks.Holder(ctx, lock.SessionKey(id))
	if err != nil {
		return err
	}
	if op == nil {
		if holder != nil {
			return ErrSessionLocked
		}
		return nil
	}
	if holder == nil {
		return lock.ErrLeaseExpired
	}
	if holder.OwnerID != op.ID {
		return lock.ErrLeaseHeld
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id types.ID, to Status, actorType string, actorID *string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == to {
		return nil // idempotent repeat
	}
	if !CanTransition(sess.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, id, sess.Status, to, sess.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		SessionID:  id,
		FromStatus: sess.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Service) adminTransition(ctx context.Context, id types.ID, to Status, op *Operator) error {
	if err := s.guardEdit(ctx, id, op); err != nil {
		return err
	}
	actorType := "system"
	var actorID *string
	if op != nil {
		actorType = "operator"
		actorID = &op.ID
	}
	return s.transition(ctx, id, to, actorType, actorID)
}

func (s *Service) forceClose(ctx context.Context, stale *ParkingSession, reason string) error {
	if !CanTransition(stale.Status, StatusForceCompleted) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, stale.ID, stale.Status, StatusForceCompleted, stale.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	log.Printf("force-closed stale session %s (%s): %s", stale.ID, stale.CarNumber, reason)
	_ = s.store.AppendEvent(ctx, &Event{
		SessionID:  stale.ID,
		FromStatus: stale.Status,
		ToStatus:   StatusForceCompleted,
		ActorType:  "system",
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Service) appendEvent(ctx context.Context, sess *ParkingSession, to Status, op *Operator) {
	actorType := "device"
	var actorID *string
	if op != nil {
		actorType = "operator"
		actorID = &op.ID
	}
	_ = s.store.AppendEvent(ctx, &Event{
		SessionID:  sess.ID,
		FromStatus: sess.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
}
