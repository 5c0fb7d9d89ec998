// README: Membership & blacklist evaluator plus membership purchase flow.
package membership

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

var (
	ErrBadRequest = errors.New("bad membership request")
	ErrOverlap    = errors.New("membership period overlaps an existing one")
	ErrNoPolicy   = errors.New("membership policy not found")
)

// PolicySource is the slice of the policy store the evaluator needs.
type PolicySource interface {
	ActivePolicies(ctx context.Context, siteID types.ID, ptype policy.Type) ([]policy.Policy, error)
	Get(ctx context.Context, id types.ID) (*policy.Policy, error)
	CalendarFor(ctx context.Context, siteID types.ID) (*policy.HolidayCalendar, error)
}

// Rows is the membership persistence surface used by the service.
type Rows interface {
	HasActive(ctx context.Context, carNumber string, day time.Time) (bool, error)
	LatestEnd(ctx context.Context, memberID types.ID) (time.Time, bool, error)
	Create(ctx context.Context, m *Membership) error
}

type Service struct {
	store    Rows
	policies PolicySource
}

func NewService(store Rows, policies PolicySource) *Service {
	return &Service{store: store, policies: policies}
}

// Classify runs the pre-entry checks for a plate. Blacklist precedes the
// membership check; the first matching blacklist policy containing the plate
// decides (priority order, no blending).
func (s *Service) Classify(ctx context.Context, carNumber string, siteID types.ID, asOf time.Time) (Classification, error) {
	var c Classification
	plate := NormalizePlate(carNumber)
	if plate == "" {
		return c, ErrBadRequest
	}

	blacklist, err := s.policies.ActivePolicies(ctx, siteID, policy.TypeBlacklist)
	if err != nil {
		return c, err
	}
	if len(blacklist) > 0 {
		cal, err := s.policies.CalendarFor(ctx, siteID)
		if err != nil {
			return c, err
		}
		for _, p := range blacklist {
			if p.Blacklist == nil || !p.Condition.Matches(asOf, p.SiteID, cal) {
				continue
			}
			if !containsPlate(p.Blacklist.CarNumbers, plate) {
				continue
			}
			switch p.Blacklist.ActionType {
			case policy.ActionBlockEntry:
				c.Blocked = true
				c.BlockMessage = p.Blacklist.Message
			case policy.ActionWarnAdmin:
				c.WarnAdmin = true
				c.WarnMessage = p.Blacklist.Message
			}
			break
		}
	}
	if c.Blocked {
		return c, nil
	}

	active, err := s.store.HasActive(ctx, plate, asOf)
	if err != nil {
		return c, err
	}
	c.MemberActive = active
	return c, nil
}

type PurchaseCommand struct {
	MemberID  types.ID
	CarNumber string
	PolicyID  types.ID
	StartDate time.Time
}

// Purchase creates a membership period from a MEMBERSHIP policy. When the
// member already has coverage and the policy allows extension, the new
// period is appended after the latest existing end date; otherwise an
// overlapping purchase is rejected.
func (s *Service) Purchase(ctx context.Context, cmd PurchaseCommand) (*Membership, error) {
	plate := NormalizePlate(cmd.CarNumber)
	if cmd.MemberID == "" || plate == "" || cmd.PolicyID == "" {
		return nil, ErrBadRequest
	}
	p, err := s.policies.Get(ctx, cmd.PolicyID)
	if err != nil {
		return nil, err
	}
	if p.Type != policy.TypeMembership || p.Membership == nil || p.Membership.PeriodDays <= 0 {
		return nil, ErrNoPolicy
	}

	startDate := cmd.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}
	start := truncateToDay(startDate)
	latest, exists, err := s.store.LatestEnd(ctx, cmd.MemberID)
	if err != nil {
		return nil, err
	}
	if exists && !start.After(latest) {
		if !p.Membership.AllowExtension {
			return nil, ErrOverlap
		}
		start = latest.AddDate(0, 0, 1)
	}

	m := &Membership{
		ID:        types.ID(uuid.NewString()),
		MemberID:  cmd.MemberID,
		CarNumber: plate,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, p.Membership.PeriodDays-1),
		Status:    StatusSuccess,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func containsPlate(plates []string, normalized string) bool {
	for _, p := range plates {
		if NormalizePlate(p) == normalized {
			return true
		}
	}
	return false
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
