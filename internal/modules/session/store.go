// README: Session store backed by PostgreSQL; optimistic status updates.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse/internal/modules/billing"
	"gatehouse/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, sess *ParkingSession) error {
	discounts, err := json.Marshal(sess.AppliedDiscounts)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO parking_sessions (
			id, site_id, car_number, status, status_version,
			entry_zone_id, entry_lane_id, entry_time,
			exit_zone_id, exit_lane_id, exit_time,
			total_fee, discount_fee, paid_fee, applied_discounts, member_covered,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16,
			$17
		)`,
		string(sess.ID), string(sess.SiteID), sess.CarNumber, string(sess.Status), sess.StatusVersion,
		sess.EntryZoneID, sess.EntryLaneID, sess.EntryTime,
		sess.ExitZoneID, sess.ExitLaneID, sess.ExitTime,
		sess.TotalFee, sess.DiscountFee, sess.PaidFee, discounts, sess.MemberCovered,
		sess.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*ParkingSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, site_id, car_number, status, status_version,
		       entry_zone_id, entry_lane_id, entry_time,
		       exit_zone_id, exit_lane_id, exit_time,
		       total_fee, discount_fee, paid_fee, applied_discounts, member_covered,
		       created_at
		FROM parking_sessions
		WHERE id = $1`, string(id),
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ActiveByPlate finds the open session for a plate at a site, if any. Open
// means any non-terminal status; a missed exit leaves such a row behind.
func (s *Store) ActiveByPlate(ctx context.Context, siteID types.ID, carNumber string) (*ParkingSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, site_id, car_number, status, status_version,
		       entry_zone_id, entry_lane_id, entry_time,
		       exit_zone_id, exit_lane_id, exit_time,
		       total_fee, discount_fee, paid_fee, applied_discounts, member_covered,
		       created_at
		FROM parking_sessions
		WHERE site_id = $1
		  AND car_number = $2
		  AND status IN ('PENDING_ENTRY','PENDING','PRE_SETTLED','PAYMENT_PENDING')
		ORDER BY entry_time DESC
		LIMIT 1`,
		string(siteID), carNumber,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE parking_sessions
		SET status = $1,
		    status_version = status_version + 1
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateQuote replaces the fee breakdown wholesale along with the status
// transition, under the same compare-and-swap guard.
func (s *Store) UpdateQuote(ctx context.Context, id types.ID, from, to Status, version int, q billing.Quote, exit *ExitPoint) (bool, error) {
	discounts, err := json.Marshal(q.Applied)
	if err != nil {
		return false, err
	}
	var exitZone, exitLane *string
	var exitTime *time.Time
	if exit != nil {
		exitZone, exitLane, exitTime = &exit.ZoneID, &exit.LaneID, &exit.Time
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE parking_sessions
		SET status = $1,
		    status_version = status_version + 1,
		    total_fee = $2,
		    discount_fee = $3,
		    paid_fee = $4,
		    applied_discounts = $5,
		    member_covered = $6,
		    exit_zone_id = COALESCE($7, exit_zone_id),
		    exit_lane_id = COALESCE($8, exit_lane_id),
		    exit_time = COALESCE($9, exit_time)
		WHERE id = $10 AND status = $11 AND status_version = $12`,
		string(to), q.TotalFee, q.DiscountFee, q.PaidFee, discounts, q.MemberCovered,
		exitZone, exitLane, exitTime,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_state_events (
			session_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.SessionID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, e.ActorID, e.CreatedAt,
	)
	return err
}

func scanSession(row pgx.Row) (*ParkingSession, error) {
	var sess ParkingSession
	var discounts []byte
	err := row.Scan(
		&sess.ID, &sess.SiteID, &sess.CarNumber, &sess.Status, &sess.StatusVersion,
		&sess.EntryZoneID, &sess.EntryLaneID, &sess.EntryTime,
		&sess.ExitZoneID, &sess.ExitLaneID, &sess.ExitTime,
		&sess.TotalFee, &sess.DiscountFee, &sess.PaidFee, &discounts, &sess.MemberCovered,
		&sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(discounts) > 0 {
		if err := json.Unmarshal(discounts, &sess.AppliedDiscounts); err != nil {
			return nil, err
		}
	}
	if sess.AppliedDiscounts == nil {
		sess.AppliedDiscounts = []billing.AppliedDiscount{}
	}
	return &sess, nil
}
