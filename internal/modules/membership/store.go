// README: Membership store backed by PostgreSQL.
package membership

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// HasActive reports whether a SUCCESS membership covers the plate on the
// given day (inclusive range).
func (s *Store) HasActive(ctx context.Context, carNumber string, day time.Time) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE car_number = $1
			  AND status = 'SUCCESS'
			  AND start_date <= $2::date
			  AND end_date >= $2::date
		)`, carNumber, day,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) LatestEnd(ctx context.Context, memberID types.ID) (time.Time, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT end_date FROM memberships
		WHERE member_id = $1 AND status = 'SUCCESS'
		ORDER BY end_date DESC
		LIMIT 1`, string(memberID),
	)
	var end time.Time
	err := row.Scan(&end)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return end, true, nil
}

// Create inserts a membership row. The overlap pre-check mirrors the
// schema's exclusion constraint so callers get ErrOverlap instead of a raw
// constraint violation in the common case; the constraint remains the
// backstop under concurrency.
func (s *Store) Create(ctx context.Context, m *Membership) error {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE member_id = $1
			  AND status = 'SUCCESS'
			  AND start_date <= $3::date
			  AND end_date >= $2::date
		)`, string(m.MemberID), m.StartDate, m.EndDate,
	)
	var overlaps bool
	if err := row.Scan(&overlaps); err != nil {
		return err
	}
	if overlaps && m.Status == StatusSuccess {
		return ErrOverlap
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO memberships (id, member_id, car_number, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(m.ID), string(m.MemberID), m.CarNumber, m.StartDate, m.EndDate, string(m.Status),
	)
	return err
}
