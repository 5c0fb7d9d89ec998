// README: Policy and holiday store backed by PostgreSQL.
package policy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse/internal/types"
)

var ErrNotFound = errors.New("policy not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ActivePolicies returns the active policies of one type visible to a site:
// site-specific rows plus global rows, ordered priority DESC with
// site-specific rows before global ones at equal priority. An empty result
// is not an error; absence of a FEE policy is a caller-level configuration
// fault.
func (s *Store) ActivePolicies(ctx context.Context, siteID types.ID, ptype Type) ([]Policy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, site_id, type, priority, is_active, config
		FROM policies
		WHERE type = $1
		  AND is_active
		  AND (site_id = $2 OR site_id IS NULL)
		ORDER BY priority DESC, (site_id IS NULL) ASC, id`,
		string(ptype), string(siteID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Policy, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, site_id, type, priority, is_active, config
		FROM policies
		WHERE id = $1`, string(id),
	)
	p, err := scanPolicy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) Create(ctx context.Context, p *Policy) error {
	cfg, err := p.EncodeConfig()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO policies (id, site_id, type, priority, is_active, config)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(p.ID), idPtr(p.SiteID), string(p.Type), p.Priority, p.IsActive, cfg,
	)
	return err
}

// Holidays loads the holiday rows visible to a site (site-specific + global).
func (s *Store) Holidays(ctx context.Context, siteID types.ID) ([]Holiday, error) {
	rows, err := s.db.Query(ctx, `
		SELECT site_id, day, is_recurring
		FROM holidays
		WHERE site_id = $1 OR site_id IS NULL`,
		string(siteID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var h Holiday
		var site *string
		if err := rows.Scan(&site, &h.Date, &h.IsRecurring); err != nil {
			return nil, err
		}
		h.SiteID = toIDPtr(site)
		out = append(out, h)
	}
	return out, rows.Err()
}

// CalendarFor is a convenience for callers that need a snapshot calendar.
func (s *Store) CalendarFor(ctx context.Context, siteID types.ID) (*HolidayCalendar, error) {
	rows, err := s.Holidays(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return NewCalendar(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*Policy, error) {
	var p Policy
	var site *string
	var cfg []byte
	if err := row.Scan(&p.ID, &site, &p.Type, &p.Priority, &p.IsActive, &cfg); err != nil {
		return nil, err
	}
	p.SiteID = toIDPtr(site)
	if err := p.DecodeConfig(cfg); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPolicies(rows pgx.Rows) ([]Policy, error) {
	out := []Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
