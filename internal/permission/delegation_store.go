package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DelegationStore persists time-bounded permission hand-offs. Revocation and
// expiry flip the active flag; rows are never physically required to go away.
type DelegationStore interface {
	Get(ctx context.Context, id int64) (*Delegation, error)
	Create(ctx context.Context, d Delegation) (int64, error)
	Revoke(ctx context.Context, id, revokedBy int64, at time.Time) error
	ByDelegator(ctx context.Context, delegatorID int64) ([]Delegation, error)
	ByDelegate(ctx context.Context, delegateID int64) ([]Delegation, error)
	ActiveByDelegate(ctx context.Context, delegateID int64, now time.Time) ([]Delegation, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type delegationStore struct {
	pool *pgxpool.Pool
}

// NewDelegationStore constructs a Postgres-backed DelegationStore.
func NewDelegationStore(pool *pgxpool.Pool) DelegationStore {
	return &delegationStore{pool: pool}
}

const delegationColumns = `id, delegator_id, delegate_id, scope_kind, scope_id, level,
	starts_at, ends_at, is_active, revoked_at, revoked_by, created_at`

func (s *delegationStore) Get(ctx context.Context, id int64) (*Delegation, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM permission_delegations WHERE id = $1`, delegationColumns), id)
	d, err := scanDelegation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: delegation %d", ErrNotFound, id)
		}
		return nil, err
	}
	return d, nil
}

func (s *delegationStore) Create(ctx context.Context, d Delegation) (int64, error) {
	if !d.EndsAt.After(d.StartsAt) {
		return 0, fmt.Errorf("%w: delegation end must be after start", ErrInvalidScope)
	}
	if d.Scope != nil && !d.Scope.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown node kind %q", ErrInvalidScope, d.Scope.Kind)
	}
	var scopeKind pgtype.Text
	var scopeID pgtype.Int8
	if d.Scope != nil {
		scopeKind = pgtype.Text{String: string(d.Scope.Kind), Valid: true}
		scopeID = pgtype.Int8{Int64: d.Scope.ID, Valid: true}
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO permission_delegations
			(delegator_id, delegate_id, scope_kind, scope_id, level, starts_at, ends_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id`,
		d.DelegatorID, d.DelegateID, scopeKind, scopeID, int16(d.Level), d.StartsAt, d.EndsAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create delegation: %w", err)
	}
	return id, nil
}

func (s *delegationStore) Revoke(ctx context.Context, id, revokedBy int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE permission_delegations
		SET is_active = FALSE, revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND is_active`,
		id, at, revokedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: active delegation %d", ErrNotFound, id)
	}
	return nil
}

func (s *delegationStore) ByDelegator(ctx context.Context, delegatorID int64) ([]Delegation, error) {
	return s.list(ctx, `delegator_id = $1`, delegatorID)
}

func (s *delegationStore) ByDelegate(ctx context.Context, delegateID int64) ([]Delegation, error) {
	return s.list(ctx, `delegate_id = $1`, delegateID)
}

func (s *delegationStore) ActiveByDelegate(ctx context.Context, delegateID int64, now time.Time) ([]Delegation, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM permission_delegations
		WHERE delegate_id = $1 AND is_active AND starts_at <= $2 AND ends_at > $2
		ORDER BY id`, delegationColumns), delegateID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDelegations(rows)
}

func (s *delegationStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE permission_delegations
		SET is_active = FALSE
		WHERE is_active AND ends_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *delegationStore) list(ctx context.Context, where string, arg any) ([]Delegation, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM permission_delegations WHERE %s ORDER BY id`, delegationColumns, where), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDelegations(rows)
}

func collectDelegations(rows pgx.Rows) ([]Delegation, error) {
	var delegations []Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, *d)
	}
	return delegations, rows.Err()
}

func scanDelegation(row pgx.Row) (*Delegation, error) {
	var d Delegation
	var scopeKind pgtype.Text
	var scopeID pgtype.Int8
	var level int16
	var revokedAt pgtype.Timestamptz
	var revokedBy pgtype.Int8
	var createdAt pgtype.Timestamptz
	err := row.Scan(
		&d.ID, &d.DelegatorID, &d.DelegateID, &scopeKind, &scopeID, &level,
		&d.StartsAt, &d.EndsAt, &d.IsActive, &revokedAt, &revokedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	d.Level = AccessLevel(level)
	if scopeKind.Valid && scopeID.Valid {
		d.Scope = &NodeRef{Kind: NodeKind(scopeKind.String), ID: scopeID.Int64}
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		d.RevokedAt = &t
	}
	if revokedBy.Valid {
		v := revokedBy.Int64
		d.RevokedBy = &v
	}
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	return &d, nil
}
