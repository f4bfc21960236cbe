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

// GrantStore persists raw authorization facts. Expired grants are filtered
// at read time; SweepExpired removes them physically.
type GrantStore interface {
	Get(ctx context.Context, id int64) (*Grant, error)
	GrantsOnNode(ctx context.Context, node NodeRef) ([]Grant, error)
	GrantsOfPrincipal(ctx context.Context, principal PrincipalRef) ([]Grant, error)
	Create(ctx context.Context, grant Grant) (int64, error)
	Update(ctx context.Context, id int64, level AccessLevel, expiresAt *time.Time, reason string) error
	Delete(ctx context.Context, id int64) error
	DeleteDirectGrants(ctx context.Context, node NodeRef) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type grantStore struct {
	pool *pgxpool.Pool
}

// NewGrantStore constructs a Postgres-backed GrantStore.
func NewGrantStore(pool *pgxpool.Pool) GrantStore {
	return &grantStore{pool: pool}
}

const grantColumns = `id, node_kind, node_id, principal_kind, principal_id, level,
	is_inherited, include_child_structures, expires_at, reason, granted_by, created_at`

func (s *grantStore) Get(ctx context.Context, id int64) (*Grant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM permission_grants WHERE id = $1`, grantColumns), id)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: grant %d", ErrNotFound, id)
		}
		return nil, err
	}
	return grant, nil
}

func (s *grantStore) GrantsOnNode(ctx context.Context, node NodeRef) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM permission_grants
		WHERE node_kind = $1 AND node_id = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY id`, grantColumns), string(node.Kind), node.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *grantStore) GrantsOfPrincipal(ctx context.Context, principal PrincipalRef) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM permission_grants
		WHERE principal_kind = $1 AND principal_id = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY id`, grantColumns), string(principal.Kind), principal.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *grantStore) Create(ctx context.Context, grant Grant) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO permission_grants
			(node_kind, node_id, principal_kind, principal_id, level,
			 is_inherited, include_child_structures, expires_at, reason, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		string(grant.Node.Kind), grant.Node.ID,
		string(grant.Principal.Kind), grant.Principal.ID,
		int16(grant.Level), grant.IsInherited, grant.IncludeChildStructures,
		toPgTime(grant.ExpiresAt), grant.Reason, grant.GrantedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create grant: %w", err)
	}
	return id, nil
}

// Update changes level, expiration and reason only. Target node and
// principal are immutable after creation.
func (s *grantStore) Update(ctx context.Context, id int64, level AccessLevel, expiresAt *time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE permission_grants
		SET level = $2, expires_at = $3, reason = $4
		WHERE id = $1`,
		id, int16(level), toPgTime(expiresAt), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: grant %d", ErrNotFound, id)
	}
	return nil
}

func (s *grantStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permission_grants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: grant %d", ErrNotFound, id)
	}
	return nil
}

func (s *grantStore) DeleteDirectGrants(ctx context.Context, node NodeRef) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM permission_grants
		WHERE node_kind = $1 AND node_id = $2 AND is_inherited = FALSE`,
		string(node.Kind), node.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *grantStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM permission_grants
		WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectGrants(rows pgx.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *grant)
	}
	return grants, rows.Err()
}

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	var nodeKind, principalKind string
	var level int16
	var expiresAt pgtype.Timestamptz
	var reason pgtype.Text
	var createdAt pgtype.Timestamptz
	err := row.Scan(
		&g.ID, &nodeKind, &g.Node.ID, &principalKind, &g.Principal.ID, &level,
		&g.IsInherited, &g.IncludeChildStructures, &expiresAt, &reason, &g.GrantedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	g.Node.Kind = NodeKind(nodeKind)
	g.Principal.Kind = PrincipalKind(principalKind)
	g.Level = AccessLevel(level)
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	if reason.Valid {
		g.Reason = reason.String
	}
	if createdAt.Valid {
		g.CreatedAt = createdAt.Time
	}
	return &g, nil
}

func toPgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
