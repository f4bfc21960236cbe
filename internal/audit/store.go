package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivum-dms/archivum/internal/permission"
)

// Store appends and reads the permission audit trail. It satisfies the
// engine's sink interface for writes.
type Store interface {
	Record(ctx context.Context, entry permission.AuditEntry) error
	ByNode(ctx context.Context, node permission.NodeRef, limit, offset int) ([]Entry, bool, error)
	ByPrincipal(ctx context.Context, principal permission.PrincipalRef, limit, offset int) ([]Entry, bool, error)
	ByPerformer(ctx context.Context, userID int64, limit, offset int) ([]Entry, bool, error)
	Recent(ctx context.Context, limit, offset int) ([]Entry, bool, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Record(ctx context.Context, entry permission.AuditEntry) error {
	var (
		principalKind *string
		principalID   *int64
		oldLevel      *uint8
		newLevel      *uint8
	)
	if entry.Principal != nil {
		kind := string(entry.Principal.Kind)
		principalKind = &kind
		id := entry.Principal.ID
		principalID = &id
	}
	if entry.OldLevel != nil {
		v := uint8(*entry.OldLevel)
		oldLevel = &v
	}
	if entry.NewLevel != nil {
		v := uint8(*entry.NewLevel)
		newLevel = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO permission_audit (action, node_kind, node_id, principal_kind, principal_id, old_level, new_level, performed_by, request_id, ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Action, string(entry.Node.Kind), entry.Node.ID,
		principalKind, principalID, oldLevel, newLevel,
		entry.PerformedBy, entry.RequestID, entry.IP)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const entryColumns = `id, action, node_kind, node_id, principal_kind, principal_id, old_level, new_level, performed_by, request_id, ip, occurred_at`

func (s *pgStore) ByNode(ctx context.Context, node permission.NodeRef, limit, offset int) ([]Entry, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM permission_audit
		 WHERE node_kind = $1 AND node_id = $2
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		string(node.Kind), node.ID, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("audit by node: %w", err)
	}
	return collect(rows, limit)
}

func (s *pgStore) ByPrincipal(ctx context.Context, principal permission.PrincipalRef, limit, offset int) ([]Entry, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM permission_audit
		 WHERE principal_kind = $1 AND principal_id = $2
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		string(principal.Kind), principal.ID, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("audit by principal: %w", err)
	}
	return collect(rows, limit)
}

func (s *pgStore) ByPerformer(ctx context.Context, userID int64, limit, offset int) ([]Entry, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM permission_audit
		 WHERE performed_by = $1
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("audit by performer: %w", err)
	}
	return collect(rows, limit)
}

func (s *pgStore) Recent(ctx context.Context, limit, offset int) ([]Entry, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM permission_audit
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("audit recent: %w", err)
	}
	return collect(rows, limit)
}

// collect reads one row past the page size to learn whether a next page
// exists, then trims it off.
func collect(rows pgx.Rows, limit int) ([]Entry, bool, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.NodeKind, &e.NodeID, &e.PrincipalKind, &e.PrincipalID,
			&e.OldLevel, &e.NewLevel, &e.PerformedBy, &e.RequestID, &e.IP, &e.OccurredAt); err != nil {
			return nil, false, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasNext := len(out) > limit
	if hasNext {
		out = out[:limit]
	}
	return out, hasNext, nil
}
