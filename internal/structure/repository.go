package structure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivum-dms/archivum/internal/platform/db"
)

// ErrNotFound indicates the requested structure or membership is unknown.
var ErrNotFound = errors.New("structure: not found")

// Repository persists the organizational tree and its memberships.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Structure, error)
	Create(ctx context.Context, s Structure) (int64, error)
	UpdateMeta(ctx context.Context, id int64, name string, kind Kind) error
	UpdateParent(ctx context.Context, id int64, parentID *int64) error
	UpdatePathLevel(ctx context.Context, id int64, path string, level int) error
	Deactivate(ctx context.Context, id int64) error
	Children(ctx context.Context, id int64) ([]Structure, error)
	Descendants(ctx context.Context, path string) ([]Structure, error)

	AddMember(ctx context.Context, m Membership) (int64, error)
	EndMembership(ctx context.Context, id int64, at time.Time) (*Membership, error)
	MembersOf(ctx context.Context, structureID int64, now time.Time) ([]Membership, error)
	StructuresOf(ctx context.Context, userID int64, now time.Time) ([]Membership, error)
	PrimaryStructureOf(ctx context.Context, userID int64, now time.Time) (*Structure, error)
	ActivePathsOf(ctx context.Context, userID int64, now time.Time) ([]MemberPath, error)
}

// MemberPath pairs an active membership with its structure's path.
type MemberPath struct {
	StructureID int64
	Path        string
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const structureColumns = `id, parent_id, name, kind, path, level, is_active, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Structure, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM structures WHERE id = $1`, structureColumns), id)
	s, err := scanStructure(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: structure %d", ErrNotFound, id)
		}
		return nil, err
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, s Structure) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO structures (parent_id, name, kind, path, level, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id`,
		toPgInt8(s.ParentID), s.Name, string(s.Kind), s.Path, s.Level,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create structure: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateMeta(ctx context.Context, id int64, name string, kind Kind) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE structures SET name = $2, kind = $3, updated_at = NOW() WHERE id = $1`,
		id, name, string(kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: structure %d", ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateParent(ctx context.Context, id int64, parentID *int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE structures SET parent_id = $2, updated_at = NOW() WHERE id = $1`,
		id, toPgInt8(parentID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: structure %d", ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdatePathLevel(ctx context.Context, id int64, path string, level int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE structures SET path = $2, level = $3, updated_at = NOW() WHERE id = $1`,
		id, path, level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: structure %d", ErrNotFound, id)
	}
	return nil
}

// Deactivate is a soft flag flip; historical grants keep referencing the row.
func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE structures SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: structure %d", ErrNotFound, id)
	}
	return nil
}

func (r *repository) Children(ctx context.Context, id int64) ([]Structure, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM structures WHERE parent_id = $1 ORDER BY id`, structureColumns), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStructures(rows)
}

// Descendants is a path-prefix match excluding the structure itself.
func (r *repository) Descendants(ctx context.Context, path string) ([]Structure, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM structures
		WHERE path LIKE $1 || '%%' AND path <> $1
		ORDER BY level, id`, structureColumns), path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStructures(rows)
}

func (r *repository) AddMember(ctx context.Context, m Membership) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO structure_memberships (user_id, structure_id, is_primary, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		m.UserID, m.StructureID, m.IsPrimary, m.StartsAt, toPgTimePtr(m.EndsAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add member: %w", err)
	}
	return id, nil
}

func (r *repository) EndMembership(ctx context.Context, id int64, at time.Time) (*Membership, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE structure_memberships SET ends_at = $2
		WHERE id = $1
		RETURNING id, user_id, structure_id, is_primary, starts_at, ends_at`, id, at)
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: membership %d", ErrNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

func (r *repository) MembersOf(ctx context.Context, structureID int64, now time.Time) ([]Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, structure_id, is_primary, starts_at, ends_at
		FROM structure_memberships
		WHERE structure_id = $1 AND starts_at <= $2 AND (ends_at IS NULL OR ends_at > $2)
		ORDER BY user_id`, structureID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

func (r *repository) StructuresOf(ctx context.Context, userID int64, now time.Time) ([]Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, structure_id, is_primary, starts_at, ends_at
		FROM structure_memberships
		WHERE user_id = $1 AND starts_at <= $2 AND (ends_at IS NULL OR ends_at > $2)
		ORDER BY structure_id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

func (r *repository) PrimaryStructureOf(ctx context.Context, userID int64, now time.Time) (*Structure, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM structures s
		JOIN structure_memberships m ON m.structure_id = s.id
		WHERE m.user_id = $1 AND m.is_primary
		  AND m.starts_at <= $2 AND (m.ends_at IS NULL OR m.ends_at > $2)
		ORDER BY m.id
		LIMIT 1`, prefixedStructureColumns("s")), userID, now)
	s, err := scanStructure(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: primary structure of user %d", ErrNotFound, userID)
		}
		return nil, err
	}
	return s, nil
}

// ActivePathsOf feeds the permission resolver: active memberships joined
// with the structure path, active structures only.
func (r *repository) ActivePathsOf(ctx context.Context, userID int64, now time.Time) ([]MemberPath, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.path
		FROM structures s
		JOIN structure_memberships m ON m.structure_id = s.id
		WHERE m.user_id = $1 AND s.is_active
		  AND m.starts_at <= $2 AND (m.ends_at IS NULL OR m.ends_at > $2)
		ORDER BY s.id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []MemberPath
	for rows.Next() {
		var mp MemberPath
		if err := rows.Scan(&mp.StructureID, &mp.Path); err != nil {
			return nil, err
		}
		paths = append(paths, mp)
	}
	return paths, rows.Err()
}

func prefixedStructureColumns(alias string) string {
	return fmt.Sprintf("%s.id, %s.parent_id, %s.name, %s.kind, %s.path, %s.level, %s.is_active, %s.created_at, %s.updated_at",
		alias, alias, alias, alias, alias, alias, alias, alias, alias)
}

func collectStructures(rows pgx.Rows) ([]Structure, error) {
	var structures []Structure
	for rows.Next() {
		s, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		structures = append(structures, *s)
	}
	return structures, rows.Err()
}

func scanStructure(row pgx.Row) (*Structure, error) {
	var s Structure
	var parentID pgtype.Int8
	var kind string
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&s.ID, &parentID, &s.Name, &kind, &s.Path, &s.Level, &s.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		v := parentID.Int64
		s.ParentID = &v
	}
	s.Kind = Kind(kind)
	if createdAt.Valid {
		s.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		s.UpdatedAt = updatedAt.Time
	}
	return &s, nil
}

func collectMemberships(rows pgx.Rows) ([]Membership, error) {
	var memberships []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

func scanMembership(row pgx.Row) (*Membership, error) {
	var m Membership
	var endsAt pgtype.Timestamptz
	err := row.Scan(&m.ID, &m.UserID, &m.StructureID, &m.IsPrimary, &m.StartsAt, &endsAt)
	if err != nil {
		return nil, err
	}
	if endsAt.Valid {
		t := endsAt.Time
		m.EndsAt = &t
	}
	return &m, nil
}

func toPgInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func toPgTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
