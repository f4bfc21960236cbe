package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivum-dms/archivum/internal/shared"
)

// Store persists holds and runs the disposal sweep.
type Store interface {
	Place(ctx context.Context, h *Hold) error
	Release(ctx context.Context, id int64, releasedBy int64) (Hold, error)
	Get(ctx context.Context, id int64) (Hold, error)
	HoldsFor(ctx context.Context, documentID int64) ([]Hold, error)
	HasActiveHold(ctx context.Context, documentID int64) (bool, error)
	DisposeEligible(ctx context.Context, cutoff time.Time) (int64, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const holdColumns = `id, document_id, kind, reason, placed_by, placed_at, released_by, released_at`

func (s *pgStore) Place(ctx context.Context, h *Hold) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO retention_holds (document_id, kind, reason, placed_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, placed_at`,
		h.DocumentID, h.Kind, h.Reason, h.PlacedBy,
	).Scan(&h.ID, &h.PlacedAt)
	if err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

// Release closes an active hold. Releasing an already-released hold is not
// found, which keeps the operation idempotent for the caller.
func (s *pgStore) Release(ctx context.Context, id int64, releasedBy int64) (Hold, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE retention_holds SET released_by = $2, released_at = NOW()
		 WHERE id = $1 AND released_at IS NULL
		 RETURNING `+holdColumns, id, releasedBy)
	return scanHold(row)
}

func (s *pgStore) Get(ctx context.Context, id int64) (Hold, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdColumns+` FROM retention_holds WHERE id = $1`, id)
	return scanHold(row)
}

func (s *pgStore) HoldsFor(ctx context.Context, documentID int64) ([]Hold, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+holdColumns+` FROM retention_holds
		 WHERE document_id = $1
		 ORDER BY placed_at DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *pgStore) HasActiveHold(ctx context.Context, documentID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM retention_holds WHERE document_id = $1 AND released_at IS NULL)`,
		documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active hold: %w", err)
	}
	return exists, nil
}

// DisposeEligible marks archived documents untouched since cutoff as
// disposed, skipping anything under an active hold. Returns the number of
// documents disposed.
func (s *pgStore) DisposeEligible(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = 'disposed', updated_at = NOW()
		 WHERE status = 'archived'
		   AND updated_at < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM retention_holds
		     WHERE retention_holds.document_id = documents.id AND released_at IS NULL
		   )`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("dispose eligible documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanHold(row pgx.Row) (Hold, error) {
	var h Hold
	err := row.Scan(&h.ID, &h.DocumentID, &h.Kind, &h.Reason, &h.PlacedBy, &h.PlacedAt, &h.ReleasedBy, &h.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Hold{}, shared.ErrNotFound
	}
	if err != nil {
		return Hold{}, fmt.Errorf("scan hold: %w", err)
	}
	return h, nil
}
