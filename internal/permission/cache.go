package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const traceSeparator = "\n"

// CacheStore memoizes resolver output per (node, user). Entries persist
// until targeted invalidation or natural expiration.
type CacheStore interface {
	Get(ctx context.Context, node NodeRef, userID int64, now time.Time) (*CachedDecision, error)
	Upsert(ctx context.Context, node NodeRef, userID int64, decision Decision, computedAt time.Time) error
	InvalidateByNode(ctx context.Context, node NodeRef) (int64, error)
	InvalidateByUser(ctx context.Context, userID int64) (int64, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type cacheStore struct {
	pool *pgxpool.Pool
}

// NewCacheStore constructs a Postgres-backed CacheStore over the
// effective_permissions table.
func NewCacheStore(pool *pgxpool.Pool) CacheStore {
	return &cacheStore{pool: pool}
}

func (s *cacheStore) Get(ctx context.Context, node NodeRef, userID int64, now time.Time) (*CachedDecision, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, level, source, source_node_kind, source_node_id, source_grant_id,
		       inheritance_trace, computed_at, expires_at
		FROM effective_permissions
		WHERE node_kind = $1 AND node_id = $2 AND user_id = $3
		  AND (expires_at IS NULL OR expires_at > $4)`,
		string(node.Kind), node.ID, userID, now)

	var cached CachedDecision
	var level int16
	var source string
	var sourceNodeKind pgtype.Text
	var sourceNodeID, sourceGrantID pgtype.Int8
	var trace pgtype.Text
	var computedAt pgtype.Timestamptz
	var expiresAt pgtype.Timestamptz
	err := row.Scan(&cached.ID, &level, &source, &sourceNodeKind, &sourceNodeID,
		&sourceGrantID, &trace, &computedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cached.Node = node
	cached.UserID = userID
	cached.Decision = Decision{
		Level:  AccessLevel(level),
		Source: Source(source),
	}
	if sourceNodeKind.Valid && sourceNodeID.Valid {
		cached.Decision.SourceNode = NodeRef{Kind: NodeKind(sourceNodeKind.String), ID: sourceNodeID.Int64}
	}
	if sourceGrantID.Valid {
		cached.Decision.SourceGrantID = sourceGrantID.Int64
	}
	if trace.Valid && trace.String != "" {
		cached.Decision.Trace = strings.Split(trace.String, traceSeparator)
	}
	if computedAt.Valid {
		cached.ComputedAt = computedAt.Time
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		cached.Decision.ExpiresAt = &t
	}
	return &cached, nil
}

func (s *cacheStore) Upsert(ctx context.Context, node NodeRef, userID int64, decision Decision, computedAt time.Time) error {
	var sourceNodeKind pgtype.Text
	var sourceNodeID pgtype.Int8
	if !decision.SourceNode.IsZero() {
		sourceNodeKind = pgtype.Text{String: string(decision.SourceNode.Kind), Valid: true}
		sourceNodeID = pgtype.Int8{Int64: decision.SourceNode.ID, Valid: true}
	}
	var sourceGrantID pgtype.Int8
	if decision.SourceGrantID != 0 {
		sourceGrantID = pgtype.Int8{Int64: decision.SourceGrantID, Valid: true}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO effective_permissions
			(node_kind, node_id, user_id, level, source, source_node_kind,
			 source_node_id, source_grant_id, inheritance_trace, computed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (node_kind, node_id, user_id) DO UPDATE SET
			level = EXCLUDED.level,
			source = EXCLUDED.source,
			source_node_kind = EXCLUDED.source_node_kind,
			source_node_id = EXCLUDED.source_node_id,
			source_grant_id = EXCLUDED.source_grant_id,
			inheritance_trace = EXCLUDED.inheritance_trace,
			computed_at = EXCLUDED.computed_at,
			expires_at = EXCLUDED.expires_at`,
		string(node.Kind), node.ID, userID, int16(decision.Level), string(decision.Source),
		sourceNodeKind, sourceNodeID, sourceGrantID,
		strings.Join(decision.Trace, traceSeparator), computedAt, toPgTime(decision.ExpiresAt))
	if err != nil {
		return fmt.Errorf("upsert effective permission: %w", err)
	}
	return nil
}

func (s *cacheStore) InvalidateByNode(ctx context.Context, node NodeRef) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM effective_permissions WHERE node_kind = $1 AND node_id = $2`,
		string(node.Kind), node.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *cacheStore) InvalidateByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM effective_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *cacheStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM effective_permissions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
