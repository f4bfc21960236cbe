package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/shared"
)

// Service wraps the hold store with lifecycle rules. Route-level guards
// already require Admin at the target document before any mutation lands
// here.
type Service struct {
	store     Store
	engine    *permission.Engine
	retainFor time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService configures retention. retainFor is how long an archived
// document must sit untouched before the disposal sweep may take it.
func NewService(store Store, engine *permission.Engine, retainFor time.Duration, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, retainFor: retainFor, logger: logger, now: time.Now}
}

// GetHold loads a single hold.
func (s *Service) GetHold(ctx context.Context, id int64) (Hold, error) {
	return s.store.Get(ctx, id)
}

// CanAdminister reports whether the user holds Admin at the document.
func (s *Service) CanAdminister(ctx context.Context, userID int64, documentID int64) (bool, error) {
	node := permission.NodeRef{Kind: permission.NodeDocument, ID: documentID}
	return s.engine.HasPermission(ctx, userID, node, permission.Admin)
}

func (s *Service) PlaceHold(ctx context.Context, actor shared.Actor, documentID int64, kind HoldKind, reason string) (Hold, error) {
	if !kind.Valid() {
		return Hold{}, fmt.Errorf("invalid hold kind %q", kind)
	}
	h := Hold{DocumentID: documentID, Kind: kind, Reason: reason, PlacedBy: actor.UserID}
	if err := s.store.Place(ctx, &h); err != nil {
		return Hold{}, err
	}
	s.logger.Info("hold placed",
		slog.Int64("hold_id", h.ID),
		slog.Int64("document_id", documentID),
		slog.String("kind", string(kind)),
		slog.Int64("placed_by", actor.UserID))
	return h, nil
}

func (s *Service) ReleaseHold(ctx context.Context, actor shared.Actor, id int64) (Hold, error) {
	h, err := s.store.Release(ctx, id, actor.UserID)
	if err != nil {
		return Hold{}, err
	}
	s.logger.Info("hold released",
		slog.Int64("hold_id", h.ID),
		slog.Int64("document_id", h.DocumentID),
		slog.Int64("released_by", actor.UserID))
	return h, nil
}

func (s *Service) HoldsFor(ctx context.Context, documentID int64) ([]Hold, error) {
	return s.store.HoldsFor(ctx, documentID)
}

func (s *Service) HasActiveHold(ctx context.Context, documentID int64) (bool, error) {
	return s.store.HasActiveHold(ctx, documentID)
}

// DisposalScan disposes archived documents past the retention window. Run
// from the scheduler.
func (s *Service) DisposalScan(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retainFor)
	n, err := s.store.DisposeEligible(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("disposal scan", slog.Int64("disposed", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}
