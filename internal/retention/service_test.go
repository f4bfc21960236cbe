package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archivum-dms/archivum/internal/shared"
)

func TestHoldKindValid(t *testing.T) {
	require.True(t, HoldRetention.Valid())
	require.True(t, HoldLegal.Valid())
	require.False(t, HoldKind("audit").Valid())
	require.False(t, HoldKind("").Valid())
}

func TestHoldActive(t *testing.T) {
	require.True(t, Hold{}.Active())
	released := time.Now()
	require.False(t, Hold{ReleasedAt: &released}.Active())
}

type memHoldStore struct {
	nextID   int64
	holds    map[int64]*Hold
	disposed int64
	cutoff   time.Time
}

func newMemHoldStore() *memHoldStore {
	return &memHoldStore{nextID: 1, holds: map[int64]*Hold{}}
}

func (m *memHoldStore) Place(_ context.Context, h *Hold) error {
	h.ID = m.nextID
	h.PlacedAt = time.Now()
	m.nextID++
	m.holds[h.ID] = h
	return nil
}

func (m *memHoldStore) Release(_ context.Context, id, releasedBy int64) (Hold, error) {
	h, ok := m.holds[id]
	if !ok || !h.Active() {
		return Hold{}, shared.ErrNotFound
	}
	now := time.Now()
	h.ReleasedAt = &now
	h.ReleasedBy = &releasedBy
	return *h, nil
}

func (m *memHoldStore) Get(_ context.Context, id int64) (Hold, error) {
	h, ok := m.holds[id]
	if !ok {
		return Hold{}, shared.ErrNotFound
	}
	return *h, nil
}

func (m *memHoldStore) HoldsFor(_ context.Context, documentID int64) ([]Hold, error) {
	var out []Hold
	for _, h := range m.holds {
		if h.DocumentID == documentID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memHoldStore) HasActiveHold(_ context.Context, documentID int64) (bool, error) {
	for _, h := range m.holds {
		if h.DocumentID == documentID && h.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memHoldStore) DisposeEligible(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.disposed, nil
}

func newTestService(t *testing.T) (*Service, *memHoldStore) {
	t.Helper()
	store := newMemHoldStore()
	svc := NewService(store, nil, 90*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

var holdActor = shared.Actor{UserID: 42}

func TestPlaceAndReleaseHold(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.PlaceHold(ctx, holdActor, 5, HoldLegal, "litigation 2026/17")
	require.NoError(t, err)
	require.NotZero(t, h.ID)
	require.True(t, h.Active())
	require.Equal(t, int64(42), h.PlacedBy)

	blocked, err := svc.HasActiveHold(ctx, 5)
	require.NoError(t, err)
	require.True(t, blocked)

	released, err := svc.ReleaseHold(ctx, shared.Actor{UserID: 43}, h.ID)
	require.NoError(t, err)
	require.False(t, released.Active())
	require.NotNil(t, released.ReleasedBy)
	require.Equal(t, int64(43), *released.ReleasedBy)

	blocked, err = svc.HasActiveHold(ctx, 5)
	require.NoError(t, err)
	require.False(t, blocked)

	// Releasing twice reports not found; the row is already closed.
	_, err = svc.ReleaseHold(ctx, holdActor, h.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPlaceHoldRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.PlaceHold(context.Background(), holdActor, 5, HoldKind("audit"), "")
	require.Error(t, err)
}

func TestDisposalScanUsesRetentionCutoff(t *testing.T) {
	svc, store := newTestService(t)
	store.disposed = 3
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	n, err := svc.DisposalScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, fixed.Add(-90*24*time.Hour), store.cutoff)
}
