package structure

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memRepository struct {
	nextID       int64
	nextMemberID int64
	structures   map[int64]*Structure
	memberships  map[int64]*Membership
}

func newMemRepository() *memRepository {
	return &memRepository{
		nextID:       1,
		nextMemberID: 1,
		structures:   map[int64]*Structure{},
		memberships:  map[int64]*Membership{},
	}
}

func (m *memRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memRepository) Get(_ context.Context, id int64) (*Structure, error) {
	s, ok := m.structures[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepository) Create(_ context.Context, s Structure) (int64, error) {
	s.ID = m.nextID
	s.IsActive = true
	m.nextID++
	m.structures[s.ID] = &s
	return s.ID, nil
}

func (m *memRepository) UpdateMeta(_ context.Context, id int64, name string, kind Kind) error {
	s, ok := m.structures[id]
	if !ok {
		return ErrNotFound
	}
	s.Name = name
	s.Kind = kind
	return nil
}

func (m *memRepository) UpdateParent(_ context.Context, id int64, parentID *int64) error {
	s, ok := m.structures[id]
	if !ok {
		return ErrNotFound
	}
	s.ParentID = parentID
	return nil
}

func (m *memRepository) UpdatePathLevel(_ context.Context, id int64, path string, level int) error {
	s, ok := m.structures[id]
	if !ok {
		return ErrNotFound
	}
	s.Path = path
	s.Level = level
	return nil
}

func (m *memRepository) Deactivate(_ context.Context, id int64) error {
	s, ok := m.structures[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (m *memRepository) Children(_ context.Context, id int64) ([]Structure, error) {
	var out []Structure
	for _, s := range m.structures {
		if s.ParentID != nil && *s.ParentID == id {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepository) Descendants(_ context.Context, path string) ([]Structure, error) {
	var out []Structure
	for _, s := range m.structures {
		if IsDescendantPath(s.Path, path) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepository) AddMember(_ context.Context, mb Membership) (int64, error) {
	mb.ID = m.nextMemberID
	m.nextMemberID++
	m.memberships[mb.ID] = &mb
	return mb.ID, nil
}

func (m *memRepository) EndMembership(_ context.Context, id int64, at time.Time) (*Membership, error) {
	mb, ok := m.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	mb.EndsAt = &at
	cp := *mb
	return &cp, nil
}

func (m *memRepository) MembersOf(_ context.Context, structureID int64, now time.Time) ([]Membership, error) {
	var out []Membership
	for _, mb := range m.memberships {
		if mb.StructureID == structureID && mb.ActiveAt(now) {
			out = append(out, *mb)
		}
	}
	return out, nil
}

func (m *memRepository) StructuresOf(_ context.Context, userID int64, now time.Time) ([]Membership, error) {
	var out []Membership
	for _, mb := range m.memberships {
		if mb.UserID == userID && mb.ActiveAt(now) {
			out = append(out, *mb)
		}
	}
	return out, nil
}

func (m *memRepository) PrimaryStructureOf(_ context.Context, userID int64, now time.Time) (*Structure, error) {
	for _, mb := range m.memberships {
		if mb.UserID == userID && mb.IsPrimary && mb.ActiveAt(now) {
			return m.Get(context.Background(), mb.StructureID)
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) ActivePathsOf(_ context.Context, userID int64, now time.Time) ([]MemberPath, error) {
	var out []MemberPath
	for _, mb := range m.memberships {
		if mb.UserID != userID || !mb.ActiveAt(now) {
			continue
		}
		s, ok := m.structures[mb.StructureID]
		if !ok || !s.IsActive {
			continue
		}
		out = append(out, MemberPath{StructureID: s.ID, Path: s.Path})
	}
	return out, nil
}

type recordingInvalidator struct {
	structures []int64
	members    []int64
}

func (r *recordingInvalidator) StructureChanged(_ context.Context, structureID int64) {
	r.structures = append(r.structures, structureID)
}

func (r *recordingInvalidator) MemberChanged(_ context.Context, userID int64) {
	r.members = append(r.members, userID)
}

func newTestService(t *testing.T) (*Service, *memRepository, *recordingInvalidator) {
	t.Helper()
	repo := newMemRepository()
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, inv
}

// buildTree creates ministry 1 > department 2 > division 3, plus a sibling
// department 4 under the ministry.
func buildTree(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	ministry, err := svc.Create(ctx, "Interior", KindMinistry, nil)
	require.NoError(t, err)
	dept, err := svc.Create(ctx, "Records", KindDepartment, &ministry.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Registry", KindDivision, &dept.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Archives", KindDepartment, &ministry.ID)
	require.NoError(t, err)
}

func TestCreateComputesPathAndLevel(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	division, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "/1/2/3/", division.Path)
	require.Equal(t, 2, division.Level)
	require.Equal(t, []int64{1, 2}, AncestorIDs(division.Path))
}

func TestCreateRejectsRankInversion(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	// A ministry cannot sit under a department.
	deptID := int64(2)
	_, err := svc.Create(ctx, "Shadow", KindMinistry, &deptID)
	require.Error(t, err)

	// Equal ranks are rejected as well.
	_, err = svc.Create(ctx, "Twin", KindDepartment, &deptID)
	require.Error(t, err)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "   ", KindMinistry, nil)
	require.Error(t, err)

	_, err = svc.Create(ctx, "Interior", Kind("bureau"), nil)
	require.Error(t, err)
}

func TestMoveFixesUpSubtreePaths(t *testing.T) {
	svc, repo, inv := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	// Move department 2 (with division 3 underneath) below department 4.
	// Rank checks apply to creation; moves only guard against cycles.
	newParent := int64(4)
	require.NoError(t, svc.Move(ctx, 2, &newParent))

	moved, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "/1/4/2/", moved.Path)
	require.Equal(t, 2, moved.Level)

	child, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "/1/4/2/3/", child.Path)
	require.Equal(t, 3, child.Level)

	require.Contains(t, inv.structures, int64(2))
}

func TestMoveRejectsOwnSubtree(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	self := int64(2)
	require.Error(t, svc.Move(ctx, 2, &self))

	descendant := int64(3)
	require.Error(t, svc.Move(ctx, 2, &descendant))
}

func TestMoveToRootResetsLevel(t *testing.T) {
	svc, repo, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Move(ctx, 2, nil))

	moved, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "/2/", moved.Path)
	require.Equal(t, 0, moved.Level)

	child, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "/2/3/", child.Path)
}

func TestDeactivateCascades(t *testing.T) {
	svc, repo, inv := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, 2))

	dept, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, dept.IsActive)

	division, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.False(t, division.IsActive)

	sibling, err := repo.Get(ctx, 4)
	require.NoError(t, err)
	require.True(t, sibling.IsActive)

	require.Contains(t, inv.structures, int64(2))
}

func TestMembershipLifecycle(t *testing.T) {
	svc, _, inv := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	id, err := svc.AddMember(ctx, Membership{UserID: 7, StructureID: 3, IsPrimary: true})
	require.NoError(t, err)
	require.Contains(t, inv.members, int64(7))

	paths, err := svc.ActiveMemberships(ctx, 7)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, "/1/2/3/", paths[0].Path)

	primary, err := svc.PrimaryStructureOf(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(3), primary.ID)

	require.NoError(t, svc.EndMembership(ctx, id))
	paths, err = svc.ActiveMemberships(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestAddMemberRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.AddMember(ctx, Membership{UserID: 7, StructureID: 3, StartsAt: start, EndsAt: &end})
	require.Error(t, err)
}

func TestStructurePathHidesDeactivated(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildTree(t, svc)
	ctx := context.Background()

	path, ok, err := svc.StructurePath(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/1/2/3/", path)

	require.NoError(t, svc.Deactivate(ctx, 3))
	_, ok, err = svc.StructurePath(ctx, 3)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = svc.StructurePath(ctx, 999)
	require.NoError(t, err)
	require.False(t, ok)
}
