package documents

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/shared"
)

type memRepository struct {
	nextID    int64
	cabinets  map[int64]*Cabinet
	folders   map[int64]*Folder
	documents map[int64]*Document
	versions  map[int64][]Version
}

func newMemRepository() *memRepository {
	return &memRepository{
		nextID:    1,
		cabinets:  map[int64]*Cabinet{},
		folders:   map[int64]*Folder{},
		documents: map[int64]*Document{},
		versions:  map[int64][]Version{},
	}
}

func (m *memRepository) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memRepository) GetCabinet(_ context.Context, id int64) (Cabinet, error) {
	c, ok := m.cabinets[id]
	if !ok {
		return Cabinet{}, shared.ErrNotFound
	}
	return *c, nil
}

func (m *memRepository) CreateCabinet(_ context.Context, c *Cabinet) error {
	c.ID = m.id()
	m.cabinets[c.ID] = c
	return nil
}

func (m *memRepository) UpdateCabinet(_ context.Context, id int64, name, description string) (Cabinet, error) {
	c, ok := m.cabinets[id]
	if !ok {
		return Cabinet{}, shared.ErrNotFound
	}
	c.Name = name
	c.Description = description
	return *c, nil
}

func (m *memRepository) ListCabinets(_ context.Context, limit, offset int) ([]Cabinet, error) {
	var out []Cabinet
	for _, c := range m.cabinets {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepository) GetFolder(_ context.Context, id int64) (Folder, error) {
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, shared.ErrNotFound
	}
	return *f, nil
}

func (m *memRepository) CreateFolder(_ context.Context, f *Folder) error {
	f.ID = m.id()
	m.folders[f.ID] = f
	return nil
}

func (m *memRepository) RenameFolder(_ context.Context, id int64, name string) (Folder, error) {
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, shared.ErrNotFound
	}
	f.Name = name
	return *f, nil
}

func (m *memRepository) MoveFolder(_ context.Context, id int64, cabinetID int64, parentFolderID *int64) (Folder, error) {
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, shared.ErrNotFound
	}
	f.CabinetID = cabinetID
	f.ParentFolderID = parentFolderID
	return *f, nil
}

func (m *memRepository) SetFolderBreak(_ context.Context, id int64, breaks bool) (Folder, error) {
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, shared.ErrNotFound
	}
	f.BreaksInheritance = breaks
	return *f, nil
}

func (m *memRepository) ChildFolders(_ context.Context, cabinetID int64, parentFolderID *int64) ([]Folder, error) {
	var out []Folder
	for _, f := range m.folders {
		if f.CabinetID != cabinetID {
			continue
		}
		if parentFolderID == nil {
			if f.ParentFolderID == nil {
				out = append(out, *f)
			}
			continue
		}
		if f.ParentFolderID != nil && *f.ParentFolderID == *parentFolderID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memRepository) GetDocument(_ context.Context, id int64) (Document, error) {
	d, ok := m.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	return *d, nil
}

func (m *memRepository) CreateDocument(_ context.Context, d *Document) error {
	d.ID = m.id()
	m.documents[d.ID] = d
	return nil
}

func (m *memRepository) UpdateDocument(_ context.Context, id int64, title string, status Status) (Document, error) {
	d, ok := m.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	d.Title = title
	d.Status = status
	return *d, nil
}

func (m *memRepository) MoveDocument(_ context.Context, id int64, folderID int64) (Document, error) {
	d, ok := m.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	d.FolderID = folderID
	return *d, nil
}

func (m *memRepository) SetDocumentBreak(_ context.Context, id int64, breaks bool) (Document, error) {
	d, ok := m.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	d.BreaksInheritance = breaks
	return *d, nil
}

func (m *memRepository) DocumentsInFolder(_ context.Context, folderID int64, limit, offset int) ([]Document, error) {
	var out []Document
	for _, d := range m.documents {
		if d.FolderID == folderID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memRepository) AddVersion(_ context.Context, v *Version) error {
	d, ok := m.documents[v.DocumentID]
	if !ok {
		return shared.ErrNotFound
	}
	d.CurrentVersion++
	v.ID = m.id()
	v.VersionNo = d.CurrentVersion
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], *v)
	return nil
}

func (m *memRepository) Versions(_ context.Context, documentID int64) ([]Version, error) {
	return m.versions[documentID], nil
}

type recordingNotifier struct {
	invalidated []permission.NodeRef
	changes     []permission.NodeRef
	breakFlags  []bool
}

func (r *recordingNotifier) RecordInheritanceChange(_ context.Context, _ shared.Actor, node permission.NodeRef, breaks bool) error {
	r.changes = append(r.changes, node)
	r.breakFlags = append(r.breakFlags, breaks)
	return nil
}

func (r *recordingNotifier) InvalidateNode(_ context.Context, node permission.NodeRef) {
	r.invalidated = append(r.invalidated, node)
}

var docActor = shared.Actor{UserID: 42}

func newTestService(t *testing.T) (*Service, *memRepository, *recordingNotifier) {
	t.Helper()
	repo := newMemRepository()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, notifier
}

// buildHierarchy creates cabinet 1 with folder 2 > folder 3, a sibling
// folder 4, and document 5 in folder 3.
func buildHierarchy(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	cab, err := svc.CreateCabinet(ctx, docActor, "Correspondence", "")
	require.NoError(t, err)
	top, err := svc.CreateFolder(ctx, docActor, cab.ID, nil, "Inbound")
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, docActor, cab.ID, &top.ID, "2026")
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, docActor, cab.ID, nil, "Outbound")
	require.NoError(t, err)
	_, err = svc.CreateDocument(ctx, docActor, 3, "Memo 12", "MEM-12")
	require.NoError(t, err)
}

func TestCreateFolderValidatesPlacement(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	_, err := svc.CreateFolder(ctx, docActor, 999, nil, "Orphan")
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Parent folder must live in the same cabinet.
	other, err := svc.CreateCabinet(ctx, docActor, "Reports", "")
	require.NoError(t, err)
	parent := int64(2)
	_, err = svc.CreateFolder(ctx, docActor, other.ID, &parent, "Crossed")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMoveFolderRejectsCycles(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	self := int64(2)
	_, err := svc.MoveFolder(ctx, 2, &self)
	require.ErrorIs(t, err, ErrFolderCycle)

	descendant := int64(3)
	_, err = svc.MoveFolder(ctx, 2, &descendant)
	require.ErrorIs(t, err, ErrFolderCycle)
}

func TestMoveFolderInvalidatesSubtree(t *testing.T) {
	svc, _, notifier := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	target := int64(4)
	moved, err := svc.MoveFolder(ctx, 2, &target)
	require.NoError(t, err)
	require.NotNil(t, moved.ParentFolderID)
	require.Equal(t, target, *moved.ParentFolderID)

	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeFolder, ID: 2})
	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeFolder, ID: 3})
	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})
}

func TestMoveFolderAcrossCabinetsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	other, err := svc.CreateCabinet(ctx, docActor, "Reports", "")
	require.NoError(t, err)
	foreign, err := svc.CreateFolder(ctx, docActor, other.ID, nil, "Annual")
	require.NoError(t, err)

	_, err = svc.MoveFolder(ctx, 2, &foreign.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetFolderInheritanceRecordsChange(t *testing.T) {
	svc, _, notifier := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	folder, err := svc.SetFolderInheritance(ctx, docActor, 2, true)
	require.NoError(t, err)
	require.True(t, folder.BreaksInheritance)

	require.Equal(t, []permission.NodeRef{{Kind: permission.NodeFolder, ID: 2}}, notifier.changes)
	require.Equal(t, []bool{true}, notifier.breakFlags)
	// The whole subtree is invalidated, documents included.
	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})
}

func TestSetDocumentInheritance(t *testing.T) {
	svc, _, notifier := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	doc, err := svc.SetDocumentInheritance(ctx, docActor, 5, true)
	require.NoError(t, err)
	require.True(t, doc.BreaksInheritance)
	require.Contains(t, notifier.changes, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})
	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})
}

func TestMoveDocumentInvalidates(t *testing.T) {
	svc, _, notifier := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	doc, err := svc.MoveDocument(ctx, 5, 4)
	require.NoError(t, err)
	require.Equal(t, int64(4), doc.FolderID)
	require.Contains(t, notifier.invalidated, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})

	_, err = svc.MoveDocument(ctx, 5, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAddVersionBumpsCurrent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	v1, err := svc.AddVersion(ctx, docActor, 5, Version{FileName: "memo.pdf", ContentType: "application/pdf", SizeBytes: 1024})
	require.NoError(t, err)
	require.Equal(t, 1, v1.VersionNo)
	require.Equal(t, int64(42), v1.CreatedBy)

	v2, err := svc.AddVersion(ctx, docActor, 5, Version{FileName: "memo-v2.pdf", ContentType: "application/pdf", SizeBytes: 2048})
	require.NoError(t, err)
	require.Equal(t, 2, v2.VersionNo)

	doc, err := repo.GetDocument(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 2, doc.CurrentVersion)

	versions, err := svc.Versions(ctx, 5)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestNodeInfoMapping(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	info, ok, err := svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeCabinet, ID: 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, info.Parent)

	// A top-level folder's parent is the cabinet.
	info, ok, err = svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeFolder, ID: 2})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, info.Parent)
	require.Equal(t, permission.NodeRef{Kind: permission.NodeCabinet, ID: 1}, *info.Parent)

	// A nested folder's parent is its folder.
	info, ok, err = svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeFolder, ID: 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, permission.NodeRef{Kind: permission.NodeFolder, ID: 2}, *info.Parent)

	info, ok, err = svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeDocument, ID: 5})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, permission.NodeRef{Kind: permission.NodeFolder, ID: 3}, *info.Parent)

	_, ok, err = svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeDocument, ID: 999})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = svc.NodeInfo(ctx, permission.NodeRef{Kind: "shelf", ID: 1})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNodeInfoCarriesBreakFlag(t *testing.T) {
	svc, _, _ := newTestService(t)
	buildHierarchy(t, svc)
	ctx := context.Background()

	_, err := svc.SetFolderInheritance(ctx, docActor, 3, true)
	require.NoError(t, err)

	info, ok, err := svc.NodeInfo(ctx, permission.NodeRef{Kind: permission.NodeFolder, ID: 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, info.BreaksInheritance)
}
