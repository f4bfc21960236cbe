package documents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/shared"
)

// PermissionNotifier is the slice of the permission engine the document
// service drives: cache invalidation when the hierarchy changes shape, and
// the audited flag flip for inheritance breaks.
type PermissionNotifier interface {
	RecordInheritanceChange(ctx context.Context, actor shared.Actor, node permission.NodeRef, breaks bool) error
	InvalidateNode(ctx context.Context, node permission.NodeRef)
}

// Service owns the containment hierarchy. It also answers parent lookups
// for the permission resolver via NodeInfo.
type Service struct {
	repo        Repository
	permissions PermissionNotifier
	logger      *slog.Logger
}

func NewService(repo Repository, permissions PermissionNotifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, permissions: permissions, logger: logger}
}

func (s *Service) GetCabinet(ctx context.Context, id int64) (Cabinet, error) {
	return s.repo.GetCabinet(ctx, id)
}

func (s *Service) CreateCabinet(ctx context.Context, actor shared.Actor, name, description string) (Cabinet, error) {
	c := Cabinet{Name: name, Description: description, CreatedBy: actor.UserID}
	if err := s.repo.CreateCabinet(ctx, &c); err != nil {
		return Cabinet{}, err
	}
	return c, nil
}

func (s *Service) UpdateCabinet(ctx context.Context, id int64, name, description string) (Cabinet, error) {
	return s.repo.UpdateCabinet(ctx, id, name, description)
}

func (s *Service) ListCabinets(ctx context.Context, p shared.Pagination) ([]Cabinet, error) {
	return s.repo.ListCabinets(ctx, p.PerPage, p.Offset())
}

func (s *Service) GetFolder(ctx context.Context, id int64) (Folder, error) {
	return s.repo.GetFolder(ctx, id)
}

// CreateFolder places a folder either directly under a cabinet or under a
// parent folder within the same cabinet.
func (s *Service) CreateFolder(ctx context.Context, actor shared.Actor, cabinetID int64, parentFolderID *int64, name string) (Folder, error) {
	if _, err := s.repo.GetCabinet(ctx, cabinetID); err != nil {
		return Folder{}, fmt.Errorf("cabinet %d: %w", cabinetID, err)
	}
	if parentFolderID != nil {
		parent, err := s.repo.GetFolder(ctx, *parentFolderID)
		if err != nil {
			return Folder{}, fmt.Errorf("parent folder %d: %w", *parentFolderID, err)
		}
		if parent.CabinetID != cabinetID {
			return Folder{}, fmt.Errorf("%w: parent folder belongs to cabinet %d", shared.ErrNotFound, parent.CabinetID)
		}
	}
	f := Folder{CabinetID: cabinetID, ParentFolderID: parentFolderID, Name: name, CreatedBy: actor.UserID}
	if err := s.repo.CreateFolder(ctx, &f); err != nil {
		return Folder{}, err
	}
	return f, nil
}

func (s *Service) RenameFolder(ctx context.Context, id int64, name string) (Folder, error) {
	return s.repo.RenameFolder(ctx, id, name)
}

// MoveFolder re-parents a folder. The target must be in the same cabinet and
// must not be the folder itself or one of its descendants. Effective
// permissions under the moved subtree change, so all of its nodes are
// invalidated.
func (s *Service) MoveFolder(ctx context.Context, id int64, parentFolderID *int64) (Folder, error) {
	folder, err := s.repo.GetFolder(ctx, id)
	if err != nil {
		return Folder{}, err
	}
	if parentFolderID != nil {
		target, err := s.repo.GetFolder(ctx, *parentFolderID)
		if err != nil {
			return Folder{}, fmt.Errorf("target folder %d: %w", *parentFolderID, err)
		}
		if target.CabinetID != folder.CabinetID {
			return Folder{}, fmt.Errorf("%w: target folder is in another cabinet", shared.ErrNotFound)
		}
		if cyclic, err := s.wouldCycle(ctx, id, target); err != nil {
			return Folder{}, err
		} else if cyclic {
			return Folder{}, ErrFolderCycle
		}
	}
	moved, err := s.repo.MoveFolder(ctx, id, folder.CabinetID, parentFolderID)
	if err != nil {
		return Folder{}, err
	}
	s.invalidateSubtree(ctx, moved.ID)
	return moved, nil
}

// wouldCycle reports whether target sits in the subtree rooted at folderID.
func (s *Service) wouldCycle(ctx context.Context, folderID int64, target Folder) (bool, error) {
	current := target
	for {
		if current.ID == folderID {
			return true, nil
		}
		if current.ParentFolderID == nil {
			return false, nil
		}
		next, err := s.repo.GetFolder(ctx, *current.ParentFolderID)
		if err != nil {
			return false, fmt.Errorf("walk folder ancestry: %w", err)
		}
		current = next
	}
}

func (s *Service) ChildFolders(ctx context.Context, cabinetID int64, parentFolderID *int64) ([]Folder, error) {
	return s.repo.ChildFolders(ctx, cabinetID, parentFolderID)
}

// SetFolderInheritance flips the break flag on a folder. While the flag is
// set, grants above the folder stop applying to it and everything under it.
func (s *Service) SetFolderInheritance(ctx context.Context, actor shared.Actor, id int64, breaks bool) (Folder, error) {
	folder, err := s.repo.SetFolderBreak(ctx, id, breaks)
	if err != nil {
		return Folder{}, err
	}
	node := permission.NodeRef{Kind: permission.NodeFolder, ID: id}
	if err := s.permissions.RecordInheritanceChange(ctx, actor, node, breaks); err != nil {
		s.logger.Error("record inheritance change", slog.Any("error", err), slog.String("node", node.String()))
	}
	s.invalidateSubtree(ctx, id)
	return folder, nil
}

func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) CreateDocument(ctx context.Context, actor shared.Actor, folderID int64, title, refCode string) (Document, error) {
	if _, err := s.repo.GetFolder(ctx, folderID); err != nil {
		return Document{}, fmt.Errorf("folder %d: %w", folderID, err)
	}
	d := Document{FolderID: folderID, Title: title, RefCode: refCode, Status: StatusDraft, CreatedBy: actor.UserID}
	if err := s.repo.CreateDocument(ctx, &d); err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *Service) UpdateDocument(ctx context.Context, id int64, title string, status Status) (Document, error) {
	return s.repo.UpdateDocument(ctx, id, title, status)
}

// MoveDocument re-files a document under another folder and invalidates its
// cached effective permissions.
func (s *Service) MoveDocument(ctx context.Context, id int64, folderID int64) (Document, error) {
	if _, err := s.repo.GetFolder(ctx, folderID); err != nil {
		return Document{}, fmt.Errorf("target folder %d: %w", folderID, err)
	}
	doc, err := s.repo.MoveDocument(ctx, id, folderID)
	if err != nil {
		return Document{}, err
	}
	s.permissions.InvalidateNode(ctx, permission.NodeRef{Kind: permission.NodeDocument, ID: id})
	return doc, nil
}

func (s *Service) SetDocumentInheritance(ctx context.Context, actor shared.Actor, id int64, breaks bool) (Document, error) {
	doc, err := s.repo.SetDocumentBreak(ctx, id, breaks)
	if err != nil {
		return Document{}, err
	}
	node := permission.NodeRef{Kind: permission.NodeDocument, ID: id}
	if err := s.permissions.RecordInheritanceChange(ctx, actor, node, breaks); err != nil {
		s.logger.Error("record inheritance change", slog.Any("error", err), slog.String("node", node.String()))
	}
	s.permissions.InvalidateNode(ctx, node)
	return doc, nil
}

func (s *Service) DocumentsInFolder(ctx context.Context, folderID int64, p shared.Pagination) ([]Document, error) {
	return s.repo.DocumentsInFolder(ctx, folderID, p.PerPage, p.Offset())
}

// AddVersion appends a new content revision and bumps the document's
// current version atomically.
func (s *Service) AddVersion(ctx context.Context, actor shared.Actor, documentID int64, v Version) (Version, error) {
	v.DocumentID = documentID
	v.CreatedBy = actor.UserID
	if err := s.repo.AddVersion(ctx, &v); err != nil {
		return Version{}, err
	}
	return v, nil
}

func (s *Service) Versions(ctx context.Context, documentID int64) ([]Version, error) {
	return s.repo.Versions(ctx, documentID)
}

// invalidateSubtree drops cached decisions for a folder and everything
// beneath it. Fan-out is breadth-first over child folders; a failed page of
// children is logged and the rest of the subtree still gets invalidated.
func (s *Service) invalidateSubtree(ctx context.Context, folderID int64) {
	queue := []int64{folderID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		s.permissions.InvalidateNode(ctx, permission.NodeRef{Kind: permission.NodeFolder, ID: id})

		folder, err := s.repo.GetFolder(ctx, id)
		if err != nil {
			s.logger.Warn("invalidate subtree: load folder", slog.Int64("folder_id", id), slog.Any("error", err))
			continue
		}
		children, err := s.repo.ChildFolders(ctx, folder.CabinetID, &id)
		if err != nil {
			s.logger.Warn("invalidate subtree: child folders", slog.Int64("folder_id", id), slog.Any("error", err))
			continue
		}
		for _, child := range children {
			queue = append(queue, child.ID)
		}

		docs, err := s.repo.DocumentsInFolder(ctx, id, invalidateDocPage, 0)
		if err != nil {
			s.logger.Warn("invalidate subtree: documents", slog.Int64("folder_id", id), slog.Any("error", err))
			continue
		}
		for _, doc := range docs {
			s.permissions.InvalidateNode(ctx, permission.NodeRef{Kind: permission.NodeDocument, ID: doc.ID})
		}
	}
}

const invalidateDocPage = 10000

// NodeInfo satisfies the resolver's hierarchy lookup. The second return is
// false when the node does not exist.
func (s *Service) NodeInfo(ctx context.Context, node permission.NodeRef) (permission.NodeInfo, bool, error) {
	switch node.Kind {
	case permission.NodeCabinet:
		if _, err := s.repo.GetCabinet(ctx, node.ID); err != nil {
			return permission.NodeInfo{}, false, ignoreNotFound(err)
		}
		return permission.NodeInfo{Node: node}, true, nil

	case permission.NodeFolder:
		folder, err := s.repo.GetFolder(ctx, node.ID)
		if err != nil {
			return permission.NodeInfo{}, false, ignoreNotFound(err)
		}
		parent := permission.NodeRef{Kind: permission.NodeCabinet, ID: folder.CabinetID}
		if folder.ParentFolderID != nil {
			parent = permission.NodeRef{Kind: permission.NodeFolder, ID: *folder.ParentFolderID}
		}
		return permission.NodeInfo{Node: node, Parent: &parent, BreaksInheritance: folder.BreaksInheritance}, true, nil

	case permission.NodeDocument:
		doc, err := s.repo.GetDocument(ctx, node.ID)
		if err != nil {
			return permission.NodeInfo{}, false, ignoreNotFound(err)
		}
		parent := permission.NodeRef{Kind: permission.NodeFolder, ID: doc.FolderID}
		return permission.NodeInfo{Node: node, Parent: &parent, BreaksInheritance: doc.BreaksInheritance}, true, nil

	default:
		return permission.NodeInfo{}, false, nil
	}
}
