package structure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CacheInvalidator lets the permission engine drop cached results when the
// organizational tree or its memberships change.
type CacheInvalidator interface {
	StructureChanged(ctx context.Context, structureID int64)
	MemberChanged(ctx context.Context, userID int64)
}

// Service orchestrates structure operations.
type Service struct {
	repo        Repository
	invalidator CacheInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, logger: logger, now: time.Now}
}

// Create inserts a structure under the given parent, computing path and
// level from the parent's.
func (s *Service) Create(ctx context.Context, name string, kind Kind, parentID *int64) (*Structure, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("structure: name required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("structure: unknown kind %q", kind)
	}

	var created Structure
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		parentPath := ""
		level := 0
		if parentID != nil {
			parent, err := repo.Get(ctx, *parentID)
			if err != nil {
				return err
			}
			if !parent.IsActive {
				return fmt.Errorf("structure: parent %d is deactivated", *parentID)
			}
			if kind.Rank() <= parent.Kind.Rank() {
				return fmt.Errorf("structure: %s cannot sit under %s", kind, parent.Kind)
			}
			parentPath = parent.Path
			level = parent.Level + 1
		}
		id, err := repo.Create(ctx, Structure{
			ParentID: parentID,
			Name:     name,
			Kind:     kind,
			Path:     "pending",
			Level:    level,
		})
		if err != nil {
			return err
		}
		// Path embeds the generated id, so it lands in a second statement.
		path := ChildPath(parentPath, id)
		if err := repo.UpdatePathLevel(ctx, id, path, level); err != nil {
			return err
		}
		created = Structure{ID: id, ParentID: parentID, Name: name, Kind: kind, Path: path, Level: level, IsActive: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Rename updates name and kind without touching the tree shape.
func (s *Service) Rename(ctx context.Context, id int64, name string, kind Kind) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("structure: name required")
	}
	if !kind.Valid() {
		return fmt.Errorf("structure: unknown kind %q", kind)
	}
	return s.repo.UpdateMeta(ctx, id, name, kind)
}

// Move re-parents a structure and recomputes path and level for it and
// every descendant, top-down via an explicit worklist.
func (s *Service) Move(ctx context.Context, id int64, newParentID *int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		node, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		parentPath := ""
		level := 0
		if newParentID != nil {
			parent, err := repo.Get(ctx, *newParentID)
			if err != nil {
				return err
			}
			if parent.Path == node.Path || IsDescendantPath(parent.Path, node.Path) {
				return fmt.Errorf("structure: cannot move %d under its own subtree", id)
			}
			parentPath = parent.Path
			level = parent.Level + 1
		}
		if err := repo.UpdateParent(ctx, id, newParentID); err != nil {
			return err
		}
		return fixupPaths(ctx, repo, id, parentPath, level)
	})
	if err != nil {
		return err
	}
	s.notifyStructure(ctx, id)
	return nil
}

// fixupPaths recomputes path/level for a node and all descendants. A
// worklist instead of recursion keeps deep trees off the call stack.
func fixupPaths(ctx context.Context, repo Repository, rootID int64, parentPath string, rootLevel int) error {
	type item struct {
		id         int64
		parentPath string
		level      int
	}
	work := []item{{id: rootID, parentPath: parentPath, level: rootLevel}}
	for len(work) > 0 {
		next := work[0]
		work = work[1:]
		path := ChildPath(next.parentPath, next.id)
		if err := repo.UpdatePathLevel(ctx, next.id, path, next.level); err != nil {
			return err
		}
		children, err := repo.Children(ctx, next.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			work = append(work, item{id: child.ID, parentPath: path, level: next.level + 1})
		}
	}
	return nil
}

// Deactivate soft-disables a structure and its descendants. Grants keep
// referencing the rows; the resolver just stops seeing the memberships.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		node, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Deactivate(ctx, id); err != nil {
			return err
		}
		descendants, err := repo.Descendants(ctx, node.Path)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			if err := repo.Deactivate(ctx, d.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyStructure(ctx, id)
	return nil
}

// Get fetches one structure.
func (s *Service) Get(ctx context.Context, id int64) (*Structure, error) {
	return s.repo.Get(ctx, id)
}

// Children lists immediate children.
func (s *Service) Children(ctx context.Context, id int64) ([]Structure, error) {
	return s.repo.Children(ctx, id)
}

// Descendants lists the whole subtree below a structure.
func (s *Service) Descendants(ctx context.Context, id int64) ([]Structure, error) {
	node, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.Descendants(ctx, node.Path)
}

// Ancestors lists the chain above a structure, root-first.
func (s *Service) Ancestors(ctx context.Context, id int64) ([]Structure, error) {
	node, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := AncestorIDs(node.Path)
	ancestors := make([]Structure, 0, len(ids))
	for _, ancestorID := range ids {
		ancestor, err := s.repo.Get(ctx, ancestorID)
		if err != nil {
			// A hole in the chain is data damage, not a caller error.
			s.logger.Warn("missing ancestor", slog.Int64("structure", id), slog.Int64("ancestor", ancestorID))
			continue
		}
		ancestors = append(ancestors, *ancestor)
	}
	return ancestors, nil
}

// MembersOf lists active memberships of a structure.
func (s *Service) MembersOf(ctx context.Context, structureID int64) ([]Membership, error) {
	return s.repo.MembersOf(ctx, structureID, s.now())
}

// StructuresOf lists active memberships of a user.
func (s *Service) StructuresOf(ctx context.Context, userID int64) ([]Membership, error) {
	return s.repo.StructuresOf(ctx, userID, s.now())
}

// PrimaryStructureOf returns the user's primary structure.
func (s *Service) PrimaryStructureOf(ctx context.Context, userID int64) (*Structure, error) {
	return s.repo.PrimaryStructureOf(ctx, userID, s.now())
}

// AddMember attaches a user to a structure.
func (s *Service) AddMember(ctx context.Context, m Membership) (int64, error) {
	if m.StartsAt.IsZero() {
		m.StartsAt = s.now()
	}
	if m.EndsAt != nil && !m.EndsAt.After(m.StartsAt) {
		return 0, errors.New("structure: membership end must be after start")
	}
	id, err := s.repo.AddMember(ctx, m)
	if err != nil {
		return 0, err
	}
	s.notifyMember(ctx, m.UserID)
	return id, nil
}

// EndMembership closes a membership window.
func (s *Service) EndMembership(ctx context.Context, id int64) error {
	m, err := s.repo.EndMembership(ctx, id, s.now())
	if err != nil {
		return err
	}
	s.notifyMember(ctx, m.UserID)
	return nil
}

// --- permission.StructureDirectory ---

// ActiveMemberships feeds the resolver's principal set.
func (s *Service) ActiveMemberships(ctx context.Context, userID int64) ([]MemberPath, error) {
	return s.repo.ActivePathsOf(ctx, userID, s.now())
}

// StructurePath returns the materialized path of an active structure.
func (s *Service) StructurePath(ctx context.Context, structureID int64) (string, bool, error) {
	node, err := s.repo.Get(ctx, structureID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !node.IsActive {
		return "", false, nil
	}
	return node.Path, true, nil
}

// MemberIDs lists current member user ids, for invalidation fan-out.
func (s *Service) MemberIDs(ctx context.Context, structureID int64) ([]int64, error) {
	memberships, err := s.repo.MembersOf(ctx, structureID, s.now())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (s *Service) notifyStructure(ctx context.Context, structureID int64) {
	if s.invalidator != nil {
		s.invalidator.StructureChanged(ctx, structureID)
	}
}

func (s *Service) notifyMember(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.MemberChanged(ctx, userID)
	}
}
