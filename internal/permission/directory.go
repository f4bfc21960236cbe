package permission

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NodeInfo is what the resolver needs to know about a node: where it hangs
// in the containment hierarchy and whether it refuses inherited grants.
type NodeInfo struct {
	Node              NodeRef
	Parent            *NodeRef
	BreaksInheritance bool
}

// HierarchyView exposes the containment hierarchy owned by the document
// service. A missing node is reported via the ok flag, never an error.
type HierarchyView interface {
	NodeInfo(ctx context.Context, node NodeRef) (info NodeInfo, ok bool, err error)
}

// StructureMembership is one active organizational membership of a user,
// carried with the structure's materialized path for descendant checks.
type StructureMembership struct {
	StructureID int64
	Path        string
}

// StructureDirectory exposes the organizational hierarchy owned by the
// structure service.
type StructureDirectory interface {
	ActiveMemberships(ctx context.Context, userID int64) ([]StructureMembership, error)
	// StructurePath returns the materialized path of a structure, ok=false
	// when the structure is unknown or deactivated.
	StructurePath(ctx context.Context, structureID int64) (path string, ok bool, err error)
	// MemberIDs lists current members, used for invalidation fan-out.
	MemberIDs(ctx context.Context, structureID int64) ([]int64, error)
}

// RoleDirectory exposes role memberships owned by the identity service.
type RoleDirectory interface {
	RolesOf(ctx context.Context, userID int64) ([]int64, error)
	// MemberIDs lists current role holders, used for invalidation fan-out.
	MemberIDs(ctx context.Context, roleID int64) ([]int64, error)
}

type pgRoleDirectory struct {
	pool *pgxpool.Pool
}

// NewRoleDirectory builds a RoleDirectory over the user_roles table.
func NewRoleDirectory(pool *pgxpool.Pool) RoleDirectory {
	return &pgRoleDirectory{pool: pool}
}

func (d *pgRoleDirectory) RolesOf(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := d.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, id)
	}
	return roleIDs, rows.Err()
}

func (d *pgRoleDirectory) MemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := d.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
