package permission

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that the requested grant or delegation does not exist.
	ErrNotFound = errors.New("permission: not found")
	// ErrInvalidScope indicates a malformed grant or delegation request.
	ErrInvalidScope = errors.New("permission: invalid scope")
)

// NodeKind discriminates addressable resources in the containment hierarchy.
type NodeKind string

const (
	NodeCabinet  NodeKind = "cabinet"
	NodeFolder   NodeKind = "folder"
	NodeDocument NodeKind = "document"
)

// Valid reports whether the kind is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeCabinet, NodeFolder, NodeDocument:
		return true
	}
	return false
}

// NodeRef addresses a single node.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   int64    `json:"id"`
}

func (n NodeRef) String() string {
	return fmt.Sprintf("%s:%d", n.Kind, n.ID)
}

// IsZero reports whether the reference is unset.
func (n NodeRef) IsZero() bool {
	return n.Kind == "" && n.ID == 0
}

// PrincipalKind discriminates entities that can hold grants.
type PrincipalKind string

const (
	PrincipalUser      PrincipalKind = "user"
	PrincipalRole      PrincipalKind = "role"
	PrincipalStructure PrincipalKind = "structure"
)

// Valid reports whether the kind is one of the known principal kinds.
func (k PrincipalKind) Valid() bool {
	switch k {
	case PrincipalUser, PrincipalRole, PrincipalStructure:
		return true
	}
	return false
}

// PrincipalRef addresses a grant holder.
type PrincipalRef struct {
	Kind PrincipalKind `json:"kind"`
	ID   int64         `json:"id"`
}

func (p PrincipalRef) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// Grant is a raw authorization fact against a node.
type Grant struct {
	ID        int64        `json:"id"`
	Node      NodeRef      `json:"node"`
	Principal PrincipalRef `json:"principal"`
	Level     AccessLevel  `json:"level"`
	// IsInherited marks materialized rows only; user-authored grants are
	// always direct.
	IsInherited bool `json:"is_inherited"`
	// IncludeChildStructures extends a structure grant to members of
	// descendant structures. Meaningless for user and role principals.
	IncludeChildStructures bool       `json:"include_child_structures"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	Reason                 string     `json:"reason,omitempty"`
	GrantedBy              int64      `json:"granted_by"`
	CreatedAt              time.Time  `json:"created_at"`
}

// Expired reports whether the grant is past its expiration at the given instant.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Delegation is a time-bounded hand-off of access between two users.
type Delegation struct {
	ID          int64 `json:"id"`
	DelegatorID int64 `json:"delegator_id"`
	DelegateID  int64 `json:"delegate_id"`
	// Scope restricts the delegation to one node; nil means all nodes.
	Scope     *NodeRef    `json:"scope,omitempty"`
	Level     AccessLevel `json:"level"`
	StartsAt  time.Time   `json:"starts_at"`
	EndsAt    time.Time   `json:"ends_at"`
	IsActive  bool        `json:"is_active"`
	RevokedAt *time.Time  `json:"revoked_at,omitempty"`
	RevokedBy *int64      `json:"revoked_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ActiveAt reports whether the delegation confers access at the given instant.
func (d Delegation) ActiveAt(now time.Time) bool {
	return d.IsActive && !now.Before(d.StartsAt) && now.Before(d.EndsAt)
}

// AppliesTo reports whether the delegation covers the node.
func (d Delegation) AppliesTo(node NodeRef) bool {
	return d.Scope == nil || *d.Scope == node
}

// Source identifies the dominant origin of a resolved level, for
// diagnostics only; it never narrows the returned bitmask.
type Source string

const (
	SourceNone      Source = "none"
	SourceDirect    Source = "direct"
	SourceRole      Source = "role"
	SourceStructure Source = "structure"
	SourceInherited Source = "inherited"
	SourceDelegated Source = "delegated"
)

// Decision is the resolver output for one (user, node) pair.
type Decision struct {
	Level AccessLevel `json:"level"`
	// Source is the dominant grant origin, by the precedence
	// direct > role > structure > inherited.
	Source Source `json:"source"`
	// SourceNode is the chain node carrying the winning grants. For
	// inherited results this is the ancestor, otherwise the node itself.
	SourceNode NodeRef `json:"source_node"`
	// SourceGrantID is the highest-precedence contributing grant.
	SourceGrantID int64 `json:"source_grant_id,omitempty"`
	// Trace records every chain step for diagnostics.
	Trace []string `json:"trace,omitempty"`
	// ExpiresAt mirrors the earliest expiration among contributing grants
	// and delegations; nil when nothing contributing expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CachedDecision is one memoized resolver result.
type CachedDecision struct {
	ID         int64
	Node       NodeRef
	UserID     int64
	Decision   Decision
	ComputedAt time.Time
}
