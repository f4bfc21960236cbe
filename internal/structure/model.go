package structure

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind ranks the organizational hierarchy top-down.
type Kind string

const (
	KindMinistry   Kind = "ministry"
	KindDepartment Kind = "department"
	KindDivision   Kind = "division"
	KindSection    Kind = "section"
	KindUnit       Kind = "unit"
)

var kindRanks = map[Kind]int{
	KindMinistry:   0,
	KindDepartment: 1,
	KindDivision:   2,
	KindSection:    3,
	KindUnit:       4,
}

// Rank returns the depth rank of the kind, -1 for unknown kinds.
func (k Kind) Rank() int {
	rank, ok := kindRanks[k]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether the kind is one of the five ranks.
func (k Kind) Valid() bool {
	return k.Rank() >= 0
}

// Structure is one node of the organizational tree, addressed by a
// materialized path of ancestor ids root-to-self ("/1/4/9/").
type Structure struct {
	ID        int64     `json:"id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	Level     int       `json:"level"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a user to a structure with an optional time window.
type Membership struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	StructureID int64      `json:"structure_id"`
	IsPrimary   bool       `json:"is_primary"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// ActiveAt reports whether the membership confers structure grants at the
// given instant.
func (m Membership) ActiveAt(now time.Time) bool {
	if now.Before(m.StartsAt) {
		return false
	}
	return m.EndsAt == nil || m.EndsAt.After(now)
}

// ChildPath extends a parent path with a child id. An empty parent path
// produces a root path.
func ChildPath(parentPath string, id int64) string {
	if parentPath == "" {
		return fmt.Sprintf("/%d/", id)
	}
	return parentPath + strconv.FormatInt(id, 10) + "/"
}

// AncestorIDs decomposes a path into ancestor ids root-first, excluding the
// structure itself.
func AncestorIDs(path string) []int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) <= 1 {
		return nil
	}
	ids := make([]int64, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// IsDescendantPath reports whether candidate sits strictly below ancestor.
func IsDescendantPath(candidate, ancestor string) bool {
	return candidate != ancestor && strings.HasPrefix(candidate, ancestor)
}
