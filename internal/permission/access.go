package permission

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AccessLevel is a bitset of capabilities on a node.
type AccessLevel uint8

const (
	// None grants nothing; the fail-closed default.
	None AccessLevel = 0
	// Read allows viewing a node and its metadata.
	Read AccessLevel = 1 << iota >> 1
	// Write allows modifying content and metadata.
	Write
	// Delete allows removing the node.
	Delete
	// Admin allows managing grants on the node.
	Admin

	// Full is every capability combined.
	Full = Read | Write | Delete | Admin
)

var levelNames = []struct {
	bit  AccessLevel
	name string
}{
	{Read, "read"},
	{Write, "write"},
	{Delete, "delete"},
	{Admin, "admin"},
}

// Has reports whether every bit of level is present.
func (a AccessLevel) Has(level AccessLevel) bool {
	return a&level == level
}

// Contains is an alias of Has for readability at call sites that test
// whether a delegator may hand off a level.
func (a AccessLevel) Contains(level AccessLevel) bool {
	return a.Has(level)
}

// Union returns the combined bitset.
func (a AccessLevel) Union(other AccessLevel) AccessLevel {
	return a | other
}

// Intersect returns the common bits.
func (a AccessLevel) Intersect(other AccessLevel) AccessLevel {
	return a & other
}

// IsNone reports whether no capability is granted.
func (a AccessLevel) IsNone() bool {
	return a == None
}

// String renders the level as "read|write|...", or "none".
func (a AccessLevel) String() string {
	if a == None {
		return "none"
	}
	var parts []string
	for _, ln := range levelNames {
		if a.Has(ln.bit) {
			parts = append(parts, ln.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseAccessLevel parses the String form back into a bitset.
func ParseAccessLevel(s string) (AccessLevel, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return None, nil
	}
	if s == "full" {
		return Full, nil
	}
	var level AccessLevel
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		matched := false
		for _, ln := range levelNames {
			if part == ln.name {
				level |= ln.bit
				matched = true
				break
			}
		}
		if !matched {
			return None, fmt.Errorf("%w: unknown access level %q", ErrInvalidScope, part)
		}
	}
	return level, nil
}

// MarshalJSON encodes the level in its string form.
func (a AccessLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes either the string form or a raw bitmask.
func (a *AccessLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		level, err := ParseAccessLevel(s)
		if err != nil {
			return err
		}
		*a = level
		return nil
	}
	var raw uint8
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw&^uint8(Full) != 0 {
		return fmt.Errorf("%w: access mask %d out of range", ErrInvalidScope, raw)
	}
	*a = AccessLevel(raw)
	return nil
}
