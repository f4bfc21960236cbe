package audit

import "time"

// Entry is one immutable row of the permission audit trail. Rows are only
// ever appended; there is no update or delete path.
type Entry struct {
	ID            int64     `json:"id"`
	Action        string    `json:"action"`
	NodeKind      string    `json:"node_kind"`
	NodeID        int64     `json:"node_id"`
	PrincipalKind *string   `json:"principal_kind,omitempty"`
	PrincipalID   *int64    `json:"principal_id,omitempty"`
	OldLevel      *uint8    `json:"old_level,omitempty"`
	NewLevel      *uint8    `json:"new_level,omitempty"`
	PerformedBy   int64     `json:"performed_by"`
	RequestID     string    `json:"request_id,omitempty"`
	IP            string    `json:"ip,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
