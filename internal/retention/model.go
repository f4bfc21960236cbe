package retention

import "time"

// HoldKind distinguishes scheduled retention holds from litigation holds.
type HoldKind string

const (
	HoldRetention HoldKind = "retention"
	HoldLegal     HoldKind = "legal"
)

func (k HoldKind) Valid() bool {
	return k == HoldRetention || k == HoldLegal
}

// Hold blocks disposal of a document while active. Releasing a hold keeps
// the row for the record; it never deletes.
type Hold struct {
	ID         int64      `json:"id"`
	DocumentID int64      `json:"document_id"`
	Kind       HoldKind   `json:"kind"`
	Reason     string     `json:"reason"`
	PlacedBy   int64      `json:"placed_by"`
	PlacedAt   time.Time  `json:"placed_at"`
	ReleasedBy *int64     `json:"released_by,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// Active reports whether the hold still blocks disposal.
func (h Hold) Active() bool {
	return h.ReleasedAt == nil
}
