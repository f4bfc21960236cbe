package documents

import "time"

// Status tracks a document through its lifecycle.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDisposed Status = "disposed"
)

// Cabinet is a hierarchy root. Cabinets have no parent, so the
// inheritance-break flag is meaningless and always false for them.
type Cabinet struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Folder lives in a cabinet, either at the top level or under another folder.
type Folder struct {
	ID                int64     `json:"id"`
	CabinetID         int64     `json:"cabinet_id"`
	ParentFolderID    *int64    `json:"parent_folder_id,omitempty"`
	Name              string    `json:"name"`
	BreaksInheritance bool      `json:"breaks_inheritance"`
	CreatedBy         int64     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Document is a leaf of the containment hierarchy with versioned content.
type Document struct {
	ID                int64     `json:"id"`
	FolderID          int64     `json:"folder_id"`
	Title             string    `json:"title"`
	RefCode           string    `json:"ref_code"`
	Status            Status    `json:"status"`
	BreaksInheritance bool      `json:"breaks_inheritance"`
	CurrentVersion    int       `json:"current_version"`
	CreatedBy         int64     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Version is one immutable content revision of a document. Blob storage is
// external; only the locator and descriptive metadata live here.
type Version struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	VersionNo   int       `json:"version_no"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	Comment     string    `json:"comment,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
