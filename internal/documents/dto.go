package documents

// CreateCabinetRequest opens a new hierarchy root.
type CreateCabinetRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type UpdateCabinetRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateFolderRequest creates a folder in the cabinet addressed by the
// route; a parent folder pins it deeper in the tree.
type CreateFolderRequest struct {
	ParentFolderID *int64 `json:"parent_folder_id" validate:"omitempty,gt=0"`
	Name           string `json:"name" validate:"required,min=1,max=200"`
}

type RenameFolderRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// MoveFolderRequest re-parents a folder; a null parent moves it to the
// cabinet's top level.
type MoveFolderRequest struct {
	ParentFolderID *int64 `json:"parent_folder_id" validate:"omitempty,gt=0"`
}

type InheritanceRequest struct {
	BreaksInheritance *bool `json:"breaks_inheritance" validate:"required"`
}

type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"required,min=1,max=500"`
	RefCode string `json:"ref_code" validate:"required,min=1,max=100"`
}

type UpdateDocumentRequest struct {
	Title  string `json:"title" validate:"required,min=1,max=500"`
	Status Status `json:"status" validate:"required,oneof=draft active archived disposed"`
}

type MoveDocumentRequest struct {
	FolderID int64 `json:"folder_id" validate:"required,gt=0"`
}

type AddVersionRequest struct {
	FileName    string `json:"file_name" validate:"required,min=1,max=500"`
	ContentType string `json:"content_type" validate:"required,min=1,max=200"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	StorageKey  string `json:"storage_key" validate:"required,min=1,max=1000"`
	Comment     string `json:"comment" validate:"max=2000"`
}
