package structure

import "time"

type CreateStructureRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Kind     string `json:"kind" validate:"required,oneof=ministry department division section unit"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

type RenameStructureRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Kind string `json:"kind" validate:"required,oneof=ministry department division section unit"`
}

type MoveStructureRequest struct {
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

type AddMemberRequest struct {
	UserID    int64      `json:"user_id" validate:"required,gt=0"`
	IsPrimary bool       `json:"is_primary"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
}
