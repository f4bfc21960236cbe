package permission

import "time"

type CreateGrantRequest struct {
	NodeKind               string     `json:"node_kind" validate:"required,oneof=cabinet folder document"`
	NodeID                 int64      `json:"node_id" validate:"required,gt=0"`
	PrincipalKind          string     `json:"principal_kind" validate:"required,oneof=user role structure"`
	PrincipalID            int64      `json:"principal_id" validate:"required,gt=0"`
	Level                  string     `json:"level" validate:"required"`
	IncludeChildStructures bool       `json:"include_child_structures"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	Reason                 string     `json:"reason,omitempty" validate:"max=500"`
}

type UpdateGrantRequest struct {
	Level     string     `json:"level" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty" validate:"max=500"`
}

type CreateDelegationRequest struct {
	DelegateID int64      `json:"delegate_id" validate:"required,gt=0"`
	NodeKind   *string    `json:"node_kind,omitempty" validate:"omitempty,oneof=cabinet folder document"`
	NodeID     *int64     `json:"node_id,omitempty" validate:"omitempty,gt=0"`
	Level      string     `json:"level" validate:"required"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     time.Time  `json:"ends_at" validate:"required"`
}

type InvalidateRequest struct {
	Scope         string  `json:"scope" validate:"required,oneof=node user principal"`
	NodeKind      *string `json:"node_kind,omitempty" validate:"omitempty,oneof=cabinet folder document"`
	NodeID        *int64  `json:"node_id,omitempty" validate:"omitempty,gt=0"`
	UserID        *int64  `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	PrincipalKind *string `json:"principal_kind,omitempty" validate:"omitempty,oneof=user role structure"`
	PrincipalID   *int64  `json:"principal_id,omitempty" validate:"omitempty,gt=0"`
}

type ResolveResponse struct {
	UserID   int64    `json:"user_id"`
	Node     NodeRef  `json:"node"`
	Decision Decision `json:"decision"`
}

type CheckResponse struct {
	Allowed  bool        `json:"allowed"`
	Level    AccessLevel `json:"level"`
	Required AccessLevel `json:"required"`
}
