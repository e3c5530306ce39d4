package entity

import (
	"net/http"

	"mailgate/lib/validate"
)

// RegisterRequest is the body of POST /api/register. The password is accepted
// for downstream provisioning but is never persisted by this service.
type RegisterRequest struct {
	Token     string `json:"token" validate:"required"`
	LocalPart string `json:"local_part" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

func (r *RegisterRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// CheckUserRequest is the body of POST /api/check_user.
type CheckUserRequest struct {
	LocalPart string `json:"local_part" validate:"required"`
}

func (r *CheckUserRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// CreateTokenRequest is the body of POST /api/create-token. Both fields are
// optional; defaults are applied by the core.
type CreateTokenRequest struct {
	MaxUses   int    `json:"max_uses" validate:"omitempty,min=1"`
	CreatedBy string `json:"created_by" validate:"omitempty"`
}

func (r *CreateTokenRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}
