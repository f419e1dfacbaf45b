package entity

import (
	"net/http"
	"time"

	"momento/lib/validate"
)

type ValidateCodeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Kind Kind   `json:"kind" validate:"omitempty,oneof=beta event"`
}

func (v *ValidateCodeRequest) Bind(_ *http.Request) error {
	if v.Kind == "" {
		v.Kind = KindBeta
	}
	return validate.Struct(v)
}

type ValidateCodeResponse struct {
	Valid  bool        `json:"valid"`
	Record *AccessCode `json:"record,omitempty"`
	Error  string      `json:"error,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

type AccessRequest struct {
	Code   string `json:"code" validate:"required,max=64"`
	Kind   Kind   `json:"kind" validate:"omitempty,oneof=beta event"`
	UserId string `json:"user_id" validate:"omitempty,max=128"`
}

func (a *AccessRequest) Bind(_ *http.Request) error {
	if a.Kind == "" {
		a.Kind = KindBeta
	}
	return validate.Struct(a)
}

type CreateCodeRequest struct {
	Code         string     `json:"code" validate:"omitempty,accesscode"`
	Name         string     `json:"name" validate:"required,max=120"`
	Description  string     `json:"description" validate:"max=1000"`
	MaxUses      *int       `json:"max_uses" validate:"omitempty,min=1"`
	ExpiresAt    *time.Time `json:"expires_at"`
	IsActive     *bool      `json:"is_active"`
	MaxFiles     *int       `json:"max_files" validate:"omitempty,min=1"`
	MaxFileSize  *int       `json:"max_file_size" validate:"omitempty,min=1,max=2048"`
	AllowedTypes []string   `json:"allowed_types" validate:"omitempty,dive,mimetype"`
	TableCount   int        `json:"table_count" validate:"min=0,max=1000"`
}

func (c *CreateCodeRequest) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *SetActiveRequest) Bind(_ *http.Request) error {
	return validate.Struct(s)
}
