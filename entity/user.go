package entity

import (
	"net/http"
	"time"

	"momento/lib/validate"
)

// User is an administrator authenticated by API token.
type User struct {
	Username  string    `json:"username" bson:"username" validate:"required"`
	Name      string    `json:"name" bson:"name" validate:"omitempty"`
	Email     string    `json:"email" bson:"email" validate:"omitempty,email"`
	Token     string    `json:"token" bson:"token" validate:"required,min=16"`
	IsAdmin   bool      `json:"is_admin" bson:"is_admin"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (u *User) Bind(_ *http.Request) error {
	return validate.Struct(u)
}
