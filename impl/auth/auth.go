package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"momento/entity"
)

type Database interface {
	GetUser(ctx context.Context, token string) (*entity.User, error)
}

type Auth struct {
	db Database
}

func New(db Database) *Auth {
	return &Auth{db: db}
}

// UserByToken resolves an admin API token. Only users flagged as admin may
// use the management endpoints.
func (a Auth) UserByToken(ctx context.Context, token string) (*entity.User, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	user, err := a.db.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(user.Token), []byte(token)) != 1 {
		return nil, fmt.Errorf("token mismatch")
	}
	if !user.IsAdmin {
		return nil, fmt.Errorf("user %s is not an admin", user.Username)
	}
	return user, nil
}
