// Package cont carries the authenticated admin through the request context.
package cont

import (
	"context"

	"momento/entity"
)

type ctxKey struct{}

func PutUser(ctx context.Context, user *entity.User) context.Context {
	cp := *user
	cp.Token = ""
	return context.WithValue(ctx, ctxKey{}, &cp)
}

func GetUser(ctx context.Context) *entity.User {
	user, _ := ctx.Value(ctxKey{}).(*entity.User)
	return user
}

// UserName returns the authenticated username, or "" for guest requests.
func UserName(ctx context.Context) string {
	if user := GetUser(ctx); user != nil {
		return user.Username
	}
	return ""
}
