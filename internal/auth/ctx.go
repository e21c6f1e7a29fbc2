package auth

import (
	"context"

	"signaldrop/internal/models"
)

type ctxKey int

const userCtxKey ctxKey = 1

func WithUser(ctx context.Context, u *models.User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userCtxKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	if ctx == nil {
		return nil
	}
	v := ctx.Value(userCtxKey)
	u, _ := v.(*models.User)
	return u
}
