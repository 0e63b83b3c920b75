package auth

import (
	"context"

	"github.com/vetcore/platform/internal/auth"
)

// WithUser attaches a verified user and its gate session to ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return auth.NewContext(ctx, user.Session())
}
