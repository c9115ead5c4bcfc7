package auth

import (
	"context"

	"github.com/sentinelsoc/sentinel/internal/repository"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *repository.UserView) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user attached by WithUser.
func UserFromContext(ctx context.Context) (*repository.UserView, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(contextKey{}).(*repository.UserView)
	return user, ok && user != nil
}
