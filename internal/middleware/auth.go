package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/auditctx"
	"github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

const (
	CtxUserKey   = "authUser"
	CtxUserIDKey = "userID"

	// SessionHeader is accepted from non-browser clients that cannot hold cookies.
	SessionHeader = "X-Session-Token"
)

// SessionValidator resolves a session token to its user.
type SessionValidator interface {
	Authenticate(ctx context.Context, token string) (*repository.UserView, error)
}

// SessionTokens lists the distinct tokens a request carries, in the order
// they are tried: cookie, Authorization bearer, X-Session-Token.
func SessionTokens(c *gin.Context, cookieName string) []string {
	var tokens []string
	add := func(token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		for _, seen := range tokens {
			if seen == token {
				return
			}
		}
		tokens = append(tokens, token)
	}

	if cookie, err := c.Cookie(cookieName); err == nil {
		add(cookie)
	}
	if authz := c.GetHeader("Authorization"); len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		add(authz[7:])
	}
	add(c.GetHeader(SessionHeader))
	return tokens
}

// SessionAuth rejects requests without a valid session and attaches the user
// to both the gin context and the request context. A token rejected as
// invalid falls through to the next transport, so a stale browser cookie
// does not mask a valid bearer token. Any other failure aborts at once.
func SessionAuth(validator SessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user *repository.UserView
			err  error = errors.ErrUnauthorized
		)
		for _, token := range SessionTokens(c, cookieName) {
			user, err = validator.Authenticate(c.Request.Context(), token)
			if err == nil || errors.KindOf(err) != errors.KindAuth {
				break
			}
		}
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(CtxUserKey, user)
		c.Set(CtxUserIDKey, user.ID)
		ctx := auth.WithUser(c.Request.Context(), user)
		ctx = auditctx.WithActor(ctx, auditctx.Actor{
			UserID:    user.ID,
			Username:  user.Username,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// CurrentUser returns the user attached by SessionAuth.
func CurrentUser(c *gin.Context) (*repository.UserView, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*repository.UserView)
	return user, ok && user != nil
}
