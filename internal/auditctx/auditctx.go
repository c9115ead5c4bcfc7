package auditctx

import (
	"context"

	"go.uber.org/zap"
)

// Actor identifies who initiated a request, for attributing administrative changes in logs.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Fields returns log fields describing the actor in ctx. Requests without an
// actor, such as CLI invocations, are attributed to "system".
func Fields(ctx context.Context) []zap.Field {
	actor, ok := FromContext(ctx)
	if !ok {
		return []zap.Field{zap.String("actor", "system")}
	}
	return []zap.Field{
		zap.String("actor", actor.Username),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_ip", actor.IPAddress),
	}
}
