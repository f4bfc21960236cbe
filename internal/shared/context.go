package shared

import "context"

// Actor identifies the authenticated user performing a request. Identity
// proofing happens upstream (gateway); the engine only consumes the result.
type Actor struct {
	UserID    int64
	RequestID string
	IP        string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, nil when absent.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
