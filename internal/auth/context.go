package auth

import "context"

type ctxKey int

const actorKey ctxKey = iota

// ContextWithActor returns ctx carrying the authenticated actor. The actor is
// stored by value so later handlers cannot mutate what authn resolved.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext reports the actor attached by ContextWithActor. An actor
// without a user ID counts as absent.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.UserID != ""
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	actor, ok := ActorFromContext(ctx)
	return actor.UserID, ok
}
