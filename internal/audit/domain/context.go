package domain

import "context"

// SystemActor is recorded when no actor is attached to the context, e.g. for
// scheduled jobs.
const SystemActor = "system"

type actorKey struct{}

// WithActor attaches the acting principal to ctx for entries appended downstream.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor set by WithActor, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
