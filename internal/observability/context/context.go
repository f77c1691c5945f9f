package context

import (
	"context"
	"strings"
)

type runIDKey struct{}
type accountIDKey struct{}
type profileIDKey struct{}
type actorKey struct{}

type actor struct {
	kind string
	id   string
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey{}).(string)
	return v
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, strings.TrimSpace(accountID))
}

func AccountIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accountIDKey{}).(string)
	return v
}

func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileIDKey{}, strings.TrimSpace(profileID))
}

func ProfileIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(profileIDKey{}).(string)
	return v
}

// WithActor records who triggered the work, e.g. ("system", "scheduler") or ("operator", "cli").
func WithActor(ctx context.Context, kind, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{kind: strings.TrimSpace(kind), id: strings.TrimSpace(id)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	v, _ := ctx.Value(actorKey{}).(actor)
	return v.kind, v.id
}
