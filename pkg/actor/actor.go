// Package actor identifies the user or system performing an action.
//
// The HTTP auth middleware builds an Actor from the verified JWT claims;
// event consumers use SystemActor. Services read it for audit entries
// and event attribution.
package actor

import (
	"context"
)

// Actor is whoever a write gets attributed to.
type Actor struct {
	// ID holds the user ID from the JWT "sub" claim.
	ID string `json:"id"`

	Email string `json:"email"`

	// Role is display-only; authorization goes through Permissions.
	Role string `json:"role,omitempty"`

	TenantID string `json:"tenant_id"`

	Permissions []string `json:"permissions,omitempty"`
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext returns the context's actor, or nil when the context
// carries none.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// FromContextOrSystem returns the context actor, or the system actor
// when none is present. Event consumers and scheduled work run without
// a user, and their writes still need attribution.
func FromContextOrSystem(ctx context.Context) *Actor {
	if a := FromContext(ctx); a != nil {
		return a
	}
	return SystemActor()
}

// WithActor attaches a to the context.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// systemActorID is the all-zeros UUID, distinguishable from any real
// user in audit queries.
const systemActorID = "00000000-0000-0000-0000-000000000000"

// SystemActor is the attribution for writes no user initiated.
func SystemActor() *Actor {
	return &Actor{
		ID:    systemActorID,
		Email: "system@malipo.local",
		Role:  "system",
	}
}
