// Package actor carries the caller's identity through request contexts.
// Authentication itself happens in the fronting layer; this package only
// transports who the authenticated caller is, so nothing here holds
// session state.
package actor

import "context"

type contextKey struct{}

// Identity describes the authenticated caller of a request.
type Identity struct {
	VolunteerID int64
	Role        string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func VolunteerID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.VolunteerID
}

func IsCoordinator(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.Role == "coordinator"
}
