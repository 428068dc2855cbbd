package middleware

import (
	"net/http"
	"strconv"

	"github.com/tobiasvance/crewdesk/internal/actor"
)

// Header names the fronting proxy sets after authenticating the caller.
const (
	actorIDHeader   = "X-Actor-ID"
	actorRoleHeader = "X-Actor-Role"
)

// WithActor populates the request context with the caller identity from the
// actor headers. Requests without a valid X-Actor-ID pass through without an
// identity; handlers that require one reject those themselves.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get(actorIDHeader)
		if idStr == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ident := actor.Identity{
			VolunteerID: id,
			Role:        r.Header.Get(actorRoleHeader),
		}
		next.ServeHTTP(w, r.WithContext(actor.WithIdentity(r.Context(), ident)))
	})
}

// RequireActor rejects requests that carry no caller identity.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actor.FromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCoordinator checks that the caller has the coordinator role.
func RequireCoordinator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actor.IsCoordinator(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
