package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iho/ledgersync/internal/domain"
)

// Header-based identity used when token auth is disabled.
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

// TokenVerifier turns a bearer token into an actor.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// Authenticate resolves the request's actor and stores it with
// domain.ContextWithActor. With a verifier it requires a valid bearer token;
// with a nil verifier it trusts the X-Actor-ID and X-Actor-Role headers, which
// is only meant for local single-user deployments.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				actor domain.Actor
				err   error
			)
			if verifier != nil {
				actor, err = bearerActor(r, verifier)
			} else {
				actor, err = headerActor(r)
			}
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.ContextWithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin rejects requests whose actor is not an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := domain.ActorFromContext(r.Context())
		if !ok {
			unauthorized(w, "missing actor")
			return
		}
		if err := actor.RequireAdmin(); err != nil {
			writeError(w, http.StatusForbidden, "insufficient permissions", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerActor(r *http.Request, verifier TokenVerifier) (domain.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return domain.Actor{}, domain.ErrInvalidToken
	}

	return verifier.Verify(parts[1])
}

func headerActor(r *http.Request) (domain.Actor, error) {
	id := r.Header.Get(ActorIDHeader)
	if id == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}

	role := domain.Role(r.Header.Get(ActorRoleHeader))
	if role == "" {
		role = domain.RoleUser
	}
	if !role.IsValid() {
		return domain.Actor{}, domain.ErrInvalidToken
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func unauthorized(w http.ResponseWriter, details string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", details)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "message": details})
}
