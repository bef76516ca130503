package domain

import (
	"context"
	"errors"
)

// Role represents an actor's access level
type Role string

const (
	// RoleAdmin can operate on every account and use the admin tools
	RoleAdmin Role = "admin"

	// RoleUser can only operate on its own account
	RoleUser Role = "user"
)

var validRoles = map[Role]bool{
	RoleAdmin: true,
	RoleUser:  true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanManageAccounts checks if the role can top up, withdraw, reset and deduct.
func (r Role) CanManageAccounts() bool {
	return r == RoleAdmin
}

// Actor is whoever issues an operation. A user's account id equals its actor id.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanAccess reports whether the actor may read or mutate the given account.
func (a Actor) CanAccess(accountID string) bool {
	return a.Role.CanManageAccounts() || (a.ID != "" && a.ID == accountID)
}

// RequireAdmin returns ErrForbidden unless the actor is an admin.
func (a Actor) RequireAdmin() error {
	if !a.Role.CanManageAccounts() {
		return ErrForbidden
	}
	return nil
}

// SystemActor is used for work the process starts on its own, such as replays.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

type actorKey struct{}

// ContextWithActor stores the actor in ctx.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by ContextWithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)
