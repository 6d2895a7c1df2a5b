// Package identity carries the resolved identity of the caller through the
// request context. Identity resolution itself (token verification, header
// trust in development) happens at the HTTP edge; the engine only ever sees
// the resolved {user id, role} pair.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of actor roles known to the platform.
type Role string

const (
	RolePatient  Role = "patient"
	RoleHospital Role = "hospital"
	RoleInsurer  Role = "insurer"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleHospital, RoleInsurer, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Identity is the resolved caller: who they are and what they act as.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the identity carries the administrator role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type contextKey struct{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext retrieves the resolved identity from the context. The second
// return value is false when no identity was resolved for this request.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
