package auth

import (
	"context"
	"time"
)

// Role is a user's access level. Freshly-seen users default to
// RoleUnauthorized unless allow-listed as admins, so a new account is
// locked out until promoted.
type Role string

const (
	// RoleUnauthorized grants nothing. The default for unknown users.
	RoleUnauthorized Role = "unauthorized"

	// RoleAuthorized grants read, write, and ticket issuance.
	RoleAuthorized Role = "authorized"

	// RoleAdmin additionally grants user management.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	switch r {
	case RoleUnauthorized, RoleAuthorized, RoleAdmin:
		return true
	}
	return false
}

// RoleRecord is a user's stored role assignment.
type RoleRecord struct {
	// UserID is the user the role belongs to
	UserID string

	// Role is the assigned access level
	Role Role

	// CreatedAt is when the record was bootstrapped
	CreatedAt time.Time

	// UpdatedAt is when the role last changed
	UpdatedAt time.Time
}

// RoleStore persists role assignments.
//
// Error Contract:
//   - GetRole of an unknown user returns *cas.StoreError with ErrNotFound.
//   - SetRole upserts and never fails on absence.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Racing bootstraps of
// the same user must converge on a single record.
type RoleStore interface {
	// GetRole retrieves a user's role record.
	GetRole(ctx context.Context, userID string) (*RoleRecord, error)

	// SetRole assigns a role, creating the record if absent.
	SetRole(ctx context.Context, userID string, role Role, now time.Time) (*RoleRecord, error)

	// ListRoles returns all role records, ordered by user id.
	ListRoles(ctx context.Context) ([]*RoleRecord, error)

	// DeleteRole removes a user's role record.
	DeleteRole(ctx context.Context, userID string) error
}
