package domain

import "github.com/google/uuid"

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Principal is the authenticated caller of an engine operation.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the principal may read or mutate a
// reservation owned by ownerID.
func (p Principal) CanAccess(ownerID uuid.UUID) bool {
	return p.IsAdmin() || p.UserID == ownerID
}
