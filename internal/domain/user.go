package domain

import (
	"strings" // Role comparison

	"github.com/google/uuid" // User identifiers
)

// RoleAdmin is the role that may see and act on every wallet and transaction
const RoleAdmin = "ADMIN"

// User Model. Profiles are owned by the user service; this table is the local lookup copy.
type User struct {
	ID    uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`        // Primary key
	Name  string    `gorm:"type:varchar(100)" json:"name"`             // Display name
	Email string    `gorm:"type:varchar(255)" json:"email"`            // Notification address
	Role  string    `gorm:"type:varchar(16);default:USER" json:"role"` // USER or ADMIN
}

// Identity is the acting user as propagated by the gateway
type Identity struct {
	UserID uuid.UUID // Authenticated user
	Role   string    // Role as sent, compared case-insensitively
	Email  string    // May be empty
}

// IsAdmin reports whether the identity carries the admin role
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, RoleAdmin)
}

// CanAccess reports whether the identity may act on a resource owned by owner
func (i Identity) CanAccess(owner uuid.UUID) bool {
	return i.IsAdmin() || i.UserID == owner
}
