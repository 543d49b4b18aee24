package model

import (
	"time"

	"github.com/google/uuid"
)

// Built-in role names seeded at startup. The hierarchy level is used for
// minimum-role checks on destructive operations.
const (
	RoleAdministrator  = "administrator"
	RoleManager        = "manager"
	RoleTeacher        = "teacher"
	RoleAccountOfficer = "account_officer"
)

// RoleLevel maps a role name to its numeric level in the hierarchy.
// Unknown roles map to 0.
func RoleLevel(name string) int {
	switch name {
	case RoleAdministrator:
		return 4
	case RoleManager:
		return 3
	case RoleTeacher:
		return 2
	case RoleAccountOfficer:
		return 1
	default:
		return 0
	}
}

// Role represents a named bundle of granted permissions assignable to users.
// Name is the storage slug (lowercase, underscores); DisplayName preserves
// what the administrator typed.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	DisplayName string       `gorm:"type:varchar(50);not null" json:"display_name"`
	Description string       `gorm:"type:varchar(255);not null" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // Prevent deletion of built-in roles
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	UserCount   int64        `gorm:"-" json:"user_count"` // Derived, filled in by the service layer
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission represents a single permission that can be assigned to roles
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"key"` // e.g. "expenses.read"
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(50);not null;index" json:"category"` // "expenses", "reports", "users"...
}
