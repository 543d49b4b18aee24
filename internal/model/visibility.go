package model

import (
	"time"

	"github.com/google/uuid"
)

// RoleFeatureVisibility stores per-role feature toggles. A feature is active
// for a role iff both IsVisible and IsEnabled are true; absence of a row means
// "not active". Configuration is an opaque JSON bag owned by the UI layer.
type RoleFeatureVisibility struct {
	RoleID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"role_id"`
	FeatureID     string    `gorm:"type:varchar(100);primaryKey" json:"feature_id"`
	AppID         string    `gorm:"type:varchar(100);not null;index" json:"app_id"`
	IsVisible     bool      `gorm:"default:false" json:"is_visible"`
	IsEnabled     bool      `gorm:"default:false" json:"is_enabled"`
	Configuration string    `gorm:"type:jsonb;default:'{}'" json:"configuration"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Active reports whether this entry makes the feature active for the role.
func (v RoleFeatureVisibility) Active() bool {
	return v.IsVisible && v.IsEnabled
}
