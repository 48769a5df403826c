package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a capability for owner-scoped operations. The core only asks
// one question of it: does a presented key map to a valid owner id.
type APIKey struct {
	ID        int64      `gorm:"column:id;primaryKey" json:"id"`
	Key       string     `gorm:"column:key;size:64;uniqueIndex;not null" json:"-"`
	OwnerID   uuid.UUID  `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName returns the table name for GORM.
func (APIKey) TableName() string {
	return "api_keys"
}

// IsValid reports whether the key can currently authorize requests.
func (k *APIKey) IsValid(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}
