package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link is a short key mapped to an original URL.
//
// Key is immutable once assigned and globally unique; the unique index is
// the single concurrency guard for creation. ClickCount is maintained by
// the server through atomic increments only.
type Link struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Key         string     `gorm:"column:key;size:10;uniqueIndex;not null" json:"key"`
	OriginalURL string     `gorm:"column:original_url;type:text;not null" json:"original_url"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	ClickCount  int64      `gorm:"column:click_count;not null;default:0" json:"click_count"`
	OwnerID     *uuid.UUID `gorm:"column:owner_id;type:uuid;index" json:"owner_id,omitempty"`
}

// TableName returns the table name for GORM.
func (Link) TableName() string {
	return "links"
}

// BeforeCreate assigns an ID when the caller did not.
func (l *Link) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the link's own expiry has passed. Links without
// an expiry never expire.
func (l *Link) IsExpired() bool {
	return l.ExpiredAt(time.Now())
}

// ExpiredAt is IsExpired against an explicit clock, used by code that needs
// a consistent "now" across several checks.
func (l *Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
