package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClickEvent is one recorded click on a link. Rows are written once by the
// analytics pipeline, never updated, and removed only when the parent link
// is deleted (cascade).
//
// IPHash is a one-way hash; the raw address is never stored. Country,
// browser, OS, device type and city come from the user-agent classifier and
// may all be absent.
type ClickEvent struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LinkID      uuid.UUID `gorm:"column:link_id;type:uuid;not null;index;constraint:OnDelete:CASCADE" json:"link_id"`
	ClickedAt   time.Time `gorm:"column:clicked_at;autoCreateTime;index" json:"clicked_at"`
	Referrer    *string   `gorm:"column:referrer;size:500" json:"referrer,omitempty"`
	UserAgent   *string   `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	IPHash      *string   `gorm:"column:ip_hash;size:64;index" json:"ip_hash,omitempty"`
	CountryCode *string   `gorm:"column:country_code;size:2" json:"country_code,omitempty"`
	Browser     *string   `gorm:"column:browser;size:50" json:"browser,omitempty"`
	OS          *string   `gorm:"column:os;size:50" json:"os,omitempty"`
	DeviceType  *string   `gorm:"column:device_type;size:10" json:"device_type,omitempty"`
	City        *string   `gorm:"column:city;size:100" json:"city,omitempty"`

	// Relationships
	Link *Link `gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE" json:"link,omitempty"`
}

// TableName returns the table name for GORM.
func (ClickEvent) TableName() string {
	return "click_events"
}

// BeforeCreate assigns an ID when the caller did not.
func (c *ClickEvent) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
