package domain

import (
	"time"

	"github.com/google/uuid"
)

// DailySummary holds per-day click totals for a link. Exactly one row per
// (link, calendar date); values are derived from ClickEvent rows and safe to
// recompute, so the aggregation job upserts them idempotently.
type DailySummary struct {
	LinkID         uuid.UUID `gorm:"column:link_id;type:uuid;primaryKey" json:"link_id"`
	Date           time.Time `gorm:"column:date;type:date;primaryKey" json:"date"`
	TotalClicks    int64     `gorm:"column:total_clicks;not null;default:0" json:"total_clicks"`
	UniqueVisitors int64     `gorm:"column:unique_visitors;not null;default:0" json:"unique_visitors"`
}

// TableName returns the table name for GORM.
func (DailySummary) TableName() string {
	return "daily_summaries"
}
