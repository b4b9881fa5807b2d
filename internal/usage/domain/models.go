// Package domain contains persistence models for per-feature usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageCounter tracks how much free quota a user consumed in one month for
// one feature category. Keyed on the month string so counters reset naturally.
type UsageCounter struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:ux_user_usage_user_category_month,priority:1"`
	Category  string       `gorm:"type:text;not null;uniqueIndex:ux_user_usage_user_category_month,priority:2"`
	Month     string       `gorm:"type:text;not null;uniqueIndex:ux_user_usage_user_category_month,priority:3"`
	Used      int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "user_usage" }
