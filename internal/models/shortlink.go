package models

import (
	"time"
)

type Shortlink struct {
	ID          string     `gorm:"primaryKey;size:21" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	OriginalURL string     `gorm:"type:text;not null" json:"original_url"`
	Title       *string    `gorm:"size:255" json:"title,omitempty"`
	Public      bool       `gorm:"default:false" json:"public"`
	Clicks      int64      `gorm:"not null;default:0" json:"clicks"`
	ExpireAt    *time.Time `json:"expire_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Expired reports whether the link can no longer be followed at now.
func (s Shortlink) Expired(now time.Time) bool {
	return s.ExpireAt != nil && s.ExpireAt.Before(now)
}

func (Shortlink) TableName() string {
	return "shortlinks"
}
