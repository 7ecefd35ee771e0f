package models

import (
	"time"
)

// APIKey is a bearer credential owned by exactly one user.
type APIKey struct {
	ID         string     `gorm:"primaryKey;size:21" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"-"`
	Name       string     `gorm:"size:128;not null" json:"name"`
	Key        string     `gorm:"uniqueIndex;size:128;not null" json:"key"`
	CreatedAt  time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
