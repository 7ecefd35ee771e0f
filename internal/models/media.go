package models

import (
	"time"
)

type MediaStatus string

const (
	MediaActive MediaStatus = "active"
	// MediaDeleting marks a row whose stored object is being removed.
	MediaDeleting MediaStatus = "deleting"
)

type Media struct {
	ID          string      `gorm:"primaryKey;size:21" json:"id"`
	UserID      uint        `gorm:"not null;index:idx_media_user_created,priority:1" json:"user_id"`
	URL         string      `gorm:"type:text;not null" json:"url"`
	StorageKey  string      `gorm:"type:text;not null" json:"-"`
	Filename    string      `gorm:"size:255" json:"filename"`
	ContentType string      `gorm:"size:127" json:"content_type"`
	Type        string      `gorm:"size:16" json:"type"`
	Size        int64       `gorm:"not null;default:0" json:"size"`
	Width       *int        `json:"width,omitempty"`
	Height      *int        `json:"height,omitempty"`
	Public      bool        `gorm:"default:false" json:"public"`
	Status      MediaStatus `gorm:"size:16;not null;default:'active';index" json:"-"`
	CreatedAt   time.Time   `gorm:"default:CURRENT_TIMESTAMP;index:idx_media_user_created,priority:2" json:"created_at"`
}

func (Media) TableName() string {
	return "media"
}
