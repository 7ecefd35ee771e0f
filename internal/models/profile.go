package models

import (
	"time"
)

// Profile is the public page of a user. Avatar and banner keys are set only
// when the image was uploaded here rather than linked.
type Profile struct {
	ID          string       `gorm:"primaryKey;size:21" json:"id"`
	UserID      uint         `gorm:"uniqueIndex;not null" json:"user_id"`
	Title       string       `gorm:"size:100" json:"title"`
	Description string       `gorm:"size:500" json:"description"`
	AvatarURL   string       `gorm:"type:text" json:"avatar_url"`
	AvatarKey   string       `gorm:"type:text" json:"-"`
	BannerURL   string       `gorm:"type:text" json:"banner_url"`
	BannerKey   string       `gorm:"type:text" json:"-"`
	Theme       string       `gorm:"size:32;not null;default:'default'" json:"theme"`
	SocialLinks []SocialLink `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"social_links"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

type SocialLink struct {
	ID        string `gorm:"primaryKey;size:21" json:"id"`
	ProfileID string `gorm:"size:21;not null;index" json:"-"`
	Position  int    `gorm:"not null;default:0" json:"-"`
	Platform  string `gorm:"size:32;not null" json:"platform"`
	URL       string `gorm:"type:text;not null" json:"url"`
}

func (SocialLink) TableName() string {
	return "social_links"
}
