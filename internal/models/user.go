package models

import (
	"time"
)

type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Email           string     `gorm:"unique;not null;size:254" json:"email"`
	Name            string     `gorm:"size:80" json:"name"`
	Admin           bool       `gorm:"default:false" json:"admin"`
	Premium         bool       `gorm:"default:false" json:"premium"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	APIKeys    []APIKey    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Media      []Media     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Shortlinks []Shortlink `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Settings   *Settings   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"settings,omitempty"`
	Profile    *Profile    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
