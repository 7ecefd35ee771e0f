package models

import (
	"time"
)

type OTPType string

const (
	OTPRegistration OTPType = "registration"
	OTPLogin        OTPType = "login"
	OTPEmailChange  OTPType = "email-change"
)

// OTP is a short-lived verification code. A new code of the same type for the
// same email supersedes any unused one.
type OTP struct {
	ID        string    `gorm:"primaryKey;size:21" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Email     string    `gorm:"size:254;not null;index:idx_otp_email_type,priority:1" json:"email"`
	Type      OTPType   `gorm:"size:20;not null;index:idx_otp_email_type,priority:2" json:"type"`
	Code      string    `gorm:"size:6;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OTP) TableName() string {
	return "otps"
}
