package models

type Settings struct {
	ID                  string  `gorm:"primaryKey;size:21" json:"id"`
	UserID              uint    `gorm:"uniqueIndex;not null" json:"user_id"`
	EnableNotifications bool    `gorm:"not null" json:"enable_notifications"`
	MakeImagesPublic    bool    `gorm:"not null" json:"make_images_public"`
	EnableDirectLinks   bool    `gorm:"not null" json:"enable_direct_links"`
	CustomDomain        *string `gorm:"size:253" json:"custom_domain"`
}

func (Settings) TableName() string {
	return "settings"
}
