package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/models"
	"anonhost/pkg/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// SettingsInput replaces every field. An empty CustomDomain clears it.
type SettingsInput struct {
	EnableNotifications bool
	MakeImagesPublic    bool
	EnableDirectLinks   bool
	CustomDomain        string
}

type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

func defaultSettings(userID uint) models.Settings {
	return models.Settings{
		ID:                  utils.MustGenerateID(),
		UserID:              userID,
		EnableNotifications: true,
		MakeImagesPublic:    false,
		EnableDirectLinks:   true,
	}
}

// Get returns the user's settings, creating the defaults on first access.
func (s *SettingsService) Get(ctx context.Context, userID uint) (*models.Settings, error) {
	var settings models.Settings
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	settings = defaultSettings(userID)
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("create settings: %w", err)
	}
	// A concurrent request may have won the insert.
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error; err != nil {
		return nil, fmt.Errorf("reload settings: %w", err)
	}
	return &settings, nil
}

func (s *SettingsService) Update(ctx context.Context, userID uint, in SettingsInput) (*models.Settings, error) {
	settings := defaultSettings(userID)
	settings.EnableNotifications = in.EnableNotifications
	settings.MakeImagesPublic = in.MakeImagesPublic
	settings.EnableDirectLinks = in.EnableDirectLinks

	if domain := strings.ToLower(strings.TrimSpace(in.CustomDomain)); domain != "" {
		if !domainPattern.MatchString(domain) {
			return nil, fmt.Errorf("invalid custom domain %q: %w", in.CustomDomain, apperr.ErrValidation)
		}
		settings.CustomDomain = &domain
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enable_notifications", "make_images_public", "enable_direct_links", "custom_domain"}),
	}).Create(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	return s.Get(ctx, userID)
}
