package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/models"
	"anonhost/internal/storage"
	"anonhost/pkg/utils"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"
)

const (
	ProfileImageLimit = 10 * MiB
	maxSocialLinks    = 10
	defaultTheme      = "default"
)

var themePattern = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

// Raster formats only; SVG can carry script.
var profileImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

type ProfileImageKind string

const (
	ProfileAvatar ProfileImageKind = "avatar"
	ProfileBanner ProfileImageKind = "banner"
)

type SocialLinkInput struct {
	Platform string
	URL      string
}

// ProfileInput replaces the whole profile, social links included.
type ProfileInput struct {
	Title       string
	Description string
	AvatarURL   string
	BannerURL   string
	Theme       string
	SocialLinks []SocialLinkInput
	IPAddress   string
}

type ProfileService struct {
	db           *gorm.DB
	store        *storage.Adapter
	logger       *slog.Logger
	auditService *AuditService
}

func NewProfileService(db *gorm.DB, store *storage.Adapter, logger *slog.Logger, auditService *AuditService) *ProfileService {
	return &ProfileService{
		db:           db,
		store:        store,
		logger:       logger,
		auditService: auditService,
	}
}

// Get returns the user's profile, or an unsaved default when none exists.
func (s *ProfileService) Get(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).
		Preload("SocialLinks", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("user_id = ?", userID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.Profile{UserID: userID, Theme: defaultTheme}
	} else if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile.SocialLinks == nil {
		profile.SocialLinks = []models.SocialLink{}
	}
	return &profile, nil
}

func optionalURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := validateTarget(raw); err != nil {
		return "", fmt.Errorf("%s must be an absolute http(s) URL: %w", field, apperr.ErrValidation)
	}
	return raw, nil
}

func (in *ProfileInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if len(in.Title) > 100 {
		return fmt.Errorf("title must be at most 100 characters: %w", apperr.ErrValidation)
	}
	if len(in.Description) > 500 {
		return fmt.Errorf("description must be at most 500 characters: %w", apperr.ErrValidation)
	}

	in.Theme = strings.ToLower(strings.TrimSpace(in.Theme))
	if in.Theme == "" {
		in.Theme = defaultTheme
	}
	if !themePattern.MatchString(in.Theme) {
		return fmt.Errorf("invalid theme %q: %w", in.Theme, apperr.ErrValidation)
	}

	var err error
	if in.AvatarURL, err = optionalURL("avatarUrl", in.AvatarURL); err != nil {
		return err
	}
	if in.BannerURL, err = optionalURL("bannerUrl", in.BannerURL); err != nil {
		return err
	}

	if len(in.SocialLinks) > maxSocialLinks {
		return fmt.Errorf("at most %d social links: %w", maxSocialLinks, apperr.ErrValidation)
	}
	for i := range in.SocialLinks {
		link := &in.SocialLinks[i]
		link.Platform = strings.TrimSpace(link.Platform)
		if link.Platform == "" || len(link.Platform) > 32 {
			return fmt.Errorf("social link platform must be 1-32 characters: %w", apperr.ErrValidation)
		}
		if link.URL, err = validateTarget(link.URL); err != nil {
			return err
		}
	}
	return nil
}

// Update upserts the profile and replaces its social links in one
// transaction. An uploaded avatar or banner that is no longer referenced is
// removed from the store afterwards.
func (s *ProfileService) Update(ctx context.Context, userID uint, in ProfileInput) (*models.Profile, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var orphaned []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, found, err := loadProfile(tx, userID)
		if err != nil {
			return err
		}

		if profile.AvatarKey != "" && profile.AvatarURL != in.AvatarURL {
			orphaned = append(orphaned, profile.AvatarKey)
			profile.AvatarKey = ""
		}
		if profile.BannerKey != "" && profile.BannerURL != in.BannerURL {
			orphaned = append(orphaned, profile.BannerKey)
			profile.BannerKey = ""
		}
		profile.Title = in.Title
		profile.Description = in.Description
		profile.AvatarURL = in.AvatarURL
		profile.BannerURL = in.BannerURL
		profile.Theme = in.Theme

		if err := saveProfile(tx, profile, found); err != nil {
			return err
		}

		if err := tx.Where("profile_id = ?", profile.ID).Delete(&models.SocialLink{}).Error; err != nil {
			return fmt.Errorf("clear social links: %w", err)
		}
		if len(in.SocialLinks) == 0 {
			return nil
		}
		links := make([]models.SocialLink, 0, len(in.SocialLinks))
		for i, l := range in.SocialLinks {
			links = append(links, models.SocialLink{
				ID:        utils.MustGenerateID(),
				ProfileID: profile.ID,
				Position:  i,
				Platform:  l.Platform,
				URL:       l.URL,
			})
		}
		if err := tx.Create(&links).Error; err != nil {
			return fmt.Errorf("create social links: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.removeObjects(ctx, orphaned)
	s.auditService.LogAction(&userID, ActionUpdateProfile, strconv.FormatUint(uint64(userID), 10), nil, in.IPAddress)
	return s.Get(ctx, userID)
}

// UploadImage stores a raster image as the user's avatar or banner under
// {userId}/{kind}s/ and replaces the previous uploaded image, if any.
func (s *ProfileService) UploadImage(ctx context.Context, owner Identity, kind ProfileImageKind, in UploadInput) (*models.Profile, error) {
	if kind != ProfileAvatar && kind != ProfileBanner {
		return nil, fmt.Errorf("unknown profile image %q: %w", kind, apperr.ErrValidation)
	}

	data, err := readLimited(in.Body, ProfileImageLimit)
	if err != nil {
		return nil, err
	}
	sniffed := mimetype.Detect(data)
	if !mimetype.EqualsAny(sniffed.String(), profileImageTypes...) {
		return nil, fmt.Errorf("%s must be a PNG, JPEG, GIF or WebP image: %w", kind, apperr.ErrValidation)
	}

	ownerID := strconv.FormatUint(uint64(owner.UserID), 10)
	key := storage.DeriveKey(ownerID, string(kind), utils.GenerateObjectID(), sniffed.Extension())
	url, err := s.store.Upload(ctx, data, key, sniffed.String(), ownerID)
	if err != nil {
		return nil, err
	}

	var previous string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, found, err := loadProfile(tx, owner.UserID)
		if err != nil {
			return err
		}
		if kind == ProfileAvatar {
			previous = profile.AvatarKey
			profile.AvatarURL, profile.AvatarKey = url, key
		} else {
			previous = profile.BannerKey
			profile.BannerURL, profile.BannerKey = url, key
		}
		return saveProfile(tx, profile, found)
	})
	if err != nil {
		s.removeObjects(ctx, []string{key})
		return nil, err
	}

	if previous != "" {
		s.removeObjects(ctx, []string{previous})
	}
	s.auditService.LogAction(&owner.UserID, ActionUpdateProfile, ownerID, map[string]interface{}{
		string(kind): url,
	}, in.IPAddress)
	return s.Get(ctx, owner.UserID)
}

func loadProfile(tx *gorm.DB, userID uint) (*models.Profile, bool, error) {
	var profile models.Profile
	err := tx.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Profile{ID: utils.MustGenerateID(), UserID: userID, Theme: defaultTheme}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}
	return &profile, true, nil
}

func saveProfile(tx *gorm.DB, profile *models.Profile, found bool) error {
	var err error
	if found {
		err = tx.Omit("SocialLinks").Save(profile).Error
	} else {
		err = tx.Omit("SocialLinks").Create(profile).Error
	}
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *ProfileService) removeObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to remove replaced profile image", "key", key, "error", err)
		}
	}
}
