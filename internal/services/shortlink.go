package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/metrics"
	"anonhost/internal/models"
	"anonhost/pkg/utils"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	shortlinkCacheTTL = 10 * time.Minute
	maxIDAttempts     = 5
)

type CreateShortlinkInput struct {
	URL           string
	Title         string
	Public        bool
	ExpiresInDays int
	IPAddress     string
}

// UpdateShortlinkInput leaves nil fields unchanged. ExpiresInDays of 0 clears
// the expiry.
type UpdateShortlinkInput struct {
	URL           *string
	Title         *string
	Public        *bool
	ExpiresInDays *int
}

type ShortlinkService struct {
	db           *gorm.DB
	rdb          *redis.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	auditService *AuditService
	idGenerator  func() (string, error)
	now          func() time.Time
}

func NewShortlinkService(db *gorm.DB, rdb *redis.Client, logger *slog.Logger, m *metrics.Metrics, auditService *AuditService) *ShortlinkService {
	return &ShortlinkService{
		db:           db,
		rdb:          rdb,
		logger:       logger,
		metrics:      m,
		auditService: auditService,
		idGenerator:  func() (string, error) { return utils.GenerateID(utils.ShortIDLength) },
		now:          time.Now,
	}
}

func validateTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url must be an absolute http(s) URL: %w", apperr.ErrValidation)
	}
	return raw, nil
}

func (s *ShortlinkService) Create(ctx context.Context, owner Identity, in CreateShortlinkInput) (*models.Shortlink, error) {
	target, err := validateTarget(in.URL)
	if err != nil {
		return nil, err
	}
	if in.ExpiresInDays < 0 {
		return nil, fmt.Errorf("expiresIn must not be negative: %w", apperr.ErrValidation)
	}

	link := models.Shortlink{
		UserID:      owner.UserID,
		OriginalURL: target,
		Public:      in.Public,
		CreatedAt:   s.now(),
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		link.Title = &title
	}
	if in.ExpiresInDays > 0 {
		exp := s.now().AddDate(0, 0, in.ExpiresInDays)
		link.ExpireAt = &exp
	}

	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return nil, fmt.Errorf("allocate short id after %d attempts", maxIDAttempts)
		}
		id, err := s.idGenerator()
		if err != nil {
			return nil, fmt.Errorf("generate short id: %w", err)
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Shortlink{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check short id: %w", err)
		}
		if count == 0 {
			link.ID = id
			break
		}
	}

	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, fmt.Errorf("create shortlink: %w", err)
	}

	s.auditService.LogAction(&owner.UserID, ActionCreateShortlink, link.ID, map[string]interface{}{
		"url": target,
	}, in.IPAddress)

	return &link, nil
}

func (s *ShortlinkService) List(ctx context.Context, owner Identity) ([]models.Shortlink, error) {
	var links []models.Shortlink
	err := s.db.WithContext(ctx).Where("user_id = ?", owner.UserID).Order("created_at desc").Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("list shortlinks: %w", err)
	}
	return links, nil
}

// Get returns a link the requester owns, or any link for an admin.
func (s *ShortlinkService) Get(ctx context.Context, requester Identity, id string) (*models.Shortlink, error) {
	var link models.Shortlink
	err := s.db.WithContext(ctx).First(&link, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("shortlink %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load shortlink: %w", err)
	}
	if link.UserID != requester.UserID && !requester.Admin {
		return nil, fmt.Errorf("shortlink %s: %w", id, apperr.ErrForbidden)
	}
	return &link, nil
}

func (s *ShortlinkService) Update(ctx context.Context, requester Identity, id string, in UpdateShortlinkInput) (*models.Shortlink, error) {
	link, err := s.Get(ctx, requester, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.URL != nil {
		target, err := validateTarget(*in.URL)
		if err != nil {
			return nil, err
		}
		updates["original_url"] = target
	}
	if in.Title != nil {
		if title := strings.TrimSpace(*in.Title); title != "" {
			updates["title"] = title
		} else {
			updates["title"] = nil
		}
	}
	if in.Public != nil {
		updates["public"] = *in.Public
	}
	if in.ExpiresInDays != nil {
		switch days := *in.ExpiresInDays; {
		case days < 0:
			return nil, fmt.Errorf("expiresIn must not be negative: %w", apperr.ErrValidation)
		case days == 0:
			updates["expire_at"] = nil
		default:
			updates["expire_at"] = s.now().AddDate(0, 0, days)
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(link).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update shortlink: %w", err)
		}
		s.invalidate(ctx, id)
	}

	return s.Get(ctx, requester, id)
}

func (s *ShortlinkService) Delete(ctx context.Context, requester Identity, id, ip string) error {
	link, err := s.Get(ctx, requester, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(link).Error; err != nil {
		return fmt.Errorf("delete shortlink: %w", err)
	}
	s.invalidate(ctx, id)

	s.auditService.LogAction(&requester.UserID, ActionDeleteShortlink, id, nil, ip)
	return nil
}

// Resolve returns the target of an active link and counts the click. Expired
// links are kept and not counted.
func (s *ShortlinkService) Resolve(ctx context.Context, id string) (string, error) {
	link, err := s.lookup(ctx, id)
	if err != nil {
		s.metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", err
	}

	if link.Expired(s.now()) {
		s.metrics.Redirects.WithLabelValues("expired").Inc()
		return "", fmt.Errorf("shortlink %s: %w", id, apperr.ErrExpired)
	}

	res := s.db.WithContext(ctx).Model(&models.Shortlink{}).
		Where("id = ?", id).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return "", fmt.Errorf("count click: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Deleted after the cached lookup.
		s.invalidate(ctx, id)
		s.metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("shortlink %s: %w", id, apperr.ErrNotFound)
	}

	s.metrics.Redirects.WithLabelValues("ok").Inc()
	return link.OriginalURL, nil
}

// Lookup finds a link by id without counting a click.
func (s *ShortlinkService) Lookup(ctx context.Context, id string) (*models.Shortlink, error) {
	return s.lookup(ctx, id)
}

func (s *ShortlinkService) lookup(ctx context.Context, id string) (*models.Shortlink, error) {
	var link models.Shortlink

	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, cacheKey(id)).Result()
		if err == nil {
			if err := json.Unmarshal([]byte(val), &link); err == nil {
				return &link, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Shortlink cache read failed", "id", id, "error", err)
		}
	}

	err := s.db.WithContext(ctx).First(&link, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("shortlink %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load shortlink: %w", err)
	}

	if s.rdb != nil {
		data, _ := json.Marshal(link)
		if err := s.rdb.Set(ctx, cacheKey(id), data, shortlinkCacheTTL).Err(); err != nil {
			s.logger.Warn("Shortlink cache write failed", "id", id, "error", err)
		}
	}
	return &link, nil
}

func (s *ShortlinkService) invalidate(ctx context.Context, id string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		s.logger.Warn("Shortlink cache invalidation failed", "id", id, "error", err)
	}
}

func cacheKey(id string) string {
	return "shortlink:" + id
}
