package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/mailer"
	"anonhost/internal/models"

	"gorm.io/gorm"
)

// UserSummary is a user row with per-user resource counts.
type UserSummary struct {
	models.User
	MediaCount     int64 `json:"media_count"`
	ShortlinkCount int64 `json:"shortlink_count"`
	APIKeyCount    int64 `json:"api_key_count"`
}

type UserFlags struct {
	Admin   *bool
	Premium *bool
}

// AdminEmailInput is an operator-written message to one recipient.
type AdminEmailInput struct {
	To      string
	Subject string
	Message string
}

type AdminService struct {
	db           *gorm.DB
	mailer       mailer.Mailer
	auditService *AuditService
	logger       *slog.Logger
}

func NewAdminService(db *gorm.DB, m mailer.Mailer, auditService *AuditService, logger *slog.Logger) *AdminService {
	return &AdminService{db: db, mailer: m, auditService: auditService, logger: logger}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Preload("Settings").Order("created_at desc, id desc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	type row struct {
		UserID uint
		Count  int64
	}
	countBy := func(model interface{}, scope func(*gorm.DB) *gorm.DB) (map[uint]int64, error) {
		var rows []row
		q := s.db.WithContext(ctx).Model(model).Select("user_id, COUNT(*) AS count").Group("user_id")
		if scope != nil {
			q = scope(q)
		}
		if err := q.Scan(&rows).Error; err != nil {
			return nil, err
		}
		out := make(map[uint]int64, len(rows))
		for _, r := range rows {
			out[r.UserID] = r.Count
		}
		return out, nil
	}

	media, err := countBy(&models.Media{}, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ?", models.MediaActive)
	})
	if err != nil {
		return nil, fmt.Errorf("count media: %w", err)
	}
	links, err := countBy(&models.Shortlink{}, nil)
	if err != nil {
		return nil, fmt.Errorf("count shortlinks: %w", err)
	}
	keys, err := countBy(&models.APIKey{}, nil)
	if err != nil {
		return nil, fmt.Errorf("count api keys: %w", err)
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, UserSummary{
			User:           u,
			MediaCount:     media[u.ID],
			ShortlinkCount: links[u.ID],
			APIKeyCount:    keys[u.ID],
		})
	}
	return summaries, nil
}

func (s *AdminService) UpdateFlags(ctx context.Context, actor Identity, userID uint, flags UserFlags, ip string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	updates := map[string]interface{}{}
	if flags.Admin != nil {
		if !*flags.Admin && userID == actor.UserID {
			return nil, fmt.Errorf("admins cannot revoke their own admin flag: %w", apperr.ErrValidation)
		}
		updates["admin"] = *flags.Admin
	}
	if flags.Premium != nil {
		updates["premium"] = *flags.Premium
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user flags: %w", err)
	}
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}

	s.auditService.LogAction(&actor.UserID, ActionUpdateUserFlags, fmt.Sprint(userID), updates, ip)
	return &user, nil
}

// SendEmail delivers an operator message as plain text with an HTML copy.
func (s *AdminService) SendEmail(ctx context.Context, actor Identity, in AdminEmailInput, ip string) error {
	to, err := normalizeEmail(in.To)
	if err != nil {
		return err
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" || len(subject) > 200 {
		return fmt.Errorf("subject must be 1-200 characters: %w", apperr.ErrValidation)
	}
	if strings.TrimSpace(in.Message) == "" {
		return fmt.Errorf("message is required: %w", apperr.ErrValidation)
	}

	if err := s.mailer.Send(ctx, mailer.PlainEmail(to, subject, in.Message)); err != nil {
		s.logger.Error("Failed to send admin email", "to", to, "error", err)
		return fmt.Errorf("send admin email: %w", err)
	}

	s.auditService.LogAction(&actor.UserID, ActionAdminEmail, to, map[string]interface{}{
		"subject": subject,
	}, ip)
	return nil
}
