package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"anonhost/internal/models"

	"gorm.io/gorm"
)

const (
	ActionLogin           = "LOGIN"
	ActionRegister        = "REGISTER"
	ActionUpload          = "UPLOAD"
	ActionDeleteMedia     = "DELETE_MEDIA"
	ActionCreateAPIKey    = "CREATE_API_KEY"
	ActionDeleteAPIKey    = "DELETE_API_KEY"
	ActionCreateShortlink = "CREATE_SHORTLINK"
	ActionDeleteShortlink = "DELETE_SHORTLINK"
	ActionChangeEmail     = "CHANGE_EMAIL"
	ActionUpdateUserFlags = "UPDATE_USER_FLAGS"
	ActionAdminEmail      = "ADMIN_EMAIL"
	ActionUpdateProfile   = "UPDATE_PROFILE"
)

type AuditService struct {
	db      *gorm.DB
	logger  *slog.Logger
	entries chan models.AuditLog
}

func NewAuditService(db *gorm.DB, logger *slog.Logger) *AuditService {
	return &AuditService{
		db:      db,
		logger:  logger,
		entries: make(chan models.AuditLog, 100),
	}
}

func (s *AuditService) Start(ctx context.Context) {
	s.logger.Info("Audit worker starting")
	for {
		select {
		case entry := <-s.entries:
			if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
				s.logger.Error("Failed to write audit log", "action", entry.Action, "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("Audit worker stopping")
			return
		}
	}
}

// LogAction queues an audit entry. It never blocks; entries are dropped when
// the queue is full.
func (s *AuditService) LogAction(userID *uint, action, entityID string, details interface{}, ip string) {
	detailBytes, _ := json.Marshal(details)

	entry := models.AuditLog{
		UserID:    userID,
		Action:    action,
		EntityID:  entityID,
		Details:   string(detailBytes),
		IPAddress: ip,
		Timestamp: time.Now(),
	}

	select {
	case s.entries <- entry:
	default:
		s.logger.Warn("Audit channel full, dropping log", "action", action)
	}
}
