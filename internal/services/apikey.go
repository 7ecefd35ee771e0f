package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/models"
	"anonhost/pkg/utils"

	"gorm.io/gorm"
)

const maxKeyNameLength = 128

type APIKeyService struct {
	db           *gorm.DB
	auditService *AuditService
}

func NewAPIKeyService(db *gorm.DB, auditService *AuditService) *APIKeyService {
	return &APIKeyService{db: db, auditService: auditService}
}

// Create issues a new key for owner. The key prefix is derived from the
// owner's name.
func (s *APIKeyService) Create(ctx context.Context, owner Identity, name, ip string) (*models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxKeyNameLength {
		return nil, fmt.Errorf("key name must be 1-%d characters: %w", maxKeyNameLength, apperr.ErrValidation)
	}

	secret, err := utils.GenerateAPIKey(owner.Name)
	if err != nil {
		return nil, err
	}

	key := models.APIKey{
		ID:        utils.MustGenerateID(),
		UserID:    owner.UserID,
		Name:      name,
		Key:       secret,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.auditService.LogAction(&owner.UserID, ActionCreateAPIKey, key.ID, map[string]interface{}{
		"name": name,
	}, ip)
	return &key, nil
}

func (s *APIKeyService) List(ctx context.Context, owner Identity) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).Where("user_id = ?", owner.UserID).Order("created_at desc").Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

func (s *APIKeyService) Delete(ctx context.Context, owner Identity, id, ip string) error {
	var key models.APIKey
	err := s.db.WithContext(ctx).First(&key, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("api key %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}
	if key.UserID != owner.UserID {
		return fmt.Errorf("api key %s: %w", id, apperr.ErrForbidden)
	}

	if err := s.db.WithContext(ctx).Delete(&key).Error; err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}

	s.auditService.LogAction(&owner.UserID, ActionDeleteAPIKey, id, nil, ip)
	return nil
}
