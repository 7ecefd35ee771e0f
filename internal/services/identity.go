package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/models"

	"gorm.io/gorm"
)

type AuthMethod string

const (
	MethodSession AuthMethod = "session"
	MethodAPIKey  AuthMethod = "api_key"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID  uint       `json:"id"`
	Email   string     `json:"email"`
	Name    string     `json:"name"`
	Admin   bool       `json:"admin"`
	Premium bool       `json:"premium"`
	Method  AuthMethod `json:"method"`
	KeyID   string     `json:"key_id,omitempty"`
}

// Credential is whatever the request carried: a session user id, a bearer
// key, both or neither.
type Credential struct {
	SessionUserID *uint
	BearerToken   string
}

type keyTouch struct {
	id   string
	used time.Time
}

// IdentityResolver turns a Credential into an Identity. A bearer key wins
// over the session.
type IdentityResolver struct {
	db      *gorm.DB
	logger  *slog.Logger
	touches chan keyTouch
	now     func() time.Time
}

func NewIdentityResolver(db *gorm.DB, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{
		db:      db,
		logger:  logger,
		touches: make(chan keyTouch, 256),
		now:     time.Now,
	}
}

func (r *IdentityResolver) Resolve(ctx context.Context, cred Credential) (Identity, error) {
	if cred.BearerToken != "" {
		return r.resolveKey(ctx, cred.BearerToken)
	}
	if cred.SessionUserID != nil {
		var user models.User
		err := r.db.WithContext(ctx).First(&user, *cred.SessionUserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, apperr.ErrUnauthenticated
		}
		if err != nil {
			return Identity{}, fmt.Errorf("load session user: %w", err)
		}
		return identityOf(user, MethodSession, ""), nil
	}
	return Identity{}, apperr.ErrUnauthenticated
}

func (r *IdentityResolver) resolveKey(ctx context.Context, token string) (Identity, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).Preload("User").Where(&models.APIKey{Key: token}).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, apperr.ErrInvalidCredential
	}
	if err != nil {
		return Identity{}, fmt.Errorf("look up api key: %w", err)
	}
	if key.User == nil {
		return Identity{}, apperr.ErrInvalidCredential
	}

	select {
	case r.touches <- keyTouch{id: key.ID, used: r.now()}:
	default:
		r.logger.Warn("Key touch channel full, dropping update", "key_id", key.ID)
	}

	return identityOf(*key.User, MethodAPIKey, key.ID), nil
}

// Start records key last-used timestamps until ctx is cancelled.
func (r *IdentityResolver) Start(ctx context.Context) {
	r.logger.Info("Key touch worker starting")
	for {
		select {
		case t := <-r.touches:
			err := r.db.WithContext(ctx).Model(&models.APIKey{}).
				Where("id = ?", t.id).
				UpdateColumn("last_used_at", t.used).Error
			if err != nil {
				r.logger.Error("Failed to record key usage", "key_id", t.id, "error", err)
			}
		case <-ctx.Done():
			r.logger.Info("Key touch worker stopping")
			return
		}
	}
}

func identityOf(u models.User, method AuthMethod, keyID string) Identity {
	return Identity{
		UserID:  u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Admin:   u.Admin,
		Premium: u.Premium,
		Method:  method,
		KeyID:   keyID,
	}
}
