package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/mailer"
	"anonhost/internal/models"
	"anonhost/pkg/utils"

	"gorm.io/gorm"
)

// OTPTTL is how long an emailed code stays valid.
const OTPTTL = 15 * time.Minute

var errInvalidCode = fmt.Errorf("invalid or expired code: %w", apperr.ErrValidation)

// AuthService handles passwordless sign-in and email changes with emailed
// one-time codes.
type AuthService struct {
	db           *gorm.DB
	mailer       mailer.Mailer
	auditService *AuditService
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthService(db *gorm.DB, m mailer.Mailer, auditService *AuditService, logger *slog.Logger) *AuthService {
	return &AuthService{
		db:           db,
		mailer:       m,
		auditService: auditService,
		logger:       logger,
		now:          time.Now,
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("invalid email address: %w", apperr.ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}

// RequestCode emails a sign-in code. Unused codes of the same type for the
// same address are discarded first.
func (s *AuthService) RequestCode(ctx context.Context, email string, otpType models.OTPType) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	switch otpType {
	case "":
		otpType = models.OTPLogin
	case models.OTPLogin, models.OTPRegistration:
	default:
		return fmt.Errorf("unsupported code type %q: %w", otpType, apperr.ErrValidation)
	}

	otp, err := s.issue(ctx, nil, email, otpType)
	if err != nil {
		return err
	}
	return s.send(ctx, otp, "login")
}

// VerifyCode consumes a sign-in code and returns the user, creating it on
// first sign-in.
func (s *AuthService) VerifyCode(ctx context.Context, email, code, ip string) (*models.User, bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}

	var user models.User
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var otp models.OTP
		err := tx.Where("email = ? AND code = ? AND used = ? AND expires_at > ? AND type IN ?",
			email, strings.TrimSpace(code), false, s.now(), []models.OTPType{models.OTPLogin, models.OTPRegistration}).
			First(&otp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errInvalidCode
		}
		if err != nil {
			return fmt.Errorf("load code: %w", err)
		}

		res := tx.Model(&otp).Where("used = ?", false).Update("used", true)
		if res.Error != nil {
			return fmt.Errorf("consume code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errInvalidCode
		}

		err = tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := s.now()
			user = models.User{
				Email:           email,
				Name:            strings.SplitN(email, "@", 2)[0],
				EmailVerifiedAt: &now,
			}
			created = true
			return tx.Create(&user).Error
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}

	action := ActionLogin
	if created {
		action = ActionRegister
		s.sendWelcome(ctx, &user)
	}
	s.auditService.LogAction(&user.ID, action, fmt.Sprint(user.ID), nil, ip)
	return &user, created, nil
}

// sendWelcome greets a new user. Failures are logged and do not affect
// sign-in.
func (s *AuthService) sendWelcome(ctx context.Context, user *models.User) {
	msg, err := mailer.WelcomeEmail(user.Email, user.Name)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("Failed to send welcome email", "user_id", user.ID, "error", err)
	}
}

// RequestEmailChange sends a confirmation code to newEmail.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID uint, newEmail string) error {
	email, err := normalizeEmail(newEmail)
	if err != nil {
		return err
	}

	var existing models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil && existing.ID != userID {
		return fmt.Errorf("email already in use: %w", apperr.ErrConflict)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check email: %w", err)
	}

	otp, err := s.issue(ctx, &userID, email, models.OTPEmailChange)
	if err != nil {
		return err
	}
	return s.send(ctx, otp, string(models.OTPEmailChange))
}

// ConfirmEmailChange applies a pending email change. The email update and the
// code consumption commit together.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, userID uint, code, ip string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var otp models.OTP
		err := tx.Where("user_id = ? AND code = ? AND type = ? AND used = ? AND expires_at > ?",
			userID, strings.TrimSpace(code), models.OTPEmailChange, false, s.now()).
			First(&otp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errInvalidCode
		}
		if err != nil {
			return fmt.Errorf("load code: %w", err)
		}

		var taken int64
		if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", otp.Email, userID).Count(&taken).Error; err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken > 0 {
			return fmt.Errorf("email already in use: %w", apperr.ErrConflict)
		}

		now := s.now()
		err = tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]interface{}{"email": otp.Email, "email_verified_at": now}).Error
		if err != nil {
			return fmt.Errorf("update email: %w", err)
		}
		if err := tx.Model(&otp).Update("used", true).Error; err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditService.LogAction(&userID, ActionChangeEmail, fmt.Sprint(userID), map[string]interface{}{
		"email": user.Email,
	}, ip)
	return &user, nil
}

func (s *AuthService) issue(ctx context.Context, userID *uint, email string, otpType models.OTPType) (*models.OTP, error) {
	code, err := utils.GenerateOTP()
	if err != nil {
		return nil, err
	}
	otp := models.OTP{
		ID:        utils.MustGenerateID(),
		UserID:    userID,
		Email:     email,
		Type:      otpType,
		Code:      code,
		ExpiresAt: s.now().Add(OTPTTL),
		CreatedAt: s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		supersede := tx.Where("type = ? AND used = ?", otpType, false)
		if userID != nil {
			supersede = supersede.Where("user_id = ?", *userID)
		} else {
			supersede = supersede.Where("email = ?", email)
		}
		if err := supersede.Delete(&models.OTP{}).Error; err != nil {
			return err
		}
		return tx.Create(&otp).Error
	})
	if err != nil {
		return nil, fmt.Errorf("issue code: %w", err)
	}
	return &otp, nil
}

func (s *AuthService) send(ctx context.Context, otp *models.OTP, purpose string) error {
	msg, err := mailer.VerificationEmail(otp.Code, otp.Email, purpose)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to send verification code", "email", otp.Email, "error", err)
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}
