package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidVerification = errors.New("verification link is invalid or expired")

const verificationTTL = 24 * time.Hour

// StartVerification replaces any open verification of the user and returns
// the raw token for the emailed link.
func (s *Service) StartVerification(ctx context.Context, userID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	ev := EmailVerification{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(verificationTTL),
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used_at IS NULL", userID).Delete(&EmailVerification{}).Error; err != nil {
			return err
		}
		return tx.Create(&ev).Error
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ConfirmVerification consumes a token and marks the owner's email verified.
// A token works once and only until it expires.
func (s *Service) ConfirmVerification(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidVerification
	}
	var u User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var ev EmailVerification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hashToken(token), now).
			First(&ev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidVerification
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&EmailVerification{}).Where("id = ?", ev.ID).Update("used_at", now).Error; err != nil {
			return err
		}
		if err := tx.Model(&User{}).Where("id = ?", ev.UserID).
			Updates(map[string]any{"email_verified_at": now, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.First(&u, "id = ?", ev.UserID).Error
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}
