// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (exported as ErrNotFound).
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// GetOrCreateUser returns the user for the Telegram identity, creating it on
// first contact. An existing user gets LastActiveAt bumped to now; display
// fields are left untouched. A concurrent first contact that loses the insert
// race re-reads the winner.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, id domain.Identity) (*domain.User, error) {
	now := time.Now().UTC()

	u, err := GetUserByTelegramID(ctx, db, id.TelegramID)
	switch {
	case err == nil:
		if err := touchUser(ctx, db, u.ID, now); err != nil {
			return nil, err
		}
		u.LastActiveAt = now
		return u, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	u = &domain.User{
		ID:           uuid.NewString(),
		TelegramID:   id.TelegramID,
		FirstName:    id.FirstName,
		LastName:     id.LastName,
		Username:     id.Username,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		return GetUserByTelegramID(ctx, db, id.TelegramID)
	}
	return u, nil
}

// GetUserByTelegramID fetches a user by host identity or returns ErrNotFound.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by primary key or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ProfilePatch carries optional business profile updates. Nil fields are
// left unchanged.
type ProfilePatch struct {
	BusinessType        *string
	BusinessStage       *string
	OnboardingCompleted *bool
}

// UpdateUserProfile applies patch to the user. It returns ErrNotFound when
// the user does not exist.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, userID string, patch ProfilePatch) error {
	updates := map[string]any{}
	if patch.BusinessType != nil {
		updates["business_type"] = *patch.BusinessType
	}
	if patch.BusinessStage != nil {
		updates["business_stage"] = *patch.BusinessStage
	}
	if patch.OnboardingCompleted != nil {
		updates["onboarding_completed"] = *patch.OnboardingCompleted
	}
	if len(updates) == 0 {
		_, err := GetUser(ctx, db, userID)
		return err
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func touchUser(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error
}
