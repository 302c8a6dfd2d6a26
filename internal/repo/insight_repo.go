// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the analytics
// records: business insights and challenges.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules (status defaults, validation,
// trend derivation) to the services package.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// CreateInsight inserts an insight. ID and CreatedAt are assigned when empty.
func CreateInsight(ctx context.Context, db *gorm.DB, in *domain.BusinessInsight) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.ActionItems == nil {
		in.ActionItems = []string{}
	}
	return db.WithContext(ctx).Create(in).Error
}

// GetInsight fetches an insight by ID or returns ErrNotFound.
func GetInsight(ctx context.Context, db *gorm.DB, id string) (*domain.BusinessInsight, error) {
	var in domain.BusinessInsight
	if err := db.WithContext(ctx).Where("id = ?", id).First(&in).Error; err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateInsightStatus sets the status and, when completedAt is non-nil, the
// completion timestamp. It returns ErrNotFound when no insight matches.
func UpdateInsightStatus(ctx context.Context, db *gorm.DB, id, status string, completedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	res := db.WithContext(ctx).Model(&domain.BusinessInsight{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActiveInsights returns the user's insights with status "new", newest first.
func ListActiveInsights(ctx context.Context, db *gorm.DB, userID string) ([]domain.BusinessInsight, error) {
	var out []domain.BusinessInsight
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.InsightNew).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CreateChallenge inserts a challenge. ID and IdentifiedAt are assigned when empty.
func CreateChallenge(ctx context.Context, db *gorm.DB, ch *domain.Challenge) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.IdentifiedAt.IsZero() {
		ch.IdentifiedAt = time.Now().UTC()
	}
	if ch.RelatedConversations == nil {
		ch.RelatedConversations = []string{}
	}
	if ch.Solutions == nil {
		ch.Solutions = []string{}
	}
	return db.WithContext(ctx).Create(ch).Error
}

// ListChallengesByStatus returns the user's challenges in the given status,
// oldest first.
func ListChallengesByStatus(ctx context.Context, db *gorm.DB, userID, status string) ([]domain.Challenge, error) {
	var out []domain.Challenge
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("identified_at asc").
		Find(&out).Error
	return out, err
}
