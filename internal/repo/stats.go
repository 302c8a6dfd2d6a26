// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries: the per-user
// insights summary and the count/last-change pairs used for ETag generation
// in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// InsightsSummary holds the dashboard counters of a user.
type InsightsSummary struct {
	TotalInsights       int64 `json:"total_insights"`
	ActiveInsights      int64 `json:"active_insights"`
	CompletedChallenges int64 `json:"completed_challenges"`
}

// GetInsightsSummary counts the user's insights, the insights still in
// status "new", and the challenges in status "resolved".
func GetInsightsSummary(ctx context.Context, db *gorm.DB, userID string) (InsightsSummary, error) {
	var s InsightsSummary
	q := db.WithContext(ctx)

	if err := q.Model(&domain.BusinessInsight{}).
		Where("user_id = ?", userID).
		Count(&s.TotalInsights).Error; err != nil {
		return InsightsSummary{}, err
	}
	if err := q.Model(&domain.BusinessInsight{}).
		Where("user_id = ? AND status = ?", userID, domain.InsightNew).
		Count(&s.ActiveInsights).Error; err != nil {
		return InsightsSummary{}, err
	}
	if err := q.Model(&domain.Challenge{}).
		Where("user_id = ? AND status = ?", userID, domain.ChallengeResolved).
		Count(&s.CompletedChallenges).Error; err != nil {
		return InsightsSummary{}, err
	}
	return s, nil
}

// MessagesStats returns the number of messages in a conversation and the
// latest message Timestamp (nil when there are none). Messages are
// immutable, so the pair changes exactly when a message is appended.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, latest *time.Time, err error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	}

	if err = q().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		Timestamp time.Time
	}
	if err = q().Select("timestamp").Order("timestamp DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.Timestamp, nil
}
