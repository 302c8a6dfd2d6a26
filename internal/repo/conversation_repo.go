package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// CreateConversation inserts an open conversation for (userID, sessionID).
// It returns ErrDuplicate when the session already has an open conversation.
func CreateConversation(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		State:     domain.ConversationOpen,
		StartedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetActiveConversation returns the open conversation for sessionID or
// ErrNotFound. Resolved conversations are never returned.
func GetActiveConversation(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("session_id = ? AND state = ?", sessionID, domain.ConversationOpen).
		Order("started_at asc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by ID ensuring it belongs to userID.
func GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListUserConversations returns the user's conversations, most recent first.
// A limit <= 0 returns every conversation.
func ListUserConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ConversationPatch carries optional metadata updates. Setting Resolve moves
// the conversation to the resolved state and stamps EndedAt.
type ConversationPatch struct {
	Topic       *string
	Sentiment   *string
	PrimaryFlow *string
	Resolve     bool
}

// UpdateConversation applies patch. It returns ErrNotFound when no
// conversation has the given ID.
func UpdateConversation(ctx context.Context, db *gorm.DB, id string, patch ConversationPatch) error {
	updates := map[string]any{}
	if patch.Topic != nil {
		updates["topic"] = *patch.Topic
	}
	if patch.Sentiment != nil {
		updates["sentiment"] = *patch.Sentiment
	}
	if patch.PrimaryFlow != nil {
		updates["primary_flow"] = *patch.PrimaryFlow
	}
	if patch.Resolve {
		updates["state"] = domain.ConversationResolved
		updates["ended_at"] = time.Now().UTC()
	}
	if len(updates) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
