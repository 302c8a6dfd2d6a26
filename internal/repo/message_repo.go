package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// NewMessage is the input of CreateMessage.
type NewMessage struct {
	ConversationID string
	UserID         string
	Role           string
	Content        string
	Keywords       []string
	FlowMentions   []string
}

// CreateMessage inserts an immutable message with a UUID and UTC timestamp.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessage) (*domain.Message, error) {
	if in.Keywords == nil {
		in.Keywords = []string{}
	}
	if in.FlowMentions == nil {
		in.FlowMentions = []string{}
	}
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		Role:           in.Role,
		Content:        in.Content,
		Timestamp:      time.Now().UTC(),
		Keywords:       in.Keywords,
		FlowMentions:   in.FlowMentions,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// CountConversationMessages returns the number of messages in a conversation.
func CountConversationMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// ListConversationMessages returns messages of a conversation in
// chronological order, skipping offset. limit <= 0 returns the rest of the
// conversation.
func ListConversationMessages(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp asc, id asc")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	err := q.Find(&out).Error
	return out, err
}
