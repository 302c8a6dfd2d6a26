package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// GetPattern fetches the (userID, patternType) counter or returns ErrNotFound.
func GetPattern(ctx context.Context, db *gorm.DB, userID, patternType string) (*domain.Pattern, error) {
	var p domain.Pattern
	err := db.WithContext(ctx).
		Where("user_id = ? AND pattern_type = ?", userID, patternType).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePattern inserts a new counter. It returns ErrDuplicate when one
// already exists for (user, type).
func CreatePattern(ctx context.Context, db *gorm.DB, p *domain.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Contexts == nil {
		p.Contexts = []string{}
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SavePattern writes every field of an existing counter.
func SavePattern(ctx context.Context, db *gorm.DB, p *domain.Pattern) error {
	return db.WithContext(ctx).Save(p).Error
}
