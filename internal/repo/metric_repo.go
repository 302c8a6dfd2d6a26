package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// ListMetricsByName returns every metric recorded for (userID, name) in
// insertion order. The scan is unbounded.
func ListMetricsByName(ctx context.Context, db *gorm.DB, userID, name string) ([]domain.FlowMetric, error) {
	var out []domain.FlowMetric
	err := db.WithContext(ctx).
		Where("user_id = ? AND metric_name = ?", userID, name).
		Order("rowid asc").
		Find(&out).Error
	return out, err
}

// CreateFlowMetric inserts a metric. ID and Timestamp are assigned when empty.
func CreateFlowMetric(ctx context.Context, db *gorm.DB, m *domain.FlowMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(m).Error
}

// ListMetricsByUser returns every metric of the user in insertion order.
func ListMetricsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.FlowMetric, error) {
	var out []domain.FlowMetric
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("rowid asc").
		Find(&out).Error
	return out, err
}
