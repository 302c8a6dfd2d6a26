package domain

import "time"

// Idempotency is the recorded reply of a previously processed chat turn,
// keyed by (user_id, session_id, key). A retry with the same key is answered
// from Response without calling the LLM again.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:1"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:3"`
	Response  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (r Idempotency) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }
