// Package domain defines the persistence models for users, conversations,
// messages and the business analytics records derived from them. These types
// are mapped with GORM and form the core data layer of the backend.
package domain

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is a Telegram Mini-App user and their business profile.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - TelegramID: host-platform identity; unique.
//   - FirstName / LastName / Username: display fields from the host.
//   - BusinessType: e.g. SaaS, eCommerce, Agency.
//   - BusinessStage: Startup, Growth, Scale or Turnaround.
//   - OnboardingCompleted: set by the client once the profile is filled in.
//   - LastActiveAt: bumped on every session start.
type User struct {
	ID                  string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	TelegramID          int64     `json:"telegram_id"          gorm:"not null;uniqueIndex:ux_users_telegram"`
	FirstName           string    `json:"first_name"           gorm:"type:varchar(255);not null"`
	LastName            *string   `json:"last_name,omitempty"  gorm:"type:varchar(255)"`
	Username            *string   `json:"username,omitempty"   gorm:"type:varchar(255)"`
	BusinessType        *string   `json:"business_type,omitempty"  gorm:"type:varchar(64)"`
	BusinessStage       *string   `json:"business_stage,omitempty" gorm:"type:varchar(64)"`
	OnboardingCompleted bool      `json:"onboarding_completed" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"created_at"`
	LastActiveAt        time.Time `json:"last_active_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ConversationState is the lifecycle of a conversation.
type ConversationState string

const (
	ConversationOpen     ConversationState = "open"
	ConversationResolved ConversationState = "resolved"
)

// Conversation groups the messages of one chat session. At most one
// conversation per session is open at a time; EndedAt is only set once the
// conversation is resolved.
type Conversation struct {
	ID          string            `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID      string            `json:"user_id"                gorm:"type:char(36);not null;index:idx_user_conversations,priority:1"`
	SessionID   string            `json:"session_id"             gorm:"type:varchar(128);not null;index"`
	State       ConversationState `json:"state"                  gorm:"type:varchar(16);not null;default:'open';check:state IN ('open','resolved')"`
	StartedAt   time.Time         `json:"started_at"             gorm:"index:idx_user_conversations,priority:2"`
	EndedAt     *time.Time        `json:"ended_at,omitempty"`
	Topic       *string           `json:"topic,omitempty"        gorm:"type:varchar(255)"`
	Sentiment   *string           `json:"sentiment,omitempty"    gorm:"type:varchar(16)"`
	PrimaryFlow *string           `json:"primary_flow,omitempty" gorm:"type:varchar(16)"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// IsOpen reports whether the conversation still accepts turns.
func (c Conversation) IsOpen() bool { return c.State != ConversationResolved }

// Resolve moves the conversation into the resolved state at the given time.
func (c *Conversation) Resolve(at time.Time) {
	c.State = ConversationResolved
	t := at.UTC()
	c.EndedAt = &t
}

// MarshalJSON keeps the legacy "resolved" flag in the wire format.
func (c Conversation) MarshalJSON() ([]byte, error) {
	type alias Conversation
	return json.Marshal(struct {
		alias
		Resolved bool `json:"resolved"`
	}{alias: alias(c), Resolved: !c.IsOpen()})
}

// Message is a single immutable turn within a conversation together with
// the signals extracted from its content.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;index"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	Timestamp      time.Time `json:"timestamp"       gorm:"index:idx_conversation_msgs,priority:2"`
	Keywords       []string  `json:"keywords"        gorm:"type:text;serializer:json"`
	FlowMentions   []string  `json:"flow_mentions"   gorm:"type:text;serializer:json"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Insight statuses.
const (
	InsightNew        = "new"
	InsightInProgress = "in_progress"
	InsightCompleted  = "completed"
)

// BusinessInsight is a discrete recommendation for a user.
type BusinessInsight struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string     `json:"user_id"         gorm:"type:char(36);not null;index:idx_user_insights,priority:1"`
	ConversationID string     `json:"conversation_id" gorm:"type:varchar(64)"`
	InsightType    string     `json:"insight_type"    gorm:"type:varchar(32);not null;check:insight_type IN ('bottleneck','opportunity','pattern','milestone')"`
	Category       string     `json:"category"        gorm:"type:varchar(16);not null"`
	Title          string     `json:"title"           gorm:"type:varchar(255);not null"`
	Description    string     `json:"description"     gorm:"type:text"`
	Impact         string     `json:"impact"          gorm:"type:varchar(16);not null;check:impact IN ('high','medium','low')"`
	ActionItems    []string   `json:"action_items"    gorm:"type:text;serializer:json"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;index:idx_user_insights,priority:2;check:status IN ('new','in_progress','completed')"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for BusinessInsight.
func (BusinessInsight) TableName() string { return "insights" }

// Challenge statuses.
const (
	ChallengeIdentified = "identified"
	ChallengeAnalyzing  = "analyzing"
	ChallengeSolving    = "solving"
	ChallengeResolved   = "resolved"
)

// Challenge is a tracked business problem referencing the conversations in
// which it came up.
type Challenge struct {
	ID                   string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	UserID               string     `json:"user_id"               gorm:"type:char(36);not null;index:idx_user_challenges,priority:1"`
	Title                string     `json:"title"                 gorm:"type:varchar(255);not null"`
	Description          string     `json:"description"           gorm:"type:text"`
	FlowType             string     `json:"flow_type"             gorm:"type:varchar(16);not null"`
	Severity             string     `json:"severity"              gorm:"type:varchar(16);not null;check:severity IN ('critical','high','medium','low')"`
	Status               string     `json:"status"                gorm:"type:varchar(16);not null;index:idx_user_challenges,priority:2"`
	IdentifiedAt         time.Time  `json:"identified_at"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	RelatedConversations []string   `json:"related_conversations" gorm:"type:text;serializer:json"`
	Solutions            []string   `json:"solutions"             gorm:"type:text;serializer:json"`
}

// TableName returns the database table name for Challenge.
func (Challenge) TableName() string { return "challenges" }

// Metric trends.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// FlowMetric is a timestamped numeric observation. Trend is derived at insert
// time from the latest prior value of the same metric for the same user.
type FlowMetric struct {
	ID             string    `json:"id"                        gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"                   gorm:"type:char(36);not null;index:idx_user_metric,priority:1"`
	FlowType       string    `json:"flow_type"                 gorm:"type:varchar(16);not null"`
	MetricName     string    `json:"metric_name"               gorm:"type:varchar(64);not null;index:idx_user_metric,priority:2"`
	Value          float64   `json:"value"                     gorm:"not null"`
	Unit           string    `json:"unit"                      gorm:"type:varchar(16)"`
	Timestamp      time.Time `json:"timestamp"                 gorm:"index:idx_user_metric,priority:3"`
	ConversationID *string   `json:"conversation_id,omitempty" gorm:"type:char(36)"`
	Trend          string    `json:"trend"                     gorm:"type:varchar(8);not null;check:trend IN ('up','down','stable')"`
}

// TableName returns the database table name for FlowMetric.
func (FlowMetric) TableName() string { return "flow_metrics" }

// Pattern counts a recurring business pattern per user.
type Pattern struct {
	ID             string    `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"        gorm:"type:char(36);not null;uniqueIndex:ux_user_pattern,priority:1"`
	PatternType    string    `json:"pattern_type"   gorm:"type:varchar(64);not null;uniqueIndex:ux_user_pattern,priority:2"`
	Frequency      int64     `json:"frequency"      gorm:"not null;default:1"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Contexts       []string  `json:"contexts"       gorm:"type:text;serializer:json"`
	Recommendation string    `json:"recommendation" gorm:"type:text"`
}

// TableName returns the database table name for Pattern.
func (Pattern) TableName() string { return "patterns" }
