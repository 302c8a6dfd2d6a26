// Package handlers exposes the CBO Bro REST API over Gin.
//
// Handlers are transport-thin: they validate and normalize input, resolve
// the caller (a verified Telegram identity, or anonymous), delegate to the
// services, and translate results into JSON or the error envelope.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/http/middleware"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/services"
	"github.com/tbourn/cbo-bro-backend/internal/signals"
	"github.com/tbourn/cbo-bro-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService binds client session ids to users and conversations.
type SessionService interface {
	Resolve(ctx context.Context, sessionID string, id *domain.Identity) *services.Session
	Start(ctx context.Context, sessionID string, id *domain.Identity) *services.Session
}

// ChatService answers user turns.
type ChatService interface {
	Send(ctx context.Context, sess *services.Session, text string) (*services.ChatReply, error)
}

// AnalyticsService serves the explicit analytics operations. Every method
// returns services.ErrPersistenceDisabled when no store is configured.
type AnalyticsService interface {
	UserByIdentity(ctx context.Context, id domain.Identity) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, userID string, patch repo.ProfilePatch) (*domain.User, error)
	UserInsightsSummary(ctx context.Context, userID string) (repo.InsightsSummary, error)

	UserConversations(ctx context.Context, userID string, limit int) ([]domain.Conversation, error)
	ConversationMessages(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	MessagesStats(ctx context.Context, conversationID string) (int64, *time.Time, error)

	CreateInsight(ctx context.Context, userID string, in services.NewInsight) (*domain.BusinessInsight, error)
	ActiveInsights(ctx context.Context, userID string) ([]domain.BusinessInsight, error)
	UpdateInsightStatus(ctx context.Context, userID, insightID, status string) (*domain.BusinessInsight, error)

	RecordChallenge(ctx context.Context, userID string, in services.NewChallenge) (*domain.Challenge, error)
	ChallengesByStatus(ctx context.Context, userID, status string) ([]domain.Challenge, error)

	RecordMetric(ctx context.Context, userID, flowType, name string, value float64, unit string, conversationID *string) (*domain.FlowMetric, error)
	SummarizeMetrics(ctx context.Context, userID string) (map[string]*services.FlowSummary, error)

	TrackPattern(ctx context.Context, userID, patternType, seenIn, recommendation string) (*domain.Pattern, error)
}

// IdempotencyStore records chat replies for replay. userKey is the identity
// key of the caller (middleware.UserKey).
type IdempotencyStore interface {
	Lookup(ctx context.Context, userKey, sessionID, key string) (*domain.Idempotency, error)
	Save(ctx context.Context, userKey, sessionID, key string, status int, body []byte) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	sessions  SessionService
	chat      ChatService
	analytics AnalyticsService
	idem      IdempotencyStore

	analyzer  *signals.Analyzer
	extractor *signals.Extractor
	// maxPromptRunes is echoed in validation messages.
	maxPromptRunes int
}

// New constructs Handlers. idem may be nil, which disables replay.
func New(sessions SessionService, chat ChatService, analytics AnalyticsService, idem IdempotencyStore) *Handlers {
	h := &Handlers{
		sessions:       sessions,
		chat:           chat,
		analytics:      analytics,
		idem:           idem,
		analyzer:       signals.DefaultAnalyzer(),
		extractor:      signals.Default(),
		maxPromptRunes: 4000,
	}
	if cs, ok := chat.(*services.ChatService); ok && cs.MaxPromptRunes > 0 {
		h.maxPromptRunes = cs.MaxPromptRunes
	}
	return h
}

// WithExtractor replaces the signal extractor used by the analyze endpoint.
func (h *Handlers) WithExtractor(ex *signals.Extractor) *Handlers {
	if ex != nil {
		h.extractor = ex
	}
	return h
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.BoundedInt(c.Query("page_size"), defaultPageSize, 1, maxPageSize)
	return
}

// currentUser resolves the stored user of the verified caller. It writes the
// error response and returns nil when there is none.
func (h *Handlers) currentUser(c *gin.Context) *domain.User {
	id := middleware.IdentityFrom(c)
	if id == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "telegram identity required")
		return nil
	}
	u, err := h.analytics.UserByIdentity(c.Request.Context(), *id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return nil
	}
	return u
}
