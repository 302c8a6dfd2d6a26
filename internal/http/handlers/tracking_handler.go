// Tracking HTTP handlers: challenges, flow metrics and recurring patterns of
// the verified caller.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/services"
)

// CreateChallengeRequest is the payload of POST /challenges.
type CreateChallengeRequest struct {
	Title          string `json:"title" binding:"required" example:"Sales cycle too long"`
	Description    string `json:"description"`
	FlowType       string `json:"flow_type" binding:"required" enums:"value,info,cash,culture" example:"cash"`
	Severity       string `json:"severity" binding:"required" enums:"critical,high,medium,low" example:"high"`
	ConversationID string `json:"conversation_id"`
}

// ListChallengesResponse wraps challenges in one status.
type ListChallengesResponse struct {
	Status     string             `json:"status"`
	Challenges []domain.Challenge `json:"challenges"`
}

// RecordMetricRequest is the payload of POST /metrics. Value is a pointer so
// that zero is accepted.
type RecordMetricRequest struct {
	FlowType       string   `json:"flow_type" binding:"required" enums:"value,info,cash,culture" example:"cash"`
	Name           string   `json:"metric_name" binding:"required" example:"MRR"`
	Value          *float64 `json:"value" binding:"required" example:"40000"`
	Unit           string   `json:"unit" example:"$"`
	ConversationID *string  `json:"conversation_id"`
}

// MetricsSummaryResponse groups metrics by flow type.
type MetricsSummaryResponse struct {
	Flows map[string]*services.FlowSummary `json:"flows"`
}

// TrackPatternRequest is the payload of POST /patterns.
type TrackPatternRequest struct {
	PatternType    string `json:"pattern_type" binding:"required" example:"Growth Plateau"`
	Context        string `json:"context"`
	Recommendation string `json:"recommendation"`
}

// CreateChallenge godoc
// @ID          createChallenge
// @Summary     Record a challenge
// @Description Stores a challenge in status identified, linked to the given conversation.
// @Tags        Tracking
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       body                  body    handlers.CreateChallengeRequest  true  "Challenge"
// @Success     201  {object}  domain.Challenge
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /challenges [post]
func (h *Handlers) CreateChallenge(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, flow_type and severity are required")
		return
	}
	ch, err := h.analytics.RecordChallenge(c.Request.Context(), u.ID, services.NewChallenge{
		Title:          req.Title,
		Description:    req.Description,
		FlowType:       req.FlowType,
		Severity:       req.Severity,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, ch)
}

// ListChallenges godoc
// @ID          listChallenges
// @Summary     Challenges by status
// @Tags        Tracking
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true   "Telegram WebApp initData"
// @Param       status                query   string  false  "Status"  Enums(identified,analyzing,solving,resolved) default(identified)
// @Success     200  {object}  handlers.ListChallengesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /challenges [get]
func (h *Handlers) ListChallenges(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	status := strings.TrimSpace(c.DefaultQuery("status", domain.ChallengeIdentified))
	items, err := h.analytics.ChallengesByStatus(c.Request.Context(), u.ID, status)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListChallengesResponse{Status: status, Challenges: items})
}

// RecordMetric godoc
// @ID          recordMetric
// @Summary     Record a flow metric
// @Description Stores an observation; trend compares it with the latest prior value of the same metric.
// @Tags        Tracking
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       body                  body    handlers.RecordMetricRequest  true  "Metric"
// @Success     201  {object}  domain.FlowMetric
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /metrics [post]
func (h *Handlers) RecordMetric(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req RecordMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "flow_type, metric_name and value are required")
		return
	}
	m, err := h.analytics.RecordMetric(c.Request.Context(), u.ID, req.FlowType, req.Name, *req.Value, req.Unit, req.ConversationID)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, m)
}

// MetricsSummary godoc
// @ID          metricsSummary
// @Summary     Metrics grouped by flow
// @Tags        Tracking
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Success     200  {object}  handlers.MetricsSummaryResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /metrics/summary [get]
func (h *Handlers) MetricsSummary(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	flows, err := h.analytics.SummarizeMetrics(c.Request.Context(), u.ID)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, MetricsSummaryResponse{Flows: flows})
}

// TrackPattern godoc
// @ID          trackPattern
// @Summary     Track a recurring pattern
// @Description Creates the pattern with frequency 1 or increments it, appending the context.
// @Tags        Tracking
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       body                  body    handlers.TrackPatternRequest  true  "Pattern sighting"
// @Success     200  {object}  domain.Pattern
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /patterns [post]
func (h *Handlers) TrackPattern(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req TrackPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pattern_type required")
		return
	}
	p, err := h.analytics.TrackPattern(c.Request.Context(), u.ID, req.PatternType, req.Context, strings.TrimSpace(req.Recommendation))
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, p)
}
