// Insight HTTP handlers.
//
// Stored insights belong to the verified caller. The analyze, recommendation
// and follow-up endpoints are stateless and open to anonymous callers.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/services"
	"github.com/tbourn/cbo-bro-backend/internal/signals"
)

// CreateInsightRequest is the payload of POST /insights.
type CreateInsightRequest struct {
	ConversationID string   `json:"conversation_id"`
	InsightType    string   `json:"insight_type" binding:"required" enums:"bottleneck,opportunity,pattern,milestone" example:"bottleneck"`
	Category       string   `json:"category" binding:"required" enums:"value,info,cash,culture" example:"cash"`
	Title          string   `json:"title" binding:"required" example:"Runway under 6 months"`
	Description    string   `json:"description"`
	Impact         string   `json:"impact" binding:"required" enums:"high,medium,low" example:"high"`
	ActionItems    []string `json:"action_items"`
}

// UpdateStatusRequest carries a new lifecycle status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" enums:"new,in_progress,completed" example:"completed"`
}

// AnalyzeRequest is the payload of POST /insights/analyze.
type AnalyzeRequest struct {
	Message string `json:"message" binding:"required" example:"Revenue is stuck and churn is 7%"`
}

// AnalyzeResponse pairs the analyzer hints with the extracted signals.
type AnalyzeResponse struct {
	Insights []signals.Insight `json:"insights"`
	Signals  signals.Signals   `json:"signals"`
}

// ListInsightsResponse wraps stored insights.
type ListInsightsResponse struct {
	Insights []domain.BusinessInsight `json:"insights"`
}

// HintsResponse wraps analyzer hints.
type HintsResponse struct {
	Insights []signals.Insight `json:"insights"`
}

// FollowUpsResponse wraps follow-up questions for a topic.
type FollowUpsResponse struct {
	Topic     string   `json:"topic"`
	Questions []string `json:"questions"`
}

// CreateInsight godoc
// @ID          createInsight
// @Summary     Store an insight
// @Tags        Insights
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       body                  body    handlers.CreateInsightRequest  true  "Insight"
// @Success     201  {object}  domain.BusinessInsight
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage not configured"
// @Router      /insights [post]
func (h *Handlers) CreateInsight(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req CreateInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "insight_type, category, title and impact are required")
		return
	}
	ins, err := h.analytics.CreateInsight(c.Request.Context(), u.ID, services.NewInsight{
		ConversationID: req.ConversationID,
		InsightType:    req.InsightType,
		Category:       req.Category,
		Title:          req.Title,
		Description:    req.Description,
		Impact:         req.Impact,
		ActionItems:    req.ActionItems,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, ins)
}

// ListInsights godoc
// @ID          listInsights
// @Summary     Active insights
// @Description Lists the caller's insights in status new, newest first.
// @Tags        Insights
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Success     200  {object}  handlers.ListInsightsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Router      /insights [get]
func (h *Handlers) ListInsights(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	items, err := h.analytics.ActiveInsights(c.Request.Context(), u.ID)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListInsightsResponse{Insights: items})
}

// UpdateInsightStatus godoc
// @ID          updateInsightStatus
// @Summary     Move an insight to a new status
// @Description Moving to completed stamps completed_at, also on repeats.
// @Tags        Insights
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       id                    path    string  true  "Insight ID (UUID)"  format(uuid)
// @Param       body                  body    handlers.UpdateStatusRequest  true  "New status"
// @Success     200  {object}  domain.BusinessInsight
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Insight not found"
// @Router      /insights/{id}/status [patch]
func (h *Handlers) UpdateInsightStatus(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	ins, err := h.analytics.UpdateInsightStatus(c.Request.Context(), u.ID, c.Param("id"), strings.TrimSpace(req.Status))
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ins)
}

// AnalyzeMessage godoc
// @ID          analyzeMessage
// @Summary     Analyze a message
// @Description Returns pattern, similar-challenge and milestone hints plus the extracted keywords,
// @Description flows, topic and metrics. Nothing is stored.
// @Tags        Insights
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.AnalyzeRequest  true  "Message"
// @Success     200  {object}  handlers.AnalyzeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /insights/analyze [post]
func (h *Handlers) AnalyzeMessage(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	insights := h.analyzer.Analyze(req.Message)
	if insights == nil {
		insights = []signals.Insight{}
	}
	ok(c, http.StatusOK, AnalyzeResponse{
		Insights: insights,
		Signals:  h.extractor.Extract(req.Message),
	})
}

// Recommendations godoc
// @ID          insightRecommendations
// @Summary     Standing recommendations
// @Tags        Insights
// @Produce     json
// @Success     200  {object}  handlers.HintsResponse
// @Router      /insights/recommendations [get]
func (h *Handlers) Recommendations(c *gin.Context) {
	ok(c, http.StatusOK, HintsResponse{Insights: h.analyzer.Recommendations()})
}

// FollowUps godoc
// @ID          insightFollowUps
// @Summary     Follow-up questions for a topic
// @Description Picks the question set of the first of revenue, team, customer or growth found in
// @Description the topic; revenue when none matches.
// @Tags        Insights
// @Produce     json
// @Param       topic  query  string  false  "Conversation topic"  example(Hiring our first salesperson)
// @Success     200  {object}  handlers.FollowUpsResponse
// @Router      /insights/follow-ups [get]
func (h *Handlers) FollowUps(c *gin.Context) {
	topic := c.Query("topic")
	ok(c, http.StatusOK, FollowUpsResponse{Topic: topic, Questions: h.analyzer.FollowUpQuestions(topic)})
}
