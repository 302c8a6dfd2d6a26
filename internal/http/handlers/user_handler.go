// User HTTP handlers.
//
//   - GET   /users/me          (stored profile of the caller)
//   - PATCH /users/me          (business profile update)
//   - GET   /users/me/summary  (dashboard counters)
package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/repo"
)

// maxProfileField bounds business_type and business_stage.
const maxProfileField = 64

// UpdateProfileRequest carries optional profile fields. Omitted fields stay
// unchanged.
type UpdateProfileRequest struct {
	BusinessType        *string `json:"business_type" example:"saas"`
	BusinessStage       *string `json:"business_stage" example:"early_revenue"`
	OnboardingCompleted *bool   `json:"onboarding_completed" example:"true"`
}

// trimField trims p in place and reports whether it fits the field limit.
func trimField(p *string) bool {
	if p == nil {
		return true
	}
	*p = strings.TrimSpace(*p)
	return utf8.RuneCountInString(*p) <= maxProfileField
}

// GetMe godoc
// @ID          getMe
// @Summary     Current user
// @Description Returns the stored profile of the verified caller.
// @Tags        Users
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	if u := h.currentUser(c); u != nil {
		ok(c, http.StatusOK, u)
	}
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Update business profile
// @Description Patches business type, business stage and onboarding flag of the caller.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       body                  body    handlers.UpdateProfileRequest  true  "Profile patch"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage not configured"
// @Router      /users/me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if !trimField(req.BusinessType) || !trimField(req.BusinessStage) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile fields are limited to 64 characters")
		return
	}

	out, err := h.analytics.UpdateUserProfile(c.Request.Context(), u.ID, repo.ProfilePatch{
		BusinessType:        req.BusinessType,
		BusinessStage:       req.BusinessStage,
		OnboardingCompleted: req.OnboardingCompleted,
	})
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, out)
}

// GetSummary godoc
// @ID          getMySummary
// @Summary     Insights summary
// @Description Counts the caller's insights, insights still new, and resolved challenges.
// @Tags        Users
// @Produce     json
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Success     200  {object}  repo.InsightsSummary
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/me/summary [get]
func (h *Handlers) GetSummary(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	sum, err := h.analytics.UserInsightsSummary(c.Request.Context(), u.ID)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, sum)
}
