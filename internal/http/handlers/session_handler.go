// Session and chat HTTP handlers.
//
// This file exposes:
//   - POST /sessions                (open or resume a chat session)
//   - POST /sessions/{id}/messages  (send a user turn, get the assistant reply)
//
// Idempotency:
// When the client supplies an Idempotency-Key and a reply for
// (caller, session, key) is recorded, the handler returns that reply
// verbatim with `Idempotency-Replayed: true` and the LLM is not called again.
// Only successful replies are recorded; an apology can be retried.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/cbo-bro-backend/internal/http/middleware"
	"github.com/tbourn/cbo-bro-backend/internal/services"
)

//
// DTOs
//

// CreateSessionRequest optionally carries a client-chosen session id.
type CreateSessionRequest struct {
	SessionID string `json:"session_id" example:"5b0f8a7e-2d7e-4a4e-9a39-4f0c1e0d2b11"`
}

// SessionResponse describes a resolved session.
type SessionResponse struct {
	SessionID      string `json:"session_id"`
	State          string `json:"state" example:"conversation_open"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Anonymous is true when the request carried no verified identity; such
	// sessions are answered but never persisted.
	Anonymous bool `json:"anonymous"`
}

// PostMessageRequest is the JSON payload of a user turn.
type PostMessageRequest struct {
	// Content is the user message. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"Our MRR is stuck at $40k MRR, what should we do?"`
}

//
// Helpers
//

// sessionIDRE bounds client-chosen session ids to a safe token alphabet.
var sessionIDRE = regexp.MustCompile(`^[A-Za-z0-9._~:\-]{1,128}$`)

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses runs of 3+ LFs to two
// and trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func sessionView(sess *services.Session) SessionResponse {
	return SessionResponse{
		SessionID:      sess.ID,
		State:          sess.State.String(),
		UserID:         sess.UserID,
		ConversationID: sess.ConversationID,
		Anonymous:      sess.Identity == nil,
	}
}

//
// Handlers
//

// CreateSession godoc
// @ID          createSession
// @Summary     Open or resume a chat session
// @Description Resolves the session for the caller. With a verified Telegram identity and storage
// @Description configured, the user is created or refreshed and the session's open conversation is
// @Description adopted or created. A session id is generated when omitted.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Init-Data  header  string  false "Telegram WebApp initData"
// @Param       body                  body    handlers.CreateSessionRequest  false  "Optional session id"
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid init data"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		sid = uuid.NewString()
	}
	if !sessionIDRE.MatchString(sid) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id must be 1-128 URL-safe characters")
		return
	}

	sess := h.sessions.Start(c.Request.Context(), sid, middleware.IdentityFrom(c))
	ok(c, http.StatusOK, sessionView(sess))
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and get the assistant reply
// @Description Records the user turn, asks the advisor persona, records the reply and returns it
// @Description as text and Telegram-safe HTML. LLM failures return the fixed apology with
// @Description is_error=true. Supports idempotency via the Idempotency-Key header.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Init-Data  header  string  false "Telegram WebApp initData"
// @Param       Idempotency-Key       header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id                    path    string  true  "Session ID"
// @Param       body                  body    handlers.PostMessageRequest  true  "User message"
//
// @Success     200  {object}  services.ChatReply
// @Header      200  {string}  Idempotency-Replayed  "true when served from the idempotency store"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid init data"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if !sessionIDRE.MatchString(sessionID) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid session id")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if utf8.RuneCountInString(content) > h.maxPromptRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.maxPromptRunes))
		return
	}

	userKey := middleware.UserKey(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		if rec, err := h.idem.Lookup(ctx, userKey, sessionID, idemKey); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			c.Data(rec.Status, "application/json; charset=utf-8", []byte(rec.Response))
			return
		}
	}

	sess := h.sessions.Resolve(ctx, sessionID, middleware.IdentityFrom(c))
	reply, err := h.chat.Send(ctx, sess, content)
	if err != nil {
		failService(c, err, ErrCodeChatFailed)
		return
	}

	if idemKey != "" && h.idem != nil && !reply.IsError {
		if body, err := json.Marshal(reply); err == nil {
			if err := h.idem.Save(ctx, userKey, sessionID, idemKey, http.StatusOK, body); err != nil {
				lg := middleware.LoggerFrom(c)
				lg.Warn().Err(err).Str("session_id", sessionID).Msg("idempotency record not saved")
			}
		}
	}

	ok(c, http.StatusOK, reply)
}
