// Conversation HTTP handlers.
//
// This file exposes read endpoints over the caller's stored conversations:
//   - GET /conversations                 (most recent first, limited)
//   - GET /conversations/{id}/messages   (paginated, ETag support)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/utils"
)

// ListConversationsResponse wraps the caller's conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the caller's conversations, most recently started first.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       limit                 query   int     false "Max items"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Identity required"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage not configured"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	limit := utils.BoundedInt(c.Query("limit"), 20, 1, 100)

	items, err := h.analytics.UserConversations(c.Request.Context(), u.ID, limit)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// ListMessages godoc
// @ID          listConversationMessages
// @Summary     List messages in a conversation
// @Description Returns a chronological page of a conversation owned by the caller.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-Telegram-Init-Data  header  string  true  "Telegram WebApp initData"
// @Param       If-None-Match         header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       id                    path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       page                  query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size             query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Identity required"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	u := h.currentUser(c)
	if u == nil {
		return
	}
	ctx := c.Request.Context()
	convID := c.Param("id")
	page, pageSize := clampPagination(c)

	// Ownership is checked here, so stats below never describe a foreign conversation.
	items, total, err := h.analytics.ConversationMessages(ctx, u.ID, convID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	// ETag (best effort).
	if count, maxTS, err := h.analytics.MessagesStats(ctx, convID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d.%d"`, convID, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
