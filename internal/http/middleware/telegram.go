// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates Mini-App requests. The client forwards the raw
// Telegram WebApp initData string in the X-Telegram-Init-Data header; a
// verified launch yields the host identity, which is stored on the Gin
// context for handlers (IdentityFrom) and keyed under "userID" for the rate
// limiter, idempotency and access logs.
//
// Requests without the header are anonymous. A header that fails
// verification is rejected with 401.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

// HeaderInitData carries the raw Telegram WebApp initData query string.
const HeaderInitData = "X-Telegram-Init-Data"

const ctxKeyIdentity = "tg.identity"

// InitDataVerifier validates initData and returns the identity it asserts.
// *telegram.Verifier satisfies it.
type InitDataVerifier interface {
	Verify(initData string) (domain.Identity, error)
}

// TelegramAuth resolves the Telegram identity of the request. A nil
// verifier (no bot token configured) treats every request as anonymous.
func TelegramAuth(v InitDataVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderInitData)
		if raw == "" || v == nil {
			c.Next()
			return
		}

		id, err := v.Verify(raw)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("telegram init data rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid telegram init data",
			})
			return
		}

		c.Set(ctxKeyIdentity, &id)
		c.Set("userID", id.Key())
		c.Next()
	}
}

// IdentityFrom returns the verified identity of the request, or nil for
// anonymous requests.
func IdentityFrom(c *gin.Context) *domain.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(*domain.Identity); ok {
			return id
		}
	}
	return nil
}

// WithIdentity stores id on the context as TelegramAuth does.
func WithIdentity(c *gin.Context, id domain.Identity) {
	c.Set(ctxKeyIdentity, &id)
	c.Set("userID", id.Key())
}
