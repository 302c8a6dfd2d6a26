package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

type stubVerifier struct {
	id  domain.Identity
	err error
	got string
}

func (s *stubVerifier) Verify(initData string) (domain.Identity, error) {
	s.got = initData
	return s.id, s.err
}

func newAuthRouter(v InitDataVerifier, seen **domain.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TelegramAuth(v))
	r.GET("/me", func(c *gin.Context) {
		*seen = IdentityFrom(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestTelegramAuth_VerifiedIdentity(t *testing.T) {
	v := &stubVerifier{id: domain.Identity{TelegramID: 42, FirstName: "Ada"}}
	var seen *domain.Identity
	r := newAuthRouter(v, &seen)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderInitData, "auth_date=1&hash=ab")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || seen == nil || seen.TelegramID != 42 {
		t.Fatalf("code=%d identity=%+v", w.Code, seen)
	}
	if v.got != "auth_date=1&hash=ab" {
		t.Fatalf("verifier got %q", v.got)
	}
}

func TestTelegramAuth_AnonymousWithoutHeaderOrVerifier(t *testing.T) {
	var seen *domain.Identity

	r := newAuthRouter(&stubVerifier{err: errors.New("must not be called")}, &seen)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusOK || seen != nil {
		t.Fatalf("missing header: code=%d identity=%+v", w.Code, seen)
	}

	r = newAuthRouter(nil, &seen)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderInitData, "anything")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != nil {
		t.Fatalf("nil verifier: code=%d identity=%+v", w.Code, seen)
	}
}

func TestTelegramAuth_InvalidIs401(t *testing.T) {
	var seen *domain.Identity
	r := newAuthRouter(&stubVerifier{err: errors.New("bad hash")}, &seen)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderInitData, "hash=00")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "unauthorized" {
		t.Fatalf("unexpected body: %v", body)
	}
	if seen != nil {
		t.Fatalf("handler must not run")
	}
}
