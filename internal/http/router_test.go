package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cbo-bro-backend/internal/config"
	"github.com/tbourn/cbo-bro-backend/internal/http/middleware"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/telegram"
)

const testBotToken = "123456:TEST-TOKEN"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      100,
		MaxPromptRunes: 4000,
		SessionTTL:     time.Hour,
		TrackMetrics:   true,
		IdempotencyTTL: time.Hour,
		History:        config.HistoryConfig{MaxEntries: 20, TTL: time.Hour},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func initData(t *testing.T, tgID int64, first string) string {
	t.Helper()
	user, _ := json.Marshal(map[string]any{"id": tgID, "first_name": first})
	vals := url.Values{}
	vals.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	vals.Set("user", string(user))
	return telegram.Sign(vals, testBotToken)
}

func send(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, testConfig(), Deps{})

	w := send(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"persistence":false`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = send(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = send(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("NoRoute: %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodDelete, "/api/v1/sessions", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("NoMethod: %d", w.Code)
	}
}

func TestRegisterRoutes_NoStorage_AnonymousChatStillAnswers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, testConfig(), Deps{})

	w := send(r, http.MethodPost, "/api/v1/sessions/s-anon/messages", `{"content":"help"}`, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "CBO Bro") {
		t.Fatalf("anonymous chat: %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodPost, "/api/v1/insights/analyze", `{"message":"we are burning cash"}`, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Cash Flow Crunch") {
		t.Fatalf("analyze: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_InvalidInitDataIs401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, testConfig(), Deps{Verifier: telegram.NewVerifier(testBotToken, time.Hour)})

	hdr := map[string]string{middleware.HeaderInitData: "user=%7B%22id%22%3A1%7D&hash=deadbeef"}
	w := send(r, http.MethodPost, "/api/v1/sessions", `{}`, hdr)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRegisterRoutes_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, testConfig(), Deps{DB: db, Verifier: telegram.NewVerifier(testBotToken, time.Hour)})

	auth := map[string]string{middleware.HeaderInitData: initData(t, 4242, "Ada")}

	// Session init creates the user and opens a conversation.
	w := send(r, http.MethodPost, "/api/v1/sessions", `{"session_id":"s-1"}`, auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"conversation_open"`) {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}

	// Chat with idempotency.
	idemHdr := map[string]string{middleware.HeaderInitData: auth[middleware.HeaderInitData], "Idempotency-Key": "k-1"}
	first := send(r, http.MethodPost, "/api/v1/sessions/s-1/messages", `{"content":"How do I grow revenue?"}`, idemHdr)
	if first.Code != http.StatusOK || strings.Contains(first.Body.String(), `"is_error":true`) {
		t.Fatalf("chat: %d %s", first.Code, first.Body.String())
	}
	second := send(r, http.MethodPost, "/api/v1/sessions/s-1/messages", `{"content":"How do I grow revenue?"}`, idemHdr)
	if second.Header().Get("Idempotency-Replayed") != "true" || second.Body.String() != first.Body.String() {
		t.Fatalf("replay: %v %s", second.Header(), second.Body.String())
	}

	// The turn was stored once: one user and one assistant message.
	w = send(r, http.MethodGet, "/api/v1/conversations", "", auth)
	var convs struct {
		Conversations []struct {
			ID    string  `json:"id"`
			Topic *string `json:"topic"`
		} `json:"conversations"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &convs)
	if w.Code != http.StatusOK || len(convs.Conversations) != 1 {
		t.Fatalf("conversations: %d %s", w.Code, w.Body.String())
	}
	convID := convs.Conversations[0].ID
	if convs.Conversations[0].Topic == nil {
		t.Fatalf("assistant turn should set the topic")
	}

	path := "/api/v1/conversations/" + convID + "/messages"
	w = send(r, http.MethodGet, path, "", auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":2`) {
		t.Fatalf("messages: %d %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = send(r, http.MethodGet, path, "", map[string]string{middleware.HeaderInitData: auth[middleware.HeaderInitData], "If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// Another user cannot read the conversation.
	other := map[string]string{middleware.HeaderInitData: initData(t, 7, "Bob")}
	_ = send(r, http.MethodPost, "/api/v1/sessions", `{"session_id":"s-2"}`, other)
	w = send(r, http.MethodGet, path, "", other)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign conversation: %d", w.Code)
	}

	// Recorder endpoints.
	w = send(r, http.MethodPost, "/api/v1/insights", `{"insight_type":"opportunity","category":"value","title":"Upsell","impact":"medium"}`, auth)
	if w.Code != http.StatusCreated {
		t.Fatalf("create insight: %d %s", w.Code, w.Body.String())
	}
	w = send(r, http.MethodGet, "/api/v1/users/me/summary", "", auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_insights":1`) {
		t.Fatalf("summary: %d %s", w.Code, w.Body.String())
	}
	w = send(r, http.MethodPatch, "/api/v1/users/me", `{"business_stage":"seed"}`, auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"business_stage":"seed"`) {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}

	// Unknown Telegram user has no stored profile yet.
	stranger := map[string]string{middleware.HeaderInitData: initData(t, 999, "Eve")}
	w = send(r, http.MethodGet, "/api/v1/insights", "", stranger)
	if w.Code != http.StatusNotFound {
		t.Fatalf("stranger: %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowlist_FrameAncestors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://web.telegram.org"}}
	cfg.Security = config.SecurityConfig{FrameAncestors: []string{"https://web.telegram.org"}}
	RegisterRoutes(r, cfg, Deps{})

	w := send(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://web.telegram.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://web.telegram.org" {
		t.Fatalf("allowlisted origin not echoed: %q", got)
	}
	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "frame-ancestors 'self' https://web.telegram.org") {
		t.Fatalf("CSP=%q", csp)
	}
	if w.Header().Get("X-Frame-Options") != "" {
		t.Fatalf("X-Frame-Options must be omitted when framing is allowed")
	}

	w = send(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected ACAO for foreign origin: %q", got)
	}
}
