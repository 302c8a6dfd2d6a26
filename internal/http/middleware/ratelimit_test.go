package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if key := KeyByUserOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip-based key, got %q", key)
	}
	WithIdentity(c, domain.Identity{TelegramID: 42})
	if key := KeyByUserOrIP()(c); key != "user:tg:42" {
		t.Fatalf("expected identity-based key, got %q", key)
	}
}

func TestNewRateLimiter_BurstCoercion_AndReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if got := rl.getVisitor("k1"); got != lim {
		t.Fatalf("expected the same limiter to be reused")
	}
}

func TestRateLimiter_getVisitor_EvictsIdle(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle bucket should have been evicted")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatalf("requested bucket should exist")
	}
}

func TestRateLimiter_Handler_AllowDenyAndBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	denied := rateLimited.WithLabelValues("user")
	base := testutil.ToFloat64(denied)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-1")
		WithIdentity(c, domain.Identity{TelegramID: 7})
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := testutil.ToFloat64(denied); got != base+1 {
		t.Fatalf("rate_limited{user} = %v; want %v", got, base+1)
	}

	bypass := gin.New()
	bypass.Use(func(c *gin.Context) {
		WithIdentity(c, domain.Identity{TelegramID: 7})
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	})
	bypass.Use(rl.Handler())
	bypass.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w = httptest.NewRecorder()
	bypass.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("replay should bypass the limiter, got %d", w.Code)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatalf("expected false by default")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool value must read as false")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected true when set")
	}
}
