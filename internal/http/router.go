// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// Telegram identity, idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/config"
	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/http/handlers"
	"github.com/tbourn/cbo-bro-backend/internal/http/middleware"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/services"
	"github.com/tbourn/cbo-bro-backend/internal/signals"
)

// sessionRepoShim adapts the repository free functions to the
// services.SessionRepo interface expected by the SessionService.
type sessionRepoShim struct{}

// GetOrCreateUser proxies repo.GetOrCreateUser.
func (sessionRepoShim) GetOrCreateUser(ctx context.Context, db *gorm.DB, id domain.Identity) (*domain.User, error) {
	return repo.GetOrCreateUser(ctx, db, id)
}

// GetActiveConversation proxies repo.GetActiveConversation.
func (sessionRepoShim) GetActiveConversation(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Conversation, error) {
	return repo.GetActiveConversation(ctx, db, sessionID)
}

// CreateConversation proxies repo.CreateConversation.
func (sessionRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, sessionID)
}

// CreateMessage proxies repo.CreateMessage.
func (sessionRepoShim) CreateMessage(ctx context.Context, db *gorm.DB, in repo.NewMessage) (*domain.Message, error) {
	return repo.CreateMessage(ctx, db, in)
}

// UpdateConversation proxies repo.UpdateConversation.
func (sessionRepoShim) UpdateConversation(ctx context.Context, db *gorm.DB, id string, patch repo.ConversationPatch) error {
	return repo.UpdateConversation(ctx, db, id, patch)
}

// idempotencyStore persists chat replies for replay through the repo.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) Lookup(ctx context.Context, userKey, sessionID, key string) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userKey, sessionID, key, time.Now().UTC())
}

// Save ignores a concurrent duplicate; the first stored reply wins.
func (s idempotencyStore) Save(ctx context.Context, userKey, sessionID, key string, status int, body []byte) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userKey, sessionID, key, string(body), status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// exists is the middleware view of the store.
func (s idempotencyStore) exists(ctx context.Context, userKey, sessionID, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userKey, sessionID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return rec != nil, err
}

// Deps carries the collaborators built by the caller. Zero values degrade
// gracefully: a nil DB disables persistence, a nil History keeps history in
// process, a nil LLM answers with the canned responder and a nil Verifier
// serves every request anonymously.
type Deps struct {
	DB       *gorm.DB
	History  services.HistoryStore
	LLM      services.Completer
	Verifier middleware.InitDataVerifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with header masking and query scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Telegram identity (idempotency and rate limiting key on it)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS, security headers and compression
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	var idem *idempotencyStore
	if deps.DB != nil {
		idem = &idempotencyStore{db: deps.DB, ttl: cfg.IdempotencyTTL}
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Telegram Mini-App identity
	r.Use(middleware.TelegramAuth(deps.Verifier))

	// 8) Idempotency validation (before rate limiting)
	var lookup middleware.IdempotencyLookup
	if idem != nil {
		lookup = idem.exists
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderInitData, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	methods := []string{"GET", "POST", "PATCH", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		NoStore:        false,
		EnablePolicy:   true,
		FrameAncestors: cfg.Security.FrameAncestors,
	}))

	// Response compression; Prometheus negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"persistence": deps.DB != nil,
			"llm":         deps.LLM != nil,
		})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/history/llm
	ex := signals.NewExtractor(signals.DefaultVocabulary(), signals.WithStrictScale(cfg.MetricScaleStrict))
	history := deps.History
	if history == nil {
		history = services.NewMemoryHistory(cfg.History.MaxEntries, cfg.History.TTL)
	}
	sessions := services.NewSessionService(deps.DB, sessionRepoShim{}, ex, cfg.SessionTTL)
	recorder := services.NewRecorderService(deps.DB, ex)
	chat := services.NewChatService(sessions, recorder, history, deps.LLM)
	if cfg.MaxPromptRunes > 0 {
		chat.MaxPromptRunes = cfg.MaxPromptRunes
	}
	chat.TrackMetrics = cfg.TrackMetrics

	var store handlers.IdempotencyStore
	if idem != nil {
		store = idem
	}
	h := handlers.New(sessions, chat, recorder, store).WithExtractor(ex)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Sessions and chat
		api.POST("/sessions", h.CreateSession)
		api.POST("/sessions/:id/messages", h.PostMessage)

		// Conversations
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)

		// Users
		api.GET("/users/me", h.GetMe)
		api.PATCH("/users/me", h.UpdateMe)
		api.GET("/users/me/summary", h.GetSummary)

		// Insights
		api.POST("/insights", h.CreateInsight)
		api.GET("/insights", h.ListInsights)
		api.PATCH("/insights/:id/status", h.UpdateInsightStatus)
		api.POST("/insights/analyze", h.AnalyzeMessage)
		api.GET("/insights/recommendations", h.Recommendations)
		api.GET("/insights/follow-ups", h.FollowUps)

		// Tracking
		api.POST("/challenges", h.CreateChallenge)
		api.GET("/challenges", h.ListChallenges)
		api.POST("/metrics", h.RecordMetric)
		api.GET("/metrics/summary", h.MetricsSummary)
		api.POST("/patterns", h.TrackPattern)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
