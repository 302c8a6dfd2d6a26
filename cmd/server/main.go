// Command server runs the CBO Bro Telegram Mini-App backend.
//
// @title       CBO Bro API
// @version     1.0
// @description Chat sessions, conversation history, business insights and flow tracking.
// @BasePath    /api/v1
// @securityDefinitions.apikey TelegramInitData
// @in   header
// @name X-Telegram-Init-Data
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/cbo-bro-backend/docs"
	"github.com/tbourn/cbo-bro-backend/internal/config"
	httpapi "github.com/tbourn/cbo-bro-backend/internal/http"
	"github.com/tbourn/cbo-bro-backend/internal/jobs"
	"github.com/tbourn/cbo-bro-backend/internal/llm"
	"github.com/tbourn/cbo-bro-backend/internal/observability"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/services"
	"github.com/tbourn/cbo-bro-backend/internal/sysutil"
	"github.com/tbourn/cbo-bro-backend/internal/telegram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.InitLogging(cfg.OTEL.ServiceName, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version, "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	deps := httpapi.Deps{}

	var scheduler *jobs.Scheduler
	if cfg.PersistenceEnabled() {
		db := mustOpenDB(cfg.DBPath)
		deps.DB = db

		scheduler, err = jobs.NewScheduler(db, cfg.CleanupInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler setup failed")
		}
		scheduler.Start()
	} else {
		log.Warn().Msg("DB_PATH not set; running without persistence")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup")
		}
		cancel()
		deps.History = services.NewRedisHistory(rdb, cfg.History.MaxEntries, cfg.History.TTL)
	}

	if cfg.LLM.Enabled() {
		deps.LLM = llm.New(cfg.LLM)
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set; answering with canned responses")
	}

	if cfg.Telegram.BotToken != "" {
		deps.Verifier = telegram.NewVerifier(cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge)
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set; all requests are anonymous")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Bool("persistence", deps.DB != nil).
			Bool("llm", deps.LLM != nil).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown")
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if deps.DB != nil {
		closeDB(deps.DB)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

func mustOpenDB(path string) *gorm.DB {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	return db
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
