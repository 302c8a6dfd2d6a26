// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, persistence, the LLM collaborator, Telegram Mini-App
// identity, conversation history bounds, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS and the
// origins allowed to embed the Mini-App in a frame.
type SecurityConfig struct {
	EnableHSTS     bool
	HSTSMaxAge     time.Duration
	FrameAncestors []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "cbo-bro-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
	Environment string  // DEPLOYMENT_ENV (e.g. "production")
}

// LLMConfig holds the settings of the Anthropic Messages API collaborator.
// An empty APIKey switches the chat to the canned responder.
type LLMConfig struct {
	APIKey      string        // ANTHROPIC_API_KEY
	BaseURL     string        // ANTHROPIC_API_URL
	Model       string        // LLM_MODEL
	MaxTokens   int           // LLM_MAX_TOKENS
	Temperature float64       // LLM_TEMPERATURE in [0..1]
	Timeout     time.Duration // LLM_TIMEOUT
}

// Enabled reports whether a credential is configured.
func (c LLMConfig) Enabled() bool { return strings.TrimSpace(c.APIKey) != "" }

// TelegramConfig controls verification of Mini-App initData.
type TelegramConfig struct {
	BotToken       string        // TELEGRAM_BOT_TOKEN
	InitDataMaxAge time.Duration // TELEGRAM_INIT_DATA_MAX_AGE (0 disables the age check)
}

// HistoryConfig bounds the per-identity LLM context.
type HistoryConfig struct {
	MaxEntries int           // HISTORY_MAX_ENTRIES
	TTL        time.Duration // HISTORY_TTL
}

// RedisConfig selects the shared history store. Empty Addr keeps history in process.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 90s (LLM calls are slow)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence. An empty DBPath runs the service without a store.
	DBPath string

	// Chat
	MaxPromptRunes    int           // MAX_PROMPT_RUNES
	SessionTTL        time.Duration // SESSION_TTL
	TrackMetrics      bool          // TRACK_METRICS
	MetricScaleStrict bool          // METRIC_SCALE_STRICT

	LLM      LLMConfig
	Telegram TelegramConfig
	History  HistoryConfig
	Redis    RedisConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL  time.Duration // how long a given Idempotency-Key is valid
	CleanupInterval time.Duration // how often expired idempotency rows are purged

	// Observability
	OTEL OTELConfig
}

// PersistenceEnabled reports whether a database path is configured.
func (c Config) PersistenceEnabled() bool { return strings.TrimSpace(c.DBPath) != "" }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath: strings.TrimSpace(os.Getenv("DB_PATH")),

		MaxPromptRunes:    getint("MAX_PROMPT_RUNES", 4000),
		SessionTTL:        getdur("SESSION_TTL", 2*time.Hour),
		TrackMetrics:      getbool("TRACK_METRICS", true),
		MetricScaleStrict: getbool("METRIC_SCALE_STRICT", false),

		LLM: LLMConfig{
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     getenv("ANTHROPIC_API_URL", "https://api.anthropic.com"),
			Model:       getenv("LLM_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:   getint("LLM_MAX_TOKENS", 4096),
			Temperature: getfloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getdur("LLM_TIMEOUT", 60*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
			InitDataMaxAge: getdur("TELEGRAM_INIT_DATA_MAX_AGE", 24*time.Hour),
		},
		History: HistoryConfig{
			MaxEntries: getint("HISTORY_MAX_ENTRIES", 20),
			TTL:        getdur("HISTORY_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getint("REDIS_DB", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 2.0),
		RateBurst: getint("RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:     getbool("ENABLE_HSTS", false),
			HSTSMaxAge:     getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			FrameAncestors: splitCSV(getenv("FRAME_ANCESTORS", "https://web.telegram.org")),
		},

		// Idempotency
		IdempotencyTTL:  getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		CleanupInterval: getdur("CLEANUP_INTERVAL", time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "cbo-bro-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
			Environment: getenv("DEPLOYMENT_ENV", "development"),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxPromptRunes <= 0 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be > 0")
	}
	if cfg.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.LLM.BaseURL == "" {
		return cfg, errors.New("ANTHROPIC_API_URL must not be empty")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return cfg, errors.New("LLM_MAX_TOKENS must be > 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		return cfg, errors.New("LLM_TEMPERATURE must be between 0 and 1")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if cfg.Telegram.InitDataMaxAge < 0 {
		return cfg, errors.New("TELEGRAM_INIT_DATA_MAX_AGE must be >= 0")
	}
	if cfg.History.MaxEntries < 2 {
		return cfg, errors.New("HISTORY_MAX_ENTRIES must be >= 2")
	}
	if cfg.History.TTL <= 0 {
		return cfg, errors.New("HISTORY_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.CleanupInterval <= 0 {
		return cfg, errors.New("CLEANUP_INTERVAL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
