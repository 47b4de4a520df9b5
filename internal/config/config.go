// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage backends, duplicate-guard windows,
// authentication, rate limiting, and observability.
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

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-production-goals")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and tunes the relational store.
type DBConfig struct {
	Driver       string // DB_DRIVER: sqlite|mysql|postgres
	Path         string // DB_PATH (sqlite)
	DSN          string // DB_DSN (mysql, postgres)
	MaxOpenConns int    // DB_MAX_OPEN_CONNS
	LogSQL       bool   // DB_LOG_SQL
}

// CacheConfig selects the short-lived idempotency marker store.
type CacheConfig struct {
	Backend       string // CACHE_BACKEND: memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// GoalsConfig holds the duplicate-guard windows and retention knobs.
type GoalsConfig struct {
	DuplicateWindow        time.Duration // exact (user, part, qty) resubmission guard
	EditDuplicateWindow    time.Duration // same-value edit guard
	AuditKeep              int           // processed keys kept per (user, kind)
	RecentCompletionWindow time.Duration // "recently completed" status window
}

// AuthConfig defines bearer token verification.
type AuthConfig struct {
	JWTSecret string
	Disabled  bool // trust X-User-ID instead of a token (development only)
}

// KafkaConfig defines where goal-completed events are published.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB    DBConfig
	Cache CacheConfig

	// Domain
	Goals GoalsConfig
	Auth  AuthConfig
	Kafka KafkaConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // lifetime of a claimed idempotency key in the cache

	// Observability
	OTEL OTELConfig
}

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: loadDB(),
		Cache: CacheConfig{
			Backend:       strings.ToLower(getenv("CACHE_BACKEND", "memory")),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
		},

		// Domain
		Goals: GoalsConfig{
			DuplicateWindow:        getdur("DUPLICATE_WINDOW", 10*time.Second),
			EditDuplicateWindow:    getdur("EDIT_DUPLICATE_WINDOW", 3*time.Second),
			AuditKeep:              getint("AUDIT_KEEP", 100),
			RecentCompletionWindow: getdur("RECENT_COMPLETION_WINDOW", 14*24*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			Disabled:  getbool("AUTH_DISABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "goals.completed"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 60*time.Second),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-production-goals"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
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
	if err := cfg.DB.validate(); err != nil {
		return cfg, err
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			return cfg, errors.New("REDIS_ADDR must not be empty")
		}
	default:
		return cfg, errors.New("CACHE_BACKEND must be one of: memory, redis")
	}
	if cfg.Goals.DuplicateWindow <= 0 || cfg.Goals.EditDuplicateWindow <= 0 || cfg.Goals.RecentCompletionWindow <= 0 {
		return cfg, errors.New("duplicate and completion windows must be positive durations")
	}
	if cfg.Goals.AuditKeep < 1 {
		return cfg, errors.New("AUDIT_KEEP must be >= 1")
	}
	if !cfg.Auth.Disabled && strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if len(cfg.Kafka.Brokers) > 0 && strings.TrimSpace(cfg.Kafka.Topic) == "" {
		return cfg, errors.New("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
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
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// LoadDB reads and validates only the database settings. Maintenance
// commands use it so they run without the server's auth configuration.
func LoadDB() (DBConfig, error) {
	db := loadDB()
	return db, db.validate()
}

func loadDB() DBConfig {
	return DBConfig{
		Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		Path:         getenv("DB_PATH", "goals.db"),
		DSN:          getenv("DB_DSN", ""),
		MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
		LogSQL:       getbool("DB_LOG_SQL", false),
	}
}

func (db DBConfig) validate() error {
	switch db.Driver {
	case "sqlite":
		if strings.TrimSpace(db.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "mysql", "postgres":
		if strings.TrimSpace(db.DSN) == "" {
			return errors.New("DB_DSN is required for " + db.Driver)
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, mysql, postgres")
	}
	if db.MaxOpenConns < 1 {
		return errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	return nil
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
