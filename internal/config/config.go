// Package config provides application configuration loaded from environment
// variables (optionally seeded from a .env file) with defaults and
// validation: server timeouts, logging, storage, authentication, caching,
// pagination, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines token signing and admin bootstrap.
type AuthConfig struct {
	JWTSecret  string        // JWT_SECRET, required
	JWTTTL     time.Duration // JWT_TTL
	JWTIssuer  string        // JWT_ISSUER
	AdminEmail string        // ADMIN_EMAIL: registering with it grants the admin role
}

// CacheConfig sizes the read-through cache.
type CacheConfig struct {
	TTL           time.Duration // CACHE_TTL, default entry lifetime
	MaxTTL        time.Duration // CACHE_MAX_TTL, cap on any entry
	Capacity      int           // CACHE_CAPACITY, total entries
	Shards        int           // CACHE_SHARDS
	SweepInterval time.Duration // CACHE_SWEEP_INTERVAL, 0 disables the janitor
}

// PageConfig bounds list endpoints.
type PageConfig struct {
	DefaultLimit int // PAGE_DEFAULT_LIMIT
	MaxLimit     int // PAGE_MAX_LIMIT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // grace period for in-flight requests
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	Auth  AuthConfig
	Cache CacheConfig
	Page  PageConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
	// Stricter per-IP buckets for /auth/login and /auth/register.
	AuthRateRPS   float64
	AuthRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL        time.Duration // how long a purchase Idempotency-Key is honored
	IdempotencyPurgeEvery time.Duration // how often expired keys are deleted; 0 disables

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

// Load seeds the environment from ENV_FILE (default ".env") when that file
// exists, then reads configuration from environment variables, applies
// defaults, normalizes values and validates the result. Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	if err := loadDotenv(getenv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "flashcards.db"),

		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			JWTTTL:     getdur("JWT_TTL", 24*time.Hour),
			JWTIssuer:  getenv("JWT_ISSUER", "flashcard-market"),
			AdminEmail: strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		},
		Cache: CacheConfig{
			TTL:           getdur("CACHE_TTL", 5*time.Minute),
			MaxTTL:        getdur("CACHE_MAX_TTL", time.Hour),
			Capacity:      getint("CACHE_CAPACITY", 10000),
			Shards:        getint("CACHE_SHARDS", 16),
			SweepInterval: getdur("CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Page: PageConfig{
			DefaultLimit: getint("PAGE_DEFAULT_LIMIT", 20),
			MaxLimit:     getint("PAGE_MAX_LIMIT", 100),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		AuthRateRPS:   getfloat("AUTH_RATE_RPS", 0.5),
		AuthRateBurst: getint("AUTH_RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:        getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurgeEvery: getdur("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "flashcard-market"),
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
	if cfg.Cache.MaxTTL > 0 && cfg.Cache.TTL > cfg.Cache.MaxTTL {
		cfg.Cache.TTL = cfg.Cache.MaxTTL
	}
	if cfg.Page.MaxLimit > 0 && cfg.Page.DefaultLimit > cfg.Page.MaxLimit {
		cfg.Page.DefaultLimit = cfg.Page.MaxLimit
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 || cfg.MaxBodyBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES and MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if len(strings.TrimSpace(cfg.Auth.JWTSecret)) < 16 {
		return errors.New("JWT_SECRET must be set to at least 16 characters")
	}
	if cfg.Auth.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be > 0")
	}
	if cfg.Cache.TTL <= 0 || cfg.Cache.MaxTTL <= 0 {
		return errors.New("CACHE_TTL and CACHE_MAX_TTL must be > 0")
	}
	if cfg.Cache.Capacity < 1 || cfg.Cache.Shards < 1 {
		return errors.New("CACHE_CAPACITY and CACHE_SHARDS must be >= 1")
	}
	if cfg.Cache.SweepInterval < 0 {
		return errors.New("CACHE_SWEEP_INTERVAL must be >= 0")
	}
	if cfg.Page.DefaultLimit < 1 || cfg.Page.MaxLimit < 1 {
		return errors.New("PAGE_DEFAULT_LIMIT and PAGE_MAX_LIMIT must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.AuthRateRPS < 0 {
		return errors.New("AUTH_RATE_RPS must be >= 0")
	}
	if cfg.AuthRateBurst < 1 {
		return errors.New("AUTH_RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.IdempotencyPurgeEvery < 0 {
		return errors.New("IDEMPOTENCY_PURGE_INTERVAL must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// loadDotenv applies path to the environment when it exists. A missing file
// is not an error; a malformed one is.
func loadDotenv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ---- helpers ----

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
		if t := strings.TrimSpace(p); t != "" {
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
