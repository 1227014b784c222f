package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Admin auth
	AdminToken     string
	AdminTokenHash string
	JWTSecret      string
	JWTAdminExpiry time.Duration

	// Rate limiting (REDIS_URL empty = in-memory)
	RedisURL        string
	StatusRateLimit int

	// Observability
	SentryDSN string
	AppEnv    string
	LogLevel  string

	// Server
	Port        string
	CORSOrigins string
}

// BuildTrialSalt is injected at build time:
//
//	go build -ldflags "-X github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config.BuildTrialSalt=..."
//
// TRIAL_SALT overrides it.
var BuildTrialSalt string

var ErrMissingTrialSalt = errors.New("trial salt is not configured: set TRIAL_SALT or build with -X config.BuildTrialSalt")

// ClientConfig holds the settings of the device-side resolver.
type ClientConfig struct {
	BackendURL   string
	TrialSalt    string
	CacheSecret  string
	StatePath    string
	Timeout      time.Duration
	OfflineGrace time.Duration
}

// Load reads server configuration from the environment. A .env file in the
// working directory is loaded first if present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "entitlement_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AdminToken:     getEnv("ADMIN_TOKEN", ""),
		AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTAdminExpiry: parseDuration(getEnv("JWT_ADMIN_EXPIRY", "1h"), time.Hour),

		RedisURL:        getEnv("REDIS_URL", ""),
		StatusRateLimit: getEnvInt("STATUS_RATE_LIMIT", 60),

		SentryDSN: getEnv("SENTRY_DSN", ""),
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

// LoadClient reads device-side configuration from the environment.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	return &ClientConfig{
		BackendURL:   getEnv("ENTITLEMENT_BACKEND_URL", "http://localhost:8080/"),
		TrialSalt:    getEnv("TRIAL_SALT", BuildTrialSalt),
		CacheSecret:  getEnv("VERDICT_CACHE_SECRET", ""),
		StatePath:    getEnv("ENTITLEMENT_STATE_PATH", "entitlement_state.json"),
		Timeout:      parseDuration(getEnv("ENTITLEMENT_TIMEOUT", "15s"), 15*time.Second),
		OfflineGrace: parseDuration(getEnv("OFFLINE_GRACE", "24h"), 24*time.Hour),
	}
}

// RequireTrialSalt refuses to fingerprint without a salt.
func (c *ClientConfig) RequireTrialSalt() error {
	if c.TrialSalt == "" {
		return ErrMissingTrialSalt
	}
	return nil
}

// HasAdminAuth reports whether any admin credential is configured.
func (c *Config) HasAdminAuth() bool {
	return c.AdminToken != "" || c.AdminTokenHash != "" || c.JWTSecret != ""
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
