package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port             string
	AuthToken        string
	ReadTimeoutSecs  int
	WriteTimeoutSecs int
	IdleTimeoutSecs  int

	DBURL             string
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	DBMigrateOnStart  bool

	AppEnv    string
	LogLevel  string
	LogFormat string

	RedisURL                string
	EventsChannel           string
	EventsWebhookURL        string
	EventsWebhookAPIKey     string
	EventsWebhookTimeoutSec int
	EventsBufferSize        int

	DefaultDisplayMode   string
	DefaultRealWeight    float64
	DefaultFakeWeight    float64
	RatingPrecision      int
	CategoryCacheTTLSecs int

	FeaturedIntervalSecs int
	FeaturedMinRealCount int
	FeaturedMinAverage   float64
	FeaturedMaxSize      int
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		AuthToken:        os.Getenv("AUTH_TOKEN"),
		ReadTimeoutSecs:  getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),

		DBURL:             os.Getenv("DB_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		DBMigrateOnStart:  getEnvBool("DB_MIGRATE_ON_START", true),

		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		RedisURL:                os.Getenv("REDIS_URL"),
		EventsChannel:           getEnv("EVENTS_CHANNEL", "ratings.committed"),
		EventsWebhookURL:        os.Getenv("EVENTS_WEBHOOK_URL"),
		EventsWebhookAPIKey:     os.Getenv("EVENTS_WEBHOOK_API_KEY"),
		EventsWebhookTimeoutSec: getEnvInt("EVENTS_WEBHOOK_TIMEOUT_SECS", 5),
		EventsBufferSize:        getEnvInt("EVENTS_BUFFER_SIZE", 1024),

		DefaultDisplayMode:   getEnv("DEFAULT_DISPLAY_MODE", string(domain.DisplayModeReal)),
		DefaultRealWeight:    getEnvFloat("DEFAULT_REAL_WEIGHT", 0.7),
		DefaultFakeWeight:    getEnvFloat("DEFAULT_FAKE_WEIGHT", 0.3),
		RatingPrecision:      getEnvInt("RATING_PRECISION", 1),
		CategoryCacheTTLSecs: getEnvInt("CATEGORY_CACHE_TTL_SECS", 300),

		FeaturedIntervalSecs: getEnvInt("FEATURED_INTERVAL_SECS", 300),
		FeaturedMinRealCount: getEnvInt("FEATURED_MIN_REAL_COUNT", 10),
		FeaturedMinAverage:   getEnvFloat("FEATURED_MIN_AVERAGE", 4.0),
		FeaturedMaxSize:      getEnvInt("FEATURED_MAX_SIZE", 10),
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.EventsWebhookURL != "" && cfg.EventsWebhookTimeoutSec <= 0 {
		return Config{}, fmt.Errorf("EVENTS_WEBHOOK_TIMEOUT_SECS must be positive")
	}
	if cfg.EventsBufferSize <= 0 {
		return Config{}, fmt.Errorf("EVENTS_BUFFER_SIZE must be positive")
	}
	if !domain.DisplayMode(cfg.DefaultDisplayMode).Valid() {
		return Config{}, fmt.Errorf("DEFAULT_DISPLAY_MODE must be one of real, fake, mixed, weighted")
	}
	if cfg.DefaultRealWeight < 0 || cfg.DefaultFakeWeight < 0 {
		return Config{}, fmt.Errorf("DEFAULT_REAL_WEIGHT and DEFAULT_FAKE_WEIGHT must be non-negative")
	}
	if cfg.RatingPrecision < 0 || cfg.RatingPrecision > 4 {
		return Config{}, fmt.Errorf("RATING_PRECISION must be between 0 and 4")
	}
	if cfg.FeaturedIntervalSecs <= 0 {
		return Config{}, fmt.Errorf("FEATURED_INTERVAL_SECS must be positive")
	}
	if cfg.FeaturedMinRealCount < 0 {
		return Config{}, fmt.Errorf("FEATURED_MIN_REAL_COUNT must be non-negative")
	}
	if cfg.FeaturedMaxSize <= 0 {
		return Config{}, fmt.Errorf("FEATURED_MAX_SIZE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
