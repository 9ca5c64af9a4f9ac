package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	MigrationsDir string

	// Redis (optional, enables cross-instance fan-out)
	RedisURL string

	// External workflow
	WorkflowWebhookURL string
	WorkflowTimeout    time.Duration

	// Mentor auth (optional)
	MentorJWTSecret string

	// Auto-unlock sweep (optional)
	AutoUnlockCron  string
	AutoUnlockAfter time.Duration

	// HTTP
	AllowedOrigins     []string
	RateLimitPerMinute int

	// Logging
	LogLevel  string
	LogFormat string
}

var ErrMissingDatabaseURL = errors.New("required environment variable DATABASE_URL is not set")

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:               v.GetString("PORT"),
		Env:                strings.ToLower(v.GetString("ENV")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMaxConns:         v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:         v.GetInt32("DB_MIN_CONNS"),
		MigrationsDir:      v.GetString("MIGRATIONS_DIR"),
		RedisURL:           v.GetString("REDIS_URL"),
		WorkflowWebhookURL: v.GetString("N8N_WEBHOOK_URL"),
		WorkflowTimeout:    parseDuration(v.GetString("WORKFLOW_TIMEOUT"), 5*time.Second),
		MentorJWTSecret:    v.GetString("MENTOR_JWT_SECRET"),
		AutoUnlockCron:     v.GetString("AUTO_UNLOCK_CRON"),
		AutoUnlockAfter:    parseDuration(v.GetString("AUTO_UNLOCK_AFTER"), 24*time.Hour),
		AllowedOrigins:     splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		cfg.DBMinConns = cfg.DBMaxConns
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("DB_MAX_CONNS", 15)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("WORKFLOW_TIMEOUT", "5s")
	v.SetDefault("AUTO_UNLOCK_AFTER", "24h")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// AllowsAnyOrigin reports whether CORS and websocket origin checks are disabled.
func (c *Config) AllowsAnyOrigin() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
