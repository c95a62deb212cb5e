// Package config reads service configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds everything outside the database layer, which reads its own
// DB_* variables.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	MongoURI      string
	MongoDatabase string
}

// Load reads configuration with local-development defaults.
func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", "supersecret"),
		TokenTTL:      getDuration("TOKEN_TTL", 24*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		CacheTTL:      getDuration("CACHE_TTL", 30*time.Second),
		MongoURI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGO_DB", "escrowd"),
	}
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger builds a slog logger matching the configuration: JSON output in
// production, text otherwise.
func (c Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
