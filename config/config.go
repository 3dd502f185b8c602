package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultRoomID is the single room every participant joins unless ROOM_ID says otherwise.
const DefaultRoomID = "main-room"

type Config struct {
	Port                 string
	Environment          string
	LogLevel             string
	AllowedOrigins       []string
	JWTSecret            string
	RoomID               string
	MaxParticipants      int
	PrivilegedIdentities []string
	Redis                RedisConfig
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the host:port pair go-redis dials.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	origins := splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:       origins,
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production"),
		RoomID:               getEnv("ROOM_ID", DefaultRoomID),
		MaxParticipants:      getEnvInt("MAX_PARTICIPANTS", 8),
		PrivilegedIdentities: splitList(getEnv("PRIVILEGED_IDENTITIES", "")),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "true") == "true",
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// IsPrivileged reports whether identity may issue admin commands.
func (c *Config) IsPrivileged(identity string) bool {
	for _, id := range c.PrivilegedIdentities {
		if id == identity {
			return true
		}
	}
	return false
}

// ParseLogLevel maps LOG_LEVEL onto a zerolog level, falling back to info.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
