// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Online modes: what "online" means in the broadcast frame.
const (
	// OnlineModePresence counts subjects with a recent heartbeat.
	OnlineModePresence = "presence"
	// OnlineModeConnections counts currently attached stream subscribers.
	OnlineModeConnections = "connections"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port         string
	RedisURL     string
	DatabasePath string

	PresenceTTLSeconds     int64
	ActiveThresholdSeconds int64
	BroadcastInterval      time.Duration
	TopScopesLimit         int
	ScopeBreakdown         bool
	OnlineMode             string

	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
}

// Load reads configuration from environment variables, using defaults where not set.
// An empty REDIS_URL selects the in-process store; an empty DATABASE_PATH disables
// the durable pageview ledger.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		RedisURL:     getEnv("REDIS_URL", ""),
		DatabasePath: getEnv("DATABASE_PATH", "./pulsewatch.db"),

		PresenceTTLSeconds:     getInt64Env("PRESENCE_TTL_SECONDS", 60),
		ActiveThresholdSeconds: getInt64Env("ACTIVE_THRESHOLD_SECONDS", 300),
		BroadcastInterval:      getDurationEnv("BROADCAST_INTERVAL_SECONDS", 2*time.Second),
		TopScopesLimit:         getIntEnv("TOP_SCOPES_LIMIT", 10),
		ScopeBreakdown:         getBoolEnv("SCOPE_BREAKDOWN", true),
		OnlineMode:             getOnlineMode(),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{
			"https://solar-system-82998.bubbleapps.io",
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		TrustedProxies: getStringSliceEnv("TRUSTED_PROXIES", nil),
	}
}

func getOnlineMode() string {
	switch strings.ToLower(os.Getenv("ONLINE_MODE")) {
	case OnlineModeConnections:
		return OnlineModeConnections
	default:
		return OnlineModePresence
	}
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Plain integers are read as seconds, matching the original deployment's env.
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
