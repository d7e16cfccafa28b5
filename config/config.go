// Package config provides configuration for the chat core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat core configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Provider settings
	GeminiAPIKey string
	DefaultModel string

	// Cloud sync
	FirebaseURL string

	// Timeouts
	ProviderTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:antigravity.db?cache=shared&mode=rwc"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gemini-2.0-flash"),
		FirebaseURL:     getEnv("FIREBASE_URL", "https://antigravity-sync-c07bf-default-rtdb.firebaseio.com"),
		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_MS", 120000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
