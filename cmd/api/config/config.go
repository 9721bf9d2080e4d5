package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	RuntimeURL           string
	RuntimeToken         string
	JwtSecret            string
	MaxConcurrentUploads int
	MessageTTLSeconds    int
	AuthTimeoutSeconds   int
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8090"),
		RuntimeURL:           getEnv("RUNTIME_URL", "http://localhost:8080"),
		RuntimeToken:         getEnv("RUNTIME_TOKEN", ""),
		JwtSecret:            getEnv("JWT_SECRET", ""),
		MaxConcurrentUploads: getEnvInt("MAX_CONCURRENT_UPLOADS", 3),
		MessageTTLSeconds:    getEnvInt("MESSAGE_TTL_SECONDS", 6),
		AuthTimeoutSeconds:   getEnvInt("AUTH_TIMEOUT_SECONDS", 10),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
