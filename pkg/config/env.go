package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int or a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool returns the value of an environment variable as a bool or a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration or a default value
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// RequireEnv returns the value of an environment variable or exits if not set
func RequireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		logrus.Fatalf("Required environment variable %s is not set", key)
	}
	return value
}

// GetLogLevel parses LOG_LEVEL into a logrus level, defaulting to info
func GetLogLevel() logrus.Level {
	levelStr := GetEnv("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// LoadEnv loads .env files if present. Later files never override earlier
// values already set in the environment proper.
func LoadEnv() {
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Overload(file)
		}
	}
}
