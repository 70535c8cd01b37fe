package config

import (
	"showrunner/pkg/config"
	"showrunner/pkg/llm"
)

// Config stores environment configuration for Showrunner.
type Config struct {
	Port                string
	DatabaseURL         string
	VideoDBAPIURL       string
	VideoDBAPIKey       string
	DefaultCollectionID string
	MaxIterations       int
	Workers             int
	LLM                 llm.Config
}

// LoadConfig loads the Showrunner configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "18030"),
		DatabaseURL:         config.RequireEnv("DATABASE_URL"),
		VideoDBAPIURL:       config.GetEnv("VIDEODB_API_URL", "https://api.videodb.io"),
		VideoDBAPIKey:       config.RequireEnv("VIDEODB_API_KEY"),
		DefaultCollectionID: config.GetEnv("VIDEODB_COLLECTION_ID", "default"),
		MaxIterations:       config.GetEnvInt("REASONING_MAX_ITERATIONS", 10),
		Workers:             config.GetEnvInt("REASONING_WORKERS", 4),
		LLM:                 llm.LoadConfig(),
	}
}
