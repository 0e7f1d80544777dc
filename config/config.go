package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log" // Use global logger
)

// Config holds all configuration fields for the application.
type Config struct {
	Port              string
	DatabaseURL       string
	JWTSecret         string
	GeminiBaseURL     string
	GeminiAPIKey      string
	GeminiModel       string
	RabbitMQURL       string
	RabbitQueuePrefix string
	LogLevel          string
	LogFormat         string // Controls log format (e.g., "console" or "json")
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, but don't fail if it's not present.
	// Environment variables take precedence.
	err := godotenv.Load()
	if err != nil {
		log.Info().Err(err).Msg("No .env file found or error loading it, relying on environment variables")
	} else {
		log.Info().Msg("Loaded configuration from .env file (if present)")
	}

	log.Info().Msg("Loading configuration from environment variables...")

	cfg := &Config{
		Port:              os.Getenv("PORT"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		GeminiBaseURL:     os.Getenv("GEMINI_BASE_URL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       os.Getenv("GEMINI_MODEL"),
		RabbitMQURL:       os.Getenv("RABBITMQ_URL"),
		RabbitQueuePrefix: os.Getenv("RABBITMQ_QUEUE_PREFIX"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         os.Getenv("LOG_FORMAT"),
	}

	if cfg.Port == "" {
		cfg.Port = "5000"
		log.Info().Str("port", cfg.Port).Msg("PORT not set, using default")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "botup.db"
		log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("DATABASE_URL not set, using default sqlite file")
	}
	if cfg.GeminiBaseURL == "" {
		cfg.GeminiBaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-pro"
	}
	if cfg.RabbitQueuePrefix == "" {
		cfg.RabbitQueuePrefix = "botup"
	}

	log.Info().Msg("Configuration loading attempt complete.")
	return cfg, nil
}
