// internal/config/config.go
package config

import (
	"os"
	"strconv"
)

// Config stores the application configuration, loaded from environment
// variables (cmd/server loads .env via godotenv first).
type Config struct {
	Port    string
	DataDir string

	MongoURI string
	MongoDB  string

	LLMProvider string
	LLMConfig   map[string]string

	GeminiAPIKey      string
	EmbedDimension    int
	SemanticIndexPath string

	DebugMode bool
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", "8080"),
		DataDir:           envOr("DATA_DIR", "data"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDB:           envOr("MONGODB_DB", "casesim"),
		LLMProvider:       envOr("LLM_PROVIDER", "openai"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		EmbedDimension:    envIntOr("EMBED_DIMENSION", 768),
		SemanticIndexPath: envOr("SEMANTIC_INDEX_PATH", "data/semantic/index.db"),
		DebugMode:         envBool("DEBUG_MODE"),
	}

	cfg.LLMConfig = map[string]string{
		"api_key":       os.Getenv("OPENAI_API_KEY"),
		"default_model": os.Getenv("LLM_MODEL"),
		"base_url":      os.Getenv("LLM_BASE_URL"),
	}
	if cfg.LLMProvider == "google" {
		cfg.LLMConfig["api_key"] = cfg.GeminiAPIKey
		if cfg.LLMConfig["default_model"] == "" {
			cfg.LLMConfig["default_model"] = envOr("GEMINI_MODEL", "gemini-2.5-flash")
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string) bool {
	value := os.Getenv(key)
	return value == "1" || value == "true" || value == "yes"
}
