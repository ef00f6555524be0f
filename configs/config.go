package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port                   string
	Environment            string
	APIKey                 string
	AdminUsername          string
	AdminPassword          string
	OpenAIBaseURL          string
	OpenAIAPIKey           string
	OpenAIModel            string
	HistoricalDataPath     string
	ModelArtifactPath      string
	PromptsPath            string
	LowConfidenceThreshold float64
	Trends                 *TrendsConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		APIKey:                 getEnv("API_KEY", "default_secret_key"),
		AdminUsername:          getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:          getEnv("ADMIN_PASSWORD", ""),
		OpenAIBaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		HistoricalDataPath:     getEnv("HISTORICAL_DATA_PATH", "data/storico_predizioni.csv"),
		ModelArtifactPath:      getEnv("MODEL_PATH", "data/vendite_model.json"),
		PromptsPath:            getEnv("PROMPTS_PATH", "configs/prompts.yaml"),
		LowConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.7),
		Trends:                 LoadTrendsConfig(),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as bool with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
