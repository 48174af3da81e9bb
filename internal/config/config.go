// Package config provides configuration for the agent engine.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/cutline/orchestrator/internal/domain"
)

// Config holds the engine configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// UI gateway push target (empty disables pushing)
	UIGatewayURL string

	// Chat backends
	LocalLLMURL   string
	LocalLLMModel string
	CloudLLMURL   string
	CloudLLMModel string
	LLMAPIKey     string
	LLMTimeout    time.Duration
	PrivacyMode   domain.PrivacyMode

	// Execution
	ToolTimeout       time.Duration
	RecoveryBackoff   time.Duration
	HistoryWindow     int
	QualityThreshold  float64
	QualityIterations int

	// Workflow templates
	TemplateDir string

	// Logging
	LogLevel string
}

// Load loads configuration from a .env file (if present) and the
// environment.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}

	return &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:cutline.db?cache=shared&mode=rwc"),
		UIGatewayURL:      getEnv("UI_GATEWAY_URL", ""),
		LocalLLMURL:       getEnv("LOCAL_LLM_URL", "http://localhost:11434"),
		LocalLLMModel:     getEnv("LOCAL_LLM_MODEL", "llama3.1"),
		CloudLLMURL:       getEnv("CLOUD_LLM_URL", ""),
		CloudLLMModel:     getEnv("CLOUD_LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		PrivacyMode:       domain.PrivacyMode(getEnv("PRIVACY_MODE", string(domain.PrivacyModeLocalOnly))),
		ToolTimeout:       time.Duration(getEnvInt("TOOL_TIMEOUT_MS", 60000)) * time.Millisecond,
		RecoveryBackoff:   time.Duration(getEnvInt("RECOVERY_BACKOFF_BASE_MS", 500)) * time.Millisecond,
		HistoryWindow:     getEnvInt("HISTORY_WINDOW", 30),
		QualityThreshold:  getEnvFloat("QUALITY_PASS_THRESHOLD", 0.75),
		QualityIterations: getEnvInt("QUALITY_MAX_ITERATIONS", 2),
		TemplateDir:       getEnv("WORKFLOW_TEMPLATE_DIR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
