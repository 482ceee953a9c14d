package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	JWTSecret    string

	// Retrieval pipeline tunables
	ChunkMaxLength int
	MaxChunks      int
	SimThreshold   float64
	TopK           int

	// Free-tier quota limits
	FreeConversationLimit int
	FreeMessageLimit      int

	// Admission control
	RateLimitPerMinute int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "policy_agent.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		ChunkMaxLength: getEnvAsInt("CHUNK_MAX_LENGTH", 2000),
		MaxChunks:      getEnvAsInt("MAX_CHUNKS", 10),
		SimThreshold:   getEnvAsFloat("SIM_THRESHOLD", 0.85),
		TopK:           getEnvAsInt("TOP_K", 3),

		FreeConversationLimit: getEnvAsInt("FREE_CONVERSATION_LIMIT", 1),
		FreeMessageLimit:      getEnvAsInt("FREE_MESSAGE_LIMIT", 10),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
