package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API, the task queue, and the
// retrieval pipeline.
type Config struct {
	Port string

	AuthToken string

	CORSAllowedOrigins []string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	InferenceBaseURL         string
	InferenceEnabled         bool
	InferenceModel           string
	InferenceEmbedModel      string
	InferenceTimeoutMS       int
	InferenceHealthTimeoutMS int
	InferenceMaxRetries      int
	InferenceRetryDelayMS    int
	InferenceRPS             float64

	ModelModeration string
	ModelSummary    string
	ModelQuiz       string
	ModelTags       string

	MaxConcurrentJobs int
	JobTimeoutMS      int
	JobTTLMinutes     int
	JobSweepMinutes   int

	SearchEnabled bool

	ChunkSizeChars    int
	ChunkOverlapChars int

	ResponseCacheTTLSeconds int
	ResponseCacheMaxEntries int
	PromptsDir              string

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		InferenceBaseURL:         getEnv("INFERENCE_BASE_URL", "http://localhost:11434"),
		InferenceEnabled:         getEnvBool("INFERENCE_ENABLED", true),
		InferenceModel:           getEnv("INFERENCE_MODEL", "llama3.1:8b"),
		InferenceEmbedModel:      getEnv("INFERENCE_EMBED_MODEL", "nomic-embed-text"),
		InferenceTimeoutMS:       getEnvInt("INFERENCE_TIMEOUT_MS", 120000),
		InferenceHealthTimeoutMS: getEnvInt("INFERENCE_HEALTH_TIMEOUT_MS", 5000),
		InferenceMaxRetries:      getEnvInt("INFERENCE_MAX_RETRIES", 2),
		InferenceRetryDelayMS:    getEnvInt("INFERENCE_RETRY_DELAY_MS", 1000),
		InferenceRPS:             getEnvFloat("INFERENCE_RPS", 10),

		ModelModeration: getEnv("MODEL_MODERATION", ""),
		ModelSummary:    getEnv("MODEL_SUMMARY", ""),
		ModelQuiz:       getEnv("MODEL_QUIZ", ""),
		ModelTags:       getEnv("MODEL_TAGS", ""),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
		JobTimeoutMS:      getEnvInt("JOB_TIMEOUT_MS", 180000),
		JobTTLMinutes:     getEnvInt("JOB_TTL_MINUTES", 60),
		JobSweepMinutes:   getEnvInt("JOB_SWEEP_MINUTES", 10),

		SearchEnabled: getEnvBool("SEARCH_ENABLED", true),

		ChunkSizeChars:    getEnvInt("CHUNK_SIZE_CHARS", 2000),
		ChunkOverlapChars: getEnvInt("CHUNK_OVERLAP_CHARS", 200),

		ResponseCacheTTLSeconds: getEnvInt("RESPONSE_CACHE_TTL_SECONDS", 900),
		ResponseCacheMaxEntries: getEnvInt("RESPONSE_CACHE_MAX_ENTRIES", 2000),
		PromptsDir:              getEnv("PROMPTS_DIR", "prompts"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
