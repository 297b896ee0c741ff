package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env        string
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int
	DBMinConns int

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	ChatModel          string
	EmbeddingModel     string
	TranscriptionModel string
	RealtimeModel      string

	PerplexityAPIKey string
	PerplexityURL    string
	PerplexityModel  string

	CountryCode string

	RetrieveCandidates int
	AnswerMaxChunks    int
	LLMTimeout         time.Duration
	WebSearchTimeout   time.Duration
	DeciderTimeout     time.Duration

	AnswerCacheSize int
	AnswerCacheTTL  time.Duration

	WorkerInterval time.Duration

	EnableOTel bool
}

func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "9020"),
		DBHost:     getEnv("DB_HOST", "em-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "em_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "em_password"),
		DBName:     getEnv("DB_NAME", "em_db"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns: getEnvInt("DB_MIN_CONNS", 2),

		OpenAIAPIKey:       getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		ChatModel:          getEnv("CHAT_MODEL", "gpt-4o"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		RealtimeModel:      getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),

		PerplexityAPIKey: getSecret("PERPLEXITY_API_KEY", "PERPLEXITY_API_KEY_FILE", ""),
		PerplexityURL:    getEnv("PERPLEXITY_URL", "https://api.perplexity.ai"),
		PerplexityModel:  getEnv("PERPLEXITY_MODEL", "sonar"),

		CountryCode: getEnv("ELECTION_COUNTRY_CODE", "de"),

		RetrieveCandidates: getEnvInt("RETRIEVE_CANDIDATES", 30),
		AnswerMaxChunks:    getEnvInt("ANSWER_MAX_CHUNKS", 5),
		LLMTimeout:         getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		WebSearchTimeout:   getEnvDuration("WEB_SEARCH_TIMEOUT", 30*time.Second),
		DeciderTimeout:     getEnvDuration("DECIDER_TIMEOUT", 10*time.Second),

		AnswerCacheSize: getEnvInt("ANSWER_CACHE_SIZE", 256),
		AnswerCacheTTL:  getEnvDuration("ANSWER_CACHE_TTL", 15*time.Minute),

		WorkerInterval: getEnvDuration("INGEST_WORKER_INTERVAL", 5*time.Second),

		EnableOTel: getEnvBool("ENABLE_OTEL", false),
	}
}

// DatabaseURL assembles the pgx connection string from the DB fields.
func (c *Config) DatabaseURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=disable"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
