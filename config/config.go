package config

import (
	"os"
	"strconv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbeddingsConfig selects the embedding model used for both ingestion and
// query time. Dimension must match the persisted vector column.
type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider string
	Model    string
}

// ChatConfig holds the retrieval and gating parameters.
type ChatConfig struct {
	MinConfidence float64
	NumCandidates int
	Limit         int
	LogRefusals   bool
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Config struct {
	HTTPAddr    string
	DataDir     string
	PostgresDSN string

	Neo4jURI  string
	Neo4jUser string
	Neo4jPass string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Chat       ChatConfig
	Ingestion  IngestionConfig
}

// GraphEnabled reports whether the optional neo4j document mirror is
// configured. A blank URI disables it entirely.
func (c Config) GraphEnabled() bool {
	return c.Neo4jURI != ""
}

func Load() Config {
	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":5000"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/opsmind?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", ""),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Chat: ChatConfig{
			MinConfidence: getEnvFloat("CHAT_MIN_CONFIDENCE", 0.72),
			NumCandidates: getEnvInt("CHAT_NUM_CANDIDATES", 200),
			Limit:         getEnvInt("CHAT_LIMIT", 8),
			LogRefusals:   getEnvBool("CHAT_LOG_REFUSALS", false),
		},
		Ingestion: IngestionConfig{
			ChunkSize:    getEnvInt("CHUNK_SIZE", 1200),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
