package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	GigaChat GigaChatConfig
	Google   GoogleConfig
	OpenAI   OpenAIConfig
	Enrich   EnrichConfig
	Agent    AgentConfig
	Vector   VectorConfig
	Storage  StorageConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig selects the completion/embedding backend for new sessions.
// Known providers: gigachat, google, openai. Model names default to the
// provider's own defaults when left empty.
type ProviderConfig struct {
	Name           string
	ChatModel      string
	EmbeddingModel string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	ChatModel          string
	EmbeddingModel     string
	InsecureSkipVerify bool
}

type GoogleConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

// EnrichConfig bounds the merchant enrichment stage: at most Concurrency
// lookups in flight, each preceded by a Delay pause.
type EnrichConfig struct {
	Concurrency   int
	Delay         time.Duration
	SearchTimeout time.Duration
}

type AgentConfig struct {
	MaxToolRounds int
}

type VectorConfig struct {
	TopK int
}

type StorageConfig struct {
	// TempDir is the base for per-session data directories. Empty means the
	// system default (os.MkdirTemp semantics).
	TempDir string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine: plain environment variables work for Docker/K8s.

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	enrichConc, _ := strconv.Atoi(getEnv("ENRICH_CONCURRENCY", "5"))
	enrichDelay, _ := strconv.Atoi(getEnv("ENRICH_DELAY_MS", "50"))
	searchTimeout, _ := strconv.Atoi(getEnv("SEARCH_TIMEOUT", "15"))
	maxToolRounds, _ := strconv.Atoi(getEnv("AGENT_MAX_TOOL_ROUNDS", "8"))
	topK, _ := strconv.Atoi(getEnv("VECTOR_TOP_K", "5"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Provider: ProviderConfig{
			Name:           getEnv("LLM_PROVIDER", "gigachat"),
			ChatModel:      getEnv("LLM_CHAT_MODEL", ""),
			EmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", ""),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			ChatModel:          getEnv("GIGACHAT_CHAT_MODEL", "GigaChat"),
			EmbeddingModel:     getEnv("GIGACHAT_EMBEDDING_MODEL", "Embeddings"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Google: GoogleConfig{
			APIKey:         getEnv("GOOGLE_API_KEY", ""),
			ChatModel:      getEnv("GOOGLE_CHAT_MODEL", "gemini-2.5-flash"),
			EmbeddingModel: getEnv("GOOGLE_EMBEDDING_MODEL", "text-embedding-004"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Enrich: EnrichConfig{
			Concurrency:   enrichConc,
			Delay:         time.Duration(enrichDelay) * time.Millisecond,
			SearchTimeout: time.Duration(searchTimeout) * time.Second,
		},
		Agent: AgentConfig{
			MaxToolRounds: maxToolRounds,
		},
		Vector: VectorConfig{
			TopK: topK,
		},
		Storage: StorageConfig{
			TempDir: getEnv("SESSION_TEMP_DIR", ""),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
