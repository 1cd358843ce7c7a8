package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	DB        DBConfig
	Taxonomy  TaxonomyConfig
	Cache     CacheConfig
	Batch     BatchConfig
	Retrieval RetrievalConfig
	Vector    VectorConfig
	Embedder  EmbedderConfig
	OpenAI    OpenAIConfig
}

type DBConfig struct {
	// Enabled switches the taxonomy source to PostgreSQL and enables the
	// vector signal tables. With it off, the service runs entirely from
	// the file-based taxonomy.
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

type TaxonomyConfig struct {
	HierarchyPath string
	SynonymsPath  string
	// ReloadMinutes is how often the background worker re-checks the
	// taxonomy source for a new version. 0 disables reloading.
	ReloadMinutes int
}

type CacheConfig struct {
	Size       int
	TTLMinutes int
}

type BatchConfig struct {
	MaxItems       int
	MaxConcurrency int
	// RetrievalTimeoutSeconds bounds each per-item candidate resolution.
	RetrievalTimeoutSeconds int
}

type RetrievalConfig struct {
	TopK               int
	FuzzyTopN          int
	FuzzyMinSimilarity float64
}

type VectorConfig struct {
	Enabled bool
	Weight  float64
	Limit   int
}

type EmbedderConfig struct {
	URL     string
	Model   string
	Timeout int
}

type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	SubBatchSize      int
	MaxConcurrency    int
	RequestsPerSecond float64
}

func Load() *Config {
	// Local development convenience; in containers the env is injected.
	_ = godotenv.Load()

	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),
		DB: DBConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "classify-db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "classify_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "classify_password"),
			Name:     getEnv("DB_NAME", "classify_db"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Taxonomy: TaxonomyConfig{
			HierarchyPath: getEnv("TAXONOMY_HIERARCHY_PATH", "data/hierarchy.json"),
			SynonymsPath:  getEnv("TAXONOMY_SYNONYMS_PATH", ""),
			ReloadMinutes: getEnvInt("TAXONOMY_RELOAD_MINUTES", 15),
		},
		Cache: CacheConfig{
			Size:       getEnvInt("RETRIEVAL_CACHE_SIZE", 2000),
			TTLMinutes: getEnvInt("RETRIEVAL_CACHE_TTL_MINUTES", 30),
		},
		Batch: BatchConfig{
			MaxItems:                getEnvInt("BATCH_MAX_ITEMS", 500),
			MaxConcurrency:          getEnvInt("BATCH_MAX_CONCURRENCY", 16),
			RetrievalTimeoutSeconds: getEnvInt("BATCH_RETRIEVAL_TIMEOUT_SECONDS", 5),
		},
		Retrieval: RetrievalConfig{
			TopK:               getEnvInt("RETRIEVAL_TOP_K", 5),
			FuzzyTopN:          getEnvInt("RETRIEVAL_FUZZY_TOP_N", 3),
			FuzzyMinSimilarity: getEnvFloat64("RETRIEVAL_FUZZY_MIN_SIMILARITY", 0.5),
		},
		Vector: VectorConfig{
			Enabled: getEnvBool("VECTOR_SIGNAL_ENABLED", false),
			Weight:  getEnvFloat64("VECTOR_SIGNAL_WEIGHT", 0.65),
			Limit:   getEnvInt("VECTOR_SIGNAL_LIMIT", 50),
		},
		Embedder: EmbedderConfig{
			URL:     getEnv("EMBEDDER_URL", "http://embedder:11434"),
			Model:   getEnv("EMBEDDER_MODEL", "embeddinggemma"),
			Timeout: getEnvInt("EMBEDDER_TIMEOUT", 30),
		},
		OpenAI: OpenAIConfig{
			APIKey:            getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", ""),
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			SubBatchSize:      getEnvInt("ADJUDICATION_SUB_BATCH_SIZE", 25),
			MaxConcurrency:    getEnvInt("ADJUDICATION_MAX_CONCURRENCY", 4),
			RequestsPerSecond: getEnvFloat64("ADJUDICATION_REQUESTS_PER_SECOND", 4),
		},
	}
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

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
