package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	// Port is the HTTP listen port for cmd/api.
	Port string

	// DataDir holds the transaction journal and the vector index directory.
	DataDir string

	// GCSBucket is the bucket batch ingestion jobs read receipts from.
	// Empty disables the enqueue endpoint and cmd/worker.
	GCSBucket string

	// GeminiModel is the model used for OCR and both reasoning stages.
	GeminiModel string

	// EmbeddingModel is the model used to embed chunks and questions.
	EmbeddingModel string

	// ChunkSize and ChunkOverlap control the text chunker, in characters.
	ChunkSize    int
	ChunkOverlap int

	// TopK is how many chunks retrieval returns per question.
	TopK int

	// FallbackCurrency is used when no currency can be detected in a receipt.
	FallbackCurrency string

	// Per-stage timeouts for the question-answering workflow's external calls.
	RetrieveTimeout time.Duration
	AnalyzeTimeout  time.Duration
	AnswerTimeout   time.Duration
}

// Load reads configuration from the environment. A missing .env file is
// not an error; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnv("DATA_DIR", "data"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		EmbeddingModel:   getEnv("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001"),
		FallbackCurrency: getEnv("FALLBACK_CURRENCY", "USD"),
	}

	var err error
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 50); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getEnvInt("RETRIEVAL_TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("config: CHUNK_OVERLAP must satisfy 0 <= overlap < chunk size, got %d", cfg.ChunkOverlap)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("config: RETRIEVAL_TOP_K must be positive, got %d", cfg.TopK)
	}

	if cfg.RetrieveTimeout, err = getEnvDuration("RETRIEVE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnalyzeTimeout, err = getEnvDuration("ANALYZE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnswerTimeout, err = getEnvDuration("ANSWER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration: %w", key, v, err)
	}
	return d, nil
}
