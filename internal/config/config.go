// Package config reads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the CLI and worker binaries need at startup.
type Config struct {
	// Database
	DBConnString string

	// File storage
	StorageRoot string

	// Upload budgets
	MaxFileSizeBytes   int64
	MaxUploadSizeBytes int64

	// Worker pool
	WorkerCount     int
	JobMaxAttempts  int
	JobPollInterval time.Duration
	MetricsAddr     string

	// External collaborators
	OCREndpoint        string
	BankParserEndpoint string
	GSTEndpoint        string
	GeminiAPIKey       string

	// Timeouts
	BankAnalysisTimeout time.Duration
	LLMTimeout          time.Duration

	// Bank analyzer safety caps
	MaxStatementBytes    int64
	MaxStatementsPerCase int

	// Feature assembly
	FeatureConfThreshold float64
}

// Load builds a Config from environment variables with local-dev defaults.
func Load() Config {
	return Config{
		DBConnString:         envStr("DB_CONN_STRING", "postgres://localhost:5432/postgres?sslmode=disable"),
		StorageRoot:          envStr("STORAGE_ROOT", "data/storage"),
		MaxFileSizeBytes:     envInt64("MAX_FILE_SIZE_MB", 20) * 1024 * 1024,
		MaxUploadSizeBytes:   envInt64("MAX_UPLOAD_SIZE_MB", 100) * 1024 * 1024,
		WorkerCount:          envInt("WORKER_COUNT", 4),
		JobMaxAttempts:       envInt("JOB_MAX_ATTEMPTS", 2),
		JobPollInterval:      envDuration("JOB_POLL_INTERVAL", 2*time.Second),
		MetricsAddr:          envStr("METRICS_ADDR", ":9090"),
		OCREndpoint:          envStr("OCR_ENDPOINT", ""),
		BankParserEndpoint:   envStr("BANK_PARSER_ENDPOINT", ""),
		GSTEndpoint:          envStr("GST_ENDPOINT", ""),
		GeminiAPIKey:         envStr("GEMINI_API_KEY", ""),
		BankAnalysisTimeout:  envDuration("BANK_ANALYSIS_TIMEOUT", 45*time.Second),
		LLMTimeout:           envDuration("LLM_TIMEOUT", 6*time.Second),
		MaxStatementBytes:    envInt64("MAX_STATEMENT_MB", 25) * 1024 * 1024,
		MaxStatementsPerCase: envInt("MAX_STATEMENTS_PER_CASE", 6),
		FeatureConfThreshold: envFloat("FEATURE_CONFIDENCE_THRESHOLD", 0.5),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
