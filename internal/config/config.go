// Package config loads the pipeline configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the pipeline and its adapters need.
type Config struct {
	ProjectID      string
	VertexAIRegion string
	VertexModel    string

	StatementsBucket   string
	StorageEnvironment string

	DocumentsCollection string
	TenantsCollection   string
	TenantProfilesFile  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	RecognitionConcurrency int
	RecognitionRate        float64
	RasterBatchSize        int
	RasterDPI              float64
	ModelMaxRetries        int
	ModelTimeout           time.Duration

	LogLevel slog.Level
	Port     string
}

// Load reads the configuration and validates required variables.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:      GetEnv("PROJECT_ID", ""),
		VertexAIRegion: GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:    GetEnv("VERTEX_MODEL", "gemini-2.5-flash"),

		StatementsBucket:   GetEnv("STATEMENTS_BUCKET", ""),
		StorageEnvironment: GetEnv("STORAGE_ENVIRONMENT", "dev"),

		DocumentsCollection: GetEnv("FIRESTORE_COLLECTION", "statements"),
		TenantsCollection:   GetEnv("TENANTS_COLLECTION", "tenants"),
		TenantProfilesFile:  GetEnv("TENANT_PROFILES_FILE", ""),

		RedisAddr:     GetEnv("REDIS_ADDR", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisPrefix:   GetEnv("REDIS_PREFIX", "statements:"),

		Port: GetEnv("PORT", "8080"),
	}

	var err error
	if cfg.RedisDB, err = GetEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RecognitionConcurrency, err = GetEnvInt("RECOGNITION_CONCURRENCY", 15); err != nil {
		return nil, err
	}
	if cfg.RecognitionRate, err = GetEnvFloat("RECOGNITION_RATE", 2.5); err != nil {
		return nil, err
	}
	if cfg.RasterBatchSize, err = GetEnvInt("RASTER_BATCH_SIZE", 3); err != nil {
		return nil, err
	}
	if cfg.RasterDPI, err = GetEnvFloat("RASTER_DPI", 150); err != nil {
		return nil, err
	}
	if cfg.ModelMaxRetries, err = GetEnvInt("MODEL_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.ModelTimeout, err = GetEnvDuration("MODEL_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLevel(GetEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.StatementsBucket == "" {
		return nil, fmt.Errorf("STATEMENTS_BUCKET environment variable must be set")
	}
	if cfg.RecognitionConcurrency < 1 {
		return nil, fmt.Errorf("RECOGNITION_CONCURRENCY must be at least 1, got %d", cfg.RecognitionConcurrency)
	}
	if cfg.RecognitionRate <= 0 {
		return nil, fmt.Errorf("RECOGNITION_RATE must be positive, got %v", cfg.RecognitionRate)
	}
	if cfg.RasterBatchSize < 1 {
		return nil, fmt.Errorf("RASTER_BATCH_SIZE must be at least 1, got %d", cfg.RasterBatchSize)
	}
	if cfg.ModelMaxRetries < 0 {
		return nil, fmt.Errorf("MODEL_MAX_RETRIES cannot be negative, got %d", cfg.ModelMaxRetries)
	}
	return cfg, nil
}

// GetEnv reads an environment variable or returns fallback.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer variable. An unset or empty variable yields fallback.
func GetEnvInt(key string, fallback int) (int, error) {
	value := GetEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

// GetEnvFloat reads a float variable. An unset or empty variable yields fallback.
func GetEnvFloat(key string, fallback float64) (float64, error) {
	value := GetEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return f, nil
}

// GetEnvDuration reads a duration such as "90s". An unset or empty variable yields fallback.
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := GetEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
