package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything cmd/server needs to wire the engine. Values come
// from the environment with working local defaults.
type Config struct {
	PostgresDSN     string
	RedisAddress    string
	HTTPAddress     string
	WorkerCount     int
	RetryCeiling    int
	BulkChunkSize   int
	RateLimitWindow time.Duration
	DiscoveryWindow time.Duration
}

func Load() Config {
	return Config{
		PostgresDSN:     getEnv("FLOWENGINE_POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=flowengine port=5432 sslmode=disable"),
		RedisAddress:    getEnv("FLOWENGINE_REDIS_ADDR", "localhost:6379"),
		HTTPAddress:     getEnv("FLOWENGINE_HTTP_ADDR", ":8080"),
		WorkerCount:     getEnvInt("FLOWENGINE_WORKER_COUNT", 4),
		RetryCeiling:    getEnvInt("FLOWENGINE_RETRY_CEILING", 3),
		BulkChunkSize:   getEnvInt("FLOWENGINE_BULK_CHUNK_SIZE", 100),
		RateLimitWindow: getEnvDuration("FLOWENGINE_RATE_LIMIT_WINDOW", 10*time.Second),
		DiscoveryWindow: getEnvDuration("FLOWENGINE_DISCOVERY_WINDOW", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
