package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr         string
	CRDBDSN          string
	MongoURI         string
	MongoDatabase    string
	RedisAddr        string
	RabbitURL        string
	JWTSecret        string
	OTLPEndpoint     string
	OperationTimeout time.Duration
	IdempotencyTTL   time.Duration
	CatalogCacheTTL  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		CRDBDSN:          os.Getenv("CRDB_DSN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getEnv("MONGO_DATABASE", "reservations"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RabbitURL:        os.Getenv("RABBIT_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OperationTimeout: getDuration("OPERATION_TIMEOUT", 5*time.Second),
		IdempotencyTTL:   getDuration("IDEMPOTENCY_TTL", time.Hour),
		CatalogCacheTTL:  getDuration("CATALOG_CACHE_TTL", 5*time.Minute),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d == 0 {
		return fallback
	}
	return d
}
