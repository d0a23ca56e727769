package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Delivery transports.
const (
	TransportKafka = "kafka"
	TransportNATS  = "nats"
)

// Record store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Transport string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	NATSURL        string
	NATSSubject    string
	NATSBufferSize int

	StoreBackend   string
	SQLitePath     string
	PostgresURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	HTTPAddr        string
	HTTPRateLimit   int
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// SerpAPI hospital search configuration.
	SerpAPIKey     string
	SerpAPIEnabled bool
	SerpAPITimeout time.Duration
	SerpAPIZoom    int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	serpTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("SERPAPI_TIMEOUT", "5s"))
	if err != nil || serpTimeout <= 0 {
		return nil, errors.New("invalid SERPAPI_TIMEOUT")
	}

	serpKey := os.Getenv("SERPAPI_KEY")
	serpEnabled := serpKey != ""
	if v := os.Getenv("SERPAPI_ENABLED"); v != "" {
		serpEnabled = v == "true"
	}

	cfg := &Config{
		Transport: sharedcfg.EnvOrDefault("TRANSPORT", TransportKafka),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "accident-data"),
		KafkaGroupID: sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "vehicle-incident-etl"),

		NATSURL:        sharedcfg.EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		NATSSubject:    sharedcfg.EnvOrDefault("NATS_SUBJECT", "accident.data"),
		NATSBufferSize: positiveIntOrDefault("NATS_BUFFER_SIZE", 64),

		StoreBackend:   sharedcfg.EnvOrDefault("STORE_BACKEND", StoreSQLite),
		SQLitePath:     sharedcfg.EnvOrDefault("SQLITE_PATH", "./data/incidents.db"),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		RedisAddr:      sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisKeyPrefix: sharedcfg.EnvOrDefault("REDIS_KEY_PREFIX", "incidents"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		HTTPRateLimit:   positiveIntOrDefault("HTTP_RATE_LIMIT", 20),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SerpAPIKey:     serpKey,
		SerpAPIEnabled: serpEnabled,
		SerpAPITimeout: serpTimeout,
	}

	if cfg.RedisDB, err = strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0")); err != nil || cfg.RedisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}
	if cfg.SerpAPIZoom, err = strconv.Atoi(sharedcfg.EnvOrDefault("SERPAPI_ZOOM", "15")); err != nil {
		return nil, errors.New("invalid SERPAPI_ZOOM")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required")
		}
	case TransportNATS:
		if c.NATSSubject == "" {
			return errors.New("NATS_SUBJECT is required")
		}
	default:
		return fmt.Errorf("invalid TRANSPORT: %q", c.Transport)
	}

	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required")
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return errors.New("POSTGRES_URL is required when STORE_BACKEND is postgres")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q", c.StoreBackend)
	}

	if c.SerpAPIEnabled && c.SerpAPIKey == "" {
		return errors.New("SERPAPI_ENABLED is true but SERPAPI_KEY is not set")
	}
	if c.SerpAPIZoom < 1 || c.SerpAPIZoom > 21 {
		return fmt.Errorf("invalid SERPAPI_ZOOM: %d", c.SerpAPIZoom)
	}
	return nil
}

func positiveIntOrDefault(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
