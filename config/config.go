package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	CheckpointBackendFile  = "file"
	CheckpointBackendRedis = "redis"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"movies-etl"`
	Port               int    `env:"PORT" env-default:"3004"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Source database (PostgreSQL, read only)
	DatabaseHost            string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort            string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName        string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword        string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName            string        `env:"DB_NAME" env-default:"movies_database"`
	DatabaseSSLMode         string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"5"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"2"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`

	// Elasticsearch
	ElasticHosts         []string `env:"ES_HOSTS" env-default:"http://localhost:9200"`
	ElasticSniff         bool     `env:"ES_SNIFF" env-default:"false"`
	ElasticIndexPrefix   string   `env:"ES_INDEX_PREFIX" env-default:""`
	ElasticCreateIndices bool     `env:"ES_CREATE_INDICES" env-default:"true"`

	// Checkpoint storage: "file" or "redis"
	CheckpointBackend  string `env:"CHECKPOINT_BACKEND" env-default:"file"`
	CheckpointFilePath string `env:"CHECKPOINT_FILE_PATH" env-default:"state.json"`
	CheckpointRedisKey string `env:"CHECKPOINT_REDIS_KEY" env-default:"etl:checkpoints"`

	// Redis
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Single instance guard (requires Redis)
	InstanceLockEnabled bool          `env:"INSTANCE_LOCK_ENABLED" env-default:"false"`
	InstanceLockTTL     time.Duration `env:"INSTANCE_LOCK_TTL" env-default:"10m"`

	// Pipeline
	ExtractChunkSize int           `env:"EXTRACT_CHUNK_SIZE" env-default:"100"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" env-default:"1s"`

	// Source retries (PostgreSQL)
	SourceRetryMaxAttempts     uint          `env:"SOURCE_RETRY_MAX_ATTEMPTS" env-default:"5"`
	SourceRetryInitialInterval time.Duration `env:"SOURCE_RETRY_INITIAL_INTERVAL" env-default:"500ms"`
	SourceRetryMaxInterval     time.Duration `env:"SOURCE_RETRY_MAX_INTERVAL" env-default:"30s"`

	// Sink retries (Elasticsearch)
	SinkRetryMaxAttempts     uint          `env:"SINK_RETRY_MAX_ATTEMPTS" env-default:"10"`
	SinkRetryInitialInterval time.Duration `env:"SINK_RETRY_INITIAL_INTERVAL" env-default:"500ms"`
	SinkRetryMaxInterval     time.Duration `env:"SINK_RETRY_MAX_INTERVAL" env-default:"1m"`

	// Kafka change events (optional)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic        string   `env:"KAFKA_TOPIC" env-default:"search-documents"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ExtractChunkSize <= 0 {
		return fmt.Errorf("EXTRACT_CHUNK_SIZE must be positive, got %d", c.ExtractChunkSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.SourceRetryMaxAttempts == 0 || c.SinkRetryMaxAttempts == 0 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if len(c.ElasticHosts) == 0 {
		return fmt.Errorf("ES_HOSTS is required")
	}

	switch strings.ToLower(c.CheckpointBackend) {
	case CheckpointBackendFile:
		if c.CheckpointFilePath == "" {
			return fmt.Errorf("CHECKPOINT_FILE_PATH is required for the file checkpoint backend")
		}
	case CheckpointBackendRedis:
		if !c.RedisEnabled {
			return fmt.Errorf("the redis checkpoint backend requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown CHECKPOINT_BACKEND %q (use %q or %q)",
			c.CheckpointBackend, CheckpointBackendFile, CheckpointBackendRedis)
	}

	if c.InstanceLockEnabled && !c.RedisEnabled {
		return fmt.Errorf("INSTANCE_LOCK_ENABLED requires REDIS_ENABLED=true")
	}
	return nil
}

// DatabaseDSN builds a postgres:// URL with the credentials percent-encoded.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.DatabaseHost, c.DatabasePort),
		Path:     "/" + c.DatabaseName,
		RawQuery: url.Values{"sslmode": {c.DatabaseSSLMode}}.Encode(),
	}
	if c.DatabaseUserName != "" {
		u.User = url.UserPassword(c.DatabaseUserName, c.DatabasePassword)
	}
	return u.String()
}

// IndexName applies the configured prefix to a base index name.
func (c *Config) IndexName(base string) string {
	return c.ElasticIndexPrefix + base
}
