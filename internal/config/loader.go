package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally a
// .env file), applying env overrides on top of zero-value defaults. Use
// LoadFile to also layer in a YAML file first.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	ApplyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// ApplyEnv overlays environment-variable overrides onto cfg. Unset
// variables leave the existing value untouched, so callers can run this
// after LoadConfig to let the environment win over the YAML file.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGGSEARCH_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("AGGSEARCH_PORT"); v != 0 {
		cfg.Server.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.Redis.Password = v
	}
	if v := envInt("REDIS_DB"); v != 0 {
		cfg.Redis.DB = v
	}

	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.Postgres.DSN = v
	}

	if v := strings.TrimSpace(os.Getenv("QDRANT_HOST")); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := envInt("QDRANT_PORT"); v != 0 {
		cfg.Qdrant.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_API_KEY")); v != "" {
		cfg.Qdrant.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_USE_TLS")); v != "" {
		cfg.Qdrant.UseTLS = isTruthy(v)
	}

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_TOPIC")); v != "" {
		cfg.Kafka.Topic = v
	}

	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN")); v != "" {
		cfg.ClickHouse.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_DATABASE")); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_TABLE")); v != "" {
		cfg.ClickHouse.Table = v
	}
	if v := envInt("CLICKHOUSE_TIMEOUT_SECONDS"); v != 0 {
		cfg.ClickHouse.TimeoutSeconds = v
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		cfg.OTel.Enabled = isTruthy(v)
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTel.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.OTel.ServiceName = v
	}

	if v := envInt("CURSOR_DEFAULT_MAX_IDLE_MS"); v != 0 {
		cfg.Cursor.DefaultMaxIdleMS = v
	}
	if v := envInt("DISTRIBUTE_DEFAULT_TIMEOUT_MS"); v != 0 {
		cfg.Distribute.DefaultTimeoutMS = v
	}
	if v := envInt("DISTRIBUTE_SHARD_COUNT"); v != 0 {
		cfg.Distribute.ShardCount = v
	}
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// LoadFile reads a YAML config file, lets the environment override it,
// and fills in defaults, all in one call.
func LoadFile(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}
