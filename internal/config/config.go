// Package config defines aggsearch's runtime configuration: a YAML file
// merged with environment-variable overrides, in the teacher's
// LoadConfig-then-Load two-stage style.
package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	yaml "gopkg.in/yaml.v3"
)

// ServerConfig is the coordinator/shard listener's bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig addresses the kvstore document store and iterator backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// PostgresConfig addresses the durable schema catalog.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// QdrantConfig addresses the vector index backing HYBRID's VSIM search.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// KafkaConfig holds settings for the alternative Kafka shard-dispatch
// transport. cmd/ftsaggd does not read this section: it always dispatches
// to shards through distribute.DirectDispatcher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// ClickHouseConfig addresses the per-AREQ execution-stats telemetry sink.
// Empty DSN disables telemetry.
type ClickHouseConfig struct {
	DSN            string `yaml:"dsn,omitempty"`
	Database       string `yaml:"database,omitempty"`
	Table          string `yaml:"table,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// OTelConfig controls the live OpenTelemetry metrics/tracing path,
// independent of the ClickHouse execution-stats sink.
type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// CursorConfig sets the idle-reap defaults for internal/cursor.Registry
// when a WITHCURSOR request omits MAXIDLE.
type CursorConfig struct {
	DefaultMaxIdleMS int `yaml:"default_max_idle_ms"`
}

// DistributeConfig sets defaults for the coordinator/shard query path.
type DistributeConfig struct {
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`
	ShardCount       int `yaml:"shard_count"`
}

// Config is aggsearch's full runtime configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	LogLevel    string           `yaml:"log_level"`
	Redis       RedisConfig      `yaml:"redis"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	Qdrant      QdrantConfig     `yaml:"qdrant"`
	Kafka       KafkaConfig      `yaml:"kafka,omitempty"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse,omitempty"`
	OTel        OTelConfig       `yaml:"otel"`
	Cursor      CursorConfig     `yaml:"cursor"`
	Distribute  DistributeConfig `yaml:"distribute"`
}

// LoadConfig reads configuration from a YAML file and applies the
// defaults that are awkward to represent as zero-values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading config file: %v\n", err)
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pterm.Error.Printf("Error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	pterm.Success.Println("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 6400
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "aggsearch"
	}
	if cfg.Cursor.DefaultMaxIdleMS <= 0 {
		cfg.Cursor.DefaultMaxIdleMS = 5000
		pterm.Info.Println("No cursor default_max_idle_ms specified, using default (5000ms).")
	}
	if cfg.Distribute.DefaultTimeoutMS <= 0 {
		cfg.Distribute.DefaultTimeoutMS = 0 // 0 means no deadline, per rp.NewDeadline
	}
	if cfg.Distribute.ShardCount <= 0 {
		cfg.Distribute.ShardCount = 1
		pterm.Info.Println("No distribute.shard_count specified, defaulting to 1 (single-shard mode).")
	}
}
