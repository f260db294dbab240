package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"clover"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"gte=1"`

	// Record store
	DatabaseDriver    string `env:"DB_DRIVER" env-default:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseDSN       string `env:"DB_DSN" env-default:""`
	RecordsTable      string `env:"RECORDS_TABLE" env-default:"records" validate:"required"`
	RecordsIDColumn   string `env:"RECORDS_ID_COLUMN" env-default:"standardised_id" validate:"required"`
	RecordsTypeColumn string `env:"RECORDS_TYPE_COLUMN" env-default:"record_type"`

	// Graph Database (Memgraph)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"true"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaLinkTopic    string   `env:"KAFKA_LINK_TOPIC" env-default:"link-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=snappy gzip lz4 zstd none"`

	OtelExporterEndpoint string `env:"OTEL_EXPORTER_ENDPOINT" env-default:""`

	// Processing
	ProgressUpdates int `env:"PROGRESS_UPDATES" env-default:"10" validate:"gte=0"`
	Workers         int `env:"WORKERS" env-default:"0" validate:"gte=0"`
}

// Load reads the optional env files (".env" when none are named) and then the environment.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	var cfg Config

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if _, err := utils.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) GraphConfig() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}

func (c Config) ProducerConfig(runID string) events.ProducerConfig {
	return events.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaLinkTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
		RunID:        runID,
	}
}

// SourceConfig describes where records of one type live in the record table.
func (c Config) SourceConfig(recordType string, limit int) records.SQLSourceConfig {
	return records.SQLSourceConfig{
		Table:      c.RecordsTable,
		IDColumn:   c.RecordsIDColumn,
		TypeColumn: c.RecordsTypeColumn,
		RecordType: recordType,
		Limit:      limit,
	}
}
