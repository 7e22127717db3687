// Package config declares the toolkit's environment configuration. Every
// knob has a default, so an empty environment yields a working single-node
// setup backed by the in-memory adapters.
package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/8arr3tt/have-we-met-sub007/pkg/cache"
	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/graph"
	"github.com/8arr3tt/have-we-met-sub007/pkg/kafka"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/reviewqueue"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing/exporters"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"have-we-met-api"`
	Port                          int      `env:"PORT" env-default:"3002"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (provenance, source archive, review queue)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"havewemet"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseReconnectRetryCount   int           `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"migrations"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (service result cache backend; empty host keeps the memory cache)
	RedisHost     string `env:"REDIS_HOST" env-default:""`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Graph Database (Memgraph lineage projection)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:""`

	// Kafka Consumer (record intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaIntakeTopic     string   `env:"KAFKA_INTAKE_TOPIC" env-default:"record-intake"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"have-we-met-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`

	// Kafka Producer (lifecycle events)
	KafkaEventsTopic  string `env:"KAFKA_EVENTS_TOPIC" env-default:"record-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"console"` // console, otlp
	OTLPEndpoint    string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool   `env:"OTLP_INSECURE" env-default:"true"`

	// Processing
	AutoMergeEnabled     bool   `env:"AUTO_MERGE_ENABLED" env-default:"true"`
	ReviewQueueEnabled   bool   `env:"REVIEW_QUEUE_ENABLED" env-default:"true"`
	DefaultMergeStrategy string `env:"DEFAULT_MERGE_STRATEGY" env-default:"preferNonNull"`

	// Review queue expiry sweeper
	QueueSweepInterval time.Duration `env:"QUEUE_SWEEP_INTERVAL" env-default:"1m"`
	QueueMaxItemAge    time.Duration `env:"QUEUE_MAX_ITEM_AGE" env-default:"168h"` // 7 days

	// Service result cache
	CacheMaxSize     int           `env:"CACHE_MAX_SIZE" env-default:"1000"`
	CacheTTL         time.Duration `env:"CACHE_TTL" env-default:"300s"`
	CacheStaleWindow time.Duration `env:"CACHE_STALE_WINDOW" env-default:"0s"`
	CacheJanitor     time.Duration `env:"CACHE_JANITOR_INTERVAL" env-default:"1m"`

	// Service execution resilience
	ServiceTimeout           time.Duration `env:"SERVICE_TIMEOUT" env-default:"5s"`
	RetryMaxAttempts         int           `env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	RetryInitialDelay        time.Duration `env:"RETRY_INITIAL_DELAY" env-default:"100ms"`
	RetryMaxDelay            time.Duration `env:"RETRY_MAX_DELAY" env-default:"5s"`
	RetryMultiplier          float64       `env:"RETRY_MULTIPLIER" env-default:"2"`
	BreakerFailureThreshold  int           `env:"BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	BreakerFailureWindow     time.Duration `env:"BREAKER_FAILURE_WINDOW" env-default:"60s"`
	BreakerOpenDuration      time.Duration `env:"BREAKER_OPEN_DURATION" env-default:"30s"`
	BreakerHalfOpenSuccesses int           `env:"BREAKER_HALF_OPEN_SUCCESSES" env-default:"2"`
}

// Load reads a .env file when one is present and binds environment
// variables over the declared defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Logger builds the zap-backed production logger at the configured level.
// PrettyLogs switches to the human-readable development encoder.
func (c Config) Logger() (ectologger.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if c.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// MigrationConfig maps the migration knobs onto the schema migrator.
func (c Config) MigrationConfig() database.MigrationConfig {
	return database.MigrationConfig{
		FolderPath:        c.DatabaseMigrationFolderPath,
		TargetVersion:     uint(c.DatabaseMigrationVersion),
		ForceVersion:      c.DatabaseMigrationForce,
		RollbackOnFailure: c.DatabaseMigrationAutoRollback,
	}
}

// RetryConfig maps the retry knobs onto a service retry policy.
func (c Config) RetryConfig() *models.RetryConfig {
	return &models.RetryConfig{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
	}
}

// BreakerConfig maps the breaker knobs onto a circuit breaker policy.
func (c Config) BreakerConfig() models.BreakerConfig {
	return models.BreakerConfig{
		FailureThreshold:  c.BreakerFailureThreshold,
		FailureWindow:     c.BreakerFailureWindow,
		OpenDuration:      c.BreakerOpenDuration,
		HalfOpenSuccesses: c.BreakerHalfOpenSuccesses,
	}
}

// CacheConfig maps the cache knobs onto the memory cache configuration.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		MaxSize:            c.CacheMaxSize,
		DefaultTTL:         c.CacheTTL,
		DefaultStaleWindow: c.CacheStaleWindow,
		JanitorInterval:    c.CacheJanitor,
	}
}

// SweeperConfig maps the queue expiry knobs onto the sweeper configuration.
func (c Config) SweeperConfig() reviewqueue.SweeperConfig {
	return reviewqueue.SweeperConfig{
		Interval:   c.QueueSweepInterval,
		MaxItemAge: c.QueueMaxItemAge,
	}
}

// ConsumerConfig maps the intake knobs onto the Kafka consumer
// configuration.
func (c Config) ConsumerConfig() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaIntakeTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
	}
}

// ProducerConfig maps the event knobs onto the Kafka producer
// configuration.
func (c Config) ProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaEventsTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

// GraphConfig maps the graph knobs onto the Bolt client configuration.
func (c Config) GraphConfig() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
	}
}

// TracingConfig maps the tracing knobs onto the tracer provider setup.
func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Exporter:    c.TracingExporter,
		Pretty:      c.PrettyLogs,
		OTLP: exporters.OTLPConfig{
			Endpoint: c.OTLPEndpoint,
			Protocol: c.OTLPProtocol,
			Insecure: c.OTLPInsecure,
		},
	}
}
