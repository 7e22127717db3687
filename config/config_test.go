package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigViews(t *testing.T) {
	cfg := Config{
		LogLevel:                      "debug",
		PrettyLogs:                    true,
		DatabaseMigrationFolderPath:   "migrations",
		DatabaseMigrationVersion:      4,
		DatabaseMigrationForce:        0,
		DatabaseMigrationAutoRollback: true,
		KafkaBrokers:                  []string{"broker-1:9092", "broker-2:9092"},
		KafkaIntakeTopic:              "record-intake",
		KafkaEventsTopic:              "record-events",
		KafkaConsumerGroup:            "have-we-met-consumer",
		KafkaBatchSize:                50,
		KafkaBatchTimeout:             250,
		KafkaRequiredAcks:             1,
		KafkaCompression:              "snappy",
		GraphDBHost:                   "graph.internal",
		GraphDBPort:                   7687,
		GraphDBUser:                   "neo",
		QueueSweepInterval:            time.Minute,
		QueueMaxItemAge:               168 * time.Hour,
		CacheMaxSize:                  1000,
		CacheTTL:                      300 * time.Second,
		CacheStaleWindow:              30 * time.Second,
		CacheJanitor:                  time.Minute,
		ServiceTimeout:                5 * time.Second,
		RetryMaxAttempts:              3,
		RetryInitialDelay:             100 * time.Millisecond,
		RetryMaxDelay:                 5 * time.Second,
		RetryMultiplier:               2,
		BreakerFailureThreshold:       5,
		BreakerFailureWindow:          60 * time.Second,
		BreakerOpenDuration:           30 * time.Second,
		BreakerHalfOpenSuccesses:      2,
		AppName:                       "have-we-met-api",
		TracingExporter:               "otlp",
		OTLPEndpoint:                  "collector:4317",
		OTLPProtocol:                  "grpc",
		OTLPInsecure:                  true,
	}

	t.Run("maps retry knobs", func(t *testing.T) {
		retry := cfg.RetryConfig()
		assert.Equal(t, 3, retry.MaxAttempts)
		assert.Equal(t, 100*time.Millisecond, retry.InitialDelay)
		assert.Equal(t, 5*time.Second, retry.MaxDelay)
		assert.Equal(t, 2.0, retry.Multiplier)
	})

	t.Run("maps breaker knobs", func(t *testing.T) {
		breaker := cfg.BreakerConfig()
		assert.Equal(t, 5, breaker.FailureThreshold)
		assert.Equal(t, 60*time.Second, breaker.FailureWindow)
		assert.Equal(t, 30*time.Second, breaker.OpenDuration)
		assert.Equal(t, 2, breaker.HalfOpenSuccesses)
	})

	t.Run("maps cache knobs", func(t *testing.T) {
		cc := cfg.CacheConfig()
		assert.Equal(t, 1000, cc.MaxSize)
		assert.Equal(t, 300*time.Second, cc.DefaultTTL)
		assert.Equal(t, 30*time.Second, cc.DefaultStaleWindow)
		assert.Equal(t, time.Minute, cc.JanitorInterval)
	})

	t.Run("maps sweeper knobs", func(t *testing.T) {
		sc := cfg.SweeperConfig()
		assert.Equal(t, time.Minute, sc.Interval)
		assert.Equal(t, 168*time.Hour, sc.MaxItemAge)
	})

	t.Run("maps kafka consumer and producer knobs", func(t *testing.T) {
		consumer := cfg.ConsumerConfig()
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, consumer.Brokers)
		assert.Equal(t, "record-intake", consumer.Topic)
		assert.Equal(t, "have-we-met-consumer", consumer.ConsumerGroup)

		producer := cfg.ProducerConfig()
		assert.Equal(t, "record-events", producer.Topic)
		assert.Equal(t, 250*time.Millisecond, producer.BatchTimeout)
		assert.Equal(t, "snappy", producer.Compression)
	})

	t.Run("maps graph knobs", func(t *testing.T) {
		gc := cfg.GraphConfig()
		assert.Equal(t, "graph.internal", gc.Host)
		assert.Equal(t, 7687, gc.Port)
		assert.Equal(t, "neo", gc.Username)
	})

	t.Run("maps tracing knobs", func(t *testing.T) {
		tc := cfg.TracingConfig()
		assert.Equal(t, "have-we-met-api", tc.ServiceName)
		assert.Equal(t, "otlp", tc.Exporter)
		assert.Equal(t, "collector:4317", tc.OTLP.Endpoint)
		assert.Equal(t, "grpc", tc.OTLP.Protocol)
		assert.True(t, tc.OTLP.Insecure)
	})

	t.Run("maps migration knobs", func(t *testing.T) {
		mc := cfg.MigrationConfig()
		assert.Equal(t, "migrations", mc.FolderPath)
		assert.Equal(t, uint(4), mc.TargetVersion)
		assert.Equal(t, 0, mc.ForceVersion)
		assert.True(t, mc.RollbackOnFailure)
	})

	t.Run("builds the zap-backed logger", func(t *testing.T) {
		logger, err := cfg.Logger()
		require.NoError(t, err)
		assert.NotNil(t, logger)

		_, err = Config{LogLevel: "shouting"}.Logger()
		assert.Error(t, err)
	})
}
