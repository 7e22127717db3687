package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Event is one domain event ready for the wire: a routing key, headers,
// and a JSON-serializable payload.
type Event struct {
	// Type routes consumers; it is duplicated into the event_type header.
	Type string
	// Key picks the partition. Use the record or item id the event is
	// about so its history stays ordered.
	Key           string
	CorrelationID string
	Payload       any
}

// Producer publishes domain events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes one event to the topic.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	msg, err := p.message(ctx, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.Type,
			"key":        event.Key,
		}).Error("Failed to publish event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.Type,
		"key":        event.Key,
	}).Debug("Published event")

	return nil
}

// PublishBatch writes a batch of events in one producer call.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishBatch")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := p.message(ctx, event)
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish event batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published event batch")

	return nil
}

func (p *Producer) message(ctx context.Context, event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Payload)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.Type)},
		{Key: "correlation_id", Value: []byte(event.CorrelationID)},
	}

	// carry the trace across the broker so consumers join the same trace
	if parent := tracing.GetTraceParent(ctx); parent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(parent)})
		if state := tracing.GetTraceState(ctx); state != "" {
			headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(state)})
		}
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.Key),
		Value:   value,
		Headers: headers,
	}, nil
}
