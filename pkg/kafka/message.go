package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Record *RecordMessage
}

// RecordMessage is the intake envelope carried on the record topic: one
// source record plus the identity of the system that produced it.
type RecordMessage struct {
	RecordID      string        `json:"record_id"`
	Source        string        `json:"source,omitempty"`
	Record        models.Record `json:"record"`
	ReceivedAt    time.Time     `json:"received_at,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// ParseRecordMessage parses the message value as a record intake envelope.
// The record id may come from the envelope or fall back to the Kafka key;
// a message with neither, or with an empty record payload, is malformed.
func (m *IncomingMessage) ParseRecordMessage() error {
	var msg RecordMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if msg.RecordID == "" {
		msg.RecordID = m.Key
	}
	if msg.RecordID == "" {
		return fmt.Errorf("record message has no record_id and no message key")
	}
	if len(msg.Record) == 0 {
		return fmt.Errorf("record message %q has an empty record payload", msg.RecordID)
	}
	m.Record = &msg
	return nil
}

// GetRecordID returns the record identity for this message
func (m *IncomingMessage) GetRecordID() string {
	if m.Record != nil {
		return m.Record.RecordID
	}
	return m.Key
}

// GetSource returns the producing system for this message
func (m *IncomingMessage) GetSource() string {
	if m.Record != nil && m.Record.Source != "" {
		return m.Record.Source
	}
	// Fallback to header
	return m.Headers["source"]
}

// GetCorrelationID returns the correlation id from the envelope or headers
func (m *IncomingMessage) GetCorrelationID() string {
	if m.Record != nil && m.Record.CorrelationID != "" {
		return m.Record.CorrelationID
	}
	return m.Headers["correlation_id"]
}

// SourceRecord converts the parsed envelope into a source record. The
// envelope's received_at timestamp doubles as the record's created/updated
// time so recency-based merge strategies see when the source produced it.
func (m *IncomingMessage) SourceRecord() (models.SourceRecord, error) {
	if m.Record == nil {
		return models.SourceRecord{}, fmt.Errorf("message has no parsed record envelope")
	}
	rec := models.SourceRecord{
		ID:        m.Record.RecordID,
		Record:    m.Record.Record.Clone(),
		CreatedAt: m.Record.ReceivedAt,
		UpdatedAt: m.Record.ReceivedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.Timestamp
		rec.UpdatedAt = m.Timestamp
	}
	return rec, nil
}
