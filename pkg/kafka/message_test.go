package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordMessage(t *testing.T) {
	t.Run("parses a full intake envelope", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{
				"record_id": "rec-1",
				"source": "crm",
				"record": {"name": "Alice Smith", "email": "alice@example.com"},
				"received_at": "2025-01-15T10:30:00Z",
				"correlation_id": "corr-7"
			}`),
		}

		require.NoError(t, msg.ParseRecordMessage())
		require.NotNil(t, msg.Record)
		assert.Equal(t, "rec-1", msg.Record.RecordID)
		assert.Equal(t, "crm", msg.Record.Source)
		assert.Equal(t, "Alice Smith", msg.Record.Record["name"])
		assert.Equal(t, "corr-7", msg.Record.CorrelationID)
		assert.Equal(t, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC), msg.Record.ReceivedAt)
	})

	t.Run("falls back to the message key for the record id", func(t *testing.T) {
		msg := &IncomingMessage{
			Key:   "key-9",
			Value: []byte(`{"record": {"name": "Bob"}}`),
		}

		require.NoError(t, msg.ParseRecordMessage())
		assert.Equal(t, "key-9", msg.Record.RecordID)
	})

	t.Run("rejects a message with no record id and no key", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{"record": {"name": "Bob"}}`),
		}

		err := msg.ParseRecordMessage()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record_id")
	})

	t.Run("rejects an empty record payload", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{"record_id": "rec-1", "record": {}}`),
		}

		err := msg.ParseRecordMessage()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty record payload")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{not json`)}

		require.Error(t, msg.ParseRecordMessage())
		assert.Nil(t, msg.Record)
	})
}

func TestIncomingMessageAccessors(t *testing.T) {
	t.Run("prefers envelope fields over headers", func(t *testing.T) {
		msg := &IncomingMessage{
			Key: "key-1",
			Headers: map[string]string{
				"source":         "header-source",
				"correlation_id": "header-corr",
			},
			Value: []byte(`{
				"record_id": "rec-1",
				"source": "crm",
				"record": {"name": "Alice"},
				"correlation_id": "corr-1"
			}`),
		}
		require.NoError(t, msg.ParseRecordMessage())

		assert.Equal(t, "rec-1", msg.GetRecordID())
		assert.Equal(t, "crm", msg.GetSource())
		assert.Equal(t, "corr-1", msg.GetCorrelationID())
	})

	t.Run("falls back to headers and key when the envelope is silent", func(t *testing.T) {
		msg := &IncomingMessage{
			Key: "key-2",
			Headers: map[string]string{
				"source":         "header-source",
				"correlation_id": "header-corr",
			},
			Value: []byte(`{"record": {"name": "Bob"}}`),
		}
		require.NoError(t, msg.ParseRecordMessage())

		assert.Equal(t, "key-2", msg.GetRecordID())
		assert.Equal(t, "header-source", msg.GetSource())
		assert.Equal(t, "header-corr", msg.GetCorrelationID())
	})

	t.Run("works on an unparsed message", func(t *testing.T) {
		msg := &IncomingMessage{
			Key:     "key-3",
			Headers: map[string]string{"source": "crm"},
		}

		assert.Equal(t, "key-3", msg.GetRecordID())
		assert.Equal(t, "crm", msg.GetSource())
		assert.Equal(t, "", msg.GetCorrelationID())
	})
}

func TestSourceRecord(t *testing.T) {
	t.Run("converts the envelope into a source record", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{
				"record_id": "rec-1",
				"record": {"name": "Alice", "address": {"city": "Berlin"}},
				"received_at": "2025-01-15T10:30:00Z"
			}`),
		}
		require.NoError(t, msg.ParseRecordMessage())

		rec, err := msg.SourceRecord()
		require.NoError(t, err)
		assert.Equal(t, "rec-1", rec.ID)
		assert.Equal(t, "Alice", rec.Record["name"])
		assert.Equal(t, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC), rec.CreatedAt)
		assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	})

	t.Run("clones the payload so callers cannot mutate the envelope", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{"record_id": "rec-1", "record": {"address": {"city": "Berlin"}}}`),
		}
		require.NoError(t, msg.ParseRecordMessage())

		rec, err := msg.SourceRecord()
		require.NoError(t, err)
		rec.Record["address"].(map[string]any)["city"] = "Munich"

		assert.Equal(t, "Berlin", msg.Record.Record["address"].(map[string]any)["city"])
	})

	t.Run("uses the kafka timestamp when received_at is missing", func(t *testing.T) {
		ts := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
		msg := &IncomingMessage{
			Timestamp: ts,
			Value:     []byte(`{"record_id": "rec-1", "record": {"name": "Bob"}}`),
		}
		require.NoError(t, msg.ParseRecordMessage())

		rec, err := msg.SourceRecord()
		require.NoError(t, err)
		assert.Equal(t, ts, rec.CreatedAt)
		assert.Equal(t, ts, rec.UpdatedAt)
	})

	t.Run("errors when the envelope was never parsed", func(t *testing.T) {
		msg := &IncomingMessage{}

		_, err := msg.SourceRecord()
		require.Error(t, err)
	})
}
