package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// EventTypeRecordMerged announces a new or updated golden record.
	EventTypeRecordMerged EventType = "record.merged"
	// EventTypeRecordUnmerged announces a reversed merge.
	EventTypeRecordUnmerged EventType = "record.unmerged"
	// EventTypeQueueItemDecided announces a reviewer decision.
	EventTypeQueueItemDecided EventType = "queueitem.decided"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RecordMergedEvent is emitted when source records merge into a golden
// record.
type RecordMergedEvent struct {
	BaseEvent
	GoldenRecordID  string   `json:"golden_record_id"`
	SourceRecordIDs []string `json:"source_record_ids"`
	ConflictCount   int      `json:"conflict_count"`
	// Strategy is the merge's default strategy; per-field overrides are
	// visible through provenance, not the event.
	Strategy string `json:"strategy,omitempty"`
	MergedBy string `json:"merged_by,omitempty"`
}

// RecordUnmergedEvent is emitted when a golden record is split back into
// source records.
type RecordUnmergedEvent struct {
	BaseEvent
	GoldenRecordID    string             `json:"golden_record_id"`
	RestoredRecordIDs []string           `json:"restored_record_ids"`
	Mode              models.UnmergeMode `json:"mode"`
	Reason            string             `json:"reason,omitempty"`
	// NewGoldenRecordIDs lists the goldens a split produced.
	NewGoldenRecordIDs []string `json:"new_golden_record_ids,omitempty"`
}

// QueueItemDecidedEvent is emitted when a reviewer resolves a queue item.
type QueueItemDecidedEvent struct {
	BaseEvent
	ItemID    string                `json:"item_id"`
	Action    models.DecisionAction `json:"action"`
	DecidedBy string                `json:"decided_by,omitempty"`
	Notes     string                `json:"notes,omitempty"`
}

// NewBaseEvent creates a base event with common fields. An empty
// correlation id gets a fresh one so downstream consumers can always
// group related events.
func NewBaseEvent(eventType EventType, correlationID string) BaseEvent {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}
