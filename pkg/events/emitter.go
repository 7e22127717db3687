// Package events publishes golden-record lifecycle events. Emission is
// fire-and-forget: publish failures are logged and never fail the
// operation that produced the event.
package events

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	ctxpkg "github.com/8arr3tt/have-we-met-sub007/pkg/context"
	"github.com/8arr3tt/have-we-met-sub007/pkg/kafka"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Publisher is the transport events go out on. *kafka.Producer satisfies
// it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Emitter builds and publishes domain events. A nil publisher disables
// emission entirely, so callers never have to branch on configuration.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitRecordMerged announces a completed merge.
func (e *Emitter) EmitRecordMerged(ctx context.Context, result *models.MergeResult, strategy string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordMerged")
	defer span.End()

	if e.publisher == nil || result == nil {
		return
	}

	event := &RecordMergedEvent{
		BaseEvent:       NewBaseEvent(EventTypeRecordMerged, ctxpkg.GetCorrelationID(ctx)),
		GoldenRecordID:  result.GoldenRecordID,
		SourceRecordIDs: sourceRecordIDs(result.SourceRecords),
		ConflictCount:   len(result.Conflicts),
		Strategy:        strategy,
	}
	if result.Provenance != nil {
		event.MergedBy = result.Provenance.MergedBy
	}

	e.publish(ctx, kafka.Event{
		Type:          string(event.EventType),
		Key:           result.GoldenRecordID,
		CorrelationID: event.CorrelationID,
		Payload:       event,
	})
}

// EmitRecordUnmerged announces a reversed merge.
func (e *Emitter) EmitRecordUnmerged(ctx context.Context, result *models.UnmergeResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordUnmerged")
	defer span.End()

	if e.publisher == nil || result == nil {
		return
	}

	event := &RecordUnmergedEvent{
		BaseEvent:         NewBaseEvent(EventTypeRecordUnmerged, ctxpkg.GetCorrelationID(ctx)),
		GoldenRecordID:    result.GoldenRecordID,
		RestoredRecordIDs: sourceRecordIDs(result.RestoredRecords),
		Mode:              result.Mode,
		Reason:            result.Reason,
	}
	if len(result.NewGoldenRecords) > 0 {
		event.NewGoldenRecordIDs = ectolinq.Map(result.NewGoldenRecords, func(golden models.MergeResult) string {
			return golden.GoldenRecordID
		})
	}

	e.publish(ctx, kafka.Event{
		Type:          string(event.EventType),
		Key:           result.GoldenRecordID,
		CorrelationID: event.CorrelationID,
		Payload:       event,
	})
}

// EmitQueueItemDecided announces a reviewer decision on a queue item.
func (e *Emitter) EmitQueueItemDecided(ctx context.Context, item *models.QueueItem) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitQueueItemDecided")
	defer span.End()

	if e.publisher == nil || item == nil || item.Decision == nil {
		return
	}

	event := &QueueItemDecidedEvent{
		BaseEvent: NewBaseEvent(EventTypeQueueItemDecided, ctxpkg.GetCorrelationID(ctx)),
		ItemID:    item.ID,
		Action:    item.Decision.Action,
		DecidedBy: item.DecidedBy,
		Notes:     item.Decision.Notes,
	}

	e.publish(ctx, kafka.Event{
		Type:          string(event.EventType),
		Key:           item.ID,
		CorrelationID: event.CorrelationID,
		Payload:       event,
	})
}

func (e *Emitter) publish(ctx context.Context, event kafka.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.Type,
			"key":        event.Key,
		}).Error("Failed to emit event")
	}
}

func sourceRecordIDs(records []models.SourceRecord) []string {
	return ectolinq.Map(records, func(record models.SourceRecord) string {
		return record.ID
	})
}
