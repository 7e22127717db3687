package provenance

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Tracker records completed merges: the attribution ledger goes to the
// store and the consumed source records go to the archive so the merge can
// be undone later.
type Tracker struct {
	store   Store
	archive Archive
	logger  ectologger.Logger
}

// NewTracker wires a tracker to its store and archive.
func NewTracker(store Store, archive Archive, logger ectologger.Logger) *Tracker {
	return &Tracker{
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Store exposes the underlying provenance store.
func (t *Tracker) Store() Store {
	return t.store
}

// Archive exposes the underlying source record archive.
func (t *Tracker) Archive() Archive {
	return t.archive
}

// Record persists the provenance and archives the source records of a
// finished merge.
func (t *Tracker) Record(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Tracker.Record")
	defer span.End()

	if result == nil || result.Provenance == nil {
		return fmt.Errorf("merge result carries no provenance to record")
	}

	if err := t.store.Save(ctx, result.Provenance); err != nil {
		return fmt.Errorf("failed to save provenance for golden record '%s': %w", result.GoldenRecordID, err)
	}

	if err := t.archive.Save(ctx, result.GoldenRecordID, result.SourceRecords); err != nil {
		return fmt.Errorf("failed to archive source records for golden record '%s': %w", result.GoldenRecordID, err)
	}

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": result.GoldenRecordID,
		"source_count":     len(result.SourceRecords),
		"field_count":      len(result.Provenance.FieldSources),
	}).Debug("Recorded merge provenance")

	return nil
}

// FieldHistory reports how one field of a golden record was decided.
func (t *Tracker) FieldHistory(ctx context.Context, goldenRecordID, field string) ([]models.FieldHistoryEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Tracker.FieldHistory")
	defer span.End()
	return t.store.GetFieldHistory(ctx, goldenRecordID, field)
}

// Timeline lists merges inside a time window.
func (t *Tracker) Timeline(ctx context.Context, query models.TimelineQuery) ([]*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Tracker.Timeline")
	defer span.End()
	return t.store.GetMergeTimeline(ctx, query)
}

// MergesForSource lists the provenance rows a source record took part in.
func (t *Tracker) MergesForSource(ctx context.Context, sourceRecordID string, query models.ProvenanceQuery) ([]*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Tracker.MergesForSource")
	defer span.End()
	return t.store.GetBySourceID(ctx, sourceRecordID, query)
}
