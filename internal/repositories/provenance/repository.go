package provenance

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Repository is the Postgres provenance store. Alongside the current
// attribution row it maintains a source-id link table for reverse lookups
// and an append-only field history, which the in-memory store does not keep.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ provenance.Store = (*Repository)(nil)

// NewRepository creates a new provenance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Save upserts the attribution row, rebuilds its source links, and records
// one history entry per attributed field. All three writes share one
// transaction.
func (r *Repository) Save(ctx context.Context, p *models.Provenance) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Save")
	defer span.End()

	if p == nil || p.GoldenRecordID == "" {
		return &errors.MergeValidationError{Reason: "provenance requires a golden record id"}
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	row := FromProvenance(p)
	ib := provenanceStruct.InsertInto(provenanceTable, row)
	ub := ib.OnConflict("golden_record_id")
	ub.Set(
		ub.Assign("source_record_ids", database.Excluded("source_record_ids")),
		ub.Assign("field_sources", database.Excluded("field_sources")),
		ub.Assign("strategy_used", database.Excluded("strategy_used")),
		ub.Assign("merged_at", database.Excluded("merged_at")),
		ub.Assign("merged_by", database.Excluded("merged_by")),
		ub.Assign("queue_item_id", database.Excluded("queue_item_id")),
		ub.Assign("unmerged", database.Excluded("unmerged")),
		ub.Assign("unmerged_at", database.Excluded("unmerged_at")),
		ub.Assign("unmerged_by", database.Excluded("unmerged_by")),
		ub.Assign("unmerge_reason", database.Excluded("unmerge_reason")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"golden_record_id": p.GoldenRecordID}).Error("Failed to save provenance")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save provenance")
	}

	if err := r.rewriteSourceLinks(ctx, tx, p); err != nil {
		return err
	}
	if err := r.appendFieldHistory(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": p.GoldenRecordID,
		"source_count":     len(p.SourceRecordIDs),
		"strategy":         p.StrategyUsed,
	}).Info("Saved provenance")
	return nil
}

// rewriteSourceLinks replaces the reverse-lookup rows for one golden record.
func (r *Repository) rewriteSourceLinks(ctx context.Context, tx database.Tx, p *models.Provenance) error {
	db := database.NewDeleteBuilder()
	db.DeleteFrom(sourceLinkTable)
	db.Where(db.Equal("golden_record_id", p.GoldenRecordID))

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear provenance source links")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save provenance")
	}

	if len(p.SourceRecordIDs) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(sourceLinkTable)
	ib.Cols("golden_record_id", "source_record_id", "merged_at")
	for _, sourceID := range p.SourceRecordIDs {
		ib.Values(p.GoldenRecordID, sourceID, p.MergedAt)
	}

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert provenance source links")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save provenance")
	}
	return nil
}

// appendFieldHistory records the attribution of every field for this merge.
// Re-saving the same merge overwrites its entries instead of duplicating
// them, keyed by (golden record, field, merged_at).
func (r *Repository) appendFieldHistory(ctx context.Context, tx database.Tx, p *models.Provenance) error {
	if len(p.FieldSources) == 0 {
		return nil
	}

	rows := make([]any, 0, len(p.FieldSources))
	for field, fp := range p.FieldSources {
		rows = append(rows, &FieldHistoryRow{
			ID:             uuid.New().String(),
			GoldenRecordID: p.GoldenRecordID,
			Field:          field,
			MergedAt:       p.MergedAt,
			Provenance:     database.JSONB[models.FieldProvenance]{Data: fp},
		})
	}

	ib := fieldHistoryStruct.InsertInto(fieldHistoryTable, rows...)
	ub := ib.OnConflict("golden_record_id", "field", "merged_at")
	ub.Set(
		ub.Assign("provenance", database.Excluded("provenance")),
	)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to append provenance field history")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save provenance")
	}
	return nil
}

// Get retrieves the attribution row for a golden record.
func (r *Repository) Get(ctx context.Context, goldenRecordID string) (*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Get")
	defer span.End()

	sb := provenanceStruct.SelectFrom(provenanceTable)
	sb.Where(sb.Equal("golden_record_id", goldenRecordID))

	query, args := sb.Build()
	var row ProvenanceRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get provenance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance")
	}

	return ToProvenance(&row), nil
}

// Exists reports whether an attribution row is stored for the golden record.
func (r *Repository) Exists(ctx context.Context, goldenRecordID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Exists")
	defer span.End()

	query := "SELECT EXISTS(SELECT 1 FROM provenance WHERE golden_record_id = $1)"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, goldenRecordID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check provenance existence")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check provenance existence")
	}
	return exists, nil
}

// Delete removes the attribution row. Source links and field history go with
// it through foreign key cascades.
func (r *Repository) Delete(ctx context.Context, goldenRecordID string) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(provenanceTable)
	db.Where(db.Equal("golden_record_id", goldenRecordID))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete provenance")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete provenance")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"golden_record_id": goldenRecordID}).Info("Deleted provenance")
	return nil
}

// Count tallies attribution rows, skipping unmerged ones unless asked.
func (r *Repository) Count(ctx context.Context, includeUnmerged bool) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(provenanceTable)
	if !includeUnmerged {
		sb.Where(
			sb.Equal("unmerged", false),
			sb.IsNull("unmerged_at"),
		)
	}

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count provenance")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count provenance")
	}
	return count, nil
}

// Clear wipes every attribution row, cascading to links and history.
func (r *Repository) Clear(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Clear")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM provenance"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear provenance")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear provenance")
	}
	return nil
}

// GetBySourceID returns every attribution row a source record took part in,
// newest merge first unless the query says otherwise.
func (r *Repository) GetBySourceID(ctx context.Context, sourceRecordID string, query models.ProvenanceQuery) ([]*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.GetBySourceID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"provenance.golden_record_id",
		"provenance.source_record_ids",
		"provenance.field_sources",
		"provenance.strategy_used",
		"provenance.merged_at",
		"provenance.merged_by",
		"provenance.queue_item_id",
		"provenance.unmerged",
		"provenance.unmerged_at",
		"provenance.unmerged_by",
		"provenance.unmerge_reason",
	)
	sb.From(provenanceTable)
	sb.Join(sourceLinkTable, "provenance.golden_record_id = provenance_sources.golden_record_id")
	sb.Where(sb.Equal("provenance_sources.source_record_id", sourceRecordID))
	if !query.IncludeUnmerged {
		sb.Where(
			sb.Equal("provenance.unmerged", false),
			sb.IsNull("provenance.unmerged_at"),
		)
	}

	if query.SortOrder == models.SortAsc {
		sb.OrderBy("provenance.merged_at ASC", "provenance.golden_record_id ASC")
	} else {
		sb.OrderBy("provenance.merged_at DESC", "provenance.golden_record_id ASC")
	}
	if query.Offset > 0 {
		sb.Offset(query.Offset)
	}
	if query.Limit > 0 {
		sb.Limit(query.Limit)
	}

	sql, args := sb.Build()
	var rows []ProvenanceRow
	if err := r.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_record_id": sourceRecordID}).Error("Failed to get provenance by source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance by source")
	}

	results := make([]*models.Provenance, 0, len(rows))
	for i := range rows {
		results = append(results, ToProvenance(&rows[i]))
	}
	return results, nil
}

// MarkUnmerged flags a row as undone while keeping the original merge
// metadata intact.
func (r *Repository) MarkUnmerged(ctx context.Context, goldenRecordID string, meta provenance.UnmergeMeta) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.MarkUnmerged")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(provenanceTable)
	ub.Set(
		ub.Assign("unmerged", true),
		ub.Assign("unmerged_at", meta.UnmergedAt),
		ub.Assign("unmerged_by", meta.UnmergedBy),
		ub.Assign("unmerge_reason", meta.Reason),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("golden_record_id", goldenRecordID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark provenance unmerged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark provenance unmerged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": goldenRecordID,
		"unmerged_by":      meta.UnmergedBy,
	}).Info("Marked provenance unmerged")
	return nil
}

// GetFieldHistory lists every recorded attribution of one field, oldest
// first.
func (r *Repository) GetFieldHistory(ctx context.Context, goldenRecordID, field string) ([]models.FieldHistoryEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.GetFieldHistory")
	defer span.End()

	exists, err := r.Exists(ctx, goldenRecordID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}

	sb := fieldHistoryStruct.SelectFrom(fieldHistoryTable)
	sb.Where(
		sb.Equal("golden_record_id", goldenRecordID),
		sb.Equal("field", field),
	)
	sb.OrderBy("merged_at ASC")

	query, args := sb.Build()
	var rows []FieldHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get field history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get field history")
	}

	entries := make([]models.FieldHistoryEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, ToFieldHistoryEntry(&rows[i]))
	}
	return entries, nil
}

// GetMergeTimeline returns merges inside the query window, oldest first
// unless the query says otherwise. Unmerged rows stay in the timeline.
func (r *Repository) GetMergeTimeline(ctx context.Context, query models.TimelineQuery) ([]*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.GetMergeTimeline")
	defer span.End()

	sb := provenanceStruct.SelectFrom(provenanceTable)
	if query.Since != nil {
		sb.Where(sb.GreaterEqualThan("merged_at", *query.Since))
	}
	if query.Until != nil {
		sb.Where(sb.LessEqualThan("merged_at", *query.Until))
	}

	if query.SortOrder == models.SortDesc {
		sb.OrderBy("merged_at DESC", "golden_record_id ASC")
	} else {
		sb.OrderBy("merged_at ASC", "golden_record_id ASC")
	}
	if query.Offset > 0 {
		sb.Offset(query.Offset)
	}
	if query.Limit > 0 {
		sb.Limit(query.Limit)
	}

	sql, args := sb.Build()
	var rows []ProvenanceRow
	if err := r.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge timeline")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge timeline")
	}

	results := make([]*models.Provenance, 0, len(rows))
	for i := range rows {
		results = append(results, ToProvenance(&rows[i]))
	}
	return results, nil
}

// FindGoldenRecordsBySource returns the ids of the golden records a source
// record currently contributes to. Unmerged rows are excluded.
func (r *Repository) FindGoldenRecordsBySource(ctx context.Context, sourceRecordID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.FindGoldenRecordsBySource")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("provenance.golden_record_id")
	sb.From(provenanceTable)
	sb.Join(sourceLinkTable, "provenance.golden_record_id = provenance_sources.golden_record_id")
	sb.Where(
		sb.Equal("provenance_sources.source_record_id", sourceRecordID),
		sb.Equal("provenance.unmerged", false),
		sb.IsNull("provenance.unmerged_at"),
	)
	sb.OrderBy("provenance.golden_record_id ASC")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_record_id": sourceRecordID}).Error("Failed to find golden records by source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find golden records by source")
	}
	return ids, nil
}
