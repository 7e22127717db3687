package sourcearchive

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Repository is the Postgres source archive. Records are stored as JSONB
// payloads keyed by the golden record they fed into, so unmerge can restore
// them exactly as they were consumed.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ provenance.Archive = (*Repository)(nil)

// NewRepository creates a new source archive repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save archives the given records under a golden record id. Re-archiving a
// record overwrites the stored payload.
func (r *Repository) Save(ctx context.Context, goldenRecordID string, records []models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.Save")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	archivedAt := time.Now().UTC()
	rows := make([]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, FromSourceRecord(goldenRecordID, record, archivedAt))
	}

	ib := archivedRecordStruct.InsertInto(archiveTable, rows...)
	ub := ib.OnConflict("golden_record_id", "source_record_id")
	ub.Set(
		ub.Assign("record", database.Excluded("record")),
		ub.Assign("archived_at", database.Excluded("archived_at")),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"golden_record_id": goldenRecordID}).Error("Failed to archive source records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive source records")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": goldenRecordID,
		"record_count":     len(records),
	}).Info("Archived source records")
	return nil
}

// Get returns the archived records matching the requested ids, in request
// order. Missing ids are simply absent from the result.
func (r *Repository) Get(ctx context.Context, goldenRecordID string, sourceRecordIDs []string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.Get")
	defer span.End()

	if len(sourceRecordIDs) == 0 {
		return []models.SourceRecord{}, nil
	}

	sb := archivedRecordStruct.SelectFrom(archiveTable)
	sb.Where(
		sb.Equal("golden_record_id", goldenRecordID),
		sb.In("source_record_id", sqlbuilder.Flatten(sourceRecordIDs)...),
	)

	query, args := sb.Build()
	var rows []ArchivedRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get archived source records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get archived source records")
	}

	byID := make(map[string]models.SourceRecord, len(rows))
	for i := range rows {
		byID[rows[i].SourceRecordID] = ToSourceRecord(&rows[i])
	}

	found := make([]models.SourceRecord, 0, len(sourceRecordIDs))
	for _, id := range sourceRecordIDs {
		if record, ok := byID[id]; ok {
			found = append(found, record)
		}
	}
	return found, nil
}

// GetAll returns every record archived under a golden record id.
func (r *Repository) GetAll(ctx context.Context, goldenRecordID string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.GetAll")
	defer span.End()

	sb := archivedRecordStruct.SelectFrom(archiveTable)
	sb.Where(sb.Equal("golden_record_id", goldenRecordID))
	sb.OrderBy("source_record_id ASC")

	query, args := sb.Build()
	var rows []ArchivedRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get archived source records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get archived source records")
	}

	records := make([]models.SourceRecord, 0, len(rows))
	for i := range rows {
		records = append(records, ToSourceRecord(&rows[i]))
	}
	return records, nil
}

// Has reports whether one source record is archived for a golden record.
func (r *Repository) Has(ctx context.Context, goldenRecordID, sourceRecordID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.Has")
	defer span.End()

	query := "SELECT EXISTS(SELECT 1 FROM source_archive WHERE golden_record_id = $1 AND source_record_id = $2)"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, goldenRecordID, sourceRecordID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check archived source record")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check archived source record")
	}
	return exists, nil
}

// Remove drops the archived payloads for the given source record ids.
func (r *Repository) Remove(ctx context.Context, goldenRecordID string, sourceRecordIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.Remove")
	defer span.End()

	if len(sourceRecordIDs) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(archiveTable)
	db.Where(
		db.Equal("golden_record_id", goldenRecordID),
		db.In("source_record_id", sqlbuilder.Flatten(sourceRecordIDs)...),
	)

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to remove archived source records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove archived source records")
	}
	return nil
}

// Clear wipes the archive.
func (r *Repository) Clear(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "sourcearchive.Repository.Clear")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM source_archive"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear source archive")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear source archive")
	}
	return nil
}
