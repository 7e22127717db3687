package records

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/8arr3tt/have-we-met-sub007/pkg/criteria"
	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	recordstore "github.com/8arr3tt/have-we-met-sub007/pkg/records"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

const uniqueViolation = "23505"

// Repository is the Postgres source record store. Payloads live in a JSONB
// column with a GIN index, so equality filters and blocking keys resolve as
// containment probes; operator conditions run in process on the rows the
// containment probe returns.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ models.DatabaseAdapter = (*Repository)(nil)

// NewRepository creates a new source record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByBlockingKeys returns records whose payloads carry every given
// blocking key value.
func (r *Repository) FindByBlockingKeys(ctx context.Context, keys map[string]any, opts models.QueryOptions) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.FindByBlockingKeys")
	defer span.End()

	filter := models.FilterCriteria{}
	for path, value := range keys {
		filter[path] = value
	}
	return r.FindAll(ctx, filter, opts)
}

// FindByIDs returns the stored records matching the requested ids, in
// request order. Missing ids are simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.FindByIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.SourceRecord{}, nil
	}

	sb := sourceRecordStruct.SelectFrom(recordsTable)
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	var rows []SourceRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source records by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get source records")
	}

	byID := make(map[string]models.SourceRecord, len(rows))
	for i := range rows {
		byID[rows[i].ID] = ToSourceRecord(&rows[i])
	}

	found := make([]models.SourceRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := byID[id]; ok {
			found = append(found, record)
		}
	}
	return found, nil
}

// FindAll returns the records matching the filter, ordered and paged per
// the query options. Equality conditions push down as a containment probe;
// operator conditions filter the returned rows in process, in which case
// paging also happens in process so pages stay full.
func (r *Repository) FindAll(ctx context.Context, filter models.FilterCriteria, opts models.QueryOptions) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.FindAll")
	defer span.End()

	if err := criteria.Validate(filter); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pushdown, residual := criteria.Split(filter)

	sb := sourceRecordStruct.SelectFrom(recordsTable)
	if err := applyContainment(sb.SelectBuilder, pushdown); err != nil {
		return nil, err
	}
	applyOrder(sb.SelectBuilder, opts)
	if len(residual) == 0 {
		if opts.Offset > 0 {
			sb.Offset(opts.Offset)
		}
		sb.Limit(opts.EffectiveLimit())
	}

	query, args := sb.Build()
	var rows []SourceRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to query source records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to query source records")
	}

	records := make([]models.SourceRecord, 0, len(rows))
	for i := range rows {
		record := ToSourceRecord(&rows[i])
		if !matchesResidual(record.Record, residual) {
			continue
		}
		records = append(records, record)
	}

	if len(residual) > 0 {
		if opts.Offset > 0 {
			if opts.Offset >= len(records) {
				return []models.SourceRecord{}, nil
			}
			records = records[opts.Offset:]
		}
		if limit := opts.EffectiveLimit(); len(records) > limit {
			records = records[:limit]
		}
	}

	if len(opts.Fields) > 0 {
		for i := range records {
			records[i].Record = recordstore.Project(records[i].Record, opts.Fields)
		}
	}
	return records, nil
}

// Count returns how many stored records match the filter.
func (r *Repository) Count(ctx context.Context, filter models.FilterCriteria) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.Count")
	defer span.End()

	if err := criteria.Validate(filter); err != nil {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pushdown, residual := criteria.Split(filter)

	// operator conditions cannot be pushed down, so counting them means
	// walking the rows the containment probe returns
	if len(residual) > 0 {
		sb := sourceRecordStruct.SelectFrom(recordsTable)
		if err := applyContainment(sb.SelectBuilder, pushdown); err != nil {
			return 0, err
		}

		query, args := sb.Build()
		var rows []SourceRecordRow
		if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to count source records")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count source records")
		}

		count := 0
		for i := range rows {
			if matchesResidual(rows[i].Record.Data, residual) {
				count++
			}
		}
		return count, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(recordsTable)
	if err := applyContainment(sb.SelectBuilder, pushdown); err != nil {
		return 0, err
	}

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count source records")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count source records")
	}
	return count, nil
}

// Insert stores a new record. Duplicate ids are rejected.
func (r *Repository) Insert(ctx context.Context, record models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.Insert")
	defer span.End()

	if record.ID == "" {
		return &errors.MergeValidationError{Reason: "record requires an id"}
	}

	row := FromSourceRecord(record, time.Now().UTC())
	ib := sourceRecordStruct.InsertInto(recordsTable, row)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &errors.DuplicateRecordError{ID: record.ID}
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to insert source record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert source record")
	}
	return nil
}

// Update replaces a stored record's payload.
func (r *Repository) Update(ctx context.Context, record models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(recordsTable)
	ub.Set(
		ub.Assign("record", database.JSONB[models.Record]{Data: record.Record}),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", record.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to update source record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update source record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.RecordNotFoundError{ID: record.ID}
	}
	return nil
}

// Delete removes a stored record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(recordsTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete source record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete source record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.RecordNotFoundError{ID: id}
	}
	return nil
}

// BatchInsert stores the records atomically: one duplicate rejects the
// whole batch.
func (r *Repository) BatchInsert(ctx context.Context, records []models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.BatchInsert")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			return &errors.MergeValidationError{Reason: "record requires an id"}
		}

		ib := sourceRecordStruct.InsertInto(recordsTable, FromSourceRecord(record, now))
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			var pqErr *pq.Error
			if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return &errors.DuplicateRecordError{ID: record.ID}
			}
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to batch insert source records")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to batch insert source records")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"record_count": len(records)}).Info("Batch inserted source records")
	return nil
}

// BatchUpdate replaces the records atomically: one missing id rejects the
// whole batch.
func (r *Repository) BatchUpdate(ctx context.Context, records []models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.BatchUpdate")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, record := range records {
		ub := database.NewUpdateBuilder()
		ub.Update(recordsTable)
		ub.Set(
			ub.Assign("record", database.JSONB[models.Record]{Data: record.Record}),
			ub.Assign("updated_at", now),
		)
		ub.Where(ub.Equal("id", record.ID))

		query, args := ub.Build()
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to batch update source records")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to batch update source records")
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return &errors.RecordNotFoundError{ID: record.ID}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}
	return nil
}

// Transaction runs fn inside one database transaction. Nested repository
// calls made with the callback's context join it.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "records.Repository.Transaction")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// applyContainment adds a JSONB containment probe for the pushdown filter.
func applyContainment(sb *sqlbuilder.SelectBuilder, pushdown models.FilterCriteria) error {
	if len(pushdown) == 0 {
		return nil
	}

	doc, err := criteria.ContainmentJSON(pushdown)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid filter: %v", err))
	}
	sb.Where(fmt.Sprintf("record @> %s::jsonb", sb.Var(string(doc))))
	return nil
}

// applyOrder maps the order-by target onto a column or a JSONB path.
// Sorting on a payload path compares jsonb values, so numbers order
// numerically and strings lexically.
func applyOrder(sb *sqlbuilder.SelectBuilder, opts models.QueryOptions) {
	if opts.OrderBy == "" {
		return
	}

	direction := "ASC"
	if opts.OrderDirection == models.SortDesc {
		direction = "DESC"
	}

	switch opts.OrderBy {
	case "id", "created_at", "updated_at":
		sb.OrderBy(fmt.Sprintf("%s %s", opts.OrderBy, direction))
	default:
		sb.OrderBy(fmt.Sprintf("record #> '%s' %s", jsonbPathLiteral(opts.OrderBy), direction))
	}
}

// jsonbPathLiteral renders a dot path as a Postgres text-array literal.
func jsonbPathLiteral(path string) string {
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(seg, "'", "''")
	}
	return "{" + strings.Join(segments, ",") + "}"
}

func matchesResidual(record models.Record, residual []criteria.Condition) bool {
	for _, cond := range residual {
		if !criteria.Evaluate(record, cond) {
			return false
		}
	}
	return true
}
