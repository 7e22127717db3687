package reviewqueue

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Repository is the Postgres review queue adapter. Timestamps and ids are
// owned by the queue manager; the adapter writes items as given.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ models.QueueAdapter = (*Repository)(nil)

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Insert(ctx context.Context, item *models.QueueItem) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Insert")
	defer span.End()

	if item == nil || item.ID == "" {
		return &errors.QueueOperationError{Op: "insert", Cause: fmt.Errorf("queue item requires an id")}
	}

	ib := queueItemStruct.InsertInto(queueTable, FromQueueItem(item))
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": item.ID}).Error("Failed to insert queue item")
		return &errors.QueueOperationError{Op: "insert", Cause: err}
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.QueueOperationError{Op: "insert", Cause: fmt.Errorf("queue item '%s' already exists", item.ID)}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":       item.ID,
		"status":   item.Status,
		"priority": item.Priority,
	}).Info("Inserted queue item")
	return nil
}

func (r *Repository) Update(ctx context.Context, item *models.QueueItem) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Update")
	defer span.End()

	if item == nil || item.ID == "" {
		return &errors.QueueOperationError{Op: "update", Cause: fmt.Errorf("queue item requires an id")}
	}

	ub := queueItemStruct.Update(queueTable, FromQueueItem(item))
	ub.Where(ub.Equal("id", item.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": item.ID}).Error("Failed to update queue item")
		return &errors.QueueOperationError{Op: "update", Cause: err}
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.QueueItemNotFoundError{ID: item.ID}
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Get")
	defer span.End()

	sb := queueItemStruct.SelectFrom(queueTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row QueueItemRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, &errors.QueueItemNotFoundError{ID: id}
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get queue item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue item")
	}

	return ToQueueItem(&row), nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(queueTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete queue item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete queue item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.QueueItemNotFoundError{ID: id}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted queue item")
	return nil
}

func (r *Repository) List(ctx context.Context, filter models.QueueFilter) ([]*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.List")
	defer span.End()

	sb := queueItemStruct.SelectFrom(queueTable)
	applyFilter(sb, filter)

	orderBy := models.QueueOrderCreatedAt
	switch filter.OrderBy {
	case models.QueueOrderPriority, models.QueueOrderUpdatedAt:
		orderBy = filter.OrderBy
	}
	direction := "ASC"
	if filter.OrderDirection == models.SortDesc {
		direction = "DESC"
	}
	sb.OrderBy(orderBy+" "+direction, "id ASC")

	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()
	var rows []QueueItemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list queue items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list queue items")
	}

	items := make([]*models.QueueItem, 0, len(rows))
	for i := range rows {
		items = append(items, ToQueueItem(&rows[i]))
	}
	return items, nil
}

func (r *Repository) Count(ctx context.Context, filter models.QueueFilter) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(queueTable)
	applyFilter(sb, filter)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count queue items")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count queue items")
	}
	return count, nil
}

// applyFilter adds the selection criteria shared by List and Count. Tag
// filtering requires every requested tag to be present, which maps to array
// containment.
func applyFilter(sb *database.SelectBuilder, filter models.QueueFilter) {
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		sb.Where(sb.In("status", sqlbuilder.Flatten(statuses)...))
	}
	if len(filter.Tags) > 0 {
		sb.Where(fmt.Sprintf("tags @> %s", sb.Var(pq.StringArray(filter.Tags))))
	}
	if filter.MinPriority != nil {
		sb.Where(sb.GreaterEqualThan("priority", *filter.MinPriority))
	}
	if filter.Since != nil {
		sb.Where(sb.GreaterEqualThan("created_at", *filter.Since))
	}
	if filter.Until != nil {
		sb.Where(sb.LessEqualThan("created_at", *filter.Until))
	}
}
