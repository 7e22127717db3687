package reviewqueue

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/reviewqueue"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

var validate = validator.New()

// Register registers review queue routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Enqueue)
	g.GET("/stats", Stats)
	g.GET("/:id", Get)
	g.DELETE("/:id", Delete)
	g.POST("/:id/confirm", Confirm)
	g.POST("/:id/reject", Reject)
	g.POST("/:id/merge", Merge)
}

// List returns queue items matching the filter query params
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.List")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	resp, err := manager.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Enqueue adds a borderline match to the review queue
func Enqueue(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Enqueue")
	defer span.End()

	var req models.EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	item, err := manager.Add(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, item)
}

// Get returns a single queue item by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Get")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "queue item id is required")
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	item, err := manager.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Delete removes a queue item
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Delete")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "queue item id is required")
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	if err := manager.Delete(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// Confirm records a confirm decision on a queue item
func Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Confirm")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "queue item id is required")
	}

	var req models.DecideRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	item, err := manager.Confirm(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Reject records a reject decision on a queue item
func Reject(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Reject")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "queue item id is required")
	}

	var req models.DecideRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	item, err := manager.Reject(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Merge records a merge decision on a queue item
func Merge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Merge")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "queue item id is required")
	}

	var req models.DecideRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	item, err := manager.Merge(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Stats returns an aggregate snapshot of the queue
func Stats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reviewqueue_handler.Stats")
	defer span.End()

	ctx, manager, err := ectoinject.GetContext[*reviewqueue.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue manager")
	}

	stats, err := manager.Stats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

func parseFilter(c echo.Context) (models.QueueFilter, error) {
	filter := models.QueueFilter{}

	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.QueueStatus(strings.TrimSpace(s))
			switch status {
			case models.QueueStatusPending, models.QueueStatusReviewing, models.QueueStatusConfirmed,
				models.QueueStatusRejected, models.QueueStatusMerged, models.QueueStatusExpired:
				filter.Status = append(filter.Status, status)
			default:
				return filter, httperror.NewHTTPError(http.StatusBadRequest, "unknown status '"+string(status)+"'")
			}
		}
	}

	if raw := c.QueryParam("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Tags = append(filter.Tags, t)
			}
		}
	}

	if raw := c.QueryParam("min_priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "min_priority must be an integer")
		}
		filter.MinPriority = &p
	}

	since, err := parseTimeParam(c.QueryParam("since"), "since")
	if err != nil {
		return filter, err
	}
	filter.Since = since

	until, err := parseTimeParam(c.QueryParam("until"), "until")
	if err != nil {
		return filter, err
	}
	filter.Until = until

	filter.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	filter.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	if orderBy := c.QueryParam("order_by"); orderBy != "" {
		switch orderBy {
		case models.QueueOrderCreatedAt, models.QueueOrderPriority, models.QueueOrderUpdatedAt:
			filter.OrderBy = orderBy
		default:
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "unknown order_by column '"+orderBy+"'")
		}
	}

	switch dir := c.QueryParam("order_direction"); dir {
	case "":
	case string(models.SortAsc):
		filter.OrderDirection = models.SortAsc
	case string(models.SortDesc):
		filter.OrderDirection = models.SortDesc
	default:
		return filter, httperror.NewHTTPError(http.StatusBadRequest, "order_direction must be 'asc' or 'desc'")
	}

	return filter, nil
}

func parseTimeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, name+" must be an RFC3339 timestamp")
	}
	return &t, nil
}
