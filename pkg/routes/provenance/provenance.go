package provenance

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Register registers provenance routes
func Register(g *echo.Group) {
	g.GET("/timeline", Timeline)
	g.GET("/source/:id", ListBySource)
	g.GET("/:id", Get)
	g.GET("/:id/fields/:field", FieldHistory)
}

// Get returns the merge attribution for a golden record
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "provenance_handler.Get")
	defer span.End()

	goldenRecordID := c.Param("id")
	if goldenRecordID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "golden record id is required")
	}

	ctx, tracker, err := ectoinject.GetContext[*provenance.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance tracker")
	}

	prov, err := tracker.Store().Get(ctx, goldenRecordID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, prov)
}

// ListBySource returns every merge a source record took part in
func ListBySource(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "provenance_handler.ListBySource")
	defer span.End()

	sourceRecordID := c.Param("id")
	if sourceRecordID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source record id is required")
	}

	query := models.ProvenanceQuery{}
	query.IncludeUnmerged, _ = strconv.ParseBool(c.QueryParam("include_unmerged"))
	query.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	query.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	sortOrder, err := parseSortOrder(c.QueryParam("sort_order"))
	if err != nil {
		return err
	}
	query.SortOrder = sortOrder

	ctx, tracker, err := ectoinject.GetContext[*provenance.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance tracker")
	}

	merges, err := tracker.MergesForSource(ctx, sourceRecordID, query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, merges)
}

// Timeline returns the merges inside a time window, oldest first by default
func Timeline(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "provenance_handler.Timeline")
	defer span.End()

	query := models.TimelineQuery{}
	query.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	query.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	since, err := parseTimeParam(c.QueryParam("since"), "since")
	if err != nil {
		return err
	}
	query.Since = since

	until, err := parseTimeParam(c.QueryParam("until"), "until")
	if err != nil {
		return err
	}
	query.Until = until

	sortOrder, err := parseSortOrder(c.QueryParam("sort_order"))
	if err != nil {
		return err
	}
	query.SortOrder = sortOrder

	ctx, tracker, err := ectoinject.GetContext[*provenance.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance tracker")
	}

	merges, err := tracker.Timeline(ctx, query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, merges)
}

// FieldHistory returns the recorded attributions of one golden record field
func FieldHistory(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "provenance_handler.FieldHistory")
	defer span.End()

	goldenRecordID := c.Param("id")
	field := c.Param("field")
	if goldenRecordID == "" || field == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "golden record id and field are required")
	}

	ctx, tracker, err := ectoinject.GetContext[*provenance.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance tracker")
	}

	history, err := tracker.FieldHistory(ctx, goldenRecordID, field)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, history)
}

func parseSortOrder(raw string) (models.SortOrder, error) {
	switch raw {
	case "":
		return "", nil
	case string(models.SortAsc):
		return models.SortAsc, nil
	case string(models.SortDesc):
		return models.SortDesc, nil
	default:
		return "", httperror.NewHTTPError(http.StatusBadRequest, "sort_order must be 'asc' or 'desc'")
	}
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
