package lineage

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/graph"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Handler handles merge lineage query endpoints
type Handler struct {
	lineage *graph.Lineage
	logger  ectologger.Logger
}

// NewHandler creates a new lineage handler
func NewHandler(lineage *graph.Lineage, logger ectologger.Logger) *Handler {
	return &Handler{
		lineage: lineage,
		logger:  logger,
	}
}

// Register registers the lineage routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.GetLineage)
}

func (h *Handler) requireLineage(c echo.Context) (*graph.Lineage, error) {
	// Prefer the explicitly provided projection (useful for tests), but
	// fall back to DI-from-context like the other route packages.
	if h != nil && h.lineage != nil {
		return h.lineage, nil
	}

	ctx := c.Request().Context()
	_, lin, err := ectoinject.GetContext[*graph.Lineage](ctx)
	if err != nil || lin == nil {
		// 503 because the graph projection is optional and can be disabled.
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "lineage projection unavailable")
	}
	return lin, nil
}

// GetLineage returns the merge lineage neighborhood of a golden record
func (h *Handler) GetLineage(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "lineage_handler.GetLineage")
	defer span.End()

	lin, err := h.requireLineage(c)
	if err != nil {
		return err
	}

	goldenRecordID := c.Param("id")
	if goldenRecordID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "golden record id is required")
	}

	depth := 1
	if depthStr := c.QueryParam("depth"); depthStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("depth", &parsed).BindError(); err == nil && parsed > 0 {
			depth = parsed
		}
	}

	result, err := lin.GetLineage(ctx, goldenRecordID, depth)
	if err != nil {
		return err
	}

	if !result.Found {
		return httperror.NewHTTPError(http.StatusNotFound, "no lineage recorded for golden record '"+goldenRecordID+"'")
	}

	return c.JSON(http.StatusOK, result)
}
