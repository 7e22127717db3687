package unmerge

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
	"github.com/8arr3tt/have-we-met-sub007/pkg/unmerge"
)

var validate = validator.New()

// Register registers unmerge routes
func Register(g *echo.Group) {
	g.POST("", Execute)
	g.GET("/:id/check", Check)
}

// Execute undoes a previous merge
func Execute(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unmerge_handler.Execute")
	defer span.End()

	var req models.UnmergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, executor, err := ectoinject.GetContext[*unmerge.Executor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get unmerge executor")
	}

	result, err := executor.Unmerge(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Check reports whether a golden record can be unmerged, without side
// effects
func Check(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unmerge_handler.Check")
	defer span.End()

	goldenRecordID := c.Param("id")
	if goldenRecordID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "golden record id is required")
	}

	ctx, executor, err := ectoinject.GetContext[*unmerge.Executor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get unmerge executor")
	}

	result, err := executor.CanUnmerge(ctx, goldenRecordID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
