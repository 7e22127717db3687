package match

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/matching"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

var validate = validator.New()

// Register registers matching routes
func Register(g *echo.Group) {
	g.POST("/compare", Compare)
	g.POST("/find", FindMatches)
}

// Compare scores a single record pair field by field
func Compare(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "match_handler.Compare")
	defer span.End()

	var req models.MatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := resolveEngine(ctx, req.Config)
	if err != nil {
		return err
	}

	breakdown, err := engine.Compare(ctx, req.Pair)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.MatchResponse{
		Pair:      req.Pair,
		Breakdown: breakdown,
	})
}

// FindMatches ranks one record against a candidate set
func FindMatches(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "match_handler.FindMatches")
	defer span.End()

	var req models.FindMatchesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := resolveEngine(ctx, req.Config)
	if err != nil {
		return err
	}

	resp, err := engine.FindMatches(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// resolveEngine returns the shared match engine, or a one-off engine when
// the request carries its own config.
func resolveEngine(ctx context.Context, override *models.MatchConfig) (context.Context, *matching.Engine, error) {
	if override == nil {
		ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
		if err != nil {
			return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match engine")
		}
		return ctx, engine, nil
	}

	ctx, logger, err := ectoinject.GetContext[ectologger.Logger](ctx)
	if err != nil {
		return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get logger")
	}

	engine, err := matching.NewEngine(*override, logger)
	if err != nil {
		return ctx, nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ctx, engine, nil
}
