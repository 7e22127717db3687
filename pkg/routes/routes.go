// Package routes assembles the toolkit's HTTP surface. Handlers resolve
// their dependencies from the request context, so embedding applications
// mount their DI container with a middleware of their own and call NewServer
// for everything else.
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/8arr3tt/have-we-met-sub007/pkg/middleware"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/health"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/lineage"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/match"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/merge"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/reviewqueue"
	"github.com/8arr3tt/have-we-met-sub007/pkg/routes/unmerge"
)

// Options carries the pieces the server needs beyond DI-resolved handlers.
type Options struct {
	ServiceName string
	Logger      ectologger.Logger
	// Health serves /health when set.
	Health *health.Checker
	// Lineage serves /api/v1/lineage when the graph projection is enabled.
	Lineage *lineage.Handler
	// Middleware runs after the built-in middleware; the usual mount point
	// for the embedder's DI container.
	Middleware []echo.MiddlewareFunc
}

// NewServer assembles the echo instance: a span per request, request-scoped
// context values, leveled request logging, the JSON error envelope, and
// every route group under /api/v1.
func NewServer(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(opts.Logger)

	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(opts.Logger))
	e.Use(opts.Middleware...)

	if opts.Health != nil {
		opts.Health.Register(e.Group("/health"))
	}

	api := e.Group("/api/v1")
	match.Register(api.Group("/match"))
	merge.Register(api.Group("/merge"))
	unmerge.Register(api.Group("/unmerge"))
	provenance.Register(api.Group("/provenance"))
	reviewqueue.Register(api.Group("/queue"))

	if opts.Lineage != nil {
		opts.Lineage.Register(api.Group("/lineage"))
	}

	return e
}
