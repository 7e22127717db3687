package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/context"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Logger emits one structured line per request, leveled by response status.
// It runs after the Context middleware, so the request id is already on the
// request context.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			latency := time.Since(start)

			ctx := req.Context()
			requestID := context.GetRequestID(ctx)
			if requestID == "" {
				requestID = req.Header.Get(echo.HeaderXRequestID)
			}

			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    requestID,
				"trace_id":      tracing.GetTraceID(ctx),
				"method":        req.Method,
				"route":         c.Path(),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"user_agent":    req.UserAgent(),
				"latency_ms":    latency.Milliseconds(),
				"response_size": res.Size,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request")
			default:
				log.Info("Request")
			}

			return nil
		}
	}
}
