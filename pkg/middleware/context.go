package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/8arr3tt/have-we-met-sub007/pkg/context"
)

const (
	// HeaderUserID is the header key for the authenticated user
	HeaderUserID = "X-User-ID"
	// HeaderCorrelationID is the header key for the correlation ID
	HeaderCorrelationID = "X-Correlation-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			// correlation id falls back to the request id so every event
			// emitted downstream stays traceable
			correlationID := req.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = requestID
			}

			userID := req.Header.Get(HeaderUserID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetCorrelationID(ctx, correlationID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetReferer(ctx, req.Referer())
			ctx = context.SetUserID(ctx, userID)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
