package middleware

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const RequestIDHeader = "X-Request-ID"

type ctxKeyRequestID struct{}

// RequestIDFromContext returns the request id stored by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return v
}

// RequestID reuses an incoming X-Request-ID or generates one, exposing it as
// the "request_id" context value, on the request context and in the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := strings.TrimSpace(req.Header.Get(RequestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}
			c.Set("request_id", id)
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), ctxKeyRequestID{}, id)))
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}
