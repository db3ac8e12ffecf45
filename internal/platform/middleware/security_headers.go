package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// The dashboard uses inline styles and links out to imaging viewers.
	pageCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'"
)

// SecurityHeaders sets security response headers on every request. Paths
// under pagePrefixes get a CSP that allows the server-rendered dashboard to
// load; everything else is treated as a JSON API.
func SecurityHeaders(pagePrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// Clinical data must not be cached by intermediaries.
			h.Set("Cache-Control", "no-store")

			csp := apiCSP
			path := c.Request().URL.Path
			for _, p := range pagePrefixes {
				if strings.HasPrefix(path, p) {
					csp = pageCSP
					break
				}
			}
			h.Set("Content-Security-Policy", csp)

			return next(c)
		}
	}
}
