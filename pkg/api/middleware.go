package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
)

// authMiddleware populates reqctx with the caller's identity and raw bearer
// token. When verifier is nil, auth is disabled: every request proceeds
// anonymously and owner filtering is skipped throughout the store layer.
func authMiddleware(verifier Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return next(c)
			}
			header := c.Request().Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			token := strings.TrimPrefix(header, "Bearer ")
			identity, err := verifier.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}
			ctx := reqctx.WithToken(reqctx.WithIdentity(c.Request().Context(), identity), token)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// instrumentationMiddleware records request counters and latency
// histograms per route template, grounded on the teacher's metrics
// middleware which tags by handler name rather than raw path (avoiding
// unbounded label cardinality from path parameters).
func instrumentationMiddleware(m *metrics.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			m.ObserveRequest(route, c.Request().Method, status, time.Since(start))
			return err
		}
	}
}

// requestLogger logs each request at Info with slog, matching the
// structured-logging style the rest of the codebase uses.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http_request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}
