package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"certstamp/internal/logging"
)

// Logger writes one "http.request" record per request through logger.
// request_id and trace_id come from the user context (see RequestID and
// logging.New), so the access log lines up with service logs.
//
// Fields: method, path, route, status, bytes, latency_ms.
// Responses with status >= 500 are logged at error level.
func Logger(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}

		logger.LogAttrs(requestContext(c), level, "http.request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", c.Route().Path),
			slog.Int("status", status),
			slog.Int("bytes", len(c.Response().Body())),
			slog.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
		)
		return err
	}
}

// requestContext is the user context, falling back to the locals value when a
// handler replaced the context without the request ID.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if rid, ok := c.Locals(RequestIDLocalKey).(string); ok && rid != "" && logging.RequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, rid)
	}
	return ctx
}
