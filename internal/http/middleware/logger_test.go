package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certstamp/internal/logging"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Logger(logging.New(&buf, "info", nil)))
	app.Get("/certificates/:hash/qr", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusAccepted).SendString("png")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/certificates/abc/qr", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "http.request", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/certificates/abc/qr", entry["path"])
	assert.Equal(t, "/certificates/:hash/qr", entry["route"])
	assert.Equal(t, float64(fiber.StatusAccepted), entry["status"])
	assert.Equal(t, float64(3), entry["bytes"])
	assert.Contains(t, entry, "latency_ms")
	assert.NotEmpty(t, entry["ts"])
}

func TestLogger_ErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(Logger(logging.New(&buf, "info", nil)))
	app.Get("/health", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "down")
	})

	_, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(fiber.StatusServiceUnavailable), entry["status"])
	assert.Equal(t, "error", entry["level"])
	assert.NotContains(t, entry, "request_id")
	assert.NotContains(t, entry, "trace_id")
}
