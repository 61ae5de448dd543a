package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"certstamp/internal/http/middleware"
)

// Machine-readable codes returned in the error envelope.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// errorPayload is the body of every non-2xx JSON response.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError sends the error envelope. message must be safe to show callers;
// internal errors are logged by the service, never echoed here.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	rid, _ := c.Locals(middleware.RequestIDLocalKey).(string)
	return c.Status(status).JSON(errorPayload{
		RequestID: rid,
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// fallbackErrors covers statuses fiber raises before a handler runs.
var fallbackErrors = map[int]errorEnvelope{
	fiber.StatusBadRequest:            {CodeBadRequest, "bad request"},
	fiber.StatusNotFound:              {CodeNotFound, "resource not found"},
	fiber.StatusMethodNotAllowed:      {CodeMethodNotAllowed, "method not allowed"},
	fiber.StatusRequestEntityTooLarge: {CodeFileTooLarge, "uploaded file exceeds the size limit"},
	fiber.StatusServiceUnavailable:    {CodeServiceUnavailable, "service unavailable"},
}

// ErrorHandler is the fiber.Config ErrorHandler: routing errors, body limit
// violations and unhandled errors all leave in the standard envelope.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		env, ok := fallbackErrors[status]
		if !ok {
			status = fiber.StatusInternalServerError
			env = errorEnvelope{CodeInternal, "internal server error"}
		}
		return writeError(c, status, env.Code, env.Message)
	}
}
