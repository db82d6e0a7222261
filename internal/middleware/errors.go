package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// ErrorHandler renders classified errors as JSON. Store and configuration
// faults are logged and replaced by a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody{Error: "http_error", Message: fe.Message})
		}

		kind := apperr.KindOf(err)
		body := errorBody{Error: string(kind), Message: err.Error()}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			body.Reason = appErr.Reason
			if appErr.Message != "" {
				body.Message = appErr.Message
			}
		}
		if !apperr.Public(kind) {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("kind", string(kind)),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
			body.Reason = ""
			body.Message = "internal server error"
		}
		return c.Status(apperr.HTTPStatus(kind)).JSON(body)
	}
}
