package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const unexpectedErrorMessage = "An unexpected error occurred"

var categoryStatus = map[goerrors.Category]int{
	goerrors.CategoryValidation:       router.StatusBadRequest,
	goerrors.CategoryBadInput:         router.StatusBadRequest,
	goerrors.CategoryConflict:         router.StatusConflict,
	goerrors.CategoryNotFound:         router.StatusNotFound,
	goerrors.CategoryAuth:             router.StatusUnauthorized,
	goerrors.CategoryAuthz:            router.StatusForbidden,
	goerrors.CategoryRateLimit:        router.StatusTooManyRequests,
	goerrors.CategoryMethodNotAllowed: router.StatusMethodNotAllowed,
}

// StatusForError maps an error to the HTTP status the boundary reports.
// The explicit code wins, then the category, anything else is a 500.
func StatusForError(err error) int {
	if err == nil {
		return router.StatusOK
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return router.StatusInternalServerError
	}

	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	if status, ok := categoryStatus[richErr.Category]; ok {
		return status
	}

	return router.StatusInternalServerError
}

// ErrorEnvelope renders err as the failure body. Messages of 5xx errors
// are replaced so storage details never reach the client.
func ErrorEnvelope(err error) (int, map[string]any) {
	status := StatusForError(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return status, map[string]any{"success": false, "message": fe.Message}
	}

	richErr := goerrors.MapToError(err, nil)

	body := map[string]any{"success": false, "message": richErr.Message}
	if status >= router.StatusInternalServerError {
		body["message"] = unexpectedErrorMessage
		body["code"] = TextCodeInternal
	} else if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	if len(richErr.ValidationErrors) > 0 {
		body["errors"] = richErr.ValidationErrors
	}

	return status, body
}

// SendError writes the failure envelope
func SendError(ctx router.Context, err error) error {
	status, body := ErrorEnvelope(err)
	return ctx.JSON(status, body)
}

// SendSuccess writes the success envelope, data keys sit next to success and message
func SendSuccess(ctx router.Context, status int, message string, data map[string]any) error {
	body := map[string]any{}
	for k, v := range data {
		body[k] = v
	}
	body["success"] = true
	body["message"] = message
	return ctx.JSON(status, body)
}

// FiberErrorHandler is the app level error handler. It keeps the
// envelope for unmatched routes and errors no handler wrote out.
func FiberErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		status, body := ErrorEnvelope(err)
		if status >= router.StatusInternalServerError {
			logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(body)
	}
}
