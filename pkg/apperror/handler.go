package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

var statusCodes = map[int]string{
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusBadRequest:          "bad_request",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation_error",
}

// HTTPErrorHandler returns an Echo error handler that renders errors in the
// {"error": {"code", "message"}} envelope.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := ToHTTPError(err)

		var he *echo.HTTPError
		if !isAppError(err) && errors.As(err, &he) {
			code = he.Code
			errorObj := map[string]any{"code": "internal_error", "message": http.StatusText(he.Code)}
			if msg, ok := he.Message.(string); ok {
				errorObj["message"] = msg
			}
			if name, ok := statusCodes[he.Code]; ok {
				errorObj["code"] = name
			}
			body = map[string]any{"error": errorObj}
		}

		if code >= 500 {
			log.Error("request error",
				slog.Int("status", code),
				slog.String("error", err.Error()),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func isAppError(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr)
}
