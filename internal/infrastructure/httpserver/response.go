package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/userapi"
)

// Response represents a standard JSON response for machine endpoints.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an error in the JSON response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPError interface allows application errors to define their HTTP representation.
type HTTPError interface {
	error
	HTTPStatus() int
	HTTPCode() string
	HTTPMessage() string
}

// RespondJSON sends a successful JSON response.
func RespondJSON(c echo.Context, code int, data any) error {
	return c.JSON(code, Response{
		Success: true,
		Data:    data,
	})
}

// RespondOK sends a 200 OK response with data.
func RespondOK(c echo.Context, data any) error {
	return RespondJSON(c, http.StatusOK, data)
}

// RespondError sends an error JSON response based on the error type.
func RespondError(c echo.Context, err error) error {
	statusCode, apiError := MapError(err)
	return c.JSON(statusCode, Response{
		Success: false,
		Error:   apiError,
	})
}

// RespondErrorWithCode sends an error JSON response with a specific HTTP status code.
func RespondErrorWithCode(c echo.Context, code int, errorCode, message string) error {
	return c.JSON(code, Response{
		Success: false,
		Error: &Error{
			Code:    errorCode,
			Message: message,
		},
	})
}

// MapError maps an error to an HTTP status code and response error.
func MapError(err error) (int, *Error) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.HTTPStatus(), &Error{
			Code:    httpErr.HTTPCode(),
			Message: httpErr.HTTPMessage(),
		}
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		return echoErr.Code, &Error{
			Code:    codeFor(echoErr.Code),
			Message: http.StatusText(echoErr.Code),
		}
	}

	// A failed backend call is a gateway problem from the browser's point of view,
	// except for client errors the backend reported, which pass through.
	var reqErr *userapi.RequestError
	if errors.As(err, &reqErr) {
		status := http.StatusBadGateway
		if reqErr.Status >= 400 && reqErr.Status < 500 {
			status = reqErr.Status
		}
		return status, &Error{
			Code:    "BACKEND_ERROR",
			Message: reqErr.Message,
		}
	}

	return http.StatusInternalServerError, &Error{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		if status >= http.StatusInternalServerError {
			return "INTERNAL_ERROR"
		}
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// PageErrorFunc renders an error for a browser request.
type PageErrorFunc func(c echo.Context, status int, message string) error

// ErrorHandler returns an echo.HTTPErrorHandler that renders HTML through page for
// browser requests and the JSON envelope for everything else.
func ErrorHandler(logger *slog.Logger, page PageErrorFunc) echo.HTTPErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, apiErr := MapError(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				slog.String("path", c.Request().URL.Path),
				slog.String("error", err.Error()),
			)
		}

		var writeErr error
		switch {
		case c.Request().Method == http.MethodHead:
			writeErr = c.NoContent(status)
		case page != nil && wantsHTML(c.Request()):
			writeErr = page(c, status, apiErr.Message)
		default:
			writeErr = c.JSON(status, Response{Success: false, Error: apiErr})
		}

		if writeErr != nil {
			logger.ErrorContext(c.Request().Context(), "failed to write error response",
				slog.String("error", writeErr.Error()),
			)
		}
	}
}

func wantsHTML(req *http.Request) bool {
	if req.Header.Get("HX-Request") != "" {
		return true
	}
	return strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
