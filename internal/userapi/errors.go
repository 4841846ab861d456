package userapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBodySize caps how much of an error body is read for message extraction.
const maxErrorBodySize = 64 << 10

// RequestError is returned for every failed backend call, whether the server answered
// with a non-2xx status or the request never completed.
// Status is zero for transport and decoding failures.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

// Error returns the user-facing message verbatim.
func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap returns the underlying transport or decoding error, if any.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// errorBody is the subset of a JSON error body the client understands.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// statusError builds a RequestError from a non-2xx response.
// The message comes from the body's "message" or "error" field, falling back to the status text.
func statusError(resp *http.Response) *RequestError {
	msg := statusText(resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err == nil && len(data) > 0 {
		var body errorBody
		if json.Unmarshal(data, &body) == nil {
			switch {
			case body.Message != "":
				msg = body.Message
			case body.Error != "":
				msg = body.Error
			}
		}
	}

	return &RequestError{Status: resp.StatusCode, Message: msg}
}

// transportError wraps a failure that happened before or after the HTTP exchange.
func transportError(err error) *RequestError {
	return &RequestError{Message: err.Error(), Err: err}
}

// statusText returns the canonical text for code, or "HTTP {code}" when there is none.
func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", code)
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}
