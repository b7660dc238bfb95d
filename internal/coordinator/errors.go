package coordinator

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned for non-2xx coordinator responses.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Body)
}

// IsTerminal reports whether err will not go away by retrying the same
// request: a 4xx other than 408/429, or a malformed response.
func IsTerminal(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusRequestTimeout && se.Code != http.StatusTooManyRequests
	}
	var de decodeError
	return errors.As(err, &de)
}

// Kind classifies err for logs and metrics: "terminal" or "retryable".
func Kind(err error) string {
	if IsTerminal(err) {
		return "terminal"
	}
	return "retryable"
}

// decodeError wraps a malformed JSON response.
type decodeError struct {
	op  string
	err error
}

func (e decodeError) Error() string { return fmt.Sprintf("%s: decode response: %v", e.op, e.err) }
func (e decodeError) Unwrap() error { return e.err }
