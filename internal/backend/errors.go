package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedPage is returned when a listing body matches none of the
// known page shapes.
var ErrMalformedPage = errors.New("malformed message page")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: upstream returned HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: upstream returned HTTP %d", e.Op, e.StatusCode)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
