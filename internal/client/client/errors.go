package client

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("api error: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("api error: %d %s: %s", e.Code, http.StatusText(e.Code), truncate(e.Body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
