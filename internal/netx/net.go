// Package netx contains HTTP plumbing shared by the REST transport:
// JSON request construction, bounded body reads and network-failure
// classification.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// MaxBodySize caps how much of a response body is read into memory.
const MaxBodySize = 32 << 20

// NewJSONRequest builds a request whose body is body marshaled as JSON.
// A nil body produces a request without a body.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// ReadBody drains and closes resp.Body, reading at most MaxBodySize bytes.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
}

// IsNetworkError reports whether err means the server could not be reached
// or did not answer in time, as opposed to answering with an error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// IsGatewayStatus reports statuses returned by proxies when the upstream API
// is unreachable; these are treated like a network failure.
func IsGatewayStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
