package client

import (
	"context"
	"net/url"
)

// Request describes one API call. Path is relative to the server base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Upload selects the longer upload timeout.
	Upload bool

	// IdempotencyKey is sent as the Idempotency-Key header when set.
	IdempotencyKey string
}

// Response is a successful (2xx) answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Doer performs a single request with the given access token.
type Doer interface {
	Do(ctx context.Context, req Request, accessToken string) (*Response, error)
}

// Executor performs a request on behalf of the current session.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
