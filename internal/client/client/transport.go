package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/netx"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultUploadTimeout  = 120 * time.Second
)

// HTTPTransport sends JSON requests to the API.
type HTTPTransport struct {
	baseURL       string
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
}

// NewHTTPTransport returns a transport rooted at baseURL. A nil hc uses a
// fresh http.Client; zero timeouts fall back to the defaults.
func NewHTTPTransport(baseURL string, hc *http.Client, timeout, uploadTimeout time.Duration) *HTTPTransport {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	return &HTTPTransport{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          hc,
		timeout:       timeout,
		uploadTimeout: uploadTimeout,
	}
}

func (t *HTTPTransport) url(req Request) string {
	u := t.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// Do sends req and returns the body of a 2xx answer.
func (t *HTTPTransport) Do(ctx context.Context, req Request, accessToken string) (*Response, error) {
	timeout := t.timeout
	if req.Upload {
		timeout = t.uploadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hreq, err := netx.NewJSONRequest(ctx, req.Method, t.url(req), req.Body)
	if err != nil {
		return nil, err
	}
	if accessToken != "" {
		hreq.Header.Set(common.AuthorizationHeaderName, "Bearer "+accessToken)
	}
	if req.IdempotencyKey != "" {
		hreq.Header.Set(common.IdempotencyKeyHeaderName, req.IdempotencyKey)
	}

	resp, err := t.http.Do(hreq)
	if err != nil {
		return nil, mapTransportError(err)
	}

	body, err := netx.ReadBody(resp)
	if err != nil {
		return nil, mapTransportError(err)
	}

	if err := mapStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if netx.IsNetworkError(err) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return fmt.Errorf("http error: %w", err)
}

func mapStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	se := &StatusError{Code: code, Body: body}
	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", common.ErrUnauthorized, se)
	case netx.IsGatewayStatus(code):
		return fmt.Errorf("%w: %w", common.ErrUnavailable, se)
	default:
		return se
	}
}
