package client

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

// MaxAuthRetries is how many times a request is replayed after a 401.
const MaxAuthRetries = 1

// TokenSource is the part of the session the interceptor needs.
type TokenSource interface {
	AccessToken() string
	// RefreshFrom refreshes the session unless its access token already
	// differs from staleToken.
	RefreshFrom(ctx context.Context, staleToken string) error
	Logout(ctx context.Context) error
}

// Interceptor attaches the session token to every request and recovers
// from a single 401 by refreshing the session.
type Interceptor struct {
	next   Doer
	tokens TokenSource
	logger logging.Logger
}

func NewInterceptor(next Doer, tokens TokenSource, logger logging.Logger) *Interceptor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Interceptor{next: next, tokens: tokens, logger: logger}
}

// Execute sends req. A 401 triggers one refresh and one replay; if the
// refresh fails the session is logged out and the original error returned.
func (i *Interceptor) Execute(ctx context.Context, req Request) (*Response, error) {
	return i.execute(ctx, req, 0)
}

func (i *Interceptor) execute(ctx context.Context, req Request, attempt int) (*Response, error) {
	token := i.tokens.AccessToken()

	resp, err := i.next.Do(ctx, req, token)
	if err == nil || !errors.Is(err, common.ErrUnauthorized) {
		return resp, err
	}
	if attempt >= MaxAuthRetries || token == "" {
		return nil, err
	}

	if rerr := i.tokens.RefreshFrom(ctx, token); rerr != nil {
		i.logger.Warn(ctx, "token refresh failed", "path", req.Path, "err", rerr)
		// The session usually logs itself out on a failed refresh.
		if i.tokens.AccessToken() == "" {
			return nil, err
		}
		if lerr := i.tokens.Logout(ctx); lerr != nil {
			i.logger.Error(ctx, "logout after failed refresh", "err", lerr)
		}
		return nil, err
	}

	i.logger.Debug(ctx, "token refreshed, replaying request", "path", req.Path)
	return i.execute(ctx, req, attempt+1)
}

// Fetch executes req and normalizes the answer.
func (i *Interceptor) Fetch(ctx context.Context, req Request) (Payload, error) {
	resp, err := i.Execute(ctx, req)
	if err != nil {
		return Payload{}, err
	}
	return Normalize(resp.Body)
}
