// Package services contains the operations the propsync UI layer calls:
// authentication and the property-management reads and writes that run
// through the offline-first data layer.
package services

import (
	"context"

	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

// SessionManager is the part of session.Manager the services use.
type SessionManager interface {
	Login(ctx context.Context, creds models.Credentials) error
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	Restore(ctx context.Context) (bool, error)
	CheckAndRefreshIfNeeded(ctx context.Context) bool
}

// AuthService defines authentication operations for the UI.
//
// Contract:
//   - Login: authenticate (online, or offline against the cached identity)
//     and prefetch the property list for offline use.
//   - Logout: always succeeds locally.
//   - RefreshToken: force a token refresh.
//   - Startup: restore a persisted session and refresh it when expired.
type AuthService interface {
	Login(ctx context.Context, email string, password []byte) error
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context) error
	Startup(ctx context.Context) (bool, error)
}

type authService struct {
	session    SessionManager
	properties PropertyService
	logger     logging.Logger
}

// NewAuthService constructs an AuthService. properties may be nil, which
// disables the login-time prefetch.
func NewAuthService(sm SessionManager, properties PropertyService, logger logging.Logger) AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &authService{session: sm, properties: properties, logger: logger.With("service", "auth")}
}

func (a *authService) Login(ctx context.Context, email string, password []byte) error {
	if err := a.session.Login(ctx, models.Credentials{Email: email, Password: password}); err != nil {
		return err
	}
	a.prefetch(ctx)
	return nil
}

// prefetch warms the cache so the property list is available offline.
func (a *authService) prefetch(ctx context.Context) {
	if a.properties == nil {
		return
	}
	res := a.properties.FetchProperties(ctx, cache.Options{ForceRefresh: true})
	switch {
	case !res.Success:
		a.logger.Warn(ctx, "property prefetch failed", "err", res.Err)
	case res.FromCache:
		a.logger.Debug(ctx, "property prefetch served from cache")
	default:
		a.logger.Debug(ctx, "properties prefetched", "count", len(res.Data))
	}
}

func (a *authService) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}

func (a *authService) RefreshToken(ctx context.Context) error {
	return a.session.Refresh(ctx)
}

func (a *authService) Startup(ctx context.Context) (bool, error) {
	ok, err := a.session.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	return a.session.CheckAndRefreshIfNeeded(ctx), nil
}
