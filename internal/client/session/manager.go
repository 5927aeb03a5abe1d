// Package session owns the access/refresh token pair. It logs in (falling
// back to a locally verified cached session when the server is unreachable),
// detects token expiry, refreshes with at most one refresh in flight and
// logs out, clearing every piece of user data kept on the device.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/cryptox"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Keys under which session material is persisted. They live outside the
// cache prefix so cache eviction never touches them.
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyIdentity     = "auth_identity"
)

const identitySaltSize = 16

// AuthAPI is the remote side of authentication.
type AuthAPI interface {
	Login(ctx context.Context, creds models.Credentials) (models.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.Tokens, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// Storage is the part of the storage adapter the manager uses.
type Storage interface {
	PutSensitive(ctx context.Context, key string, value any) error
	GetSensitive(ctx context.Context, key string, out any) bool
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

// QueueClearer empties the persisted offline action queue.
type QueueClearer interface {
	Clear(ctx context.Context) error
}

type Manager struct {
	api     AuthAPI
	store   *state.Store
	storage Storage
	queue   QueueClearer
	logger  logging.Logger
	now     func() time.Time

	refreshes singleflight.Group
}

func NewManager(api AuthAPI, store *state.Store, st Storage, queue QueueClearer, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		api:     api,
		store:   store,
		storage: st,
		queue:   queue,
		logger:  logger.With("component", "session"),
		now:     time.Now,
	}
}

// AccessToken returns the current access token, or "" when there is none.
func (m *Manager) AccessToken() string {
	return m.store.Session().AccessToken
}

// Login authenticates against the server. When the server is unreachable
// a cached session is restored instead, provided the credentials match the
// identity recorded at the last online login.
func (m *Manager) Login(ctx context.Context, creds models.Credentials) error {
	if err := m.store.BeginAuthentication(creds.Email); err != nil {
		return err
	}

	tokens, err := m.api.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			rerr := m.loginOffline(ctx, creds)
			if rerr == nil {
				m.logger.Info(ctx, "server unreachable, restored cached session", "email", creds.Email)
				return nil
			}
			m.logger.Debug(ctx, "offline login not possible", "err", rerr)
		}
		m.store.ClearSession()
		return err
	}

	if err := m.persistTokens(ctx, tokens); err != nil {
		m.logger.Warn(ctx, "tokens not persisted", "err", err)
	}
	if err := m.saveIdentity(ctx, creds); err != nil {
		m.logger.Warn(ctx, "offline identity not saved", "err", err)
	}

	return m.store.Authenticate(creds.Email, tokens, m.expiry(tokens.AccessToken), false)
}

func (m *Manager) loginOffline(ctx context.Context, creds models.Credentials) error {
	var id models.OfflineIdentity
	if !m.storage.GetSensitive(ctx, KeyIdentity, &id) {
		return common.ErrOfflineNoData
	}
	if id.Email != creds.Email {
		return fmt.Errorf("%w: no cached session for %s", common.ErrOfflineNoData, creds.Email)
	}

	key := cryptox.DeriveKey(creds.Password, id.Salt)
	defer common.WipeByteArray(key)
	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), id.Verifier) != 1 {
		return common.ErrUnauthorized
	}

	tokens, ok := m.loadTokens(ctx)
	if !ok {
		return common.ErrOfflineNoData
	}
	if err := m.store.Authenticate(creds.Email, tokens, m.expiry(tokens.AccessToken), true); err != nil {
		return err
	}
	// A stale cached token keeps the user signed in locally but not as
	// authenticated; it is refreshed on reconnect.
	if m.IsExpired(tokens.AccessToken) {
		return m.store.Expire()
	}
	return nil
}

// Restore loads persisted tokens at startup. It reports whether a session
// was found; an expired one is restored in the Expired state so it can be
// refreshed.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	tokens, ok := m.loadTokens(ctx)
	if !ok {
		return false, nil
	}

	var id models.OfflineIdentity
	m.storage.GetSensitive(ctx, KeyIdentity, &id)

	if err := m.store.Authenticate(id.Email, tokens, m.expiry(tokens.AccessToken), false); err != nil {
		return false, err
	}
	if m.IsExpired(tokens.AccessToken) {
		if err := m.store.Expire(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// IsExpired decodes the token's exp claim without verifying the signature.
// A token that cannot be decoded or carries no exp is reported as expired.
func (m *Manager) IsExpired(token string) bool {
	exp := m.expiry(token)
	if exp.IsZero() {
		return true
	}
	return !m.now().Before(exp)
}

func (m *Manager) expiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share one in-flight refresh. On failure the session is expired and
// logged out.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.RefreshFrom(ctx, "")
}

// RefreshFrom is Refresh for a caller that was rejected while using
// staleToken. If the session already carries a different access token the
// call returns immediately without touching the network.
func (m *Manager) RefreshFrom(ctx context.Context, staleToken string) error {
	if m.superseded(staleToken) {
		return nil
	}
	_, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx), staleToken)
	})
	return err
}

func (m *Manager) superseded(staleToken string) bool {
	if staleToken == "" {
		return false
	}
	sess := m.store.Session()
	return sess.Authenticated && sess.AccessToken != "" && sess.AccessToken != staleToken
}

func (m *Manager) refresh(ctx context.Context, staleToken string) error {
	if m.superseded(staleToken) {
		return nil
	}

	sess := m.store.Session()
	if sess.RefreshToken == "" {
		return common.ErrNoRefreshToken
	}
	if err := m.store.BeginRefresh(); err != nil {
		return err
	}

	tokens, err := m.api.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		m.logger.Warn(ctx, "refresh failed", "err", err)
		if eerr := m.store.Expire(); eerr != nil {
			m.logger.Error(ctx, "expire session", "err", eerr)
		}
		_ = m.Logout(ctx)
		return fmt.Errorf("refresh: %w", err)
	}

	if err := m.persistTokens(ctx, tokens); err != nil {
		m.logger.Warn(ctx, "refreshed tokens not persisted", "err", err)
	}
	m.logger.Debug(ctx, "tokens refreshed")
	return m.store.Authenticate(sess.Email, tokens, m.expiry(tokens.AccessToken), false)
}

// CheckAndRefreshIfNeeded refreshes an expired token and reports whether a
// usable token exists afterwards. While offline no refresh is attempted and
// an expired token is reported as unusable without logging out.
func (m *Manager) CheckAndRefreshIfNeeded(ctx context.Context) bool {
	sess := m.store.Session()
	if !sess.HasToken() {
		return false
	}
	if !m.IsExpired(sess.AccessToken) {
		return true
	}
	if !m.store.Online() {
		return false
	}
	if err := m.RefreshFrom(ctx, sess.AccessToken); err != nil {
		m.logger.Info(ctx, "session could not be refreshed", "err", err)
		return false
	}
	return true
}

// Logout notifies the server when possible, then removes tokens, the
// offline identity, every cached resource and the offline queue. Local
// cleanup always completes; Logout never fails.
func (m *Manager) Logout(ctx context.Context) error {
	sess := m.store.Session()
	if (sess.AccessToken != "" || sess.RefreshToken != "") && m.store.Online() {
		if err := m.api.Logout(ctx, sess.AccessToken, sess.RefreshToken); err != nil {
			m.logger.Warn(ctx, "remote logout failed", "err", err)
		}
	}

	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyIdentity} {
		if err := m.storage.Remove(ctx, key); err != nil {
			m.logger.Warn(ctx, "session key not removed", "key", key, "err", err)
		}
	}
	if err := m.storage.RemovePrefix(ctx, storage.CachePrefix); err != nil {
		m.logger.Warn(ctx, "cache not cleared", "err", err)
	}
	if m.queue != nil {
		if err := m.queue.Clear(ctx); err != nil {
			m.logger.Warn(ctx, "offline queue not cleared", "err", err)
		}
	}

	m.store.ClearSession()
	m.logger.Info(ctx, "logged out", "email", sess.Email)
	return nil
}

func (m *Manager) persistTokens(ctx context.Context, t models.Tokens) error {
	return errors.Join(
		m.storage.PutSensitive(ctx, KeyAccessToken, t.AccessToken),
		m.storage.PutSensitive(ctx, KeyRefreshToken, t.RefreshToken),
	)
}

func (m *Manager) loadTokens(ctx context.Context) (models.Tokens, bool) {
	var t models.Tokens
	if !m.storage.GetSensitive(ctx, KeyAccessToken, &t.AccessToken) || t.AccessToken == "" {
		return models.Tokens{}, false
	}
	m.storage.GetSensitive(ctx, KeyRefreshToken, &t.RefreshToken)
	return t, true
}

func (m *Manager) saveIdentity(ctx context.Context, creds models.Credentials) error {
	salt := common.GenerateRandByteArray(identitySaltSize)
	key := cryptox.DeriveKey(creds.Password, salt)
	defer common.WipeByteArray(key)

	return m.storage.PutSensitive(ctx, KeyIdentity, models.OfflineIdentity{
		Email:    creds.Email,
		Salt:     salt,
		Verifier: cryptox.MakeVerifier(key),
	})
}
