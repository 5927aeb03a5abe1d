package session

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/cryptox"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T) *storage.Adapter {
	t.Helper()
	db, err := storage.OpenDatabase(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key := bytes.Repeat([]byte{7}, cryptox.KeySize)
	secure := storage.NewSecureBackend(storage.NewSQLiteBackend(db, storage.TableSecure), key, 2048)
	bulk := storage.NewSQLiteBackend(db, storage.TableBulk)
	return storage.NewAdapter(secure, bulk, 0, logging.Nop())
}

func mintToken(t *testing.T, exp time.Time, jti string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"jti": jti,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type fakeAPI struct {
	mu sync.Mutex

	loginTokens models.Tokens
	loginErr    error

	refreshTokens models.Tokens
	refreshErr    error
	refreshGate   func()

	logoutErr error

	logins    int
	refreshes []string
	logouts   int
}

func (f *fakeAPI) Login(_ context.Context, _ models.Credentials) (models.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginTokens, f.loginErr
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (models.Tokens, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, refreshToken)
	gate := f.refreshGate
	tokens, err := f.refreshTokens, f.refreshErr
	f.mu.Unlock()

	if gate != nil {
		gate()
	}
	return tokens, err
}

func (f *fakeAPI) Logout(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshes)
}

type fakeQueue struct {
	clears int
}

func (q *fakeQueue) Clear(context.Context) error {
	q.clears++
	return nil
}

type fixture struct {
	api     *fakeAPI
	store   *state.Store
	adapter *storage.Adapter
	queue   *fakeQueue
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:     &fakeAPI{},
		store:   state.New(true),
		adapter: newAdapter(t),
		queue:   &fakeQueue{},
	}
	f.mgr = NewManager(f.api, f.store, f.adapter, f.queue, logging.Nop())
	return f
}

// restart simulates a process restart over the same persisted storage.
func (f *fixture) restart(online bool) {
	f.store = state.New(online)
	f.mgr = NewManager(f.api, f.store, f.adapter, f.queue, logging.Nop())
}

var unavailable = common.ErrUnavailable

func creds(email, password string) models.Credentials {
	return models.Credentials{Email: email, Password: []byte(password)}
}
