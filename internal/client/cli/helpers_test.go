package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/app"
	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/client/queue"
	"github.com/dmitrijs2005/propsync/internal/client/services"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

// memStorage is a JSON round-tripping map, enough for the queue.
type memStorage struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (s *memStorage) Lookup(_ context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (s *memStorage) Put(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = b
	return nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

type fakeAuth struct {
	email    string
	password []byte
	loginErr error
	// store is authenticated on successful login when set.
	store   *state.Store
	offline bool

	logoutCalled bool
}

func (f *fakeAuth) Login(_ context.Context, email string, password []byte) error {
	f.email, f.password = email, password
	if f.loginErr != nil {
		return f.loginErr
	}
	if f.store != nil {
		return f.store.Authenticate(email, models.Tokens{AccessToken: "a", RefreshToken: "r"}, time.Now().Add(time.Hour), f.offline)
	}
	return nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logoutCalled = true
	if f.store != nil {
		f.store.ClearSession()
	}
	return nil
}

func (f *fakeAuth) RefreshToken(context.Context) error    { return nil }
func (f *fakeAuth) Startup(context.Context) (bool, error) { return false, nil }

type update struct {
	ID      string
	Changes map[string]any
}

type fakeProps struct {
	properties   cache.Result[[]models.Property]
	property     cache.Result[models.Property]
	unit         cache.Result[models.Unit]
	payments     cache.Result[[]models.Payment]
	subscription cache.Result[models.Subscription]

	lastOpts   cache.Options
	lastID     string
	unitUpdate update
	propUpdate update
	payment    models.PaymentInput
	mutation   services.MutationResult
	mutErr     error
}

func (f *fakeProps) FetchProperties(_ context.Context, opts cache.Options) cache.Result[[]models.Property] {
	f.lastOpts = opts
	return f.properties
}

func (f *fakeProps) FetchProperty(_ context.Context, id string, opts cache.Options) cache.Result[models.Property] {
	f.lastID, f.lastOpts = id, opts
	return f.property
}

func (f *fakeProps) FetchUnitDetails(_ context.Context, id string, opts cache.Options) cache.Result[models.Unit] {
	f.lastID, f.lastOpts = id, opts
	return f.unit
}

func (f *fakeProps) FetchUnitPayments(_ context.Context, id string, opts cache.Options) cache.Result[[]models.Payment] {
	f.lastID, f.lastOpts = id, opts
	return f.payments
}

func (f *fakeProps) FetchSubscription(_ context.Context, id string, opts cache.Options) cache.Result[models.Subscription] {
	f.lastID, f.lastOpts = id, opts
	return f.subscription
}

func (f *fakeProps) UpdateUnit(_ context.Context, id string, changes map[string]any) (services.MutationResult, error) {
	f.unitUpdate = update{ID: id, Changes: changes}
	return f.mutation, f.mutErr
}

func (f *fakeProps) UpdateProperty(_ context.Context, id string, changes map[string]any) (services.MutationResult, error) {
	f.propUpdate = update{ID: id, Changes: changes}
	return f.mutation, f.mutErr
}

func (f *fakeProps) RecordPayment(_ context.Context, id string, p models.PaymentInput) (services.MutationResult, error) {
	f.lastID, f.payment = id, p
	return f.mutation, f.mutErr
}

func (f *fakeProps) QueueOfflineAction(context.Context, string, any) (queue.Ack, error) {
	return queue.Ack{}, nil
}
func (f *fakeProps) GetCachedData(context.Context, storage.Key, any) bool        { return false }
func (f *fakeProps) CacheDataForOffline(context.Context, storage.Key, any) error { return nil }
func (f *fakeProps) ClearCachedData(context.Context, storage.Key) error          { return nil }
func (f *fakeProps) RefreshStale(context.Context) error                          { return nil }

type fakeCore struct {
	auth  *fakeAuth
	props *fakeProps
	store *state.Store
	queue *queue.Queue

	report  app.SyncReport
	syncErr error
	syncs   int
}

func (c *fakeCore) Auth() services.AuthService           { return c.auth }
func (c *fakeCore) Properties() services.PropertyService { return c.props }
func (c *fakeCore) Store() *state.Store                  { return c.store }
func (c *fakeCore) Queue() *queue.Queue                  { return c.queue }
func (c *fakeCore) Sync(context.Context) (app.SyncReport, error) {
	c.syncs++
	return c.report, c.syncErr
}

func newFakeCore(t *testing.T, online bool) *fakeCore {
	t.Helper()
	store := state.New(online)
	return &fakeCore{
		auth:  &fakeAuth{store: store},
		props: &fakeProps{},
		store: store,
		queue: queue.New(&memStorage{m: map[string][]byte{}}, logging.Nop()),
	}
}

// newTestApp returns an App reading input and writing to the returned buffer.
func newTestApp(core Core, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return NewApp(core, strings.NewReader(input), &out), &out
}
