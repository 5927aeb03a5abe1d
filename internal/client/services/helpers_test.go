package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/client"
	"github.com/dmitrijs2005/propsync/internal/client/queue"
	"github.com/dmitrijs2005/propsync/internal/client/session"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/cryptox"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type writeCall struct {
	Method string
	Path   string
	Key    string
	Body   map[string]any
}

// fakeAPI is a minimal property-management backend.
type fakeAPI struct {
	*httptest.Server

	mu        sync.Mutex
	serial    int
	valid     map[string]bool
	refreshes int
	gets      map[string]int
	writes    []writeCall
	// failWrites answers every write with this status when non-zero.
	failWrites int
	// failReads answers every read with this status when non-zero.
	failReads int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{valid: map[string]bool{}, gets: map[string]int{}}

	r := mux.NewRouter()
	r.HandleFunc(client.PathLogin, f.login).Methods(http.MethodPost)
	r.HandleFunc(client.PathRefresh, f.refresh).Methods(http.MethodPost)
	r.HandleFunc(client.PathLogout, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(f.auth)
	api.HandleFunc("/properties/", f.read(`{"count":2,"next":null,"results":[{"id":"p1","name":"Oak Court"},{"id":"p2","name":"Elm House"}]}`)).Methods(http.MethodGet)
	api.HandleFunc("/properties/{id}/", f.readf(`{"id":%q,"name":"Oak Court"}`)).Methods(http.MethodGet)
	api.HandleFunc("/properties/{id}/", f.write(`{"id":%q,"name":"Renamed"}`)).Methods(http.MethodPatch)
	api.HandleFunc("/units/{id}/", f.readf(`{"id":%q,"propertyId":"p1","number":"1A","rent":"1200.00"}`)).Methods(http.MethodGet)
	api.HandleFunc("/units/{id}/", f.write(`{"id":%q,"propertyId":"p1","number":"1A","rent":"1300.00"}`)).Methods(http.MethodPatch)
	api.HandleFunc("/units/{id}/payments/", f.read(`[{"id":"pay1","unitId":"u1","amount":"1200.00","paidAt":"2025-01-01T00:00:00Z"}]`)).Methods(http.MethodGet)
	api.HandleFunc("/units/{id}/payments/", f.write(`{"id":"pay2","unitId":%q,"amount":"1300.00","paidAt":"2025-02-01T00:00:00Z"}`)).Methods(http.MethodPost)
	api.HandleFunc("/organizations/{id}/subscription/", f.readf(`{"organizationId":%q,"plan":"pro","status":"active"}`)).Methods(http.MethodGet)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) issue() (string, string) {
	f.serial++
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"jti": fmt.Sprint(f.serial),
	}).SignedString([]byte("server-secret"))
	f.valid[access] = true
	return access, fmt.Sprintf("refresh-%d", f.serial)
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	access, refresh := f.issue()
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (f *fakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.refreshes++
	access, refresh := f.issue()
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": access, "refreshToken": refresh})
}

// revokeAll invalidates every issued access token.
func (f *fakeAPI) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = map[string]bool{}
}

func (f *fakeAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get(common.AuthorizationHeaderName), "Bearer ")
		f.mu.Lock()
		ok := f.valid[token]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) read(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.gets[r.URL.Path]++
		status := f.failReads
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeAPI) readf(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.read(fmt.Sprintf(format, mux.Vars(r)["id"]))(w, r)
	}
}

func (f *fakeAPI) write(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.writes = append(f.writes, writeCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Key:    r.Header.Get(common.IdempotencyKeyHeaderName),
			Body:   body,
		})
		status := f.failWrites
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = fmt.Fprintf(w, format, mux.Vars(r)["id"])
	}
}

func (f *fakeAPI) getCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[path]
}

func (f *fakeAPI) writeCalls() []writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]writeCall(nil), f.writes...)
}

func (f *fakeAPI) setFailWrites(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = status
}

func (f *fakeAPI) setFailReads(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = status
}

type env struct {
	api     *fakeAPI
	store   *state.Store
	adapter *storage.Adapter
	queue   *queue.Queue
	auth    AuthService
	props   PropertyService
}

func newAdapter(t *testing.T) *storage.Adapter {
	t.Helper()
	db, err := storage.OpenDatabase(context.Background(), filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key := bytes.Repeat([]byte{9}, cryptox.KeySize)
	secure := storage.NewSecureBackend(storage.NewSQLiteBackend(db, storage.TableSecure), key, 2048)
	return storage.NewAdapter(secure, storage.NewSQLiteBackend(db, storage.TableBulk), 0, logging.Nop())
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		api:     newFakeAPI(t),
		store:   state.New(true),
		adapter: newAdapter(t),
	}
	transport := client.NewHTTPTransport(e.api.URL, nil, 2*time.Second, 2*time.Second)
	e.queue = queue.New(e.adapter, logging.Nop())
	mgr := session.NewManager(client.NewAuthClient(transport), e.store, e.adapter, e.queue, logging.Nop())
	ic := client.NewInterceptor(transport, mgr, logging.Nop())
	fetcher := cache.NewFetcher(e.store.Online, e.adapter, cache.Policy{Enabled: true}, logging.Nop())
	e.props = NewPropertyService(ic, fetcher, e.queue, e.adapter, e.store, logging.Nop())
	e.auth = NewAuthService(mgr, e.props, logging.Nop())
	return e
}

func (e *env) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.auth.Login(context.Background(), "ann@example.com", []byte("pw")))
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}
