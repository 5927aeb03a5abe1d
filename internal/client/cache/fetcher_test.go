package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	putErr  error
	gets    int
	written []string
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string][]byte{}}
}

func (m *memStorage) Get(_ context.Context, key string, out any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

func (m *memStorage) Put(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	m.written = append(m.written, key)
	return nil
}

type property struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type counter struct {
	calls int
	data  []property
	err   error
}

func (c *counter) call(context.Context) ([]property, error) {
	c.calls++
	return c.data, c.err
}

func onlineFn(v bool) func() bool { return func() bool { return v } }

var (
	key      = storage.PropertiesKey()
	cachedPs = []property{{ID: "p1", Name: "Oak"}}
	freshPs  = []property{{ID: "p1", Name: "Oak"}, {ID: "p2", Name: "Elm"}}
	errDown  = errors.New("connection reset")
)

func TestFetch_OnlineWritesBack(t *testing.T) {
	st := newMemStorage()
	f := NewFetcher(onlineFn(true), st, Policy{Enabled: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	require.True(t, res.Success)
	assert.False(t, res.FromCache)
	assert.NoError(t, res.Err)
	assert.Equal(t, freshPs, res.Data)
	assert.Equal(t, []string{key.String()}, st.written)

	var got []property
	require.True(t, st.Get(context.Background(), key.String(), &got))
	assert.Equal(t, freshPs, got)
}

func TestFetch_CacheDisabledSkipsWrite(t *testing.T) {
	st := newMemStorage()
	f := NewFetcher(onlineFn(true), st, Policy{}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	require.True(t, res.Success)
	assert.Empty(t, st.written)
}

func TestFetch_NetworkFailureFallsBackToCache(t *testing.T) {
	st := newMemStorage()
	require.NoError(t, st.Put(context.Background(), key.String(), cachedPs))
	f := NewFetcher(onlineFn(true), st, Policy{Enabled: true}, logging.Nop())
	c := &counter{err: errDown}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.True(t, res.Success)
	assert.True(t, res.FromCache)
	assert.Equal(t, cachedPs, res.Data)
	assert.ErrorIs(t, res.Err, errDown)
	assert.Equal(t, 1, c.calls)
}

func TestFetch_NetworkFailureWithoutCache(t *testing.T) {
	f := NewFetcher(onlineFn(true), newMemStorage(), Policy{Enabled: true}, logging.Nop())
	c := &counter{err: errDown}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, errDown)
	assert.False(t, res.Offline())
	assert.Nil(t, res.Data)
}

func TestFetch_OfflineServesCacheWithoutNetwork(t *testing.T) {
	st := newMemStorage()
	require.NoError(t, st.Put(context.Background(), key.String(), cachedPs))
	f := NewFetcher(onlineFn(false), st, Policy{Enabled: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{ForceRefresh: true})
	assert.True(t, res.Success)
	assert.True(t, res.FromCache)
	assert.Equal(t, cachedPs, res.Data)
	assert.Zero(t, c.calls)
}

func TestFetch_OfflineWithoutCache(t *testing.T) {
	f := NewFetcher(onlineFn(false), newMemStorage(), Policy{Enabled: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.False(t, res.Success)
	assert.True(t, res.Offline())
	assert.ErrorIs(t, res.Err, common.ErrOfflineNoData)
	assert.Zero(t, c.calls)
}

func TestFetch_PreferCacheFirst(t *testing.T) {
	st := newMemStorage()
	require.NoError(t, st.Put(context.Background(), key.String(), cachedPs))
	f := NewFetcher(onlineFn(true), st, Policy{Enabled: true, PreferCacheFirst: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.True(t, res.FromCache)
	assert.Equal(t, cachedPs, res.Data)
	assert.Zero(t, c.calls)

	res = Fetch(context.Background(), f, key, c.call, Options{ForceRefresh: true})
	assert.False(t, res.FromCache)
	assert.Equal(t, freshPs, res.Data)
	assert.Equal(t, 1, c.calls)
}

func TestFetch_PreferCacheFirstMissGoesToNetwork(t *testing.T) {
	f := NewFetcher(onlineFn(true), newMemStorage(), Policy{Enabled: true, PreferCacheFirst: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.True(t, res.Success)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, c.calls)
}

func TestFetch_CacheWriteFailureStillSucceeds(t *testing.T) {
	st := newMemStorage()
	st.putErr = common.ErrStorage
	f := NewFetcher(onlineFn(true), st, Policy{Enabled: true}, logging.Nop())
	c := &counter{data: freshPs}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, freshPs, res.Data)
}

func TestFetch_RecoversPanic(t *testing.T) {
	f := NewFetcher(onlineFn(true), newMemStorage(), Policy{Enabled: true}, logging.Nop())

	res := Fetch(context.Background(), f, key, func(context.Context) (property, error) {
		panic("nil map")
	}, Options{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPanic)
}

func TestFetch_UndecodableCacheIsAMiss(t *testing.T) {
	st := newMemStorage()
	st.data[key.String()] = []byte(`{"not":"a list"}`)
	f := NewFetcher(onlineFn(false), st, Policy{Enabled: true}, logging.Nop())
	c := &counter{}

	res := Fetch(context.Background(), f, key, c.call, Options{})
	assert.False(t, res.Success)
	assert.True(t, res.Offline())
}
