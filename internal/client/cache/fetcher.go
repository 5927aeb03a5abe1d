// Package cache implements read-through fetching: network first with
// write-back of successful answers, falling back to the local cache when
// the network fails or the device is offline.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

// ErrPanic wraps a panic raised by a network call.
var ErrPanic = errors.New("fetch panicked")

// Storage is the part of the storage adapter the fetcher uses.
type Storage interface {
	Get(ctx context.Context, key string, out any) bool
	Put(ctx context.Context, key string, value any) error
}

// Policy controls how the cache participates in a fetch.
type Policy struct {
	// Enabled gates writing successful network answers to the cache.
	Enabled bool
	// PreferCacheFirst serves a cached value without a network call unless
	// the caller forces a refresh.
	PreferCacheFirst bool
}

type Options struct {
	ForceRefresh bool
}

// Result is the outcome of a fetch. Err may be set together with Success
// when a cached value was served after a network failure.
type Result[T any] struct {
	Success   bool
	Data      T
	FromCache bool
	Err       error
}

// Offline reports whether the failure is the distinct offline-without-cache
// condition.
func (r Result[T]) Offline() bool {
	return errors.Is(r.Err, common.ErrOfflineNoData)
}

// NetworkCall performs the remote read.
type NetworkCall[T any] func(ctx context.Context) (T, error)

type Fetcher struct {
	online  func() bool
	storage Storage
	policy  Policy
	logger  logging.Logger
}

func NewFetcher(online func() bool, st Storage, policy Policy, logger logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Fetcher{online: online, storage: st, policy: policy, logger: logger.With("component", "cache")}
}

// Fetch reads key through the cache. It never panics and never returns a
// bare error: every outcome is a Result.
func Fetch[T any](ctx context.Context, f *Fetcher, key storage.Key, call NetworkCall[T], opts Options) (res Result[T]) {
	k := key.String()

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error(ctx, "fetch panicked", "key", k, "panic", r)
			res = Result[T]{Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()

	online := f.online()

	if !online || (!opts.ForceRefresh && f.policy.PreferCacheFirst) {
		if v, ok := cached[T](ctx, f, k); ok {
			return Result[T]{Success: true, Data: v, FromCache: true}
		}
		if !online {
			return Result[T]{Err: fmt.Errorf("%w: %s", common.ErrOfflineNoData, k)}
		}
	}

	data, err := call(ctx)
	if err != nil {
		if v, ok := cached[T](ctx, f, k); ok {
			f.logger.Info(ctx, "network read failed, serving cache", "key", k, "err", err)
			return Result[T]{Success: true, Data: v, FromCache: true, Err: err}
		}
		return Result[T]{Err: err}
	}

	if f.policy.Enabled {
		if perr := f.storage.Put(ctx, k, data); perr != nil {
			f.logger.Warn(ctx, "fetched value not cached", "key", k, "err", perr)
		}
	}
	return Result[T]{Success: true, Data: data}
}

func cached[T any](ctx context.Context, f *Fetcher, key string) (T, bool) {
	var v T
	ok := f.storage.Get(ctx, key, &v)
	return v, ok
}
