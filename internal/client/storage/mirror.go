package storage

import (
	"context"
	"time"

	"github.com/dmitrijs2005/propsync/internal/logging"
)

// MirrorBackend serves every read from local and copies writes to remote.
// Remote failures are logged, never returned.
type MirrorBackend struct {
	local   Backend
	remote  Backend
	timeout time.Duration
	logger  logging.Logger
}

// NewMirrorBackend bounds each remote call by timeout when it is positive.
func NewMirrorBackend(local, remote Backend, timeout time.Duration, logger logging.Logger) *MirrorBackend {
	if logger == nil {
		logger = logging.Nop()
	}
	return &MirrorBackend{
		local:   local,
		remote:  remote,
		timeout: timeout,
		logger:  logger.With("component", "mirror"),
	}
}

func (m *MirrorBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return m.local.Get(ctx, key)
}

func (m *MirrorBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := m.local.Set(ctx, key, value); err != nil {
		return err
	}
	m.toRemote(ctx, "set", key, func(ctx context.Context) error {
		return m.remote.Set(ctx, key, value)
	})
	return nil
}

func (m *MirrorBackend) Delete(ctx context.Context, key string) error {
	if err := m.local.Delete(ctx, key); err != nil {
		return err
	}
	m.toRemote(ctx, "delete", key, func(ctx context.Context) error {
		return m.remote.Delete(ctx, key)
	})
	return nil
}

func (m *MirrorBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return m.local.Keys(ctx, prefix)
}

func (m *MirrorBackend) toRemote(ctx context.Context, op, key string, fn func(context.Context) error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		m.logger.Warn(ctx, "mirror "+op+" failed", "key", key, "err", err)
	}
}
