// Package connectivity tracks whether the remote API is reachable.
//
// A Monitor polls a Prober on a fixed interval (or is fed observations via
// Set) and notifies listeners only when the online/offline state actually
// changes; repeated observations of the same state are dropped.
package connectivity

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/propsync/internal/logging"
)

// Prober checks reachability once. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// Listener receives the new state after each transition.
type Listener func(online bool)

type Monitor struct {
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration
	logger       logging.Logger

	notifyMu sync.Mutex

	mu        sync.Mutex
	online    bool
	listeners []subscription
	nextID    int
}

type subscription struct {
	id int
	l  Listener
}

// NewMonitor creates a monitor whose state is initial until the first
// observation says otherwise.
func NewMonitor(prober Prober, interval time.Duration, initial bool, logger logging.Logger) *Monitor {
	timeout := 3 * time.Second
	if interval > 0 && interval < timeout {
		timeout = interval
	}
	return &Monitor{
		prober:       prober,
		interval:     interval,
		probeTimeout: timeout,
		logger:       logger.With("component", "connectivity"),
		online:       initial,
	}
}

// CurrentlyOnline returns the last known state.
func (m *Monitor) CurrentlyOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange subscribes l to transitions and returns an unsubscribe function.
// Listeners run synchronously in subscription order.
func (m *Monitor) OnChange(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, subscription{id: id, l: l})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners = slices.DeleteFunc(m.listeners, func(s subscription) bool { return s.id == id })
	}
}

// Set records an observation and notifies listeners when it differs from
// the current state. Notifications are delivered in observation order.
// Listeners must not call Set.
func (m *Monitor) Set(ctx context.Context, online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	if online {
		m.logger.Info(ctx, "switched to online mode")
	} else {
		m.logger.Info(ctx, "switched to offline mode")
	}
	for _, s := range listeners {
		s.l(online)
	}
	return true
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(pctx)
	cancel()

	if err != nil {
		m.logger.Debug(ctx, "probe failed", "err", err)
	}
	m.Set(ctx, err == nil)
	return err == nil
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
