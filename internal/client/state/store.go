// Package state holds the in-memory authoritative copy of session,
// connectivity and domain data. All mutation goes through named transition
// methods that apply atomically under the store's lock, so a reader never
// observes a half-applied change.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/common"
)

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Session models.Session
	Online  bool
}

// Listener receives the snapshot taken right after a change.
type Listener func(Snapshot)

var allowed = map[models.SessionState][]models.SessionState{
	models.StateUnauthenticated: {models.StateAuthenticating, models.StateAuthenticated, models.StateExpired},
	models.StateAuthenticating:  {models.StateAuthenticated, models.StateUnauthenticated},
	models.StateAuthenticated:   {models.StateAuthenticating, models.StateAuthenticated, models.StateRefreshing, models.StateExpired},
	models.StateRefreshing:      {models.StateAuthenticated, models.StateExpired},
	models.StateExpired:         {models.StateAuthenticating, models.StateRefreshing},
}

func canTransition(from, to models.SessionState) bool {
	if to == models.StateUnauthenticated {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Store struct {
	mu        sync.RWMutex
	session   models.Session
	online    bool
	data      map[string]any
	listeners map[int]Listener
	nextID    int
}

// New returns a store in the unauthenticated state. online is the initial
// connectivity assumption until the monitor reports.
func New(online bool) *Store {
	return &Store{
		online:    online,
		data:      map[string]any{},
		listeners: map[int]Listener{},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Session: s.session, Online: s.online}
}

func (s *Store) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Store) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SetOnline records connectivity and reports whether it changed.
func (s *Store) SetOnline(online bool) bool {
	changed := s.apply(func() error {
		if s.online == online {
			return errUnchanged
		}
		s.online = online
		return nil
	})
	return changed == nil
}

// BeginAuthentication moves to Authenticating.
func (s *Store) BeginAuthentication(email string) error {
	return s.apply(func() error {
		if err := s.transition(models.StateAuthenticating); err != nil {
			return err
		}
		s.session.Email = email
		return nil
	})
}

// Authenticate installs tokens and moves to Authenticated.
func (s *Store) Authenticate(email string, tokens models.Tokens, expiresAt time.Time, offline bool) error {
	return s.apply(func() error {
		if err := s.transition(models.StateAuthenticated); err != nil {
			return err
		}
		s.session = models.Session{
			State:         models.StateAuthenticated,
			AccessToken:   tokens.AccessToken,
			RefreshToken:  tokens.RefreshToken,
			Authenticated: true,
			Offline:       offline,
			Email:         email,
			ExpiresAt:     expiresAt,
		}
		return nil
	})
}

// BeginRefresh moves to Refreshing.
func (s *Store) BeginRefresh() error {
	return s.apply(func() error {
		return s.transition(models.StateRefreshing)
	})
}

// Expire marks the session expired; Authenticated becomes false while the
// tokens are kept so a refresh can still be attempted.
func (s *Store) Expire() error {
	return s.apply(func() error {
		if err := s.transition(models.StateExpired); err != nil {
			return err
		}
		s.session.Authenticated = false
		return nil
	})
}

// ClearSession drops tokens and every piece of domain data.
func (s *Store) ClearSession() {
	_ = s.apply(func() error {
		s.session = models.Session{State: models.StateUnauthenticated}
		s.data = map[string]any{}
		return nil
	})
}

// SetData stores the latest value for a domain resource.
func (s *Store) SetData(key string, value any) {
	_ = s.apply(func() error {
		s.data[key] = value
		return nil
	})
}

func (s *Store) Data(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) DeleteData(key string) {
	_ = s.apply(func() error {
		delete(s.data, key)
		return nil
	})
}

var errUnchanged = fmt.Errorf("unchanged")

// apply runs fn under the write lock and notifies listeners with the
// resulting snapshot when fn succeeds.
func (s *Store) apply(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := Snapshot{Session: s.session, Online: s.online}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

// transition must be called with mu held.
func (s *Store) transition(to models.SessionState) error {
	from := s.session.State
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}
	s.session.State = to
	return nil
}
