// Package queue records mutations attempted while offline and replays them
// in arrival order once connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/google/uuid"
)

// StorageKey is where the pending list is persisted. It sits outside the
// cache prefix so cache eviction leaves it alone.
const StorageKey = "offline_queue"

// Storage is the part of the storage adapter the queue uses.
type Storage interface {
	Lookup(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Executor replays one action against the server. action.ID should be sent
// as the idempotency key.
type Executor func(ctx context.Context, action models.OfflineAction) error

// Ack acknowledges a queued action.
type Ack struct {
	ID       string
	Type     string
	Position int
}

type Queue struct {
	storage Storage
	logger  logging.Logger
	now     func() time.Time

	// mu serializes read-modify-write cycles on the persisted list.
	mu       sync.Mutex
	draining atomic.Bool

	execMu    sync.RWMutex
	executors map[string]Executor
}

func New(st Storage, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		storage:   st,
		logger:    logger.With("component", "queue"),
		now:       time.Now,
		executors: map[string]Executor{},
	}
}

// Register sets the executor for actionType, replacing any previous one.
func (q *Queue) Register(actionType string, exec Executor) {
	q.execMu.Lock()
	defer q.execMu.Unlock()
	q.executors[actionType] = exec
}

func (q *Queue) executor(actionType string) (Executor, bool) {
	q.execMu.RLock()
	defer q.execMu.RUnlock()
	e, ok := q.executors[actionType]
	return e, ok
}

// Enqueue appends an action to the persisted list under a fresh ID. It
// never touches the network.
func (q *Queue) Enqueue(ctx context.Context, actionType string, payload any) (Ack, error) {
	return q.EnqueueWithID(ctx, uuid.NewString(), actionType, payload)
}

// EnqueueWithID is Enqueue for a caller that already sent the mutation
// under id and must replay it with the same idempotency key.
func (q *Queue) EnqueueWithID(ctx context.Context, id, actionType string, payload any) (Ack, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("encode %s payload: %w", actionType, err)
	}
	action := models.OfflineAction{
		ID:         id,
		Type:       actionType,
		Payload:    raw,
		EnqueuedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return Ack{}, fmt.Errorf("queue %s: %w", actionType, err)
	}
	pending = append(pending, action)
	if err := q.storage.Put(ctx, StorageKey, pending); err != nil {
		return Ack{}, fmt.Errorf("persist %s: %w", actionType, err)
	}

	q.logger.Info(ctx, "action queued", "type", actionType, "id", action.ID, "pending", len(pending))
	return Ack{ID: action.ID, Type: actionType, Position: len(pending)}, nil
}

// Pending returns the queued actions in replay order. An unreadable list
// is logged and reported as empty; it stays in storage untouched.
func (q *Queue) Pending(ctx context.Context) []models.OfflineAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending, err := q.load(ctx)
	if err != nil {
		q.logger.Warn(ctx, "pending actions unreadable", "err", err)
	}
	return pending
}

func (q *Queue) Len(ctx context.Context) int {
	return len(q.Pending(ctx))
}

// Clear drops every pending action.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.storage.Remove(ctx, StorageKey)
}

// Drain replays pending actions in order, removing each one that succeeds.
// It stops at the first failure, leaving that action and the ones behind it
// queued. Only one drain runs at a time; a concurrent call returns
// common.ErrDrainInProgress. The number of replayed actions is returned.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return 0, common.ErrDrainInProgress
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	pending, err := q.load(ctx)
	q.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("load pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	q.logger.Info(ctx, "draining offline queue", "pending", len(pending))

	done := 0
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		exec, ok := q.executor(a.Type)
		if !ok {
			q.logger.Error(ctx, "no executor for queued action", "type", a.Type, "id", a.ID)
			return done, fmt.Errorf("%w: %s", common.ErrUnknownAction, a.Type)
		}

		if err := exec(ctx, a); err != nil {
			q.logger.Warn(ctx, "replay failed, stopping drain", "type", a.Type, "id", a.ID, "err", err)
			return done, fmt.Errorf("replay %s %s: %w", a.Type, a.ID, err)
		}

		found, err := q.remove(ctx, a.ID)
		if err != nil {
			return done, err
		}
		done++
		if !found {
			// The queue was cleared while the action ran.
			q.logger.Info(ctx, "queue cleared during drain", "replayed", done)
			return done, nil
		}
	}

	q.logger.Info(ctx, "offline queue drained", "replayed", done)
	return done, nil
}

// remove deletes the action with id and reports whether it was present.
func (q *Queue) remove(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return false, err
	}
	n := len(pending)
	pending = slices.DeleteFunc(pending, func(a models.OfflineAction) bool { return a.ID == id })
	if len(pending) == n {
		return false, nil
	}

	if len(pending) == 0 {
		return true, q.storage.Remove(ctx, StorageKey)
	}
	return true, q.storage.Put(ctx, StorageKey, pending)
}

// load must be called with mu held. A failed read is an error, never an
// empty list.
func (q *Queue) load(ctx context.Context) ([]models.OfflineAction, error) {
	var pending []models.OfflineAction
	if _, err := q.storage.Lookup(ctx, StorageKey, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}
