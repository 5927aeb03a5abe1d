package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

// DefaultInlineThreshold leaves room for the envelope inside a 2048-byte
// secure store value.
const DefaultInlineThreshold = 1920

// envelope is the record written to the secure backend. Markers carry no
// payload.
type envelope struct {
	Indirected bool            `json:"indirected"`
	WrittenAt  time.Time       `json:"writtenAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Adapter spreads values over the secure and bulk backends.
type Adapter struct {
	secure    Backend
	bulk      Backend
	threshold int
	logger    logging.Logger
	now       func() time.Time
}

// NewAdapter returns an adapter that inlines payloads up to threshold bytes.
func NewAdapter(secure, bulk Backend, threshold int, logger logging.Logger) *Adapter {
	if threshold <= 0 {
		threshold = DefaultInlineThreshold
	}
	return &Adapter{
		secure:    secure,
		bulk:      bulk,
		threshold: threshold,
		logger:    logger.With("component", "storage"),
		now:       time.Now,
	}
}

// Put serializes value and stores it inline or indirected depending on its
// size. Failures are logged and returned wrapped in common.ErrStorage.
func (a *Adapter) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		a.logger.Error(ctx, "serialize failed", "key", key, "err", err)
		return fmt.Errorf("serialize %s: %w", key, err)
	}

	prev, hadPrev := a.readEnvelope(ctx, key)

	if len(payload) > a.threshold {
		return a.putIndirected(ctx, key, payload)
	}

	err = a.writeEnvelope(ctx, key, envelope{WrittenAt: a.now(), Payload: payload})
	if errors.Is(err, common.ErrValueTooLarge) {
		return a.putIndirected(ctx, key, payload)
	}
	if err != nil {
		return a.fail(ctx, "put", key, err)
	}

	if hadPrev && prev.Indirected {
		if err := a.bulk.Delete(ctx, BulkKey(key)); err != nil {
			a.logger.Warn(ctx, "stale bulk payload not removed", "key", key, "err", err)
		}
	}
	return nil
}

// putIndirected writes the payload before the marker so a reader never sees
// a marker without its payload.
func (a *Adapter) putIndirected(ctx context.Context, key string, payload []byte) error {
	if err := a.bulk.Set(ctx, BulkKey(key), payload); err != nil {
		return a.fail(ctx, "put bulk", key, err)
	}
	if err := a.writeEnvelope(ctx, key, envelope{Indirected: true, WrittenAt: a.now()}); err != nil {
		return a.fail(ctx, "put marker", key, err)
	}
	return nil
}

// Get loads key into out. It reports false on a miss and on any read or
// decode failure.
func (a *Adapter) Get(ctx context.Context, key string, out any) bool {
	raw, ok := a.GetRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		a.logger.Warn(ctx, "cached value not decodable", "key", key, "err", err)
		return false
	}
	return true
}

// Lookup is Get for callers that must not mistake a failed read for an
// empty slot. A miss is (false, nil); a read or decode failure is returned
// wrapped in common.ErrStorage.
func (a *Adapter) Lookup(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := a.loadRaw(ctx, key)
	if err != nil {
		return false, a.fail(ctx, "lookup", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, a.fail(ctx, "decode", key, err)
	}
	return true, nil
}

// GetRaw returns the serialized payload stored under key.
func (a *Adapter) GetRaw(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := a.loadRaw(ctx, key)
	if err != nil {
		a.logger.Warn(ctx, "cached value unreadable", "key", key, "err", err)
		return nil, false
	}
	return raw, ok
}

func (a *Adapter) loadRaw(ctx context.Context, key string) ([]byte, bool, error) {
	env, ok, err := a.loadEnvelope(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !env.Indirected {
		return env.Payload, true, nil
	}

	payload, err := a.bulk.Get(ctx, BulkKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("bulk read: %w", err)
	}
	if payload == nil {
		return nil, false, errors.New("marker without bulk payload")
	}
	return payload, true, nil
}

// Entry describes where key is stored and when it was written.
func (a *Adapter) Entry(ctx context.Context, key string) (models.CacheEntry, bool) {
	env, ok := a.readEnvelope(ctx, key)
	if !ok {
		return models.CacheEntry{}, false
	}
	loc := models.LocationInline
	if env.Indirected {
		loc = models.LocationIndirected
	}
	return models.CacheEntry{Key: key, Location: loc, WrittenAt: env.WrittenAt}, true
}

// Remove deletes key and, when it is indirected, its bulk payload.
func (a *Adapter) Remove(ctx context.Context, key string) error {
	var errs []error
	if env, ok := a.readEnvelope(ctx, key); ok && env.Indirected {
		if err := a.bulk.Delete(ctx, BulkKey(key)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.secure.Delete(ctx, key); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return a.fail(ctx, "remove", key, err)
	}
	return nil
}

// RemovePrefix removes every key starting with prefix, including bulk
// payloads whose marker is already gone.
func (a *Adapter) RemovePrefix(ctx context.Context, prefix string) error {
	var errs []error

	keys, err := a.secure.Keys(ctx, prefix)
	if err != nil {
		errs = append(errs, err)
	}
	for _, k := range keys {
		if err := a.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}

	orphans, err := a.bulk.Keys(ctx, BulkKey(prefix))
	if err != nil {
		errs = append(errs, err)
	}
	for _, k := range orphans {
		if err := a.bulk.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return a.fail(ctx, "remove prefix", prefix, err)
	}
	return nil
}

// PutSensitive always writes to the secure backend. A value that does not
// fit is an error; sensitive values are never indirected.
func (a *Adapter) PutSensitive(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", key, err)
	}
	if err := a.writeEnvelope(ctx, key, envelope{WrittenAt: a.now(), Payload: payload}); err != nil {
		return a.fail(ctx, "put sensitive", key, err)
	}
	return nil
}

// GetSensitive reads a value written by PutSensitive.
func (a *Adapter) GetSensitive(ctx context.Context, key string, out any) bool {
	env, ok := a.readEnvelope(ctx, key)
	if !ok || env.Indirected {
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		a.logger.Warn(ctx, "sensitive value not decodable", "key", key, "err", err)
		return false
	}
	return true
}

func (a *Adapter) readEnvelope(ctx context.Context, key string) (envelope, bool) {
	env, ok, err := a.loadEnvelope(ctx, key)
	if err != nil {
		a.logger.Warn(ctx, "secure record unreadable", "key", key, "err", err)
		return envelope{}, false
	}
	return env, ok
}

func (a *Adapter) loadEnvelope(ctx context.Context, key string) (envelope, bool, error) {
	raw, err := a.secure.Get(ctx, key)
	if err != nil {
		return envelope{}, false, fmt.Errorf("secure read: %w", err)
	}
	if raw == nil {
		return envelope{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false, fmt.Errorf("corrupt secure record: %w", err)
	}
	if !env.Indirected && env.Payload == nil {
		return envelope{}, false, errors.New("secure record without payload")
	}
	return env, true, nil
}

func (a *Adapter) writeEnvelope(ctx context.Context, key string, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return a.secure.Set(ctx, key, raw)
}

func (a *Adapter) fail(ctx context.Context, op, key string, err error) error {
	a.logger.Error(ctx, "storage "+op+" failed", "key", key, "err", err)
	return fmt.Errorf("%w: %s %s: %w", common.ErrStorage, op, key, err)
}
