package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/client"
	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/client/queue"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/google/uuid"
)

// Queued action types.
const (
	ActionUpdateUnit     = "updateUnit"
	ActionUpdateProperty = "updateProperty"
	ActionRecordPayment  = "recordPayment"
)

// DefaultPageSize is requested for list endpoints; only the first page is
// cached.
const DefaultPageSize = 100

// Cache is the part of the storage adapter used for direct cache access.
type Cache interface {
	Get(ctx context.Context, key string, out any) bool
	Put(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

// MutationResult reports how a write was handled. Queued writes carry the
// action ID; applied writes carry the server's answer.
type MutationResult struct {
	Queued   bool
	ActionID string
	Data     json.RawMessage
}

// PropertyService is the property-management surface of the data layer.
//
// Reads go through the read-through cache and return a cache.Result. Writes
// are sent immediately when online and queued for replay otherwise; a write
// that fails because the server is unreachable is queued as well.
type PropertyService interface {
	FetchProperties(ctx context.Context, opts cache.Options) cache.Result[[]models.Property]
	FetchProperty(ctx context.Context, id string, opts cache.Options) cache.Result[models.Property]
	FetchUnitDetails(ctx context.Context, unitID string, opts cache.Options) cache.Result[models.Unit]
	FetchUnitPayments(ctx context.Context, unitID string, opts cache.Options) cache.Result[[]models.Payment]
	FetchSubscription(ctx context.Context, orgID string, opts cache.Options) cache.Result[models.Subscription]

	UpdateUnit(ctx context.Context, unitID string, changes map[string]any) (MutationResult, error)
	UpdateProperty(ctx context.Context, propertyID string, changes map[string]any) (MutationResult, error)
	RecordPayment(ctx context.Context, unitID string, p models.PaymentInput) (MutationResult, error)

	QueueOfflineAction(ctx context.Context, actionType string, payload any) (queue.Ack, error)
	GetCachedData(ctx context.Context, key storage.Key, out any) bool
	CacheDataForOffline(ctx context.Context, key storage.Key, value any) error
	ClearCachedData(ctx context.Context, key storage.Key) error

	// RefreshStale re-fetches the resources prefetched at login.
	RefreshStale(ctx context.Context) error
}

type unitUpdate struct {
	UnitID  string         `json:"unitId"`
	Changes map[string]any `json:"changes"`
}

type propertyUpdate struct {
	PropertyID string         `json:"propertyId"`
	Changes    map[string]any `json:"changes"`
}

type paymentRecord struct {
	UnitID  string              `json:"unitId"`
	Payment models.PaymentInput `json:"payment"`
}

type propertyService struct {
	api     client.Executor
	fetcher *cache.Fetcher
	queue   *queue.Queue
	cache   Cache
	store   *state.Store
	logger  logging.Logger
}

// NewPropertyService wires the service and registers its replay executors
// with q.
func NewPropertyService(api client.Executor, fetcher *cache.Fetcher, q *queue.Queue, c Cache, store *state.Store, logger logging.Logger) PropertyService {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &propertyService{
		api:     api,
		fetcher: fetcher,
		queue:   q,
		cache:   c,
		store:   store,
		logger:  logger.With("service", "property"),
	}
	q.Register(ActionUpdateUnit, s.replayUnitUpdate)
	q.Register(ActionUpdateProperty, s.replayPropertyUpdate)
	q.Register(ActionRecordPayment, s.replayPayment)
	return s
}

func propertiesPath() string            { return "/properties/" }
func propertyPath(id string) string     { return "/properties/" + url.PathEscape(id) + "/" }
func unitPath(id string) string         { return "/units/" + url.PathEscape(id) + "/" }
func unitPaymentsPath(id string) string { return unitPath(id) + "payments/" }
func subscriptionPath(org string) string {
	return "/organizations/" + url.PathEscape(org) + "/subscription/"
}

func getJSON[T any](api client.Executor, path string, query url.Values) cache.NetworkCall[T] {
	return func(ctx context.Context) (T, error) {
		var out T
		resp, err := api.Execute(ctx, client.Request{Method: http.MethodGet, Path: path, Query: query})
		if err != nil {
			return out, err
		}
		p, err := client.Normalize(resp.Body)
		if err != nil {
			return out, err
		}
		if err := p.Decode(&out); err != nil {
			return out, err
		}
		return out, nil
	}
}

// fetch runs a read through the cache and mirrors successful results into
// the state store.
func fetch[T any](ctx context.Context, s *propertyService, key storage.Key, call cache.NetworkCall[T], opts cache.Options) cache.Result[T] {
	res := cache.Fetch(ctx, s.fetcher, key, call, opts)
	if res.Success {
		s.store.SetData(key.String(), res.Data)
	}
	return res
}

func pageQuery() url.Values {
	return url.Values{"page_size": {fmt.Sprint(DefaultPageSize)}}
}

func (s *propertyService) FetchProperties(ctx context.Context, opts cache.Options) cache.Result[[]models.Property] {
	return fetch(ctx, s, storage.PropertiesKey(), getJSON[[]models.Property](s.api, propertiesPath(), pageQuery()), opts)
}

func (s *propertyService) FetchProperty(ctx context.Context, id string, opts cache.Options) cache.Result[models.Property] {
	return fetch(ctx, s, storage.PropertyKey(id), getJSON[models.Property](s.api, propertyPath(id), nil), opts)
}

func (s *propertyService) FetchUnitDetails(ctx context.Context, unitID string, opts cache.Options) cache.Result[models.Unit] {
	return fetch(ctx, s, storage.UnitDetailsKey(unitID), getJSON[models.Unit](s.api, unitPath(unitID), nil), opts)
}

func (s *propertyService) FetchUnitPayments(ctx context.Context, unitID string, opts cache.Options) cache.Result[[]models.Payment] {
	return fetch(ctx, s, storage.UnitPaymentsKey(unitID), getJSON[[]models.Payment](s.api, unitPaymentsPath(unitID), pageQuery()), opts)
}

func (s *propertyService) FetchSubscription(ctx context.Context, orgID string, opts cache.Options) cache.Result[models.Subscription] {
	return fetch(ctx, s, storage.SubscriptionKey(orgID), getJSON[models.Subscription](s.api, subscriptionPath(orgID), nil), opts)
}

func (s *propertyService) UpdateUnit(ctx context.Context, unitID string, changes map[string]any) (MutationResult, error) {
	payload := unitUpdate{UnitID: unitID, Changes: changes}
	return s.mutate(ctx, ActionUpdateUnit, payload, func(ctx context.Context, key string) (json.RawMessage, error) {
		return s.sendUnitUpdate(ctx, key, payload)
	})
}

func (s *propertyService) UpdateProperty(ctx context.Context, propertyID string, changes map[string]any) (MutationResult, error) {
	payload := propertyUpdate{PropertyID: propertyID, Changes: changes}
	return s.mutate(ctx, ActionUpdateProperty, payload, func(ctx context.Context, key string) (json.RawMessage, error) {
		return s.sendPropertyUpdate(ctx, key, payload)
	})
}

func (s *propertyService) RecordPayment(ctx context.Context, unitID string, p models.PaymentInput) (MutationResult, error) {
	payload := paymentRecord{UnitID: unitID, Payment: p}
	return s.mutate(ctx, ActionRecordPayment, payload, func(ctx context.Context, key string) (json.RawMessage, error) {
		return s.sendPayment(ctx, key, payload)
	})
}

// mutate sends a write now when online, otherwise queues it. Every write
// gets one idempotency key that is reused if it ends up queued.
func (s *propertyService) mutate(ctx context.Context, actionType string, payload any, send func(ctx context.Context, key string) (json.RawMessage, error)) (MutationResult, error) {
	key := uuid.NewString()

	if s.store.Online() {
		data, err := send(ctx, key)
		if err == nil {
			return MutationResult{ActionID: key, Data: data}, nil
		}
		if !errors.Is(err, common.ErrUnavailable) {
			return MutationResult{}, err
		}
		s.logger.Info(ctx, "server unreachable, queueing write", "type", actionType, "err", err)
	}

	ack, err := s.queue.EnqueueWithID(ctx, key, actionType, payload)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Queued: true, ActionID: ack.ID}, nil
}

func (s *propertyService) QueueOfflineAction(ctx context.Context, actionType string, payload any) (queue.Ack, error) {
	return s.queue.Enqueue(ctx, actionType, payload)
}

func (s *propertyService) GetCachedData(ctx context.Context, key storage.Key, out any) bool {
	return s.cache.Get(ctx, key.String(), out)
}

func (s *propertyService) CacheDataForOffline(ctx context.Context, key storage.Key, value any) error {
	return s.cache.Put(ctx, key.String(), value)
}

// ClearCachedData removes one cached resource. A key without an ID clears
// the whole kind, identified entries included.
func (s *propertyService) ClearCachedData(ctx context.Context, key storage.Key) error {
	s.store.DeleteData(key.String())
	if key.ID != "" {
		return s.cache.Remove(ctx, key.String())
	}
	return errors.Join(
		s.cache.Remove(ctx, key.String()),
		s.cache.RemovePrefix(ctx, storage.KindPrefix(key.Kind)),
	)
}

func (s *propertyService) RefreshStale(ctx context.Context) error {
	res := s.FetchProperties(ctx, cache.Options{ForceRefresh: true})
	if !res.Success || res.FromCache {
		return res.Err
	}
	return nil
}

func (s *propertyService) send(ctx context.Context, req client.Request) (json.RawMessage, error) {
	resp, err := s.api.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

func (s *propertyService) sendUnitUpdate(ctx context.Context, key string, u unitUpdate) (json.RawMessage, error) {
	data, err := s.send(ctx, client.Request{
		Method:         http.MethodPatch,
		Path:           unitPath(u.UnitID),
		Body:           u.Changes,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}
	storeAnswer[models.Unit](ctx, s, storage.UnitDetailsKey(u.UnitID), data)
	return data, nil
}

func (s *propertyService) sendPropertyUpdate(ctx context.Context, key string, p propertyUpdate) (json.RawMessage, error) {
	data, err := s.send(ctx, client.Request{
		Method:         http.MethodPatch,
		Path:           propertyPath(p.PropertyID),
		Body:           p.Changes,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}
	storeAnswer[models.Property](ctx, s, storage.PropertyKey(p.PropertyID), data)
	return data, nil
}

func (s *propertyService) sendPayment(ctx context.Context, key string, p paymentRecord) (json.RawMessage, error) {
	data, err := s.send(ctx, client.Request{
		Method:         http.MethodPost,
		Path:           unitPaymentsPath(p.UnitID),
		Body:           p.Payment,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}
	// The cached payment list no longer matches the server.
	if err := s.cache.Remove(ctx, storage.UnitPaymentsKey(p.UnitID).String()); err != nil {
		s.logger.Warn(ctx, "stale payments not evicted", "unit", p.UnitID, "err", err)
	}
	s.store.DeleteData(storage.UnitPaymentsKey(p.UnitID).String())
	return data, nil
}

// storeAnswer caches a write's answer when it decodes as the resource;
// otherwise the cached copy is evicted.
func storeAnswer[T any](ctx context.Context, s *propertyService, key storage.Key, data json.RawMessage) {
	k := key.String()
	var out T
	p, err := client.Normalize(data)
	if err == nil && p.Shape == client.ShapeSingle && p.Decode(&out) == nil {
		if err := s.cache.Put(ctx, k, out); err != nil {
			s.logger.Warn(ctx, "write answer not cached", "key", k, "err", err)
		}
		s.store.SetData(k, out)
		return
	}
	if err := s.cache.Remove(ctx, k); err != nil {
		s.logger.Warn(ctx, "stale entry not evicted", "key", k, "err", err)
	}
	s.store.DeleteData(k)
}

func (s *propertyService) replayUnitUpdate(ctx context.Context, a models.OfflineAction) error {
	var u unitUpdate
	if err := json.Unmarshal(a.Payload, &u); err != nil {
		return fmt.Errorf("decode %s: %w", a.Type, err)
	}
	_, err := s.sendUnitUpdate(ctx, a.ID, u)
	return err
}

func (s *propertyService) replayPropertyUpdate(ctx context.Context, a models.OfflineAction) error {
	var p propertyUpdate
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", a.Type, err)
	}
	_, err := s.sendPropertyUpdate(ctx, a.ID, p)
	return err
}

func (s *propertyService) replayPayment(ctx context.Context, a models.OfflineAction) error {
	var p paymentRecord
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", a.Type, err)
	}
	_, err := s.sendPayment(ctx, a.ID, p)
	return err
}
