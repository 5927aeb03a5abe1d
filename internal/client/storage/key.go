package storage

// Kind names a cached resource family.
type Kind string

const (
	KindProperties   Kind = "properties"
	KindProperty     Kind = "property"
	KindUnitDetails  Kind = "unit_details"
	KindUnitPayments Kind = "unit_payments"
	KindSubscription Kind = "subscription_data"
)

// CachePrefix is shared by every domain cache key so logout can evict them
// all at once.
const CachePrefix = "cache_"

// BulkKeyPrefix is prepended to a key to address its payload in the bulk backend.
const BulkKeyPrefix = "bulk_"

// Key identifies one cached resource: a kind plus an optional identifier.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	if k.ID == "" {
		return CachePrefix + string(k.Kind)
	}
	return KindPrefix(k.Kind) + k.ID
}

// KindPrefix is the prefix shared by every identified key of kind.
func KindPrefix(kind Kind) string {
	return CachePrefix + string(kind) + "_"
}

// BulkKey returns the bulk backend key holding the payload of key.
func BulkKey(key string) string {
	return BulkKeyPrefix + key
}

func PropertiesKey() Key            { return Key{Kind: KindProperties} }
func PropertyKey(id string) Key     { return Key{Kind: KindProperty, ID: id} }
func UnitDetailsKey(id string) Key  { return Key{Kind: KindUnitDetails, ID: id} }
func UnitPaymentsKey(id string) Key { return Key{Kind: KindUnitPayments, ID: id} }
func SubscriptionKey(orgID string) Key {
	return Key{Kind: KindSubscription, ID: orgID}
}
