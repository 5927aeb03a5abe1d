package models

import (
	"encoding/json"
	"time"
)

// Location says where the live payload of a cache entry is stored.
type Location string

const (
	// LocationInline means the payload lives in the secure backend.
	LocationInline Location = "inline"
	// LocationIndirected means the secure backend holds a marker and the
	// payload lives in the bulk backend.
	LocationIndirected Location = "indirected"
)

// CacheEntry describes a stored value without its payload.
type CacheEntry struct {
	Key       string
	Location  Location
	WrittenAt time.Time
}

// OfflineAction is a mutation recorded while offline for later replay.
// ID doubles as the idempotency key sent with the replayed request.
type OfflineAction struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}
