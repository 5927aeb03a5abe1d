// Package common contains shared constants and sentinel errors used across
// propsync components.
package common

// AuthorizationHeaderName carries the bearer access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// IdempotencyKeyHeaderName carries the queued action ID on replayed mutations.
const IdempotencyKeyHeaderName = "Idempotency-Key"
