// Package client contains the remote API side of the propsync data layer.
//
// # Overview
//
// The package provides:
//  1. HTTPTransport, a JSON-over-HTTP transport that attaches the bearer
//     token, applies per-request timeouts and maps failures to the sentinel
//     errors in package common.
//  2. Interceptor, which wraps any Doer and retries a request exactly once
//     after a 401 once the session has refreshed its access token. When the
//     refresh fails, the session is logged out and the original error is
//     returned.
//  3. Payload and Normalize, which turn the three response shapes the API
//     uses (single object, bare list, paginated envelope) into one tagged
//     value at the network boundary.
//  4. AuthClient, the login/refresh/logout endpoints used by the session
//     manager.
//
// # Error Handling
//
// Transport failures and gateway statuses (502/503/504) match
// common.ErrUnavailable. A 401 matches common.ErrUnauthorized. Other non-2xx
// answers are returned as *StatusError.
package client
