// Package models defines the client-side data model: the authentication
// session, cached entries and queued offline actions.
package models

import "time"

// SessionState is a state of the authentication state machine.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Tokens is the access/refresh pair issued by the login and refresh endpoints.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Credentials are supplied by the user at login. Password should be wiped
// by the caller once login returns.
type Credentials struct {
	Email    string
	Password []byte
}

// Session is the in-memory authentication state.
//
// Authenticated implies AccessToken is non-empty and was not expired when
// last checked.
type Session struct {
	State         SessionState
	AccessToken   string
	RefreshToken  string
	Authenticated bool
	// Offline is set when the session was restored from cache because the
	// server could not be reached at login.
	Offline   bool
	Email     string
	ExpiresAt time.Time
}

// HasToken reports whether an access token is present.
func (s Session) HasToken() bool {
	return s.AccessToken != ""
}

// OfflineIdentity is persisted after an online login so a later login can be
// verified locally while the server is unreachable.
type OfflineIdentity struct {
	Email    string `json:"email"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}
