// Package session holds the time-bounded authentication capabilities issued
// after a successful login. The default backend is an in-process map; a
// Redis backend is available for deployments that already run one.
package session

import "time"

// DefaultTTL is how long a session stays valid after login.
const DefaultTTL = 24 * time.Hour

// Store persists session tokens. A token is valid only while its expiry is
// in the future; an expired token must behave as absent even before any
// cleanup ran.
type Store interface {
	// Create issues a fresh unpredictable token bound to username.
	Create(username string) (string, error)
	// Validate resolves a token to its username. Expired or unknown tokens
	// report false.
	Validate(token string) (string, bool, error)
	// Clear drops every session. Logout is store-wide by design.
	Clear() error
}
