// Package auth validates the configured admin credentials and extracts
// session tokens from requests.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "sessionId"

// Gate checks login attempts against the single configured admin account.
type Gate struct {
	username string
	password string
}

// NewGate builds a gate for the admin account. The password may be either a
// plain value or a bcrypt hash (recognized by its "$2" prefix).
func NewGate(username, password string) *Gate {
	return &Gate{username: username, password: password}
}

// Authenticate reports whether the supplied credentials match. Plain
// passwords are compared in constant time.
func (g *Gate) Authenticate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	if strings.HasPrefix(g.password, "$2") {
		hashOK := bcrypt.CompareHashAndPassword([]byte(g.password), []byte(password)) == nil
		return userOK && hashOK
	}
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	return userOK && passOK
}

// SessionToken extracts the session token from the request cookies.
func SessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", false
	}
	return c.Value, true
}
