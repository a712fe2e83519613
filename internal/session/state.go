// Package session owns the authentication snapshot of the client.
//
// State is an immutable value replaced wholesale on every change; Manager is
// the single serialized owner of the current State and the only place that
// triggers token refreshes.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrIncompleteSession means a server response was missing fields
	// required for an authenticated state (token, refresh token, expiry
	// or user).
	ErrIncompleteSession = errors.New("incomplete session data")
)

// User is the authenticated identity.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	TenantID  string
}

// State is the current auth snapshot. Authenticated is true iff all of
// Token, RefreshToken, ExpiresAt and User are present.
type State struct {
	Authenticated bool
	Token         string
	RefreshToken  string
	ExpiresAt     time.Time
	User          *User
}

// Unauthenticated returns the zero snapshot used at process start and after
// logout.
func Unauthenticated() State {
	return State{}
}

// Authenticated builds an authenticated snapshot, enforcing the invariant
// that every field is present. ID and username must be non-empty.
func Authenticated(token, refreshToken string, expiresAt time.Time, user User) (State, error) {
	if token == "" || refreshToken == "" || expiresAt.IsZero() {
		return State{}, ErrIncompleteSession
	}
	if user.ID == "" || user.Username == "" {
		return State{}, ErrIncompleteSession
	}
	u := user
	return State{
		Authenticated: true,
		Token:         token,
		RefreshToken:  refreshToken,
		ExpiresAt:     expiresAt,
		User:          &u,
	}, nil
}

// Expired reports whether the snapshot's token has expired at now.
// Unauthenticated snapshots are always expired.
func (s State) Expired(now time.Time) bool {
	if !s.Authenticated {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// expiryFromToken extracts the exp claim from a JWT without verifying the
// signature. The server remains the verifier; this is only a fallback for
// responses that omit expiresAt.
func expiryFromToken(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
