// Package auth wires the secure KV slot into the httpclient.TokenStore
// contract the HTTP client facade needs, and inspects cached access tokens
// the way internal/mcpserver/auth does for Auth0 sessions.
package auth

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-app/notesync-core/internal/store"
)

// User is the minimal profile persisted alongside the access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TokenStore implements httpclient.TokenStore over a store.SecureStore,
// and additionally persists/retrieves the logged-in user profile.
type TokenStore struct {
	secure *store.SecureStore
}

// NewTokenStore wraps secure as a TokenStore.
func NewTokenStore(secure *store.SecureStore) *TokenStore {
	return &TokenStore{secure: secure}
}

// GetToken implements httpclient.TokenStore.
func (t *TokenStore) GetToken() (string, bool, error) {
	return t.secure.Get(store.AccountAuthToken)
}

// SetSession stores the access token and user profile together, as the
// source app's login flow does atomically from the UI's perspective.
func (t *TokenStore) SetSession(accessToken string, user User) error {
	if err := t.secure.Set(store.AccountAuthToken, accessToken); err != nil {
		return fmt.Errorf("auth: store token: %w", err)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("auth: encode user: %w", err)
	}
	if err := t.secure.Set(store.AccountUserData, string(raw)); err != nil {
		return fmt.Errorf("auth: store user: %w", err)
	}
	return nil
}

// User returns the persisted user profile, if any.
func (t *TokenStore) User() (User, bool, error) {
	raw, ok, err := t.secure.Get(store.AccountUserData)
	if err != nil || !ok {
		return User{}, ok, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false, fmt.Errorf("auth: decode user: %w", err)
	}
	return u, true, nil
}

// ClearSession implements httpclient.TokenStore: clears both the token and
// the user profile, as required before a session-expired transition or an
// explicit logout.
func (t *TokenStore) ClearSession() error {
	if err := t.secure.Clear(store.AccountAuthToken); err != nil {
		return err
	}
	return t.secure.Clear(store.AccountUserData)
}

// UserIDFromToken extracts the "sub" claim from an unverified JWT access
// token, for use when the server's /auth/me response doesn't round-trip
// the id (the server remains the signature/claims authority; this is a
// display-only convenience, mirroring ExpiresProactively's non-verifying
// parse).
func UserIDFromToken(token string) (string, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
