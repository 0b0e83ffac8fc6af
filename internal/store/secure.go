package store

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

// Secure slot account names, kept out of the general KV.
const (
	AccountAuthToken = "auth_token"
	AccountUserData  = "user_data"
)

// SecureStore is the secure slot for auth secrets, kept distinct from
// general settings. Backed by the OS keychain via
// go-keyring, with an in-memory fallback so headless environments without
// a keychain (CI, containers) degrade gracefully instead of failing every
// call, mirroring internal/mcpserver/auth/keyring.go's behavior.
type SecureStore struct {
	service string
	log     zerolog.Logger

	mu       sync.Mutex
	fallback map[string]string
}

// NewSecureStore creates a secure slot scoped to service (the keyring
// "service" namespace).
func NewSecureStore(service string, log zerolog.Logger) *SecureStore {
	return &SecureStore{
		service:  service,
		log:      log.With().Str("component", "store.secure").Logger(),
		fallback: make(map[string]string),
	}
}

// Set stores value under account, preferring the OS keychain.
func (s *SecureStore) Set(account, value string) error {
	if err := keyring.Set(s.service, account, value); err != nil {
		s.log.Debug().Err(err).Str("account", account).
			Msg("keyring unavailable, storing in-memory only")
		s.mu.Lock()
		s.fallback[account] = value
		s.mu.Unlock()
		return nil
	}
	s.mu.Lock()
	delete(s.fallback, account)
	s.mu.Unlock()
	return nil
}

// Get retrieves account. A missing value is not an error: it returns
// ok=false, matching the general KV's "failure to read = empty" contract.
func (s *SecureStore) Get(account string) (value string, ok bool, err error) {
	v, kerr := keyring.Get(s.service, account)
	if kerr == nil {
		return v, true, nil
	}
	if kerr != keyring.ErrNotFound {
		s.log.Debug().Err(kerr).Str("account", account).
			Msg("keyring unavailable, checking in-memory fallback")
	}
	s.mu.Lock()
	v, found := s.fallback[account]
	s.mu.Unlock()
	if found {
		return v, true, nil
	}
	return "", false, nil
}

// Clear removes account from both the keychain and the in-memory fallback.
// Used on logout and on 401-with-token.
func (s *SecureStore) Clear(account string) error {
	if err := keyring.Delete(s.service, account); err != nil && err != keyring.ErrNotFound {
		s.log.Debug().Err(err).Str("account", account).Msg("keyring delete failed")
	}
	s.mu.Lock()
	delete(s.fallback, account)
	s.mu.Unlock()
	return nil
}
