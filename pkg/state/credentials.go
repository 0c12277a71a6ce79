// Package state provides application state management for reqdesk: OAuth
// credential storage and the YAML-persisted application state shared by the
// CLI and desktop hosts.
package state

// credentials.go
//
// Credential storage for tokens obtained through the deep-link OAuth flows
// (insomnia://oauth/github/authenticate, insomnia://oauth/gitlab/authenticate).
//
// Provider identifiers ("github", "gitlab") are used as keys. Raw tokens must
// never be logged; use RedactToken before emitting values.

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Credential is a provider token obtained by an authorization-code exchange.
type Credential struct {
	Provider     string    `yaml:"provider"`
	AccessToken  string    `yaml:"accessToken"`
	RefreshToken string    `yaml:"refreshToken,omitempty"`
	TokenType    string    `yaml:"tokenType,omitempty"`
	Expiry       time.Time `yaml:"expiry,omitempty"`
	Account      string    `yaml:"account,omitempty"` // login name reported by the provider
}

// Expired reports whether the credential carries an expiry that has passed.
func (c Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}

// CredentialStore defines the contract for token persistence.
type CredentialStore interface {
	// SetCredential stores or replaces the credential for cred.Provider.
	SetCredential(cred Credential) error
	// GetCredential returns ErrCredentialNotFound if missing.
	GetCredential(provider string) (Credential, error)
	// DeleteCredential removes a stored credential (idempotent).
	DeleteCredential(provider string) error
	// ListProviders returns provider IDs with stored credentials, sorted.
	ListProviders() ([]string, error)
}

// ErrCredentialNotFound is returned when a credential for a provider does not exist.
var ErrCredentialNotFound = errors.New("credential not found")

// InMemoryCredentialStore is a thread-safe, volatile implementation.
type InMemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewInMemoryCredentialStore creates an empty store.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		creds: make(map[string]Credential),
	}
}

// SetCredential stores the credential in the in-memory map.
func (s *InMemoryCredentialStore) SetCredential(cred Credential) error {
	if cred.Provider == "" {
		return errors.New("provider cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Provider] = cred
	return nil
}

// GetCredential returns the credential for provider or ErrCredentialNotFound.
func (s *InMemoryCredentialStore) GetCredential(provider string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[provider]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return c, nil
}

// DeleteCredential removes the credential for provider; missing providers are ignored.
func (s *InMemoryCredentialStore) DeleteCredential(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, provider)
	return nil
}

// ListProviders returns all provider IDs that currently have credentials.
func (s *InMemoryCredentialStore) ListProviders() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.creds))
	for k := range s.creds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// FallbackCredentialStore composes a primary store with a fallback.
// Reads prefer primary; writes attempt primary then fallback if primary fails.
type FallbackCredentialStore struct {
	primary  CredentialStore
	fallback CredentialStore
}

// NewFallbackCredentialStore creates a layered store.
// If primary is nil, fallback is used for all operations.
func NewFallbackCredentialStore(primary, fallback CredentialStore) *FallbackCredentialStore {
	if fallback == nil {
		fallback = NewInMemoryCredentialStore()
	}
	return &FallbackCredentialStore{primary: primary, fallback: fallback}
}

// SetCredential writes to the primary store, falling back when it fails.
func (f *FallbackCredentialStore) SetCredential(cred Credential) error {
	if f.primary != nil {
		if err := f.primary.SetCredential(cred); err == nil {
			return nil
		}
	}
	return f.fallback.SetCredential(cred)
}

// GetCredential prefers the primary store; non-not-found primary errors are returned.
func (f *FallbackCredentialStore) GetCredential(provider string) (Credential, error) {
	if f.primary != nil {
		c, err := f.primary.GetCredential(provider)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCredentialNotFound) {
			return Credential{}, fmt.Errorf("primary get credential: %w", err)
		}
	}
	return f.fallback.GetCredential(provider)
}

// DeleteCredential removes the credential from both layers.
func (f *FallbackCredentialStore) DeleteCredential(provider string) error {
	var primaryErr error
	if f.primary != nil {
		primaryErr = f.primary.DeleteCredential(provider)
	}
	fallbackErr := f.fallback.DeleteCredential(provider)
	if primaryErr != nil && !errors.Is(primaryErr, ErrCredentialNotFound) {
		return primaryErr
	}
	if fallbackErr != nil && !errors.Is(fallbackErr, ErrCredentialNotFound) {
		return fallbackErr
	}
	return nil
}

// ListProviders merges provider IDs from both layers, de-duplicated and sorted.
func (f *FallbackCredentialStore) ListProviders() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string

	addAll := func(list []string, err error) error {
		if err != nil {
			return err
		}
		for _, p := range list {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
		return nil
	}

	if f.primary != nil {
		if err := addAll(f.primary.ListProviders()); err != nil {
			return nil, fmt.Errorf("primary list providers: %w", err)
		}
	}
	if err := addAll(f.fallback.ListProviders()); err != nil {
		return nil, fmt.Errorf("fallback list providers: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveProviderToken returns the access token for the given provider.
// Lookup order:
//  1. Environment variable REQDESK_<PROVIDER>_TOKEN
//  2. AppState.Credentials snapshot
//  3. CredentialStore (if provided)
//
// It returns an empty string if none is found.
func ResolveProviderToken(provider string, st *AppState, cs CredentialStore) (string, error) {
	if provider == "" {
		return "", errors.New("provider cannot be empty")
	}

	envName := fmt.Sprintf("REQDESK_%s_TOKEN", strings.ToUpper(provider))
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}

	if st != nil {
		for _, c := range st.Credentials {
			if c.Provider == provider && strings.TrimSpace(c.AccessToken) != "" {
				return c.AccessToken, nil
			}
		}
	}

	if cs != nil {
		c, err := cs.GetCredential(provider)
		switch {
		case err == nil && strings.TrimSpace(c.AccessToken) != "":
			return c.AccessToken, nil
		case err != nil && !errors.Is(err, ErrCredentialNotFound):
			return "", fmt.Errorf("credential store failure: %w", err)
		}
	}

	return "", nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
