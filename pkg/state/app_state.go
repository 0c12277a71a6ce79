package state

// app_state.go holds the state owned by the hosting view: the active theme,
// the pending import URI produced by insomnia://app/import, the settings tab
// last opened by a deep link, OAuth credentials and a bounded error log.
//
// The state objects themselves are not synchronized. Callers guard concurrent
// access (see shell.Runtime).

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// CurrentStateVersion is the on-disk schema version written by SaveAppState.
	CurrentStateVersion = 1

	// DefaultTheme is applied when no theme has been chosen.
	DefaultTheme = "default"

	defaultErrorLogSize = 200
)

// AppState represents the persisted application state (YAML).
type AppState struct {
	StateVersion    int               `yaml:"stateVersion"`
	SavedAt         time.Time         `yaml:"savedAt"`
	Settings        Settings          `yaml:"settings"`
	PendingImport   string            `yaml:"pendingImport,omitempty"`
	LastSettingsTab string            `yaml:"lastSettingsTab,omitempty"`
	Credentials     []Credential      `yaml:"credentials,omitempty"`
	ErrorLog        []ErrorLogEntry   `yaml:"errorLog,omitempty"`
	Meta            map[string]string `yaml:"meta,omitempty"`
}

// Settings mirrors the user-facing preferences a deep link may patch.
type Settings struct {
	Theme        string `yaml:"theme"`
	ErrorLogSize int    `yaml:"errorLogSize"`
}

// ErrorLogEntry records an error shown to the user.
type ErrorLogEntry struct {
	Time    time.Time `yaml:"time"`
	Title   string    `yaml:"title"`
	Message string    `yaml:"message"`
	Details string    `yaml:"details,omitempty"`
}

// NewDefaultAppState creates a new initialized AppState.
func NewDefaultAppState() *AppState {
	return &AppState{
		StateVersion: CurrentStateVersion,
		SavedAt:      time.Now().UTC(),
		Settings: Settings{
			Theme:        DefaultTheme,
			ErrorLogSize: defaultErrorLogSize,
		},
		ErrorLog: []ErrorLogEntry{},
		Meta:     map[string]string{},
	}
}

// LoadAppState loads an AppState from disk, returning defaults if the file is missing.
func LoadAppState(path string) (*AppState, error) {
	if path == "" {
		path = DefaultAppStatePath()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultAppState(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var st AppState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	normalizeAppState(&st)
	return &st, nil
}

// SaveAppState persists the state atomically to disk.
func SaveAppState(st *AppState, path string) error {
	if st == nil {
		return errors.New("state: nil AppState")
	}
	if path == "" {
		path = DefaultAppStatePath()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("state: mkdir failed: %w", err)
	}
	st.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".app_state.tmp-*")
	if err != nil {
		return fmt.Errorf("state: temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(out); err != nil {
		return fmt.Errorf("state: temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("state: chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("state: sync failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("state: atomic rename failed: %w", err)
	}
	return nil
}

// DefaultAppStatePath returns the OS-specific default path for the application state.
func DefaultAppStatePath() string {
	return filepath.Join(UserConfigDir(), "reqdesk", "state.yaml")
}

// UserConfigDir attempts to resolve a configuration directory in a portable way.
func UserConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

func normalizeAppState(st *AppState) {
	if st.StateVersion <= 0 {
		st.StateVersion = CurrentStateVersion
	}
	if st.Settings.Theme == "" {
		st.Settings.Theme = DefaultTheme
	}
	if st.Settings.ErrorLogSize <= 0 {
		st.Settings.ErrorLogSize = defaultErrorLogSize
	}
	if st.Meta == nil {
		st.Meta = map[string]string{}
	}
}

// RecordError appends to the error log, dropping the oldest entries beyond
// Settings.ErrorLogSize.
func (s *AppState) RecordError(entry ErrorLogEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	s.ErrorLog = append(s.ErrorLog, entry)
	limit := s.Settings.ErrorLogSize
	if limit <= 0 {
		limit = defaultErrorLogSize
	}
	if over := len(s.ErrorLog) - limit; over > 0 {
		s.ErrorLog = append([]ErrorLogEntry(nil), s.ErrorLog[over:]...)
	}
}

// SetCredential replaces or appends the credential snapshot for cred.Provider.
func (s *AppState) SetCredential(cred Credential) {
	for i := range s.Credentials {
		if s.Credentials[i].Provider == cred.Provider {
			s.Credentials[i] = cred
			return
		}
	}
	s.Credentials = append(s.Credentials, cred)
}

// TakePendingImport returns and clears the pending import URI.
func (s *AppState) TakePendingImport() string {
	uri := s.PendingImport
	s.PendingImport = ""
	return uri
}

// RedactedCopy returns a copy with tokens anonymized.
func (s *AppState) RedactedCopy() *AppState {
	cp := *s
	cp.Credentials = make([]Credential, len(s.Credentials))
	for i, c := range s.Credentials {
		c.AccessToken = RedactToken(c.AccessToken)
		c.RefreshToken = RedactToken(c.RefreshToken)
		cp.Credentials[i] = c
	}
	return &cp
}

// WriteTo writes the full YAML representation to an arbitrary writer.
func (s *AppState) WriteTo(w io.Writer) (int64, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}

// StateCredentialStore persists credentials inside an AppState file. Writes
// reload the file, patch the snapshot and save it back.
type StateCredentialStore struct {
	Path string
}

// SetCredential implements CredentialStore.
func (s StateCredentialStore) SetCredential(cred Credential) error {
	if cred.Provider == "" {
		return errors.New("provider cannot be empty")
	}
	st, err := LoadAppState(s.Path)
	if err != nil {
		return err
	}
	st.SetCredential(cred)
	return SaveAppState(st, s.Path)
}

// GetCredential implements CredentialStore.
func (s StateCredentialStore) GetCredential(provider string) (Credential, error) {
	st, err := LoadAppState(s.Path)
	if err != nil {
		return Credential{}, err
	}
	for _, c := range st.Credentials {
		if c.Provider == provider {
			return c, nil
		}
	}
	return Credential{}, ErrCredentialNotFound
}

// DeleteCredential implements CredentialStore.
func (s StateCredentialStore) DeleteCredential(provider string) error {
	st, err := LoadAppState(s.Path)
	if err != nil {
		return err
	}
	kept := st.Credentials[:0]
	for _, c := range st.Credentials {
		if c.Provider != provider {
			kept = append(kept, c)
		}
	}
	st.Credentials = kept
	return SaveAppState(st, s.Path)
}

// ListProviders implements CredentialStore.
func (s StateCredentialStore) ListProviders() ([]string, error) {
	st, err := LoadAppState(s.Path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.Credentials))
	for _, c := range st.Credentials {
		out = append(out, c.Provider)
	}
	sort.Strings(out)
	return out, nil
}
