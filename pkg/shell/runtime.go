// Package shell hosts the dispatcher: it owns the application state the
// deep-link handlers mutate and provides terminal renderings of the dialog
// port.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/plugins"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

// ErrUnknownTheme is returned by ApplyTheme for themes no plugin provides.
var ErrUnknownTheme = errors.New("unknown theme")

// ThemeCatalog looks up themes contributed by installed plugins.
type ThemeCatalog interface {
	FindTheme(name string) (plugins.Theme, bool)
}

// Runtime owns the AppState and persists every change. All methods are safe
// for concurrent use, so overlapping dispatches serialize only here.
type Runtime struct {
	mu     sync.Mutex
	path   string
	st     *state.AppState
	themes ThemeCatalog
}

// NewRuntime loads state from path (defaults when missing).
func NewRuntime(path string, themes ThemeCatalog) (*Runtime, error) {
	st, err := state.LoadAppState(path)
	if err != nil {
		return nil, err
	}
	return &Runtime{path: path, st: st, themes: themes}, nil
}

// save persists the state. Callers hold r.mu.
func (r *Runtime) save() error {
	if r.path == "" {
		return nil
	}
	return state.SaveAppState(r.st, r.path)
}

// Snapshot returns a copy of the current state.
func (r *Runtime) Snapshot() state.AppState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.st
	cp.Credentials = append([]state.Credential(nil), r.st.Credentials...)
	cp.ErrorLog = append([]state.ErrorLogEntry(nil), r.st.ErrorLog...)
	return cp
}

// SetPendingImport implements deeplink.ImportTarget.
func (r *Runtime) SetPendingImport(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.PendingImport = uri
	if err := r.save(); err != nil {
		slog.Error("Failed to save pending import", "uri", uri, "error", err)
		return
	}
	slog.Info("Pending import recorded", "uri", uri)
}

// TakePendingImport returns and clears the pending import URI.
func (r *Runtime) TakePendingImport() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uri := r.st.TakePendingImport()
	if uri == "" {
		return "", nil
	}
	if err := r.save(); err != nil {
		return uri, fmt.Errorf("failed to save state: %w", err)
	}
	return uri, nil
}

// ApplyTheme implements deeplink.ThemeSetter. The theme must be the
// default theme or one provided by an installed plugin.
func (r *Runtime) ApplyTheme(_ context.Context, name string) error {
	if name != state.DefaultTheme {
		if r.themes == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTheme, name)
		}
		if _, ok := r.themes.FindTheme(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTheme, name)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Settings.Theme = name
	if err := r.save(); err != nil {
		return fmt.Errorf("failed to save theme: %w", err)
	}
	slog.Info("Theme activated", "theme", name)
	return nil
}

// Theme returns the active theme.
func (r *Runtime) Theme() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.Settings.Theme
}

// RecordError appends an error shown to the user to the bounded error log.
func (r *Runtime) RecordError(n deeplink.ErrorNotice) {
	entry := state.ErrorLogEntry{Time: time.Now().UTC(), Title: n.Title, Message: n.Message}
	if n.Err != nil {
		entry.Details = n.Err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.RecordError(entry)
	if err := r.save(); err != nil {
		slog.Error("Failed to save error log", "error", err)
	}
}

// SetSettingsTab remembers the settings tab last opened.
func (r *Runtime) SetSettingsTab(tab deeplink.SettingsTab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.LastSettingsTab = string(tab)
	if err := r.save(); err != nil {
		slog.Error("Failed to save settings tab", "error", err)
	}
}

// SetCredential implements state.CredentialStore on the runtime state.
func (r *Runtime) SetCredential(cred state.Credential) error {
	if cred.Provider == "" {
		return errors.New("provider cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.SetCredential(cred)
	return r.save()
}

// GetCredential implements state.CredentialStore.
func (r *Runtime) GetCredential(provider string) (state.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.st.Credentials {
		if c.Provider == provider {
			return c, nil
		}
	}
	return state.Credential{}, state.ErrCredentialNotFound
}

// DeleteCredential implements state.CredentialStore.
func (r *Runtime) DeleteCredential(provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.st.Credentials[:0]
	for _, c := range r.st.Credentials {
		if c.Provider != provider {
			out = append(out, c)
		}
	}
	r.st.Credentials = out
	return r.save()
}

// ListProviders implements state.CredentialStore.
func (r *Runtime) ListProviders() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.st.Credentials))
	for _, c := range r.st.Credentials {
		out = append(out, c.Provider)
	}
	sort.Strings(out)
	return out, nil
}
