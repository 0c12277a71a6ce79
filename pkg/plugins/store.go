package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store owns the plugins directory and the set of loaded plugins.
type Store struct {
	dir string

	mu      sync.RWMutex
	plugins []Plugin
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the plugins directory.
func (s *Store) Dir() string { return s.dir }

// pluginDir maps a package name (possibly scoped) to its directory.
func (s *Store) pluginDir(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

// Create writes package.json and main.js for p. It refuses to overwrite an
// existing plugin.
func (s *Store) Create(_ context.Context, p Package) error {
	dir, err := s.pluginDir(p.Name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w at %q", ErrPluginExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plugin directory: %w", err)
	}

	manifest, err := json.MarshalIndent(newManifest(p), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, defaultMain), []byte(p.MainJS), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", defaultMain, err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), manifest, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", manifestName, err)
	}
	slog.Info("Plugin created", "name", p.Name, "version", p.Version, "dir", dir)
	return nil
}

// Reload rescans the plugins directory. Directories without a plugin
// manifest are skipped.
func (s *Store) Reload(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.setPlugins(nil)
			return nil
		}
		return fmt.Errorf("read plugins directory: %w", err)
	}

	var loaded []Plugin
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if strings.HasPrefix(e.Name(), "@") {
			scoped, err := os.ReadDir(path)
			if err != nil {
				slog.Warn("Skipping plugin scope", "dir", path, "error", err)
				continue
			}
			for _, se := range scoped {
				if se.IsDir() {
					if p, ok := loadPlugin(filepath.Join(path, se.Name())); ok {
						loaded = append(loaded, p)
					}
				}
			}
			continue
		}
		if p, ok := loadPlugin(path); ok {
			loaded = append(loaded, p)
		}
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Manifest.Name < loaded[j].Manifest.Name })
	s.setPlugins(loaded)
	slog.Debug("Plugins reloaded", "dir", s.dir, "count", len(loaded))
	return nil
}

func loadPlugin(dir string) (Plugin, bool) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		slog.Debug("Skipping directory without manifest", "dir", dir)
		return Plugin{}, false
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("Skipping plugin with invalid manifest", "dir", dir, "error", err)
		return Plugin{}, false
	}
	if m.Insomnia == nil {
		return Plugin{}, false
	}
	p := Plugin{Manifest: m, Dir: dir}
	main := m.Main
	if main == "" {
		main = defaultMain
	}
	if src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(main))); err == nil {
		p.Themes = themesFromMainJS(string(src))
	}
	return p, true
}

func (s *Store) setPlugins(p []Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins = p
}

// Plugins returns the plugins found by the last Reload.
func (s *Store) Plugins() []Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plugin, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// FindTheme looks a theme up by name across loaded plugins.
func (s *Store) FindTheme(name string) (Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plugins {
		for _, t := range p.Themes {
			if t.Name == name {
				return t, true
			}
		}
	}
	return Theme{}, false
}
