// Package plugins manages installable plugin units: installing them from an
// npm-style registry, synthesizing theme plugins from a theme definition,
// and reloading the manifests found in the plugins directory.
package plugins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the plugin store and installer.
var (
	ErrPluginExists = errors.New("plugin already exists")
	ErrNotAPlugin   = errors.New("package is not a plugin")
	ErrInvalidName  = errors.New("invalid plugin name")
)

const (
	// ThemeVersion is the version given to synthesized theme plugins.
	ThemeVersion = "0.0.1"

	themePrefix     = "theme-"
	themesExportsJS = "module.exports.themes = ["
	manifestName    = "package.json"
	defaultMain     = "main.js"
)

// Package is a plugin unit ready to be written to the plugins directory.
type Package struct {
	Name    string
	Version string
	MainJS  string
}

// Manifest is the subset of package.json the application reads.
type Manifest struct {
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Private  bool          `json:"private,omitempty"`
	Main     string        `json:"main,omitempty"`
	Insomnia *InsomniaMeta `json:"insomnia,omitempty"`
}

// InsomniaMeta marks a package as a plugin.
type InsomniaMeta struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// Plugin is a loaded plugin: its manifest, location and any themes it declares.
type Plugin struct {
	Manifest Manifest
	Dir      string
	Themes   []Theme
}

// Theme is a theme definition contributed by a plugin.
type Theme struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"displayName"`
	Raw         json.RawMessage `json:"-"`
}

// ParseTheme decodes a theme definition; name is required.
func ParseTheme(raw []byte) (Theme, error) {
	var t Theme
	if err := json.Unmarshal(raw, &t); err != nil {
		return Theme{}, fmt.Errorf("parse theme: %w", err)
	}
	if strings.TrimSpace(t.Name) == "" {
		return Theme{}, errors.New("parse theme: missing name")
	}
	t.Raw = append(json.RawMessage(nil), raw...)
	return t, nil
}

// NewThemePackage synthesizes a plugin named theme-<name> whose main.js
// exports the theme definition, indented with two spaces and with its key
// order preserved.
func NewThemePackage(t Theme) (Package, error) {
	var indented bytes.Buffer
	if err := json.Indent(&indented, t.Raw, "", "  "); err != nil {
		return Package{}, fmt.Errorf("format theme %q: %w", t.Name, err)
	}
	return Package{
		Name:    themePrefix + t.Name,
		Version: ThemeVersion,
		MainJS:  themesExportsJS + indented.String() + "];",
	}, nil
}

// themesFromMainJS recovers theme definitions from a main.js written by
// NewThemePackage. Other module shapes yield no themes.
func themesFromMainJS(src string) []Theme {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, themesExportsJS) || !strings.HasSuffix(src, "];") {
		return nil
	}
	body := "[" + strings.TrimSuffix(strings.TrimPrefix(src, themesExportsJS), ";")
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raws); err != nil {
		return nil
	}
	themes := make([]Theme, 0, len(raws))
	for _, r := range raws {
		if t, err := ParseTheme(r); err == nil {
			themes = append(themes, t)
		}
	}
	return themes
}

// newManifest is the package.json written for synthesized plugins.
func newManifest(p Package) Manifest {
	return Manifest{
		Name:    p.Name,
		Version: p.Version,
		Private: true,
		Main:    defaultMain,
		Insomnia: &InsomniaMeta{
			Name:        strings.TrimPrefix(p.Name, "insomnia-plugin-"),
			Description: "A plugin for Insomnia",
		},
	}
}

// validateName accepts npm package names, including @scope/name.
func validateName(name string) error {
	if name == "" || len(name) > 214 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	parts := strings.Split(name, "/")
	switch {
	case len(parts) == 2 && strings.HasPrefix(parts[0], "@") && len(parts[0]) > 1:
	case len(parts) == 1:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `\:*?"<>|`) || strings.HasPrefix(p, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
