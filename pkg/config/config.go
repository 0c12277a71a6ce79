// Package config loads the reqdesk configuration file: deep-link scheme
// names, OAuth client registrations, plugin locations, the deep-link
// listener address and the state file path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default values applied by ApplyDefaults.
const (
	DefaultScheme       = "insomnia"
	DefaultDevScheme    = "insomniadev"
	DefaultRegistryURL  = "https://registry.npmjs.org"
	DefaultListenAddr   = "127.0.0.1:38571"
	DefaultGitHubURL    = "https://github.com"
	DefaultGitLabURL    = "https://gitlab.com"
	DefaultGitLabScopes = "read_api read_repository write_repository"
)

// Config represents the top-level configuration file structure
type Config struct {
	Scheme    SchemeConfig   `yaml:"scheme" toml:"scheme"`
	OAuth     OAuthConfig    `yaml:"oauth" toml:"oauth"`
	Plugins   PluginsConfig  `yaml:"plugins" toml:"plugins"`
	Listener  ListenerConfig `yaml:"listener" toml:"listener"`
	StatePath string         `yaml:"statePath" toml:"statePath"`
}

// SchemeConfig names the custom URL schemes the application is registered for.
type SchemeConfig struct {
	Name        string `yaml:"name" toml:"name"`
	DevName     string `yaml:"devName" toml:"devName"`
	Development bool   `yaml:"development" toml:"development"`
}

// OAuthConfig holds one client registration per provider.
type OAuthConfig struct {
	GitHub ProviderOAuth `yaml:"github" toml:"github"`
	GitLab ProviderOAuth `yaml:"gitlab" toml:"gitlab"`
}

// ProviderOAuth describes an OAuth application registered with a provider.
type ProviderOAuth struct {
	ClientID     string   `yaml:"clientId" toml:"clientId"`
	ClientSecret string   `yaml:"clientSecret" toml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectUrl" toml:"redirectUrl"`
	BaseURL      string   `yaml:"baseUrl" toml:"baseUrl"`       // web URL; self-hosted instances override it
	APIURL       string   `yaml:"apiUrl" toml:"apiUrl"`         // API base for token verification
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

// PluginsConfig locates installed plugins and the registry they come from.
type PluginsConfig struct {
	Dir         string `yaml:"dir" toml:"dir"`
	RegistryURL string `yaml:"registryUrl" toml:"registryUrl"`
}

// ListenerConfig configures the local deep-link forwarding endpoint.
type ListenerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoadFromFile reads a YAML (or, for .toml files, TOML) configuration file
// and returns the parsed Config with defaults applied.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return &config, nil
}

// Default returns a Config with every default applied. Used when no
// configuration file is given.
func Default() *Config {
	c := &Config{}
	// ApplyDefaults cannot fail on a zero Config.
	_ = c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields and validates the result.
func (c *Config) ApplyDefaults() error {
	if c.Scheme.Name == "" {
		c.Scheme.Name = DefaultScheme
	}
	if c.Scheme.DevName == "" {
		c.Scheme.DevName = DefaultDevScheme
	}
	if strings.Contains(c.Scheme.Name, ":") || strings.Contains(c.Scheme.DevName, ":") {
		return fmt.Errorf("scheme names must not contain ':' (got %q, %q)", c.Scheme.Name, c.Scheme.DevName)
	}

	base := filepath.Join(userConfigDir(), "reqdesk")
	if c.StatePath == "" {
		c.StatePath = filepath.Join(base, "state.yaml")
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = filepath.Join(base, "plugins")
	}
	if c.Plugins.RegistryURL == "" {
		c.Plugins.RegistryURL = DefaultRegistryURL
	}
	c.Plugins.RegistryURL = strings.TrimRight(c.Plugins.RegistryURL, "/")
	if c.Listener.Addr == "" {
		c.Listener.Addr = DefaultListenAddr
	}

	gh := &c.OAuth.GitHub
	if gh.BaseURL == "" {
		gh.BaseURL = DefaultGitHubURL
	}
	if gh.RedirectURL == "" {
		gh.RedirectURL = c.Scheme.Name + "://oauth/github/authenticate"
	}
	if len(gh.Scopes) == 0 {
		gh.Scopes = []string{"repo", "read:user", "user:email"}
	}
	if gh.ClientSecret == "" {
		gh.ClientSecret = os.Getenv("REQDESK_GITHUB_CLIENT_SECRET")
	}

	gl := &c.OAuth.GitLab
	if gl.BaseURL == "" {
		gl.BaseURL = DefaultGitLabURL
	}
	if gl.RedirectURL == "" {
		gl.RedirectURL = c.Scheme.Name + "://oauth/gitlab/authenticate"
	}
	if len(gl.Scopes) == 0 {
		gl.Scopes = strings.Fields(DefaultGitLabScopes)
	}
	if gl.ClientSecret == "" {
		gl.ClientSecret = os.Getenv("REQDESK_GITLAB_CLIENT_SECRET")
	}

	gh.BaseURL = strings.TrimRight(gh.BaseURL, "/")
	gl.BaseURL = strings.TrimRight(gl.BaseURL, "/")
	return nil
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}
