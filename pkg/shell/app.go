package shell

import (
	"context"
	"log/slog"

	"github.com/greg-hellings/reqdesk/pkg/config"
	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/oauth"
	"github.com/greg-hellings/reqdesk/pkg/plugins"
	"github.com/greg-hellings/reqdesk/pkg/session"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

// App bundles the collaborators a host wires into the dispatcher.
type App struct {
	Config      *config.Config
	Runtime     *Runtime
	Credentials state.CredentialStore
	Plugins     *plugins.Manager
	Session     *session.Session
	GitHub      *oauth.Flow
	GitLab      *oauth.Flow
}

// NewApp loads state and plugins for cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store := plugins.NewStore(cfg.Plugins.Dir)
	if err := store.Reload(ctx); err != nil {
		slog.Warn("Failed to load plugins", "dir", cfg.Plugins.Dir, "error", err)
	}

	rt, err := NewRuntime(cfg.StatePath, store)
	if err != nil {
		return nil, err
	}
	// Tokens stay usable for this process even when the state file cannot be written.
	creds := state.NewFallbackCredentialStore(rt, state.NewInMemoryCredentialStore())
	installer := plugins.NewInstaller(cfg.Plugins.RegistryURL, store, plugins.NewHTTPClient())

	return &App{
		Config:      cfg,
		Runtime:     rt,
		Credentials: creds,
		Plugins:     plugins.NewManager(store, installer),
		Session:     session.New(),
		GitHub:      oauth.NewGitHubFlow(cfg.OAuth.GitHub, creds),
		GitLab:      oauth.NewGitLabFlow(cfg.OAuth.GitLab, creds),
	}, nil
}

// ParseOptions returns the deep-link parse options from the configuration.
func (a *App) ParseOptions() deeplink.ParseOptions {
	return deeplink.ParseOptions{
		Scheme:      a.Config.Scheme.Name,
		DevScheme:   a.Config.Scheme.DevName,
		Development: a.Config.Scheme.Development,
	}
}

// Options returns dispatcher options with every port wired to the app.
func (a *App) Options(dialogs deeplink.Dialogs) deeplink.Options {
	return deeplink.Options{
		Parse:     a.ParseOptions(),
		Dialogs:   dialogs,
		Imports:   a.Runtime,
		Plugins:   a.Plugins,
		Themes:    a.Runtime,
		GitHub:    a.GitHub,
		GitLab:    a.GitLab,
		AuthCodes: a.Session,
	}
}

// Dispatcher builds a dispatcher rendering through dialogs.
func (a *App) Dispatcher(dialogs deeplink.Dialogs) *deeplink.Dispatcher {
	return deeplink.New(a.Options(dialogs))
}

// Flow returns the OAuth flow for provider, or nil.
func (a *App) Flow(provider string) *oauth.Flow {
	switch provider {
	case oauth.ProviderGitHub:
		return a.GitHub
	case oauth.ProviderGitLab:
		return a.GitLab
	}
	return nil
}
