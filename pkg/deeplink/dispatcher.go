package deeplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/greg-hellings/reqdesk/pkg/plugins"
)

// ErrMalformedTheme is returned when the theme parameter cannot be decoded.
var ErrMalformedTheme = errors.New("malformed theme")

// LoginPrompt describes the login dialog opened by app/auth/login.
type LoginPrompt struct {
	Title   string
	Message string
	Reauth  bool
}

// Confirmation is a yes/no question.
type Confirmation struct {
	Title   string
	Message string
	YesText string
	NoText  string
}

// ErrorNotice is an error dialog.
type ErrorNotice struct {
	Title   string
	Message string
	Err     error
}

// SettingsTab selects the tab the settings dialog opens on.
type SettingsTab string

const (
	SettingsTabPlugins SettingsTab = "plugins"
	SettingsTabThemes  SettingsTab = "themes"
)

// Dialogs renders user-facing dialogs.
type Dialogs interface {
	Alert(ctx context.Context, title, message string) error
	Login(ctx context.Context, p LoginPrompt) error
	Confirm(ctx context.Context, c Confirmation) (bool, error)
	Error(ctx context.Context, n ErrorNotice) error
	Settings(ctx context.Context, tab SettingsTab) error
}

// ImportTarget receives the uri of app/import links.
type ImportTarget interface {
	SetPendingImport(uri string)
}

// PluginHost installs, creates and reloads plugins.
type PluginHost interface {
	Install(ctx context.Context, name string) error
	Create(ctx context.Context, p plugins.Package) error
	Reload(ctx context.Context) error
}

// ThemeSetter patches the theme setting and activates it.
type ThemeSetter interface {
	ApplyTheme(ctx context.Context, name string) error
}

// CodeExchanger redeems an OAuth authorization code.
type CodeExchanger interface {
	Exchange(ctx context.Context, code, state string) error
}

// AuthCodeSubmitter accepts the sealed box of app/auth/finish.
type AuthCodeSubmitter interface {
	SubmitAuthCode(box string)
}

// Options wires the dispatcher to its collaborators. Any port may be nil;
// the matching route then logs a warning and does nothing.
type Options struct {
	Parse     ParseOptions
	Dialogs   Dialogs
	Imports   ImportTarget
	Plugins   PluginHost
	Themes    ThemeSetter
	GitHub    CodeExchanger
	GitLab    CodeExchanger
	AuthCodes AuthCodeSubmitter
	Logger    *slog.Logger
}

// Dispatcher routes deep links. It keeps no state between calls and
// concurrent Dispatch calls do not wait on each other.
type Dispatcher struct {
	opts Options
	log  *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{opts: opts, log: log}
}

// Dispatch parses raw and runs the handler for its route. Parse failures,
// unknown links and plugin or OAuth failures are handled here and return
// nil. Errors from the theme route and from the dialog port are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) error {
	link, err := Parse(raw, d.opts.Parse)
	if err != nil {
		d.log.Info("Invalid args, expected insomnia://x/y/z", "url", raw, "error", err)
		return nil
	}
	return d.Handle(ctx, link)
}

// Handle runs the handler for an already parsed link.
func (d *Dispatcher) Handle(ctx context.Context, link *Link) error {
	d.log.Debug("Dispatching deep link", "route", link.Route.String(), "key", link.Key)

	switch link.Route {
	case RouteAlert:
		if d.opts.Dialogs == nil {
			return d.missing(link, "dialogs")
		}
		return d.opts.Dialogs.Alert(ctx, link.Param("title"), link.Param("message"))

	case RouteLogin:
		if d.opts.Dialogs == nil {
			return d.missing(link, "dialogs")
		}
		return d.opts.Dialogs.Login(ctx, LoginPrompt{
			Title:   link.Param("title"),
			Message: link.Param("message"),
			Reauth:  true,
		})

	case RouteImport:
		if d.opts.Imports == nil {
			return d.missing(link, "import target")
		}
		d.opts.Imports.SetPendingImport(link.Param("uri"))
		return nil

	case RoutePluginInstall:
		return d.installPlugin(ctx, link)

	case RoutePluginTheme:
		return d.installTheme(ctx, link)

	case RouteGitHubOAuth:
		return d.exchange(ctx, link, d.opts.GitHub, "Error authorizing GitHub")

	case RouteGitLabOAuth:
		return d.exchange(ctx, link, d.opts.GitLab, "Error authorizing GitLab")

	case RouteAuthFinish:
		if d.opts.AuthCodes == nil {
			return d.missing(link, "auth code submitter")
		}
		d.opts.AuthCodes.SubmitAuthCode(link.Param("box"))
		return nil

	default:
		d.log.Info("Unknown deep link: " + link.Raw)
		return nil
	}
}

func (d *Dispatcher) missing(link *Link, port string) error {
	d.log.Warn("Deep link ignored, no handler configured", "route", link.Route.String(), "port", port)
	return nil
}

func (d *Dispatcher) installPlugin(ctx context.Context, link *Link) error {
	if d.opts.Dialogs == nil || d.opts.Plugins == nil {
		return d.missing(link, "plugins")
	}
	name := link.Param("name")
	ok, err := d.opts.Dialogs.Confirm(ctx, Confirmation{
		Title:   "Plugin Install",
		Message: fmt.Sprintf("Do you want to install %s?", name),
		YesText: "Install",
		NoText:  "Cancel",
	})
	if err != nil || !ok {
		return err
	}

	if err := d.opts.Plugins.Install(ctx, name); err != nil {
		d.log.Warn("Plugin install failed", "name", name, "error", err)
		return d.opts.Dialogs.Error(ctx, ErrorNotice{
			Title:   "Plugin Install",
			Message: "Failed to install plugin",
			Err:     err,
		})
	}
	return d.opts.Dialogs.Settings(ctx, SettingsTabPlugins)
}

func (d *Dispatcher) installTheme(ctx context.Context, link *Link) error {
	if d.opts.Dialogs == nil || d.opts.Plugins == nil || d.opts.Themes == nil {
		return d.missing(link, "themes")
	}

	decoded, err := url.PathUnescape(link.Param("theme"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTheme, err)
	}
	theme, err := plugins.ParseTheme([]byte(decoded))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTheme, err)
	}

	display := theme.DisplayName
	if display == "" {
		display = theme.Name
	}
	ok, err := d.opts.Dialogs.Confirm(ctx, Confirmation{
		Title:   "Install Theme",
		Message: fmt.Sprintf("Do you want to install %s?", display),
		YesText: "Install",
		NoText:  "Cancel",
	})
	if err != nil || !ok {
		return err
	}

	pkg, err := plugins.NewThemePackage(theme)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTheme, err)
	}
	if err := d.opts.Plugins.Create(ctx, pkg); err != nil {
		return fmt.Errorf("create theme plugin %s: %w", pkg.Name, err)
	}
	if err := d.opts.Plugins.Reload(ctx); err != nil {
		return fmt.Errorf("reload plugins: %w", err)
	}
	if err := d.opts.Themes.ApplyTheme(ctx, theme.Name); err != nil {
		return fmt.Errorf("apply theme %s: %w", theme.Name, err)
	}
	return d.opts.Dialogs.Settings(ctx, SettingsTabThemes)
}

func (d *Dispatcher) exchange(ctx context.Context, link *Link, ex CodeExchanger, title string) error {
	if ex == nil {
		return d.missing(link, "oauth")
	}
	err := ex.Exchange(ctx, link.Param("code"), link.Param("state"))
	if err == nil {
		return nil
	}
	d.log.Warn("OAuth code exchange failed", "route", link.Route.String(), "error", err)
	if d.opts.Dialogs == nil {
		return nil
	}
	return d.opts.Dialogs.Error(ctx, ErrorNotice{Title: title, Message: err.Error(), Err: err})
}
