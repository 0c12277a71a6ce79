package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/listener"
	"github.com/greg-hellings/reqdesk/pkg/oauth"
	"github.com/greg-hellings/reqdesk/pkg/shell"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

type oauthFlags struct {
	addr    string
	timeout time.Duration
}

var oauthOpts oauthFlags

// newOAuthCmd creates the 'oauth' command group.
func newOAuthCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "oauth",
		Short: "Manage GitHub and GitLab authorization",
	}

	login := &cobra.Command{
		Use:   "login <github|gitlab>",
		Short: "Authorize with a provider through the browser",
		Long: strings.TrimSpace(`
Print the provider's authorization URL and wait for the
insomnia://oauth/<provider>/authenticate callback, which the operating system
delivers through 'reqdesk open --forward'. The exchanged token is verified
against the provider API and stored in the application state.
`),
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{oauth.ProviderGitHub, oauth.ProviderGitLab},
		RunE:      runOAuthLogin,
	}
	login.Flags().StringVar(&oauthOpts.addr, "addr", "", "Listen address (default from config)")
	login.Flags().DurationVar(&oauthOpts.timeout, "timeout", 10*time.Minute, "How long to wait for the callback")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored provider tokens (redacted)",
		Args:  cobra.NoArgs,
		RunE:  runOAuthList,
	}

	logout := &cobra.Command{
		Use:   "logout <provider>",
		Short: "Remove a stored provider token",
		Args:  cobra.ExactArgs(1),
		RunE:  runOAuthLogout,
	}

	c.AddCommand(login, list, logout)
	return c
}

// notifyingExchanger reports the first successful exchange on done.
type notifyingExchanger struct {
	flow *oauth.Flow
	done chan<- struct{}
}

func (n notifyingExchanger) Exchange(ctx context.Context, code, st string) error {
	if err := n.flow.Exchange(ctx, code, st); err != nil {
		return err
	}
	select {
	case n.done <- struct{}{}:
	default:
	}
	return nil
}

func runOAuthLogin(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])
	ctx, cancel := context.WithTimeout(cmd.Context(), oauthOpts.timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := shell.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	flow := app.Flow(provider)
	if flow == nil {
		return fmt.Errorf("unsupported provider: %s", provider)
	}
	authURL, err := flow.AuthorizeURL()
	if err != nil {
		return err
	}

	done := make(chan struct{}, 1)
	opts := app.Options(terminalDialogs(cmd, app, false))
	ex := notifyingExchanger{flow: flow, done: done}
	if provider == oauth.ProviderGitHub {
		opts.GitHub = ex
	} else {
		opts.GitLab = ex
	}

	addr := oauthOpts.addr
	if addr == "" {
		addr = cfg.Listener.Addr
	}
	lctx, stop := context.WithCancel(ctx)
	defer stop()
	served := make(chan error, 1)
	go func() { served <- listener.New(deeplink.New(opts), nil).ListenAndServe(lctx, addr) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser to authorize %s:\n\n  %s\n\n", provider, authURL)

	select {
	case <-done:
		stop()
		<-served
	case err := <-served:
		if err != nil {
			return fmt.Errorf("listener failed: %w", err)
		}
		return errors.New("listener stopped before authorization completed")
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for %s authorization: %w", provider, ctx.Err())
	}

	cred, err := app.Credentials.GetCredential(provider)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s as %s\n", provider, cred.Account)
	slog.Info("OAuth login complete", "provider", provider, "account", cred.Account)
	return nil
}

func stateCredentials() (*state.AppState, state.CredentialStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := state.LoadAppState(cfg.StatePath)
	if err != nil {
		return nil, nil, err
	}
	return st, state.StateCredentialStore{Path: cfg.StatePath}, nil
}

func runOAuthList(cmd *cobra.Command, _ []string) error {
	st, store, err := stateCredentials()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Provider", "Account", "Token", "Expires"})
	for _, provider := range []string{oauth.ProviderGitHub, oauth.ProviderGitLab} {
		tok, err := state.ResolveProviderToken(provider, st, store)
		if err != nil {
			return err
		}
		if tok == "" {
			continue
		}
		account, expires := "", ""
		if cred, err := store.GetCredential(provider); err == nil {
			account = cred.Account
			switch {
			case cred.Expiry.IsZero():
			case cred.Expired(time.Now()):
				expires = "expired"
			default:
				expires = cred.Expiry.Local().Format(time.RFC3339)
			}
		}
		t.AppendRow(table.Row{provider, account, state.RedactToken(tok), expires})
	}
	t.Render()
	return nil
}

func runOAuthLogout(cmd *cobra.Command, args []string) error {
	_, store, err := stateCredentials()
	if err != nil {
		return err
	}
	provider := strings.ToLower(args[0])
	if _, err := store.GetCredential(provider); errors.Is(err, state.ErrCredentialNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No stored token for %s\n", provider)
		return nil
	}
	if err := store.DeleteCredential(provider); err != nil {
		return fmt.Errorf("failed to remove %s token: %w", provider, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s token\n", provider)
	return nil
}
