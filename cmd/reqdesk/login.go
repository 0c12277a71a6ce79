package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/shell"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

// SessionProvider is the credential key of the account session token.
const SessionProvider = "session"

type loginFlags struct {
	addr    string
	timeout time.Duration
}

var loginOpts loginFlags

// newLoginCmd creates the 'login' subcommand.
func newLoginCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: strings.TrimSpace(`
Start a login session. The printed login key is handed to the sign-in page;
the page answers with an insomnia://app/auth/finish?box=... link carrying
the session token sealed to that key.
`),
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
	c.Flags().StringVar(&loginOpts.addr, "addr", "", "Listen address (default from config)")
	c.Flags().DurationVar(&loginOpts.timeout, "timeout", 10*time.Minute, "How long to wait for the sign-in")
	return c
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), loginOpts.timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := shell.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	key, err := app.Session.Begin()
	if err != nil {
		return err
	}

	addr := loginOpts.addr
	if addr == "" {
		addr = cfg.Listener.Addr
	}
	lctx, stop := context.WithCancel(ctx)
	defer stop()
	served := make(chan error, 1)
	go func() {
		err := serveLinks(lctx, app, terminalDialogs(cmd, app, false), addr)
		if err != nil {
			slog.Error("Listener failed", "addr", addr, "error", err)
			cancel()
		}
		served <- err
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Login key: %s\nWaiting for sign-in...\n", key)

	res, err := app.Session.Await(ctx)
	stop()
	<-served
	if err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}

	if err := app.Credentials.SetCredential(state.Credential{
		Provider:    SessionProvider,
		AccessToken: res.Token,
		TokenType:   "session",
	}); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in (session %s)\n", state.RedactToken(res.Token))
	return nil
}
