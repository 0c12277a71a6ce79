package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/listener"
	"github.com/greg-hellings/reqdesk/pkg/shell"
)

type serveFlags struct {
	addr      string
	assumeYes bool
}

var serveOpts serveFlags

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Listen for forwarded deep links",
		Long: strings.TrimSpace(`
Run the deep-link listener. Links posted by 'reqdesk open --forward' are
dispatched as they arrive; dispatches may overlap.
`),
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	c.Flags().StringVar(&serveOpts.addr, "addr", "", "Listen address (default from config)")
	c.Flags().BoolVarP(&serveOpts.assumeYes, "yes", "y", false, "Answer yes to every confirmation")
	return c
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := shell.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	addr := serveOpts.addr
	if addr == "" {
		addr = cfg.Listener.Addr
	}
	return serveLinks(ctx, app, terminalDialogs(cmd, app, serveOpts.assumeYes), addr)
}

// serveLinks runs a listener dispatching into app until ctx is done.
func serveLinks(ctx context.Context, app *shell.App, dialogs *shell.TerminalDialogs, addr string) error {
	srv := listener.New(app.Dispatcher(dialogs), nil)
	return srv.ListenAndServe(ctx, addr)
}
