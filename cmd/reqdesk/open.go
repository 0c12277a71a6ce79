package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/listener"
	"github.com/greg-hellings/reqdesk/pkg/shell"
)

type openFlags struct {
	forward   bool
	assumeYes bool
	timeout   time.Duration
}

var openOpts openFlags

// newOpenCmd creates the 'open' subcommand, the target the OS invokes for
// registered scheme links.
func newOpenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "open <url>",
		Short: "Handle a deep link",
		Long: strings.TrimSpace(`
Handle one deep link such as insomnia://app/alert?title=T&message=M.

With --forward the link is posted to a running 'reqdesk serve' (or a pending
'reqdesk oauth login' / 'reqdesk login'); when nothing is listening it is
handled in this process instead.

Examples:
  reqdesk open 'insomnia://app/alert?title=Hello&message=World'
  reqdesk open --forward 'insomnia://oauth/github/authenticate?code=abc&state=xyz'
`),
		Args: cobra.ExactArgs(1),
		RunE: runOpen,
	}
	c.Flags().BoolVar(&openOpts.forward, "forward", false, "Forward the link to a running listener first")
	c.Flags().BoolVarP(&openOpts.assumeYes, "yes", "y", false, "Answer yes to every confirmation")
	c.Flags().DurationVar(&openOpts.timeout, "timeout", 5*time.Minute, "Timeout for handling the link")
	return c
}

func runOpen(cmd *cobra.Command, args []string) error {
	raw := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), openOpts.timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if openOpts.forward {
		fwd := listener.NewForwarder(cfg.Listener.Addr, nil)
		err := fwd.Forward(ctx, raw)
		if err == nil {
			slog.Info("Deep link forwarded", "addr", cfg.Listener.Addr)
			return nil
		}
		slog.Info("No listener, handling locally", "addr", cfg.Listener.Addr, "error", err)
	}

	app, err := shell.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	d := app.Dispatcher(terminalDialogs(cmd, app, openOpts.assumeYes))
	if err := d.Dispatch(ctx, raw); err != nil {
		return fmt.Errorf("failed to handle deep link: %w", err)
	}
	return nil
}
