package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/plugins"
)

// PluginLister reports installed plugins for the settings dialog.
type PluginLister interface {
	Plugins() []plugins.Plugin
}

// TerminalDialogs renders the dialog port on a terminal and reads
// confirmations as y/n answers.
type TerminalDialogs struct {
	In      io.Reader
	Out     io.Writer
	Runtime *Runtime     // optional; receives error log entries and the settings tab
	Plugins PluginLister // optional; listed by the settings dialog
	// AssumeYes answers every confirmation without reading input.
	AssumeYes bool
	// Colors enables ANSI colors.
	Colors bool

	mu      sync.Mutex // one confirmation at a time
	answers chan answer
}

type answer struct {
	line string
	err  error
}

var _ deeplink.Dialogs = (*TerminalDialogs)(nil)

func (d *TerminalDialogs) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if d.Colors {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// Alert implements deeplink.Dialogs.
func (d *TerminalDialogs) Alert(_ context.Context, title, message string) error {
	d.paint(color.FgCyan, color.Bold).Fprintf(d.Out, "\n%s\n", title)
	_, err := fmt.Fprintf(d.Out, "  %s\n", message)
	return err
}

// Login implements deeplink.Dialogs.
func (d *TerminalDialogs) Login(_ context.Context, p deeplink.LoginPrompt) error {
	title := p.Title
	if title == "" {
		title = "Log in"
	}
	d.paint(color.FgYellow, color.Bold).Fprintf(d.Out, "\n%s\n", title)
	if p.Message != "" {
		fmt.Fprintf(d.Out, "  %s\n", p.Message)
	}
	if p.Reauth {
		fmt.Fprintln(d.Out, "  Your session has expired. Run `reqdesk login` to sign in again.")
	}
	return nil
}

// Confirm implements deeplink.Dialogs. Anything but y or yes declines.
func (d *TerminalDialogs) Confirm(ctx context.Context, c deeplink.Confirmation) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	yes, no := c.YesText, c.NoText
	if yes == "" {
		yes = "Yes"
	}
	if no == "" {
		no = "No"
	}
	d.paint(color.FgYellow, color.Bold).Fprintf(d.Out, "\n%s\n", c.Title)
	fmt.Fprintf(d.Out, "  %s\n", c.Message)
	d.paint(color.FgYellow).Fprintf(d.Out, "  %s / %s (y/n): ", yes, no)

	if d.AssumeYes {
		fmt.Fprintln(d.Out, "y")
		return true, nil
	}
	if d.In == nil {
		fmt.Fprintln(d.Out)
		return false, nil
	}
	if d.answers == nil {
		d.answers = make(chan answer)
		go readAnswers(d.In, d.answers)
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, more := <-d.answers:
		if !more {
			fmt.Fprintln(d.Out)
			return false, nil
		}
		if a.err != nil && a.err != io.EOF {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		input := strings.TrimSpace(strings.ToLower(a.line))
		ok := input == "y" || input == "yes"
		if ok {
			d.paint(color.FgGreen).Fprintf(d.Out, "  ✓ %s\n", yes)
		} else {
			d.paint(color.FgRed).Fprintf(d.Out, "  ✗ %s\n", no)
		}
		return ok, nil
	}
}

// readAnswers is the only reader of in. A confirmation abandoned by its
// context leaves the next line for the following confirmation.
func readAnswers(in io.Reader, answers chan<- answer) {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadString('\n')
		answers <- answer{line, err}
		if err != nil {
			close(answers)
			return
		}
	}
}

// Error implements deeplink.Dialogs.
func (d *TerminalDialogs) Error(_ context.Context, n deeplink.ErrorNotice) error {
	red := d.paint(color.FgRed, color.Bold)
	red.Fprintf(d.Out, "\n%s\n", n.Title)
	fmt.Fprintf(d.Out, "  %s\n", n.Message)
	if n.Err != nil && n.Err.Error() != n.Message {
		d.paint(color.FgRed).Fprintf(d.Out, "  %v\n", n.Err)
	}
	if d.Runtime != nil {
		d.Runtime.RecordError(n)
	}
	return nil
}

// Settings implements deeplink.Dialogs.
func (d *TerminalDialogs) Settings(_ context.Context, tab deeplink.SettingsTab) error {
	d.paint(color.FgCyan, color.Bold).Fprintf(d.Out, "\nSettings: %s\n", tab)
	if d.Runtime != nil {
		d.Runtime.SetSettingsTab(tab)
	}
	if d.Plugins == nil {
		return nil
	}
	switch tab {
	case deeplink.SettingsTabPlugins:
		for _, p := range d.Plugins.Plugins() {
			fmt.Fprintf(d.Out, "  %s@%s\n", p.Manifest.Name, p.Manifest.Version)
		}
	case deeplink.SettingsTabThemes:
		active := ""
		if d.Runtime != nil {
			active = d.Runtime.Theme()
		}
		for _, p := range d.Plugins.Plugins() {
			for _, th := range p.Themes {
				marker := " "
				if th.Name == active {
					marker = "*"
				}
				fmt.Fprintf(d.Out, "  %s %s (%s)\n", marker, th.DisplayName, th.Name)
			}
		}
	}
	return nil
}
