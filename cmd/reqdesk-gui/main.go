//go:build gui
// +build gui

package main

// reqdesk desktop host
// --------------------
// Fyne window that hosts the deep-link dispatcher. Dialogs requested by
// handlers are rendered as Fyne dialogs; links forwarded by
// `reqdesk open --forward` arrive through the local listener.
//
// Build:
//   go build -tags gui -o reqdesk-gui ./cmd/reqdesk-gui

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"fyne.io/fyne/v2"
	fapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/greg-hellings/reqdesk/pkg/config"
	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/importer"
	"github.com/greg-hellings/reqdesk/pkg/importer/fetch"
	"github.com/greg-hellings/reqdesk/pkg/listener"
	"github.com/greg-hellings/reqdesk/pkg/shell"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev-gui"

func main() {
	configPath := flag.String("config", "", "Configuration file (YAML or .toml)")
	dev := flag.Bool("dev", false, "Development runtime: accept the development scheme")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *dev {
		cfg.Scheme.Development = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := shell.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a := fapp.NewWithID("reqdesk.gui")
	w := a.NewWindow("reqdesk")
	w.Resize(fyne.NewSize(720, 520))

	dialogs := &fyneDialogs{window: w, runtime: core.Runtime, plugins: core.Plugins}
	dispatcher := core.Dispatcher(dialogs)

	header := widget.NewLabel(fmt.Sprintf("reqdesk (version: %s)", version))
	header.Alignment = fyne.TextAlignCenter

	themeLabel := widget.NewLabel("")
	pendingLabel := widget.NewLabel("")
	pendingLabel.Wrapping = fyne.TextWrapWord
	refresh := func() {
		snap := core.Runtime.Snapshot()
		themeLabel.SetText("Theme: " + snap.Settings.Theme)
		pending := snap.PendingImport
		if pending == "" {
			pending = "(none)"
		}
		pendingLabel.SetText("Pending import: " + pending)
	}
	refresh()
	dialogs.onChange = func() { fyne.Do(refresh) }
	host := &linkHost{dispatcher: dispatcher, window: w, onDone: dialogs.changed}

	// Deep links passed on the command line (first launch) and forwarded ones.
	for _, raw := range flag.Args() {
		go host.dispatch(ctx, raw)
	}
	go func() {
		if err := listener.New(host, nil).ListenAndServe(ctx, cfg.Listener.Addr); err != nil {
			slog.Error("Deep-link listener stopped", "addr", cfg.Listener.Addr, "error", err)
		}
	}()

	linkEntry := widget.NewEntry()
	linkEntry.SetPlaceHolder("insomnia://app/alert?title=Hello&message=World")
	openButton := widget.NewButton("Open Link", func() {
		raw := linkEntry.Text
		go host.dispatch(ctx, raw)
	})

	snippet := widget.NewMultiLineEntry()
	snippet.SetPlaceHolder(`fetch("https://api.example.com/x", {"method":"GET","headers":{}});`)
	snippet.SetMinRowsVisible(6)
	output := widget.NewMultiLineEntry()
	output.SetMinRowsVisible(8)
	chain := importer.NewChain(fetch.New())
	importButton := widget.NewButton("Import", func() {
		res, err := chain.Convert(snippet.Text)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		data, err := json.MarshalIndent(res.Requests, "", "  ")
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		output.SetText(string(data))
	})

	content := container.NewVBox(
		header,
		widget.NewSeparator(),
		themeLabel,
		pendingLabel,
		container.NewBorder(nil, nil, nil, openButton, linkEntry),
		widget.NewSeparator(),
		widget.NewLabel("Copy as fetch:"),
		snippet,
		importButton,
		output,
	)

	w.SetContent(container.NewVScroll(content))
	w.SetCloseIntercept(func() {
		cancel()
		a.Quit()
	})

	w.ShowAndRun()
}

// linkHost runs dispatches for the window and refreshes it afterwards.
type linkHost struct {
	dispatcher *deeplink.Dispatcher
	window     fyne.Window
	onDone     func()
}

// Dispatch implements listener.Dispatcher.
func (h *linkHost) Dispatch(ctx context.Context, raw string) error {
	defer h.onDone()
	return h.dispatcher.Dispatch(ctx, raw)
}

func (h *linkHost) dispatch(ctx context.Context, raw string) {
	if err := h.Dispatch(ctx, raw); err != nil {
		slog.Error("Deep link handler failed", "url", raw, "error", err)
		fyne.Do(func() { dialog.ShowError(err, h.window) })
	}
}
