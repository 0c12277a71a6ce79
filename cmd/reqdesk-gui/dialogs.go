//go:build gui
// +build gui

package main

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/greg-hellings/reqdesk/pkg/deeplink"
	"github.com/greg-hellings/reqdesk/pkg/plugins"
	"github.com/greg-hellings/reqdesk/pkg/shell"
)

// fyneDialogs renders the dialog port as Fyne dialogs on window. Handlers
// run off the UI goroutine, so every widget call goes through fyne.Do.
type fyneDialogs struct {
	window   fyne.Window
	runtime  *shell.Runtime
	plugins  shell.PluginLister
	onChange func()
}

var _ deeplink.Dialogs = (*fyneDialogs)(nil)

func (d *fyneDialogs) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}

func (d *fyneDialogs) Alert(_ context.Context, title, message string) error {
	fyne.Do(func() { dialog.ShowInformation(title, message, d.window) })
	return nil
}

func (d *fyneDialogs) Login(_ context.Context, p deeplink.LoginPrompt) error {
	title := p.Title
	if title == "" {
		title = "Log in"
	}
	message := p.Message
	if p.Reauth {
		message += "\n\nYour session has expired. Run `reqdesk login` to sign in again."
	}
	fyne.Do(func() {
		label := widget.NewLabel(message)
		label.Wrapping = fyne.TextWrapWord
		dialog.ShowCustom(title, "Close", label, d.window)
	})
	return nil
}

func (d *fyneDialogs) Confirm(ctx context.Context, c deeplink.Confirmation) (bool, error) {
	answer := make(chan bool, 1)
	fyne.Do(func() {
		cd := dialog.NewConfirm(c.Title, c.Message, func(ok bool) { answer <- ok }, d.window)
		if c.YesText != "" {
			cd.SetConfirmText(c.YesText)
		}
		if c.NoText != "" {
			cd.SetDismissText(c.NoText)
		}
		cd.Show()
	})
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (d *fyneDialogs) Error(_ context.Context, n deeplink.ErrorNotice) error {
	if d.runtime != nil {
		d.runtime.RecordError(n)
	}
	message := n.Message
	if n.Err != nil && n.Err.Error() != n.Message {
		message = fmt.Sprintf("%s\n\n%v", n.Message, n.Err)
	}
	fyne.Do(func() {
		label := widget.NewLabel(message)
		label.Wrapping = fyne.TextWrapWord
		dialog.ShowCustom(n.Title, "OK", label, d.window)
	})
	return nil
}

func (d *fyneDialogs) Settings(_ context.Context, tab deeplink.SettingsTab) error {
	if d.runtime != nil {
		d.runtime.SetSettingsTab(tab)
	}
	var installed []plugins.Plugin
	if d.plugins != nil {
		installed = d.plugins.Plugins()
	}
	active := ""
	if d.runtime != nil {
		active = d.runtime.Theme()
	}

	var pluginRows, themeRows []fyne.CanvasObject
	for _, p := range installed {
		pluginRows = append(pluginRows, widget.NewLabel(fmt.Sprintf("%s@%s", p.Manifest.Name, p.Manifest.Version)))
		for _, th := range p.Themes {
			label := th.DisplayName
			if th.Name == active {
				label += " (active)"
			}
			themeRows = append(themeRows, widget.NewLabel(label))
		}
	}

	fyne.Do(func() {
		tabs := container.NewAppTabs(
			container.NewTabItem("Plugins", container.NewVBox(pluginRows...)),
			container.NewTabItem("Themes", container.NewVBox(themeRows...)),
		)
		if tab == deeplink.SettingsTabThemes {
			tabs.SelectIndex(1)
		}
		dialog.ShowCustom("Settings", "Close", tabs, d.window)
	})
	d.changed()
	return nil
}
