// Package format provides console rendering for imported requests. It
// adapts the value column to the terminal width and supports color.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/greg-hellings/reqdesk/pkg/importer"
	"github.com/greg-hellings/reqdesk/pkg/state"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// ConsoleFormatter renders imported requests as terminal tables.
type ConsoleFormatter struct {
	// MaxValueColWidth constrains the value column. If 0, a width is derived
	// from the terminal.
	MaxValueColWidth int

	// EnableColors toggles ANSI color output.
	EnableColors bool

	// ShowSecrets prints credentials unredacted.
	ShowSecrets bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{EnableColors: true}
}

// Render writes every request of the result to writer.
func (f *ConsoleFormatter) Render(res *importer.Result, writer io.Writer) error {
	if res == nil {
		return fmt.Errorf("nil import result")
	}
	if _, err := fmt.Fprintf(writer, "Imported with %s importer: %d request(s)\n\n", res.ConverterID, len(res.Requests)); err != nil {
		return fmt.Errorf("failed writing import header: %w", err)
	}
	for i, req := range res.Requests {
		if i > 0 {
			if _, err := fmt.Fprintln(writer); err != nil {
				return fmt.Errorf("failed writing request separator: %w", err)
			}
		}
		if err := f.RenderRequest(req, writer); err != nil {
			return err
		}
	}
	return nil
}

// RenderRequest writes a single request.
func (f *ConsoleFormatter) RenderRequest(req *importer.Request, writer io.Writer) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}

	method := req.Method
	if method == "" {
		method = f.color("(none)", text.FgHiBlack)
	} else {
		method = f.color(method, text.FgCyan)
	}
	lines := []string{
		fmt.Sprintf("Name:           %s", req.Name),
		fmt.Sprintf("Method:         %s", method),
		fmt.Sprintf("URL:            %s", req.URL),
		fmt.Sprintf("Authentication: %s", f.describeAuth(req.Authentication)),
	}
	if len(req.Body) > 0 && string(req.Body) != "null" {
		lines = append(lines, fmt.Sprintf("Body:           %d bytes", len(req.Body)))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(writer, l); err != nil {
			return fmt.Errorf("failed writing request summary: %w", err)
		}
	}

	if len(req.Parameters) == 0 && len(req.Headers) == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(writer)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.AppendHeader(table.Row{"Kind", "Name", "Value"})

	if width := f.valueWidth(writer); width > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: width, Transformer: truncTransformer(width)},
		})
	}

	for _, p := range req.Parameters {
		kind := "query"
		if p.Disabled {
			kind = f.color("query (off)", text.FgHiBlack)
		}
		tw.AppendRow(table.Row{kind, p.Name, p.Value})
	}
	for _, h := range req.Headers {
		tw.AppendRow(table.Row{"header", h.Name, h.Value})
	}
	tw.Render()
	return nil
}

func (f *ConsoleFormatter) describeAuth(a importer.Authentication) string {
	switch a.Type {
	case importer.AuthBearer:
		return fmt.Sprintf("%s token=%s", f.color("bearer", text.FgGreen), f.secret(a.Token))
	case importer.AuthBasic:
		pw := "(unset)"
		if a.Password != nil {
			pw = f.secret(*a.Password)
		}
		return fmt.Sprintf("%s username=%s password=%s", f.color("basic", text.FgGreen), a.Username, pw)
	default:
		return f.color("none", text.FgHiBlack)
	}
}

func (f *ConsoleFormatter) secret(s string) string {
	if f.ShowSecrets {
		return s
	}
	return state.RedactToken(s)
}

func (f *ConsoleFormatter) valueWidth(w io.Writer) int {
	if f.MaxValueColWidth > 0 {
		return f.MaxValueColWidth
	}
	termWidth := detectTerminalWidth(w)
	if termWidth <= 0 {
		return 0
	}
	// Kind and name columns plus borders take roughly 40 cells.
	width := termWidth - 40
	if width < 20 {
		width = 20
	}
	return width
}

// detectTerminalWidth returns the terminal width when writer is a terminal.
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer ellipsizes overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		return truncateRunes(fmt.Sprint(val), max)
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}
