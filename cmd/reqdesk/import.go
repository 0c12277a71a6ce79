package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/importer"
	"github.com/greg-hellings/reqdesk/pkg/importer/fetch"
	consolefmt "github.com/greg-hellings/reqdesk/pkg/importer/format"
	"github.com/greg-hellings/reqdesk/pkg/shell"
)

// import command flags
type importFlags struct {
	outputFormat  string
	outputFile    string
	valueColWidth int
	showSecrets   bool
	jsonIndent    bool
	pending       bool
	timeout       time.Duration
}

var impFlags importFlags

// maxImportSize bounds remote import documents.
const maxImportSize = 10 << 20

// newImportCmd creates the 'import' subcommand.
func newImportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "import [file]",
		Short: "Convert a copied fetch() snippet into a request",
		Long: strings.TrimSpace(`
Convert text copied with a browser's "Copy as fetch" into a structured
request. Reads the named file, or stdin when no file (or "-") is given.
With --pending the URI recorded by an insomnia://app/import link is
fetched and converted instead.

Formats:
  console (default) - adaptive terminal table
  json              - machine-readable JSON

Examples:
  pbpaste | reqdesk import
  reqdesk import snippet.js --format json --json-indent
  reqdesk import --pending
`),
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	c.Flags().StringVarP(&impFlags.outputFormat, "format", "f", "console", "Output format: console|json")
	c.Flags().StringVarP(&impFlags.outputFile, "out", "o", "", "Write output to file instead of stdout")
	c.Flags().IntVar(&impFlags.valueColWidth, "value-col-width", 0, "Max width of the value column (console format; 0=auto)")
	c.Flags().BoolVar(&impFlags.showSecrets, "show-secrets", false, "Print credentials unredacted (console format)")
	c.Flags().BoolVar(&impFlags.jsonIndent, "json-indent", false, "Pretty-print JSON output")
	c.Flags().BoolVar(&impFlags.pending, "pending", false, "Import the URI recorded by the last app/import link")
	c.Flags().DurationVar(&impFlags.timeout, "timeout", time.Minute, "Timeout for fetching a remote import")
	return c
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), impFlags.timeout)
	defer cancel()

	raw, source, err := readImportInput(ctx, cmd, args)
	if err != nil {
		return err
	}
	slog.Info("Starting import", "source", source, "format", impFlags.outputFormat)

	chain := importer.NewChain(fetch.New())
	res, err := chain.Convert(raw)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", source, err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if impFlags.outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(impFlags.outputFile), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(impFlags.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch strings.ToLower(impFlags.outputFormat) {
	case "console":
		formatter := consolefmt.NewConsoleFormatter()
		formatter.EnableColors = useColors(cmd)
		formatter.ShowSecrets = impFlags.showSecrets
		if impFlags.valueColWidth > 0 {
			formatter.MaxValueColWidth = impFlags.valueColWidth
		}
		if err := formatter.Render(res, out); err != nil {
			return fmt.Errorf("failed to render console output: %w", err)
		}
	case "json":
		if err := renderImportJSON(res, source, out); err != nil {
			return fmt.Errorf("failed to render JSON output: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %s", impFlags.outputFormat)
	}

	slog.Info("Import complete", "converter", res.ConverterID, "requests", len(res.Requests))
	return nil
}

// readImportInput returns the text to convert and a label for its source.
func readImportInput(ctx context.Context, cmd *cobra.Command, args []string) (string, string, error) {
	if impFlags.pending {
		if len(args) > 0 {
			return "", "", errors.New("--pending does not take a file argument")
		}
		cfg, err := loadConfig()
		if err != nil {
			return "", "", err
		}
		rt, err := shell.NewRuntime(cfg.StatePath, nil)
		if err != nil {
			return "", "", err
		}
		uri, err := rt.TakePendingImport()
		if err != nil {
			return "", "", err
		}
		if uri == "" {
			return "", "", errors.New("no pending import")
		}
		text, err := readURI(ctx, uri)
		return text, uri, err
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), args[0], nil
}

// readURI loads an http(s) URL, a file:// URL or a plain path.
func readURI(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := uri
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", uri, err)
		}
		return string(data), nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported import uri scheme %q", u.Scheme)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = slog.Default()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: %s", uri, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImportSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return string(data), nil
}

// importOutput is the structured JSON shape we emit.
type importOutput struct {
	Version     string              `json:"cliVersion"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Source      string              `json:"source"`
	Converter   string              `json:"converter"`
	Resources   []*importer.Request `json:"resources"`
}

func renderImportJSON(res *importer.Result, source string, w io.Writer) error {
	payload := importOutput{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Converter:   res.ConverterID,
		Resources:   res.Requests,
	}

	var data []byte
	var err error
	if impFlags.jsonIndent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}
