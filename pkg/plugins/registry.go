package plugins

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	maxManifestBytes = 1 << 20
	maxPackageBytes  = 64 << 20
)

// Installer downloads plugins from an npm-compatible registry into a Store.
type Installer struct {
	registryURL string
	store       *Store
	client      *retryablehttp.Client
}

// NewInstaller creates an installer. A nil client gets a retrying client
// that logs through slog.
func NewInstaller(registryURL string, store *Store, client *retryablehttp.Client) *Installer {
	if client == nil {
		client = NewHTTPClient()
	}
	return &Installer{
		registryURL: strings.TrimRight(registryURL, "/"),
		store:       store,
		client:      client,
	}
}

// NewHTTPClient returns the retrying HTTP client used for registry traffic.
func NewHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 60 * time.Second
	c.Logger = slog.Default()
	return c
}

// registryVersion is the subset of a registry version document we need.
type registryVersion struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Insomnia json.RawMessage `json:"insomnia"`
	Dist     struct {
		Tarball string `json:"tarball"`
	} `json:"dist"`
}

// Install resolves the latest version of name, checks that it declares the
// "insomnia" attribute, and unpacks it into the plugins directory,
// replacing any previous install.
func (i *Installer) Install(ctx context.Context, name string) error {
	dest, err := i.store.pluginDir(name)
	if err != nil {
		return err
	}

	info, err := i.lookup(ctx, name)
	if err != nil {
		return err
	}
	if len(info.Insomnia) == 0 || string(info.Insomnia) == "null" {
		return fmt.Errorf("%w: %q package.json \"insomnia\" attribute missing", ErrNotAPlugin, name)
	}
	if info.Dist.Tarball == "" {
		return fmt.Errorf("registry entry for %q has no tarball", name)
	}

	slog.Info("Installing plugin", "name", name, "version", info.Version)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create plugins directory: %w", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(dest), ".install-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := i.download(ctx, info.Dist.Tarball, staging); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(staging, manifestName)); err != nil {
		return fmt.Errorf("package %q has no %s", name, manifestName)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove previous install: %w", err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("move plugin into place: %w", err)
	}
	slog.Info("Plugin installed", "name", name, "version", info.Version, "dir", dest)
	return nil
}

func (i *Installer) lookup(ctx context.Context, name string) (*registryVersion, error) {
	endpoint := i.registryURL + "/" + url.PathEscape(name) + "/latest"
	resp, err := i.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("look up %q: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("plugin %q not found in registry", name)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("look up %q: registry returned %s", name, resp.Status)
	}

	var info registryVersion
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode registry entry for %q: %w", name, err)
	}
	return &info, nil
}

func (i *Installer) download(ctx context.Context, tarball, dest string) error {
	resp, err := i.get(ctx, tarball)
	if err != nil {
		return fmt.Errorf("download %s: %w", tarball, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", tarball, resp.Status)
	}
	return extractPackage(io.LimitReader(resp.Body, maxPackageBytes), dest)
}

func (i *Installer) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return i.client.Do(req)
}

// extractPackage unpacks an npm tarball, stripping the leading "package/"
// directory. Entries escaping dest, links and special files are rejected or
// skipped.
func extractPackage(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open package archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read package archive: %w", err)
		}

		rel := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if i := strings.Index(rel, "/"); i >= 0 {
			rel = rel[i+1:]
		} else if hdr.Typeflag == tar.TypeDir {
			continue
		}
		if rel == "" || rel == "." || path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
			return fmt.Errorf("package archive entry %q escapes destination", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()|0o600); err != nil {
				return err
			}
		default:
			slog.Debug("Skipping archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}

// Manager combines the store and installer behind the operations the
// deep-link dispatcher needs.
type Manager struct {
	*Store
	installer *Installer
}

// NewManager creates a Manager.
func NewManager(store *Store, installer *Installer) *Manager {
	return &Manager{Store: store, installer: installer}
}

// Install installs a plugin from the registry and reloads the store.
func (m *Manager) Install(ctx context.Context, name string) error {
	if m.installer == nil {
		return errors.New("plugin installation is not configured")
	}
	if err := m.installer.Install(ctx, name); err != nil {
		return err
	}
	return m.Reload(ctx)
}
