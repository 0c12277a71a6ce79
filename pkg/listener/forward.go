package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Forwarder posts deep links to a running listener.
type Forwarder struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewForwarder targets the listener at addr (host:port or a full URL).
func NewForwarder(addr string, client *retryablehttp.Client) *Forwarder {
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 2
		client.RetryWaitMin = 100 * time.Millisecond
		client.RetryWaitMax = time.Second
		client.Logger = slog.Default()
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Forwarder{baseURL: strings.TrimRight(base, "/"), client: client}
}

// Forward sends raw to the listener.
func (f *Forwarder) Forward(ctx context.Context, raw string) error {
	body, err := json.Marshal(OpenRequest{URL: raw})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+OpenPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", f.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forward to %s: %s: %s", f.baseURL, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
