package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPNotifier reports processed garments to the web API.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier creates a notifier for baseURL. A nil client gets a 30s timeout.
func NewHTTPNotifier(baseURL string, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNotifier{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Enabled reports whether an API URL was configured.
func (n *HTTPNotifier) Enabled() bool { return n.baseURL != "" }

// NotifyProcessed calls GET <base>/api/processed?id=<id>. Without a base URL it does nothing.
func (n *HTTPNotifier) NotifyProcessed(ctx context.Context, id string) error {
	if n.baseURL == "" {
		return nil
	}

	u := n.baseURL + "/api/processed?" + url.Values{"id": {id}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build processed request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("processed request for %s failed: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("processed request for %s: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Notifier = (*HTTPNotifier)(nil)
