// Package soi implements the Target-System Client: posting a batch of
// reconciled intelligences to the callback a System Of Interest
// registered for itself.
package soi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

const securityKeyHeader = "X-Security-Key"

// DefaultTimeout bounds every outbound SOI request.
const DefaultTimeout = 15 * time.Second

// Client posts intelligence batches to target systems.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client with a bounded default timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Report POSTs (or whatever method the SOI registered) the batch to
// its callback. baseURL, method, and path come from the bucket's
// shared SOI descriptor; items are that bucket's own intelligences.
func (c *Client) Report(ctx context.Context, soi types.SOI, items []*types.Intelligence) error {
	u, err := url.Parse(soi.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid soi base url: %w", err)
	}
	u.Path = path.Join(u.Path, soi.Callback.Path)

	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal intelligences: %w", err)
	}

	method := strings.ToUpper(soi.Callback.Method)
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if soi.APIKey != "" {
		req.Header.Set(securityKeyHeader, soi.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", u.String(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("soi %s responded with status %d", u.String(), resp.StatusCode)
	}
	return nil
}
