// Package controlplane implements the typed HTTP operations the core
// runs against the Metadata Service: fetching a producer's remote
// configuration, fetching a batch of intelligences, and reporting
// their outcomes back.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

const securityKeyHeader = "X-Security-Key"

// DefaultTimeout bounds every outbound control-plane request. A stuck
// Metadata Service must not stall the watcher or job loop tick.
const DefaultTimeout = 15 * time.Second

// Client talks to the Metadata Service over HTTP/JSON.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client with a bounded default timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// GetProducerConfig fetches the remote producer configuration.
// GET /apis/producers/{globalId}?type={type}
func (c *Client) GetProducerConfig(ctx context.Context, baseURL, globalID, producerType, securityKey string) (*types.ProducerConfig, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = path.Join(u.Path, "apis/producers", globalID)
	q := u.Query()
	q.Set("type", producerType)
	u.RawQuery = q.Encode()

	var cfg types.ProducerConfig
	statusCode, vendorCode, err := c.doJSON(ctx, http.MethodGet, u.String(), securityKey, nil, &cfg)
	if err != nil {
		return nil, err
	}
	if statusCode >= 300 {
		return nil, types.ClassifyHTTPError(statusCode, vendorCode, producerType, globalID, nil)
	}
	return &cfg, nil
}

// UpdateProducer PUTs the agent object back to the Metadata Service.
// PUT /apis/producers/{globalId}
func (c *Client) UpdateProducer(ctx context.Context, baseURL, globalID, securityKey string, body any) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = path.Join(u.Path, "apis/producers", globalID)

	statusCode, vendorCode, err := c.doJSON(ctx, http.MethodPut, u.String(), securityKey, body, nil)
	if err != nil {
		return err
	}
	if statusCode >= 300 {
		return types.ClassifyHTTPError(statusCode, vendorCode, "", globalID, nil)
	}
	return nil
}

// GetIntelligences fetches the next batch of work items for globalID.
func (c *Client) GetIntelligences(ctx context.Context, baseURL, globalID, securityKey string) ([]*types.Intelligence, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = path.Join(u.Path, "apis/tasks")
	q := u.Query()
	q.Set("producerGlobalId", globalID)
	u.RawQuery = q.Encode()

	var items []*types.Intelligence
	statusCode, vendorCode, err := c.doJSON(ctx, http.MethodGet, u.String(), securityKey, nil, &items)
	if err != nil {
		return nil, err
	}
	if statusCode >= 300 {
		return nil, types.ClassifyHTTPError(statusCode, vendorCode, "", globalID, nil)
	}
	return items, nil
}

// UpdateIntelligences reports reconciled outcomes back to the control
// plane. PUT /apis/tasks.
func (c *Client) UpdateIntelligences(ctx context.Context, baseURL, securityKey string, items []*types.Intelligence) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = path.Join(u.Path, "apis/tasks")

	statusCode, vendorCode, err := c.doJSON(ctx, http.MethodPut, u.String(), securityKey, items, nil)
	if err != nil {
		return err
	}
	if statusCode >= 300 {
		return types.ClassifyHTTPError(statusCode, vendorCode, "", "", nil)
	}
	return nil
}

// vendorErrorBody is the shape the Metadata Service uses to surface a
// finer-grained error code alongside the HTTP status.
type vendorErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, method, url, securityKey string, body, out any) (statusCode int, vendorCode string, err error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if securityKey != "" {
		req.Header.Set(securityKeyHeader, securityKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var vendor vendorErrorBody
		_ = json.Unmarshal(respBody, &vendor)
		return resp.StatusCode, vendor.Code, nil
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, "", nil
}
