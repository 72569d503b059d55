// Package supabase implements the reference store against a hosted
// PostgREST-style database service.
package supabase

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/httputil"
)

// Config holds hosted database configuration.
type Config struct {
	URL        string
	ServiceKey string
}

// Client wraps the hosted database REST API.
type Client struct {
	url        string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates a REST client for the hosted database.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}

	parsed, err := neturl.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("supabase url must be a valid URL")
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("supabase url must not include user info")
	}

	transport := http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		cloned := base.Clone()
		if cloned.TLSClientConfig != nil {
			cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
			if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
				cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
			}
		} else {
			cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		transport = cloned
	}

	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// APIError is a non-2xx response from the REST API. The body is kept so
// callers can inspect PostgREST/Postgres error codes.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase API error %d: %s", e.Status, e.Body)
}

// MissingFunction reports whether the error indicates the called stored
// procedure does not exist in the remote schema.
func (e *APIError) MissingFunction() bool {
	return e.Status == http.StatusNotFound ||
		strings.Contains(e.Body, "PGRST202") ||
		strings.Contains(e.Body, "42883")
}

// UndefinedColumn reports whether the error indicates an insert hit a column
// the remote schema does not have.
func (e *APIError) UndefinedColumn() bool {
	return strings.Contains(e.Body, "PGRST204") ||
		strings.Contains(e.Body, "42703")
}

// CheckViolation reports whether the error is a check constraint failure.
func (e *APIError) CheckViolation() bool {
	return strings.Contains(e.Body, "23514")
}

// table performs a request against /rest/v1/<name>.
func (c *Client) table(ctx context.Context, method, name string, body interface{}, query string) ([]byte, error) {
	return c.request(ctx, method, "/rest/v1/"+name, body, query)
}

// rpc calls a stored procedure through /rest/v1/rpc/<name>.
func (c *Client) rpc(ctx context.Context, name string, args interface{}) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/rest/v1/rpc/"+name, args, "")
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}, query string) ([]byte, error) {
	url := c.url + path
	if query != "" {
		url += "?" + query
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
		if readErr != nil {
			return nil, fmt.Errorf("read error response: %w", readErr)
		}
		msg := strings.TrimSpace(string(respBody))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, &APIError{Status: resp.StatusCode, Body: msg}
	}

	respBody, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return respBody, nil
}
