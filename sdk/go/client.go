// Package portalfile is the Go client SDK for the PortalFile upload service.
package portalfile

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Client is the PortalFile API client.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client

	policyOverride *Policy

	mu          sync.Mutex
	configCache *PublicConfig
}

// NewClient creates a new PortalFile client.
//
// Example:
//
//	client, err := portalfile.NewClient(portalfile.ClientConfig{
//	    BaseURL: "https://files.example.com",
//	})
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "is required"}
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ValidationError{Field: "BaseURL", Message: "must be a valid URL"}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must use http or https protocol"}
	}
	if parsedURL.Host == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must include a host"}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	if cfg.InsecureSkipVerify {
		fmt.Fprintln(os.Stderr, "[PortalFile SDK] WARNING: TLS certificate verification is disabled. This is insecure.")
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		policyOverride: cfg.Policy,
	}, nil
}

// String returns a string representation with the API token redacted.
func (c *Client) String() string {
	tokenDisplay := "none"
	if c.apiToken != "" {
		tokenDisplay = "***redacted***"
	}
	return fmt.Sprintf("PortalFileClient(baseURL=%q, apiToken=%s)", c.baseURL, tokenDisplay)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetConfig retrieves the server's public configuration.
// The result is cached after the first call.
func (c *Client) GetConfig(ctx context.Context) (*PublicConfig, error) {
	c.mu.Lock()
	cached := c.configCache
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/config", nil, "")
	if err != nil {
		return nil, err
	}

	var cfg PublicConfig
	if err := handleResponse(resp, &cfg); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.configCache = &cfg
	c.mu.Unlock()
	return &cfg, nil
}

// policy resolves the effective upload policy: the explicit override if one
// was configured, else a policy derived from the server's advertised config.
func (c *Client) policy(ctx context.Context) (Policy, error) {
	if c.policyOverride != nil {
		return *c.policyOverride, nil
	}
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("getting config: %w", err)
	}
	return PolicyFromConfig(cfg), nil
}

// GetUploadStatus retrieves the server-side progress of a chunked session,
// used to resume an interrupted upload.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	if uploadID == "" {
		return nil, &ValidationError{Field: "uploadID", Message: "is required"}
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/upload/chunked/status?upload_id="+url.QueryEscape(uploadID), nil, "")
	if err != nil {
		return nil, err
	}

	var apiResp apiStatusResponse
	if err := handleResponse(resp, &apiResp); err != nil {
		return nil, err
	}

	return &UploadStatus{
		UploadID:       apiResp.UploadID,
		Filename:       apiResp.Filename,
		ChunksReceived: apiResp.ChunksReceived,
		TotalChunks:    apiResp.TotalChunks,
		ReceivedBytes:  apiResp.ReceivedBytes,
		ReceivedChunks: apiResp.ReceivedChunks,
		MissingChunks:  apiResp.MissingChunks,
		Complete:       apiResp.Complete,
		ExpiresAt:      apiResp.ExpiresAt,
	}, nil
}

// request performs an HTTP request against the API.
func (c *Client) request(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// handleResponse checks for errors and decodes the JSON response.
func handleResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			errResp.Error = resp.Status
		}
		return newAPIError(resp.StatusCode, errResp.Code, errResp.Error)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
