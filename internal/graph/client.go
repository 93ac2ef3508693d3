// Package graph is a minimal Microsoft Graph client for the device app
// management endpoints used when publishing a Win32 application.
//
// Every request attaches a freshly resolved bearer token from the injected
// auth.TokenProvider. The client never retries: a non-2xx response surfaces
// as an *APIError (matching common.ErrRemoteRejected) carrying the status
// and a truncated response body, and retry policy belongs to the caller.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/dmitrijs2005/intunedeploy/internal/graph/auth"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
)

// DefaultBaseURL targets the beta endpoint; the content-version segment of
// the v1.0 surface is not complete for win32LobApp.
const DefaultBaseURL = "https://graph.microsoft.com/beta"

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 1000

// APIError describes a non-2xx response from the management service.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Unwrap lets callers match the error class with errors.Is.
func (e *APIError) Unwrap() error { return common.ErrRemoteRejected }

type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenProvider
	logger  logging.Logger
}

// NewClient builds a Graph client against baseURL (DefaultBaseURL when
// empty). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client, tokens auth.TokenProvider, logger logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		logger:  logger,
	}
}

// do executes one Graph request. body (if non-nil) is sent as JSON; the
// response (if any) is decoded into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug(ctx, "graph request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("graph: %s %s: read response: %w", method, path, err)
	}

	c.logger.Debug(ctx, "graph response", "method", method, "path", path,
		"status", resp.StatusCode, "snippet", truncate(respBody, 500))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(respBody, maxErrorBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("graph: %s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
