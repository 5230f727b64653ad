// Package api is the HTTP client for the document service: pairing-token
// exchange, token refresh, device revocation, job triggers, and the batched
// job-status endpoint the polling engine feeds on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// statusRateLimit caps client-side status polls at 2/s (burst 4) so a
// misconfigured short interval cannot hammer the batch endpoint.
var statusRateLimit = rate.Limit(2)

// TokenSource supplies a valid bearer token for authenticated calls.
// Implemented by credential.Guard.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the document service.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
}

// New creates a client for the service at baseURL. timeout <= 0 uses the
// default request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(statusRateLimit, 4),
	}
}

// SetTokenSource wires the refresh guard in. Calls that need auth fail with
// a NOT_PAIRED error until a source is set.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// PairDevice exchanges a single-use pairing token for a device credential.
func (c *Client) PairDevice(ctx context.Context, req PairRequest) (*PairResponse, error) {
	var resp PairResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/devices/pair", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken, deviceID string) (*RefreshResponse, error) {
	body := map[string]string{
		"refresh_token": refreshToken,
		"device_id":     deviceID,
	}
	var resp RefreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/devices/refresh", body, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RevokeDevice unregisters a device server-side. Callers treat failures as
// best-effort: local unpair proceeds regardless.
func (c *Client) RevokeDevice(ctx context.Context, deviceID string, permanent bool) error {
	path := fmt.Sprintf("/v1/devices/%s?permanent=%t", url.PathEscape(deviceID), permanent)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, true)
}

// BatchStatus fetches current statuses for all given ids in one call.
// Rate-limited client-side; one call per poll tick, never per-id.
func (c *Client) BatchStatus(ctx context.Context, kind string, ids []string) (map[string]JobStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{
		"kind": kind,
		"ids":  ids,
	}
	var resp map[string]JobStatus
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/status", body, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// TriggerJob asks the server to start a job. The ack carries the job ID to
// poll; actual completion is observed via BatchStatus.
func (c *Client) TriggerJob(ctx context.Context, kind string, params map[string]any) (*JobAck, error) {
	body := map[string]any{
		"kind":   kind,
		"params": params,
	}
	var resp JobAck
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs", body, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDocuments fetches the current document list.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var resp []Document
	if err := c.doJSON(ctx, http.MethodGet, "/v1/documents", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListClusters fetches the current clustering view.
func (c *Client) ListClusters(ctx context.Context) ([]Cluster, error) {
	var resp []Cluster
	if err := c.doJSON(ctx, http.MethodGet, "/v1/clusters", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// doJSON performs one request/response cycle. Service-level failures decode
// into *Error; transport failures are returned wrapped and classify as
// transient via IsTransient.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if authed {
		if c.tokens == nil {
			return &Error{Code: ErrNotPaired, Message: "no token source configured", HTTPStatus: 401}
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError parses a structured error body, falling back to the HTTP
// status when the body is not in the expected shape.
func decodeError(resp *http.Response) error {
	var envelope struct {
		Error Error `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code == "" {
		slog.Debug("unstructured error response", "status", resp.StatusCode)
		return &Error{
			Code:       ErrInternal,
			Message:    http.StatusText(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}
	envelope.Error.HTTPStatus = resp.StatusCode
	return &envelope.Error
}
