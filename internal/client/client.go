// Package client is the JSON-over-HTTP client for the central store API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
)

// Default per-call timeouts. Verification-style calls are short; mutations
// tolerate server cold starts.
const (
	DefaultVerifyTimeout   = 10 * time.Second
	DefaultMutationTimeout = 30 * time.Second
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 8 << 20

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// Options configures a Client.
type Options struct {
	VerifyTimeout   time.Duration
	MutationTimeout time.Duration
	HTTPClient      *http.Client
}

// Client issues JSON requests against a base URL.
type Client struct {
	baseURL         string
	token           TokenSource
	httpClient      *http.Client
	verifyTimeout   time.Duration
	mutationTimeout time.Duration
}

// New creates a Client. token may be nil.
func New(baseURL string, token TokenSource, opts Options) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.MutationTimeout <= 0 {
		opts.MutationTimeout = DefaultMutationTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		token:           token,
		httpClient:      httpClient,
		verifyTimeout:   opts.VerifyTimeout,
		mutationTimeout: opts.MutationTimeout,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one call.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
	// Short selects the verification timeout instead of the mutation timeout.
	Short bool
}

// Do sends req and returns the raw response body of a 2xx response.
// Non-2xx responses yield *HTTPError; transport failures and timeouts yield
// an AppError classified by IsConnectivity.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	timeout := c.mutationTimeout
	if req.Short {
		timeout = c.verifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path), body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	// A fresh token always wins over a recorded Authorization header.
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(req, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}
	return data, nil
}

// DoJSON marshals in (when non-nil), sends the request and decodes the
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out interface{}, short bool) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request", err)
		}
		body = b
	}

	data, err := c.Do(ctx, Request{Method: method, Path: path, Body: body, Short: short})
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, fmt.Sprintf("failed to decode %s %s response", method, path), err)
	}
	return nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func classifyTransport(req Request, err error) error {
	msg := fmt.Sprintf("%s %s", req.Method, req.Path)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, msg+" timed out", err)
	}
	return apperrors.Wrap(apperrors.ErrNetworkUnavailable, msg+" failed", err)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Message returns the "error" field of a JSON error body, if any.
func (e *HTTPError) Message() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(e.Body), &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(e.StatusCode)
}

// StatusCode returns the HTTP status of err, or 0 when err is not an HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsConnectivity reports whether no response was received (transport failure or timeout).
func IsConnectivity(err error) bool {
	return apperrors.Is(err, apperrors.ErrNetworkUnavailable) || apperrors.Is(err, apperrors.ErrSyncTimeout)
}

// IsAuth reports whether err is a 401 or 403 response.
func IsAuth(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsRetryable reports whether a failed mutation should be queued for replay.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectivity(err) {
		return true
	}
	code := StatusCode(err)
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
