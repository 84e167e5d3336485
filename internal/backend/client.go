// Package backend is the HTTP client for the tentacool backend: provider and
// model listing, batch queries, jailbreak classification and the prompt and
// response store.
//
// Every endpoint answers with the envelope {success, data?, error?}. A
// non-2xx status or success=false is returned as *APIError carrying the
// backend's own message; network-level problems are returned as-is.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/pennh4i/tentacool/internal/logging"
)

const (
	// DefaultTimeout bounds a single HTTP exchange. Batch queries against
	// slow models can take a while.
	DefaultTimeout = 120 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 32 * 1024 * 1024
)

// APIError is a failure reported by the backend itself.
type APIError struct {
	// Status is the HTTP status code (200 when success=false on a 200).
	Status int
	// Message is the backend-provided explanation.
	Message string
}

func (e *APIError) Error() string {
	if e.Status >= 200 && e.Status < 300 {
		return "backend error: " + e.Message
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. "https://pennh4i-tentacool.hf.space".
	BaseURL string
	// APIPrefix is prepended to every endpoint path, e.g. "/api".
	APIPrefix string
	// Timeout bounds each HTTP exchange. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of extra attempts for idempotent GETs.
	Retries int
	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
	// Logger receives request diagnostics. Nil discards.
	Logger *slog.Logger
}

// Client talks to the tentacool backend.
type Client struct {
	root    string
	http    *http.Client
	retries int
	logger  *slog.Logger
}

// New creates a backend client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	prefix := strings.TrimRight(opts.APIPrefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Client{
		root:    strings.TrimRight(opts.BaseURL, "/") + prefix,
		http:    hc,
		retries: opts.Retries,
		logger:  logger.With("component", "backend"),
	}
}

// URL returns the absolute URL for an endpoint path.
func (c *Client) URL(path string) string {
	return c.root + path
}

// envelope is the common response wrapper.
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// get performs an idempotent GET, retrying transient failures.
func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	op := func() (T, error) {
		v, err := call[T](ctx, c, http.MethodGet, path, nil)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.LogAttrs(ctx, slog.LevelDebug, "retrying request",
				slog.String("path", path), slog.Duration("in", next), logging.Err(err))
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}

// post performs a single, non-retried POST. Batch writes are not idempotent.
func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return call[T](ctx, c, http.MethodPost, path, body)
}

// call performs one HTTP exchange and unwraps the envelope.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return zero, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return zero, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "backend call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, &APIError{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if !env.Success {
		return zero, &APIError{Status: resp.StatusCode, Message: errorMessage(raw, "request was not successful")}
	}
	return env.Data, nil
}

// errorMessage extracts a human-readable message from an error body. The
// backend uses {"error": "..."}; frameworks in front of it may answer with
// {"detail": ...} or {"error": {"message": ...}}, or with plain text.
func errorMessage(body []byte, fallback string) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "detail.0.msg", "detail", "message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
		return fallback
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// retryable reports whether a GET should be attempted again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}
