package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ekidenfi/ekiden-go/auth"
)

// APIError represents an error response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ekiden api error %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code. The auth package uses it to
// tell a rejected signature apart from an outage.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// doRequest performs one HTTP round trip. token, when non-empty, is sent
// as a bearer Authorization header.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, token string) ([]byte, error) {
	fullURL := strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.StatusCode),
			Body:       respBody,
		}
	}

	return respBody, nil
}

// errorMessage pulls the gateway's error text out of the body, falling
// back to the status text.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(status)
}

// doWithRetry performs a request with exponential backoff retry. Network
// failures and retryable status codes (429, 5xx) are retried; everything
// else returns immediately.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, body any, token string) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		respBody, err := c.doRequest(ctx, method, path, query, body, token)
		if err == nil {
			return respBody, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do decodes a retried request's response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token string, out any) error {
	respBody, err := c.doWithRetry(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// authed performs a bearer-authenticated request. A 401 invalidates the
// cached credential and retries once with a fresh one, so an expired token
// heals transparently.
func (c *Client) authed(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.session == nil {
		return &auth.AuthError{Kind: auth.AuthNotAuthenticated}
	}

	cred, err := c.session.EnsureValid(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, query, body, cred.Token, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	c.logger.Debug("credential rejected, re-authorizing", "path", path)
	c.session.Invalidate()
	cred, err = c.session.EnsureValid(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, query, body, cred.Token, out)
}
