package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAttempts bounds the retry loop for rate-limited and transient failures.
const maxAttempts = 5

// StatusError is a non-2xx Jira response that exhausted (or never entered)
// the retry loop.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, body)
}

// IsAuthOrMissing reports whether err is a Jira 401/403/404 response, the
// class recorded as a per-issue WARNING instead of aborting extraction.
func IsAuthOrMissing(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Client provides HTTP access to a Jira Cloud instance with Basic auth
// (email + API token) and 429-aware retries.
type Client struct {
	URL        string
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a Jira client for the given base URL.
func NewClient(url, email, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Email:    email,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetJSON fetches path (relative to the base URL) and unmarshals into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response for %s: %w", path, err)
	}
	return nil
}

// PostJSON sends payload as JSON to path and unmarshals the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response for %s: %w", path, err)
	}
	return nil
}

// Download streams the attachment binary at contentURL into w. The URL comes
// from the attachment descriptor and is already absolute.
func (c *Client) Download(ctx context.Context, contentURL string, w io.Writer) (int64, error) {
	var written int64
	err := c.retry(ctx, func() (retryAfter time.Duration, err error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setAuth(req)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return classify(resp, body)
		}
		written, err = io.Copy(w, resp.Body)
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("stream attachment: %w", err))
		}
		return 0, nil
	})
	return written, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}
	apiURL := c.URL + path

	var respBody []byte
	err := c.retry(ctx, func() (retryAfter time.Duration, err error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classify(resp, respBody)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return respBody, nil
}

// classify decides whether a non-2xx response is retryable. 429 and 5xx are;
// everything else surfaces immediately as a StatusError.
func classify(resp *http.Response, body []byte) (time.Duration, error) {
	se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return retryAfter, se
	}
	return 0, backoff.Permanent(se)
}

// retry runs op up to maxAttempts times. Delays double from 1s with up to
// 0.5x jitter; a positive Retry-After header overrides the computed delay.
func (c *Client) retry(ctx context.Context, op func() (time.Duration, error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	bo.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		var retryAfter time.Duration
		retryAfter, err = op()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		if attempt >= maxAttempts {
			return err
		}
		delay := bo.NextBackOff()
		if retryAfter > 0 {
			delay = retryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) setAuth(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
}
