// Package sharepoint uploads large attachments to a SharePoint drive via
// the Microsoft Graph API so they never hit Redmine's storage.
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/config"
)

const (
	// minChunkSize floors the configured chunk size. Graph requires chunk
	// sizes in 320 KiB multiples; 1 MiB keeps that property.
	minChunkSize = 1024 * 1024

	// chunkAttempts bounds retries of a single range PUT.
	chunkAttempts = 6

	// sessionRecreates bounds how often an expired upload session is
	// recreated before the whole upload fails.
	sessionRecreates = 2

	// tokenRefreshMargin renews cached tokens this long before expiry.
	tokenRefreshMargin = 120 * time.Second
)

// graphError is a non-2xx Graph response.
type graphError struct {
	StatusCode int
	Body       string
}

func (e *graphError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("graph API returned %d: %s", e.StatusCode, body)
}

func transientGraph(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sessionExpired(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}

// tokenCache caches app-only OAuth tokens per (tenant, client) pair.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	value   string
	expires time.Time
}

var sharedTokens = &tokenCache{tokens: make(map[string]cachedToken)}

// Client uploads files to one SharePoint drive using client-credentials
// authentication.
type Client struct {
	cfg        config.SharePoint
	log        logrus.FieldLogger
	httpClient *http.Client
	tokens     *tokenCache

	// TokenURL and GraphURL are overridable for tests.
	TokenURL string
	GraphURL string
}

func NewClient(cfg config.SharePoint, log logrus.FieldLogger) *Client {
	return &Client{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     sharedTokens,
		TokenURL:   fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		GraphURL:   "https://graph.microsoft.com/v1.0",
	}
}

// chunkSize returns the effective chunk size: the configured value floored
// at 1 MiB.
func (c *Client) chunkSize() int64 {
	if c.cfg.ChunkSizeBytes > minChunkSize {
		return c.cfg.ChunkSizeBytes
	}
	return minChunkSize
}

// token returns a valid app-only access token, reusing the process-wide
// cache until 120s before expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	key := c.cfg.TenantID + "/" + c.cfg.ClientID

	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	if tok, ok := c.tokens.tokens[key]; ok && time.Until(tok.expires) > tokenRefreshMargin {
		return tok.value, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &graphError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}

	c.tokens.tokens[key] = cachedToken{
		value:   tok.AccessToken,
		expires: time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	return tok.AccessToken, nil
}

// uploadSession is one Graph upload session.
type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

// createSession opens an upload session for the target filename.
func (c *Client) createSession(ctx context.Context, filename string) (*uploadSession, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	itemPath := filename
	if c.cfg.Folder != "" {
		itemPath = strings.Trim(c.cfg.Folder, "/") + "/" + filename
	}
	apiURL := fmt.Sprintf("%s/sites/%s/drives/%s/root:/%s:/createUploadSession",
		c.GraphURL, c.cfg.SiteID, c.cfg.DriveID, itemPath)

	payload, _ := json.Marshal(map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": "replace"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create upload session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &graphError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var session uploadSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parse session response: %w", err)
	}
	if session.UploadURL == "" {
		return nil, fmt.Errorf("upload session carried no uploadUrl")
	}
	return &session, nil
}

// Upload streams the file at src into the configured drive and returns the
// webUrl of the created item. An expired session is recreated at most twice,
// restarting the stream from offset zero.
func (c *Client) Upload(ctx context.Context, filename string, src io.ReadSeeker, size int64) (string, error) {
	recreates := 0
	for {
		session, err := c.createSession(ctx, filename)
		if err != nil {
			return "", fmt.Errorf("open upload session for %s: %w", filename, err)
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewind %s: %w", filename, err)
		}

		webURL, err := c.uploadChunks(ctx, session, src, size)
		if err == nil {
			return webURL, nil
		}

		var ge *graphError
		if errors.As(err, &ge) && sessionExpired(ge.StatusCode) && recreates < sessionRecreates {
			recreates++
			c.log.WithFields(logrus.Fields{"file": filename, "attempt": recreates}).
				WithError(err).Warn("upload session expired, recreating")
			continue
		}
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
}

// uploadChunks PUTs successive byte ranges until the drive item is created.
func (c *Client) uploadChunks(ctx context.Context, session *uploadSession, src io.Reader, size int64) (string, error) {
	chunk := c.chunkSize()
	buf := make([]byte, chunk)

	var offset int64
	for offset < size {
		n, err := io.ReadFull(src, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			return "", fmt.Errorf("read chunk at %d: %w", offset, err)
		}
		if n == 0 {
			return "", fmt.Errorf("source exhausted at %d of %d bytes", offset, size)
		}

		webURL, done, err := c.putChunk(ctx, session.UploadURL, buf[:n], offset, size)
		if err != nil {
			return "", err
		}
		offset += int64(n)
		if done {
			if offset < size {
				return "", fmt.Errorf("drive item created after %d of %d bytes", offset, size)
			}
			return webURL, nil
		}
	}
	return "", fmt.Errorf("upload ended without a drive item")
}

// putChunk uploads one range with per-chunk retry. The final range answers
// 200/201 with the drive item; intermediate ranges answer 202.
func (c *Client) putChunk(ctx context.Context, uploadURL string, data []byte, offset, total int64) (webURL string, done bool, err error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	for attempt := 1; ; attempt++ {
		var retryAfter time.Duration
		webURL, done, retryAfter, err = c.tryPutChunk(ctx, uploadURL, data, offset, total)
		if err == nil {
			return webURL, done, nil
		}
		var ge *graphError
		if !errors.As(err, &ge) || !transientGraph(ge.StatusCode) || attempt >= chunkAttempts {
			return "", false, err
		}
		delay := bo.NextBackOff()
		if retryAfter > 0 {
			delay = retryAfter
		}
		c.log.WithFields(logrus.Fields{"offset": offset, "attempt": attempt}).
			WithError(err).Warn("chunk upload retrying")
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) tryPutChunk(ctx context.Context, uploadURL string, data []byte, offset, total int64) (string, bool, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", false, 0, fmt.Errorf("create chunk request: %w", err)
	}
	end := offset + int64(len(data)) - 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end, total))
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, 0, fmt.Errorf("read chunk response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return "", false, 0, nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var item struct {
			WebURL string `json:"webUrl"`
		}
		if err := json.Unmarshal(body, &item); err != nil {
			return "", false, 0, fmt.Errorf("parse drive item: %w", err)
		}
		if item.WebURL == "" {
			return "", false, 0, fmt.Errorf("drive item carried no webUrl")
		}
		return item.WebURL, true, 0, nil
	default:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return "", false, retryAfter, &graphError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
