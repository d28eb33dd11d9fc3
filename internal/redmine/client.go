package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// APIError is a non-2xx Redmine response with the server's message parsed
// out of the errors payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// parseAPIError extracts a readable message from a Redmine error body.
// Redmine answers either {"errors": ["..."]} or {"error": "..."}; anything
// else is reported raw, truncated to 500 characters.
func parseAPIError(statusCode int, body []byte) *APIError {
	var multi struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &multi); err == nil && len(multi.Errors) > 0 {
		return &APIError{StatusCode: statusCode, Message: strings.Join(multi.Errors, "; ")}
	}
	var single struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.Error != "" {
		return &APIError{StatusCode: statusCode, Message: single.Error}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}

// extendedAPIHeader must be present on a probe response before any extended
// endpoint is used.
const extendedAPIHeader = "X-Redmine-Extended-API"

// Client provides HTTP access to a Redmine instance via its REST API.
type Client struct {
	URL            string
	APIKey         string
	ExtendedPrefix string
	HTTPClient     *http.Client

	probeOnce   sync.Once
	probeResult bool
}

// NewClient creates a Redmine client. extendedPrefix is the URL prefix of
// the optional extended API, usually "/extended_api".
func NewClient(url, apiKey, extendedPrefix string) *Client {
	return &Client{
		URL:            strings.TrimSuffix(url, "/"),
		APIKey:         apiKey,
		ExtendedPrefix: extendedPrefix,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Project is one project row of projects.json.
type Project struct {
	ID          int64  `json:"id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
	Trackers    []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"trackers"`
}

// User is one user row of users.json / users/{id}.json.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Mail      string `json:"mail"`
	Status    int64  `json:"status"`
}

// Issue is the subset of issues/{id}.json the pipeline reads back.
type Issue struct {
	ID          int64 `json:"id"`
	Attachments []struct {
		ID       int64  `json:"id"`
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	} `json:"attachments"`
	Journals []struct {
		ID        int64  `json:"id"`
		Notes     string `json:"notes"`
		CreatedOn string `json:"created_on"`
	} `json:"journals"`
}

// Projects enumerates all projects including their enabled trackers.
func (c *Client) Projects(ctx context.Context) ([]Project, []json.RawMessage, error) {
	var all []Project
	var raws []json.RawMessage
	offset := 0
	const limit = 100
	for {
		path := fmt.Sprintf("/projects.json?include=trackers&limit=%d&offset=%d", limit, offset)
		var page struct {
			Projects   []json.RawMessage `json:"projects"`
			TotalCount int               `json:"total_count"`
		}
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, nil, fmt.Errorf("list projects: %w", err)
		}
		for _, raw := range page.Projects {
			var p Project
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, nil, fmt.Errorf("parse project payload: %w", err)
			}
			all = append(all, p)
			raws = append(raws, raw)
		}
		offset += len(page.Projects)
		if len(page.Projects) == 0 || offset >= page.TotalCount {
			return all, raws, nil
		}
	}
}

// Users enumerates all users regardless of status. The summary rows lack
// mail on some Redmine versions; UserDetail closes that gap.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var all []User
	offset := 0
	const limit = 100
	for {
		path := fmt.Sprintf("/users.json?status=*&limit=%d&offset=%d", limit, offset)
		var page struct {
			Users      []User `json:"users"`
			TotalCount int    `json:"total_count"`
		}
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		all = append(all, page.Users...)
		offset += len(page.Users)
		if len(page.Users) == 0 || offset >= page.TotalCount {
			return all, nil
		}
	}
}

// UserDetail fetches one user including mail and status. Needs an admin key.
func (c *Client) UserDetail(ctx context.Context, id int64) (*User, json.RawMessage, error) {
	var resp struct {
		User json.RawMessage `json:"user"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/users/%d.json", id), &resp); err != nil {
		return nil, nil, fmt.Errorf("fetch user %d: %w", id, err)
	}
	var u User
	if err := json.Unmarshal(resp.User, &u); err != nil {
		return nil, nil, fmt.Errorf("parse user %d: %w", id, err)
	}
	return &u, resp.User, nil
}

// CreateProject creates a project and returns its id.
func (c *Client) CreateProject(ctx context.Context, fields any) (int64, error) {
	var resp struct {
		Project struct {
			ID int64 `json:"id"`
		} `json:"project"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/projects.json", map[string]any{"project": fields}, &resp); err != nil {
		return 0, err
	}
	return resp.Project.ID, nil
}

// CreateUser creates a user and returns its id.
func (c *Client) CreateUser(ctx context.Context, fields any) (int64, error) {
	var resp struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/users.json", map[string]any{"user": fields}, &resp); err != nil {
		return 0, err
	}
	return resp.User.ID, nil
}

// CreateIssue creates an issue and returns its id.
func (c *Client) CreateIssue(ctx context.Context, fields any) (int64, error) {
	var resp struct {
		Issue struct {
			ID int64 `json:"id"`
		} `json:"issue"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/issues.json", map[string]any{"issue": fields}, &resp); err != nil {
		return 0, err
	}
	return resp.Issue.ID, nil
}

// UpdateIssue updates an issue in place (204 on success).
func (c *Client) UpdateIssue(ctx context.Context, id int64, fields any) error {
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/issues/%d.json", id), map[string]any{"issue": fields}, nil)
}

// PatchIssue updates an issue through the extended API, which honors
// journal author and timestamp overrides.
func (c *Client) PatchIssue(ctx context.Context, id int64, payload any) error {
	path := c.ExtendedPrefix + fmt.Sprintf("/issues/%d.json", id)
	return c.sendJSON(ctx, http.MethodPatch, path, payload, nil)
}

// IssueDetail fetches one issue with the given include list
// ("attachments", "journals" or "attachments,journals").
func (c *Client) IssueDetail(ctx context.Context, id int64, include string) (*Issue, error) {
	var resp struct {
		Issue Issue `json:"issue"`
	}
	path := fmt.Sprintf("/issues/%d.json?include=%s", id, include)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch issue %d: %w", id, err)
	}
	return &resp.Issue, nil
}

// AddWatcher subscribes a user to an issue.
func (c *Client) AddWatcher(ctx context.Context, issueID, userID int64) error {
	path := fmt.Sprintf("/issues/%d/watchers.json", issueID)
	return c.sendJSON(ctx, http.MethodPost, path, map[string]any{"user_id": userID}, nil)
}

// Upload streams a file body to uploads.json and returns the upload token.
func (c *Client) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	query := url.Values{"filename": {filename}}
	return c.upload(ctx, "/uploads.json?"+query.Encode(), body)
}

// UploadWithAttribution streams a file body through the extended API's
// upload endpoint, which records the original author and timestamp on the
// resulting attachment instead of the API key's user.
func (c *Client) UploadWithAttribution(ctx context.Context, filename string, body io.Reader, authorID int64, createdOn string) (string, error) {
	query := url.Values{
		"filename":               {filename},
		"attachment[author_id]":  {fmt.Sprint(authorID)},
		"attachment[created_on]": {createdOn},
	}
	return c.upload(ctx, c.ExtendedPrefix+"/uploads.json?"+query.Encode(), body)
}

func (c *Client) upload(ctx context.Context, path string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+path, body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var out struct {
		Upload struct {
			Token string `json:"token"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if out.Upload.Token == "" {
		return "", fmt.Errorf("upload response carried no token")
	}
	return out.Upload.Token, nil
}

// ExtendedAvailable probes the extended API once per process and caches the
// result. Availability requires the probe response to carry the
// X-Redmine-Extended-API header; the status code alone proves nothing.
func (c *Client) ExtendedAvailable(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		apiURL := c.URL + c.ExtendedPrefix + "/issues.json?limit=1"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return
		}
		req.Header.Set("X-Redmine-API-Key", c.APIKey)
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		c.probeResult = resp.Header.Get(extendedAPIHeader) != ""
	})
	return c.probeResult
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.request(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", path, err)
	}
	return c.request(ctx, method, path, data, out)
}

func (c *Client) request(ctx context.Context, method, path string, body []byte, out any) error {
	if c.URL == "" {
		return fmt.Errorf("redmine URL not configured")
	}
	if c.APIKey == "" {
		return fmt.Errorf("redmine API key not configured")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response for %s: %w", path, err)
		}
	}
	return nil
}
