package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newExtractor(t *testing.T, handler http.Handler) (*Extractor, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewExtractor(NewClient(srv.URL, "bot@example.com", "token"), st, testLogger()), st
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestExtractProjectsPaginates(t *testing.T) {
	pages := map[string]any{
		"0": map[string]any{
			"startAt": 0, "maxResults": 2, "total": 3, "isLast": false,
			"values": []map[string]any{
				{"id": "10001", "key": "PROJ", "name": "Project", "description": "d",
					"lead": map[string]string{"accountId": "lead-1"}},
				{"id": "10002", "key": "OPS", "name": "Ops", "isPrivate": true},
			},
		},
		"2": map[string]any{
			"startAt": 2, "maxResults": 2, "total": 3, "isLast": true,
			"values": []map[string]any{
				{"id": "10003", "key": "SEC", "name": "Security"},
			},
		},
	}
	e, st := newExtractor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/project/search", r.URL.Path)
		assert.Equal(t, "lead,description", r.URL.Query().Get("expand"))
		writeJSON(t, w, pages[r.URL.Query().Get("startAt")])
	}))
	e.PageSize = 2

	n, err := e.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := st.SyncProjectMappings(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows)
}

func TestExtractUsersSkipsAppAccounts(t *testing.T) {
	e, st := newExtractor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/users/search", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeInactiveUsers"))
		writeJSON(t, w, []map[string]any{
			{"accountId": "a1", "accountType": "atlassian", "displayName": "Alice",
				"emailAddress": "alice@example.com", "active": true},
			{"accountId": "bot", "accountType": "app", "displayName": "Automation", "active": true},
			{"accountId": "a2", "accountType": "atlassian", "displayName": "Bob", "active": false},
		})
	}))

	n, err := e.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	created, err := st.SyncUserMappings(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, created)
}

func TestExtractIssuesKeysetAndAttachments(t *testing.T) {
	issue := func(id, key string) map[string]any {
		return map[string]any{
			"id": id, "key": key,
			"fields": map[string]any{
				"summary": "Summary " + key,
				"project": map[string]string{"id": "10001"},
				"status": map[string]any{"id": "3",
					"statusCategory": map[string]string{"key": "done"}},
				"created": "2024-01-01T10:00:00.000+0000",
				"attachment": []map[string]any{
					{"id": "9" + id, "filename": "log.txt", "size": 42,
						"content": "https://jira.example.com/content/9" + id},
				},
			},
		}
	}
	e, st := newExtractor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/search/jql", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var req struct {
			JQL string `json:"jql"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch {
		case strings.Contains(req.JQL, "id > 0"):
			writeJSON(t, w, map[string]any{"issues": []any{issue("1", "PROJ-1"), issue("2", "PROJ-2")}})
		case strings.Contains(req.JQL, "id > 2"):
			writeJSON(t, w, map[string]any{"issues": []any{}})
		default:
			t.Fatalf("unexpected jql %q", req.JQL)
		}
	}))
	e.PageSize = 2
	ctx := context.Background()

	require.NoError(t, st.UpsertJiraProjects(ctx, []store.StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", Name: "Project", RawPayload: "{}"},
	}))
	_, err := st.SyncProjectMappings(ctx)
	require.NoError(t, err)

	n, err := e.Issues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := st.StagedIssueIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	created, err := st.SyncAttachmentMappings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, created)

	// The stamp blocks a second pass entirely.
	remaining, err := st.ReadyProjectsForExtraction(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPerIssueFetchRecordsWarningOn403(t *testing.T) {
	var calls atomic.Int32
	e, st := newExtractor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/rest/api/3/issue/1/"):
			http.Error(w, `{"errorMessages":["no permission"]}`, http.StatusForbidden)
		case strings.HasPrefix(r.URL.Path, "/rest/api/3/issue/2/"):
			writeJSON(t, w, map[string]any{
				"startAt": 0, "maxResults": 50, "total": 1,
				"comments": []map[string]any{
					{"id": "200", "author": map[string]string{"accountId": "a1"},
						"body":    map[string]any{"type": "doc", "version": 1},
						"created": "2024-02-01T09:00:00.000+0000"},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	ctx := context.Background()

	require.NoError(t, st.UpsertJiraIssues(ctx, []store.StagingJiraIssue{
		{JiraIssueID: "1", JiraIssueKey: "PROJ-1", JiraProjectID: "p", RawPayload: "{}"},
		{JiraIssueID: "2", JiraIssueKey: "PROJ-2", JiraProjectID: "p", RawPayload: "{}"},
	}))

	n, err := e.Comments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	states, err := st.ExtractionStates(ctx, "1")
	require.NoError(t, err)
	require.Contains(t, states, store.AspectComments)
	assert.Equal(t, store.StateWarning, states[store.AspectComments].Status)
	require.NotNil(t, states[store.AspectComments].Detail)
	assert.Equal(t, "HTTP 403", *states[store.AspectComments].Detail)

	// A warned issue is not refetched; a succeeded one neither.
	before := calls.Load()
	_, err = e.Comments(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())
}

func TestExtractWatchers(t *testing.T) {
	e, st := newExtractor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/issue/7/watchers", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"watchCount": 2,
			"watchers": []map[string]string{
				{"accountId": "a1", "displayName": "Alice"},
				{"accountId": "a2", "displayName": "Bob"},
			},
		})
	}))
	ctx := context.Background()

	require.NoError(t, st.UpsertJiraIssues(ctx, []store.StagingJiraIssue{
		{JiraIssueID: "7", JiraIssueKey: "PROJ-7", JiraProjectID: "p", RawPayload: "{}"},
	}))

	n, err := e.Watchers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	created, err := st.SyncWatcherMappings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, created)
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/rest/api/3/myself", &out))
	assert.True(t, out.OK)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"errorMessages":["bad jql"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	err := c.GetJSON(context.Background(), "/rest/api/3/search", &struct{}{})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, IsAuthOrMissing(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestDownloadStreams(t *testing.T) {
	payload := strings.Repeat("x", 9000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	var buf strings.Builder
	n, err := c.Download(context.Background(), srv.URL+"/content/55", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, buf.String())
}
