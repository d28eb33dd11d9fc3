package redmine

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

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "key", "/extended_api")
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want string
	}{
		{"errors array", 422, `{"errors":["Subject cannot be blank","Project is invalid"]}`,
			"HTTP 422: Subject cannot be blank; Project is invalid"},
		{"single error", 403, `{"error":"forbidden"}`, "HTTP 403: forbidden"},
		{"raw body", 500, "Internal Server Error", "HTTP 500: Internal Server Error"},
		{"truncated", 500, strings.Repeat("x", 600), "HTTP 500: " + strings.Repeat("x", 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAPIError(tt.code, []byte(tt.body)).Error())
		})
	}
}

func TestCreateIssueParsesIDAndErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/issues.json", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("X-Redmine-API-Key"))

		var req struct {
			Issue map[string]any `json:"issue"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Issue["subject"] == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"errors":["Subject cannot be blank"]}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"issue":{"id":4711}}`)
	}))
	ctx := context.Background()

	id, err := c.CreateIssue(ctx, map[string]any{"subject": "Imported", "project_id": 1})
	require.NoError(t, err)
	assert.EqualValues(t, 4711, id)

	_, err = c.CreateIssue(ctx, map[string]any{"subject": ""})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Subject cannot be blank")
}

func TestUploadReturnsToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/uploads.json", r.URL.Path)
		assert.Equal(t, "55__report.pdf", r.URL.Query().Get("filename"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "binary", string(body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"upload":{"token":"123.abcdef"}}`)
	}))

	token, err := c.Upload(context.Background(), "55__report.pdf", strings.NewReader("binary"))
	require.NoError(t, err)
	assert.Equal(t, "123.abcdef", token)
}

func TestUploadWithAttributionTargetsExtendedAPI(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extended_api/uploads.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "55__report.pdf", q.Get("filename"))
		assert.Equal(t, "42", q.Get("attachment[author_id]"))
		assert.Equal(t, "2024-03-01T10:00:00Z", q.Get("attachment[created_on]"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"upload":{"token":"124.abcdef"}}`)
	}))

	token, err := c.UploadWithAttribution(context.Background(), "55__report.pdf",
		strings.NewReader("binary"), 42, "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "124.abcdef", token)
}

func TestExtendedProbeCachesResult(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/extended_api/issues.json", r.URL.Path)
		w.Header().Set("X-Redmine-Extended-API", "1.0")
		fmt.Fprint(w, `{"issues":[]}`)
	}))
	ctx := context.Background()

	assert.True(t, c.ExtendedAvailable(ctx))
	assert.True(t, c.ExtendedAvailable(ctx))
	assert.EqualValues(t, 1, calls.Load())
}

func TestExtendedProbeRequiresHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A vanilla Redmine happily serves the prefixed path via a
		// catch-all route. Without the header it does not count.
		fmt.Fprint(w, `{"issues":[]}`)
	}))
	assert.False(t, c.ExtendedAvailable(context.Background()))
}

func TestSnapshotProjectsPaginates(t *testing.T) {
	pages := map[string]string{
		"0": `{"projects":[
			{"id":1,"identifier":"infra","name":"Infra","is_public":true,"trackers":[{"id":1,"name":"Bug"}]},
			{"id":2,"identifier":"ops","name":"Ops","description":"ops desc","is_public":false}
		],"total_count":3,"offset":0,"limit":2}`,
		"2": `{"projects":[
			{"id":3,"identifier":"sec","name":"Security","is_public":true}
		],"total_count":3,"offset":2,"limit":2}`,
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/projects.json", r.URL.Path)
		assert.Equal(t, "trackers", r.URL.Query().Get("include"))
		fmt.Fprint(w, pages[r.URL.Query().Get("offset")])
	}))

	st, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer st.Close()

	snap := NewSnapshotter(c, st, testLogger())
	n, err := snap.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := st.RedmineProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ops", rows[1].Identifier)
	require.NotNil(t, rows[1].Description)
	assert.Equal(t, "ops desc", *rows[1].Description)
}

func TestSnapshotUsersRequiresMail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users.json":
			assert.Equal(t, "*", r.URL.Query().Get("status"))
			fmt.Fprint(w, `{"users":[{"id":5,"login":"alice"}],"total_count":1}`)
		case "/users/5.json":
			fmt.Fprint(w, `{"user":{"id":5,"login":"alice","firstname":"Alice","lastname":"Smith","status":1}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	st, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer st.Close()

	snap := NewSnapshotter(c, st, testLogger())
	_, err = snap.Users(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mail")
}

func TestSnapshotUsers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users.json":
			fmt.Fprint(w, `{"users":[{"id":5,"login":"alice"},{"id":6,"login":"bob"}],"total_count":2}`)
		case "/users/5.json":
			fmt.Fprint(w, `{"user":{"id":5,"login":"alice","firstname":"Alice","lastname":"Smith","mail":"alice@example.com","status":1}}`)
		case "/users/6.json":
			fmt.Fprint(w, `{"user":{"id":6,"login":"bob","firstname":"Bob","lastname":"Jones","mail":"bob@example.com","status":3}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	st, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer st.Close()

	snap := NewSnapshotter(c, st, testLogger())
	n, err := snap.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := st.RedmineUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice@example.com", rows[0].Mail)
	assert.EqualValues(t, 3, rows[1].Status)
}
