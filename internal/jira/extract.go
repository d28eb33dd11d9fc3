package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// defaultPageSize is the page size requested from every paginated endpoint.
const defaultPageSize = 100

// Extractor pulls Jira entities into the staging tables. Each method covers
// one entity family and is safe to re-run: staging writes are upserts and
// per-issue fetches consult migration_state before hitting the API again.
type Extractor struct {
	Client   *Client
	Store    *store.Store
	Log      logrus.FieldLogger
	PageSize int
}

func NewExtractor(client *Client, st *store.Store, log logrus.FieldLogger) *Extractor {
	return &Extractor{Client: client, Store: st, Log: log, PageSize: defaultPageSize}
}

func (e *Extractor) pageSize() int {
	if e.PageSize > 0 {
		return e.PageSize
	}
	return defaultPageSize
}

// Projects pulls all projects via /project/search and stages them.
func (e *Extractor) Projects(ctx context.Context) (int, error) {
	total := 0
	startAt := 0
	for {
		path := fmt.Sprintf("/rest/api/3/project/search?expand=lead,description&startAt=%d&maxResults=%d",
			startAt, e.pageSize())
		var page projectSearchResult
		if err := e.Client.GetJSON(ctx, path, &page); err != nil {
			return total, fmt.Errorf("fetch projects: %w", err)
		}

		rows := make([]store.StagingJiraProject, 0, len(page.Values))
		for _, raw := range page.Values {
			var p Project
			if err := json.Unmarshal(raw, &p); err != nil {
				return total, fmt.Errorf("parse project payload: %w", err)
			}
			row := store.StagingJiraProject{
				JiraProjectID: p.ID,
				JiraKey:       p.Key,
				Name:          p.Name,
				Description:   optStr(p.Description),
				IsPrivate:     p.IsPrivate,
				RawPayload:    string(raw),
			}
			if p.Lead != nil {
				row.LeadAccountID = optStr(p.Lead.AccountID)
			}
			rows = append(rows, row)
		}
		if err := e.Store.UpsertJiraProjects(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)
		e.Log.WithFields(logrus.Fields{"page_start": startAt, "count": len(rows)}).Debug("staged project page")

		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || startAt >= page.Total {
			return total, nil
		}
	}
}

// Users pulls the full user directory, inactive accounts included. App
// accounts (bots, connect apps) are skipped: they can never map to a Redmine
// login.
func (e *Extractor) Users(ctx context.Context) (int, error) {
	total := 0
	startAt := 0
	for {
		path := fmt.Sprintf("/rest/api/3/users/search?includeInactiveUsers=true&expand=groups&startAt=%d&maxResults=%d",
			startAt, e.pageSize())
		var page []json.RawMessage
		if err := e.Client.GetJSON(ctx, path, &page); err != nil {
			return total, fmt.Errorf("fetch users: %w", err)
		}

		var rows []store.StagingJiraUser
		for _, raw := range page {
			var u User
			if err := json.Unmarshal(raw, &u); err != nil {
				return total, fmt.Errorf("parse user payload: %w", err)
			}
			if u.AccountType == "app" {
				continue
			}
			rows = append(rows, store.StagingJiraUser{
				JiraAccountID: u.AccountID,
				DisplayName:   u.DisplayName,
				EmailAddress:  optStr(u.EmailAddress),
				Active:        u.Active,
				RawPayload:    string(raw),
			})
		}
		if err := e.Store.UpsertJiraUsers(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)

		if len(page) < e.pageSize() {
			return total, nil
		}
		startAt += len(page)
	}
}

// Issues pulls every issue of every project whose mapping row has no
// issues_extracted_at stamp yet, using keyset pagination on the issue id.
// Attachment descriptors embedded in the issue payload are staged in the
// same transaction boundary. The stamp is written only after the last page
// of a project landed, so an aborted run resumes the whole project.
func (e *Extractor) Issues(ctx context.Context) (int, error) {
	projects, err := e.Store.ReadyProjectsForExtraction(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, p := range projects {
		n, err := e.projectIssues(ctx, p.Staging.JiraKey)
		if err != nil {
			return total, fmt.Errorf("extract issues for %s: %w", p.Staging.JiraKey, err)
		}
		total += n
		if err := e.Store.MarkProjectIssuesExtracted(ctx, p.Mapping.JiraProjectID); err != nil {
			return total, err
		}
		e.Log.WithFields(logrus.Fields{"project": p.Staging.JiraKey, "issues": n}).Info("project issues extracted")
	}
	return total, nil
}

func (e *Extractor) projectIssues(ctx context.Context, projectKey string) (int, error) {
	total := 0
	lastSeen := "0"
	for {
		req := searchJQLRequest{
			JQL:        fmt.Sprintf("project = %s AND id > %s ORDER BY id ASC", projectKey, lastSeen),
			MaxResults: e.pageSize(),
			Fields:     []string{"*all"},
		}
		var page searchJQLResult
		if err := e.Client.PostJSON(ctx, "/rest/api/3/search/jql", req, &page); err != nil {
			return total, err
		}
		if len(page.Issues) == 0 {
			return total, nil
		}

		issueRows := make([]store.StagingJiraIssue, 0, len(page.Issues))
		var attachmentRows []store.StagingJiraAttachment
		for _, raw := range page.Issues {
			var issue Issue
			if err := json.Unmarshal(raw, &issue); err != nil {
				return total, fmt.Errorf("parse issue payload: %w", err)
			}
			row, attachments, err := stagingIssue(issue, raw)
			if err != nil {
				return total, err
			}
			issueRows = append(issueRows, row)
			attachmentRows = append(attachmentRows, attachments...)
			lastSeen = issue.ID
		}
		if err := e.Store.UpsertJiraIssues(ctx, issueRows); err != nil {
			return total, err
		}
		if err := e.Store.UpsertJiraAttachments(ctx, attachmentRows); err != nil {
			return total, err
		}
		total += len(issueRows)
	}
}

func stagingIssue(issue Issue, raw json.RawMessage) (store.StagingJiraIssue, []store.StagingJiraAttachment, error) {
	var f IssueFields
	if err := json.Unmarshal(issue.Fields, &f); err != nil {
		return store.StagingJiraIssue{}, nil, fmt.Errorf("parse fields of issue %s: %w", issue.Key, err)
	}

	row := store.StagingJiraIssue{
		JiraIssueID:          issue.ID,
		JiraIssueKey:         issue.Key,
		Summary:              f.Summary,
		Created:              optStr(f.Created),
		Updated:              optStr(f.Updated),
		DueDate:              optStr(f.DueDate),
		TimeOriginalEstimate: f.TimeOriginalEstimate,
		SecurityPresent:      len(f.Security) > 0 && string(f.Security) != "null",
		RawPayload:           string(raw),
	}
	if len(f.Description) > 0 && string(f.Description) != "null" {
		desc := string(f.Description)
		row.DescriptionADF = &desc
	}
	if f.IssueType != nil {
		row.IssueTypeID = optStr(f.IssueType.ID)
	}
	if f.Status != nil {
		row.StatusID = optStr(f.Status.ID)
		if f.Status.StatusCategory != nil {
			row.StatusCategory = optStr(f.Status.StatusCategory.Key)
		}
	}
	if f.Priority != nil {
		row.PriorityID = optStr(f.Priority.ID)
	}
	if f.Reporter != nil {
		row.ReporterAccountID = optStr(f.Reporter.AccountID)
	}
	if f.Assignee != nil {
		row.AssigneeAccountID = optStr(f.Assignee.AccountID)
	}
	if f.Parent != nil {
		row.ParentIssueID = optStr(f.Parent.ID)
	}

	var project struct {
		Project *IDField `json:"project"`
	}
	if err := json.Unmarshal(issue.Fields, &project); err == nil && project.Project != nil {
		row.JiraProjectID = project.Project.ID
	}

	attachments := make([]store.StagingJiraAttachment, 0, len(f.Attachment))
	for _, a := range f.Attachment {
		raw, err := json.Marshal(a)
		if err != nil {
			return row, nil, fmt.Errorf("re-encode attachment %s: %w", a.ID, err)
		}
		att := store.StagingJiraAttachment{
			JiraAttachmentID: a.ID,
			JiraIssueID:      issue.ID,
			Filename:         a.Filename,
			Filesize:         a.Size,
			MimeType:         optStr(a.MimeType),
			ContentURL:       a.Content,
			Created:          optStr(a.Created),
			RawPayload:       string(raw),
		}
		if a.Author != nil {
			att.AuthorAccountID = optStr(a.Author.AccountID)
		}
		attachments = append(attachments, att)
	}
	return row, attachments, nil
}

// Comments pulls the comment stream of every staged issue whose comment
// aspect has not succeeded yet.
func (e *Extractor) Comments(ctx context.Context) (int, error) {
	return e.perIssue(ctx, store.AspectComments, e.issueComments)
}

// Changelogs pulls the changelog of every staged issue whose changelog
// aspect has not succeeded yet.
func (e *Extractor) Changelogs(ctx context.Context) (int, error) {
	return e.perIssue(ctx, store.AspectChangelog, e.issueChangelog)
}

// Watchers pulls the watcher list of every staged issue whose watcher
// aspect has not succeeded yet.
func (e *Extractor) Watchers(ctx context.Context) (int, error) {
	return e.perIssue(ctx, store.AspectWatchers, e.issueWatchers)
}

// perIssue drives one aspect fetch across all staged issues. A 401/403/404
// records WARNING and the issue is not retried; any other failure records
// FAILED and leaves the issue eligible for the next run.
func (e *Extractor) perIssue(ctx context.Context, aspect string, fetch func(context.Context, string) (int, error)) (int, error) {
	ids, err := e.Store.StagedIssueIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		states, err := e.Store.ExtractionStates(ctx, id)
		if err != nil {
			return total, err
		}
		if st, ok := states[aspect]; ok && st.Status != store.StateFailed {
			continue
		}

		n, err := fetch(ctx, id)
		switch {
		case err == nil:
			total += n
			err = e.Store.SetExtractionState(ctx, store.ExtractionState{
				JiraIssueID: id, Aspect: aspect, Status: store.StateSuccess,
			})
		case IsAuthOrMissing(err):
			e.Log.WithFields(logrus.Fields{"issue": id, "aspect": aspect}).WithError(err).Warn("skipping issue aspect")
			detail := statusDetail(err)
			err = e.Store.SetExtractionState(ctx, store.ExtractionState{
				JiraIssueID: id, Aspect: aspect, Status: store.StateWarning, Detail: &detail,
			})
		default:
			e.Log.WithFields(logrus.Fields{"issue": id, "aspect": aspect}).WithError(err).Error("issue aspect fetch failed")
			detail := err.Error()
			if len(detail) > 500 {
				detail = detail[:500]
			}
			err = e.Store.SetExtractionState(ctx, store.ExtractionState{
				JiraIssueID: id, Aspect: aspect, Status: store.StateFailed, Detail: &detail,
			})
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func statusDetail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("HTTP %d", se.StatusCode)
	}
	return err.Error()
}

func (e *Extractor) issueComments(ctx context.Context, issueID string) (int, error) {
	total := 0
	startAt := 0
	for {
		path := fmt.Sprintf("/rest/api/3/issue/%s/comment?expand=renderedBody&startAt=%d&maxResults=%d",
			issueID, startAt, e.pageSize())
		var page commentPage
		if err := e.Client.GetJSON(ctx, path, &page); err != nil {
			return total, err
		}

		rows := make([]store.StagingJiraComment, 0, len(page.Comments))
		for _, raw := range page.Comments {
			var c Comment
			if err := json.Unmarshal(raw, &c); err != nil {
				return total, fmt.Errorf("parse comment payload: %w", err)
			}
			row := store.StagingJiraComment{
				JiraCommentID: c.ID,
				JiraIssueID:   issueID,
				RenderedBody:  optStr(c.RenderedBody),
				Created:       optStr(c.Created),
				Updated:       optStr(c.Updated),
				RawPayload:    string(raw),
			}
			if len(c.Body) > 0 && string(c.Body) != "null" {
				body := string(c.Body)
				row.BodyADF = &body
			}
			if c.Author != nil {
				row.AuthorAccountID = optStr(c.Author.AccountID)
			}
			rows = append(rows, row)
		}
		if err := e.Store.UpsertJiraComments(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)

		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			return total, nil
		}
	}
}

func (e *Extractor) issueChangelog(ctx context.Context, issueID string) (int, error) {
	total := 0
	startAt := 0
	for {
		path := fmt.Sprintf("/rest/api/3/issue/%s/changelog?startAt=%d&maxResults=%d",
			issueID, startAt, e.pageSize())
		var page changelogPage
		if err := e.Client.GetJSON(ctx, path, &page); err != nil {
			return total, err
		}

		rows := make([]store.StagingJiraChangelog, 0, len(page.Values))
		for _, raw := range page.Values {
			var entry ChangelogEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return total, fmt.Errorf("parse changelog payload: %w", err)
			}
			items, err := json.Marshal(entry.Items)
			if err != nil {
				return total, fmt.Errorf("re-encode changelog items: %w", err)
			}
			row := store.StagingJiraChangelog{
				JiraChangelogID: entry.ID,
				JiraIssueID:     issueID,
				Created:         optStr(entry.Created),
				Items:           string(items),
				RawPayload:      string(raw),
			}
			if entry.Author != nil {
				row.AuthorAccountID = optStr(entry.Author.AccountID)
			}
			rows = append(rows, row)
		}
		if err := e.Store.UpsertJiraChangelogs(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)

		startAt += len(page.Values)
		if len(page.Values) == 0 || startAt >= page.Total {
			return total, nil
		}
	}
}

func (e *Extractor) issueWatchers(ctx context.Context, issueID string) (int, error) {
	var result watchersResult
	path := fmt.Sprintf("/rest/api/3/issue/%s/watchers", issueID)
	if err := e.Client.GetJSON(ctx, path, &result); err != nil {
		return 0, err
	}

	rows := make([]store.StagingJiraWatcher, 0, len(result.Watchers))
	for _, w := range result.Watchers {
		raw, err := json.Marshal(w)
		if err != nil {
			return 0, fmt.Errorf("re-encode watcher: %w", err)
		}
		rows = append(rows, store.StagingJiraWatcher{
			JiraIssueID:   issueID,
			JiraAccountID: w.AccountID,
			RawPayload:    string(raw),
		})
	}
	if err := e.Store.UpsertJiraWatchers(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
