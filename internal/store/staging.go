package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertJiraProjects writes one page of Jira projects into staging inside a
// single transaction.
func (s *Store) UpsertJiraProjects(ctx context.Context, rows []StagingJiraProject) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_projects",
		[]string{"jira_project_id"},
		[]string{"jira_key", "name", "description", "lead_account_id", "is_private", "raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraProjectID, r.JiraKey, r.Name, nullStr(r.Description), nullStr(r.LeadAccountID),
				boolInt(r.IsPrivate), r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging project %s: %w", r.JiraProjectID, err)
			}
		}
		return nil
	})
}

// UpsertJiraUsers writes one page of Jira users into staging.
func (s *Store) UpsertJiraUsers(ctx context.Context, rows []StagingJiraUser) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_users",
		[]string{"jira_account_id"},
		[]string{"display_name", "email_address", "active", "raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraAccountID, r.DisplayName, nullStr(r.EmailAddress), boolInt(r.Active), r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging user %s: %w", r.JiraAccountID, err)
			}
		}
		return nil
	})
}

// UpsertJiraIssues writes one keyset page of Jira issues into staging.
func (s *Store) UpsertJiraIssues(ctx context.Context, rows []StagingJiraIssue) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_issues",
		[]string{"jira_issue_id"},
		[]string{"jira_issue_key", "jira_project_id", "issue_type_id", "status_id", "status_category",
			"priority_id", "reporter_account_id", "assignee_account_id", "parent_issue_id", "summary",
			"description_adf", "created", "updated", "duedate", "time_original_estimate",
			"security_present", "raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraIssueID, r.JiraIssueKey, r.JiraProjectID, nullStr(r.IssueTypeID), nullStr(r.StatusID),
				nullStr(r.StatusCategory), nullStr(r.PriorityID), nullStr(r.ReporterAccountID),
				nullStr(r.AssigneeAccountID), nullStr(r.ParentIssueID), r.Summary, nullStr(r.DescriptionADF),
				nullStr(r.Created), nullStr(r.Updated), nullStr(r.DueDate), nullInt(r.TimeOriginalEstimate),
				boolInt(r.SecurityPresent), r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging issue %s: %w", r.JiraIssueID, err)
			}
		}
		return nil
	})
}

// UpsertJiraComments writes one page of comments for an issue.
func (s *Store) UpsertJiraComments(ctx context.Context, rows []StagingJiraComment) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_comments",
		[]string{"jira_comment_id"},
		[]string{"jira_issue_id", "author_account_id", "body_adf", "rendered_body", "created", "updated",
			"raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraCommentID, r.JiraIssueID, nullStr(r.AuthorAccountID), nullStr(r.BodyADF),
				nullStr(r.RenderedBody), nullStr(r.Created), nullStr(r.Updated), r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging comment %s: %w", r.JiraCommentID, err)
			}
		}
		return nil
	})
}

// UpsertJiraChangelogs writes one page of changelog entries for an issue.
func (s *Store) UpsertJiraChangelogs(ctx context.Context, rows []StagingJiraChangelog) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_changelogs",
		[]string{"jira_changelog_id"},
		[]string{"jira_issue_id", "author_account_id", "created", "items", "raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraChangelogID, r.JiraIssueID, nullStr(r.AuthorAccountID), nullStr(r.Created),
				r.Items, r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging changelog %s: %w", r.JiraChangelogID, err)
			}
		}
		return nil
	})
}

// UpsertJiraWatchers writes the watcher list of an issue.
func (s *Store) UpsertJiraWatchers(ctx context.Context, rows []StagingJiraWatcher) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_watchers",
		[]string{"jira_issue_id", "jira_account_id"},
		[]string{"raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query, r.JiraIssueID, r.JiraAccountID, r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging watcher %s/%s: %w", r.JiraIssueID, r.JiraAccountID, err)
			}
		}
		return nil
	})
}

// UpsertJiraAttachments writes the attachment descriptors of an issue.
func (s *Store) UpsertJiraAttachments(ctx context.Context, rows []StagingJiraAttachment) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertSQL("staging_jira_attachments",
		[]string{"jira_attachment_id"},
		[]string{"jira_issue_id", "filename", "filesize", "mime_type", "content_url", "author_account_id",
			"created", "raw_payload", "extracted_at"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, query,
				r.JiraAttachmentID, r.JiraIssueID, r.Filename, r.Filesize, nullStr(r.MimeType),
				r.ContentURL, nullStr(r.AuthorAccountID), nullStr(r.Created), r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("upsert staging attachment %s: %w", r.JiraAttachmentID, err)
			}
		}
		return nil
	})
}

// ReplaceRedmineProjects truncates and reloads the Redmine project snapshot.
func (s *Store) ReplaceRedmineProjects(ctx context.Context, rows []StagingRedmineProject) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM staging_redmine_projects"); err != nil {
			return fmt.Errorf("truncate redmine project snapshot: %w", err)
		}
		for _, r := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO staging_redmine_projects
				 (redmine_project_id, identifier, name, description, is_public, raw_payload, extracted_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.RedmineProjectID, r.Identifier, r.Name, nullStr(r.Description), boolInt(r.IsPublic),
				r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("insert redmine project %d: %w", r.RedmineProjectID, err)
			}
		}
		return nil
	})
}

// ReplaceRedmineUsers truncates and reloads the Redmine user snapshot.
func (s *Store) ReplaceRedmineUsers(ctx context.Context, rows []StagingRedmineUser) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM staging_redmine_users"); err != nil {
			return fmt.Errorf("truncate redmine user snapshot: %w", err)
		}
		for _, r := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO staging_redmine_users
				 (redmine_user_id, login, mail, firstname, lastname, status, raw_payload, extracted_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.RedmineUserID, r.Login, r.Mail, r.Firstname, r.Lastname, r.Status, r.RawPayload, now())
			if err != nil {
				return fmt.Errorf("insert redmine user %d: %w", r.RedmineUserID, err)
			}
		}
		return nil
	})
}

// RedmineProjects returns the full Redmine project snapshot.
func (s *Store) RedmineProjects(ctx context.Context) ([]StagingRedmineProject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT redmine_project_id, identifier, name, description, is_public, raw_payload, extracted_at
		 FROM staging_redmine_projects ORDER BY redmine_project_id`)
	if err != nil {
		return nil, fmt.Errorf("query redmine project snapshot: %w", err)
	}
	defer rows.Close()

	var out []StagingRedmineProject
	for rows.Next() {
		var r StagingRedmineProject
		var desc sql.NullString
		var isPublic int64
		if err := rows.Scan(&r.RedmineProjectID, &r.Identifier, &r.Name, &desc, &isPublic, &r.RawPayload, &r.ExtractedAt); err != nil {
			return nil, err
		}
		r.Description = strPtr(desc)
		r.IsPublic = isPublic != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RedmineUsers returns the full Redmine user snapshot.
func (s *Store) RedmineUsers(ctx context.Context) ([]StagingRedmineUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT redmine_user_id, login, mail, firstname, lastname, status, raw_payload, extracted_at
		 FROM staging_redmine_users ORDER BY redmine_user_id`)
	if err != nil {
		return nil, fmt.Errorf("query redmine user snapshot: %w", err)
	}
	defer rows.Close()

	var out []StagingRedmineUser
	for rows.Next() {
		var r StagingRedmineUser
		if err := rows.Scan(&r.RedmineUserID, &r.Login, &r.Mail, &r.Firstname, &r.Lastname, &r.Status, &r.RawPayload, &r.ExtractedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StagedIssueIDs returns all staged Jira issue ids, ascending.
func (s *Store) StagedIssueIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT jira_issue_id FROM staging_jira_issues ORDER BY CAST(jira_issue_id AS INTEGER)")
	if err != nil {
		return nil, fmt.Errorf("query staged issue ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetExtractionState records the outcome of a per-issue aspect fetch.
func (s *Store) SetExtractionState(ctx context.Context, st ExtractionState) error {
	query := s.upsertSQL("migration_state",
		[]string{"jira_issue_id", "aspect"},
		[]string{"status", "detail", "updated_at"})
	_, err := s.db.ExecContext(ctx, query, st.JiraIssueID, st.Aspect, st.Status, nullStr(st.Detail), now())
	if err != nil {
		return fmt.Errorf("record extraction state %s/%s: %w", st.JiraIssueID, st.Aspect, err)
	}
	return nil
}

// ExtractionStates returns the recorded state per aspect for an issue.
// Absent aspects mean the fetch has never run.
func (s *Store) ExtractionStates(ctx context.Context, jiraIssueID string) (map[string]ExtractionState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT jira_issue_id, aspect, status, detail, updated_at FROM migration_state WHERE jira_issue_id = ?",
		jiraIssueID)
	if err != nil {
		return nil, fmt.Errorf("query extraction state for %s: %w", jiraIssueID, err)
	}
	defer rows.Close()

	out := make(map[string]ExtractionState)
	for rows.Next() {
		var st ExtractionState
		var detail sql.NullString
		if err := rows.Scan(&st.JiraIssueID, &st.Aspect, &st.Status, &detail, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Detail = strPtr(detail)
		out[st.Aspect] = st
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
