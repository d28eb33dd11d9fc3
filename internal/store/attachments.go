package store

import (
	"context"
	"database/sql"
	"fmt"
)

const attachmentMappingCols = `mapping_id, jira_attachment_id, jira_issue_id, jira_filesize, association_hint,
	migration_status, local_filepath, redmine_upload_token, redmine_attachment_id, redmine_issue_id,
	sharepoint_url, notes, download_enabled, upload_enabled, last_updated_at`

func scanAttachmentMapping(sc interface{ Scan(...any) error }) (AttachmentMapping, error) {
	var m AttachmentMapping
	var filesize, attachmentID, issueID sql.NullInt64
	var hint, path, token, spURL, notes sql.NullString
	var down, up int64
	err := sc.Scan(&m.MappingID, &m.JiraAttachmentID, &m.JiraIssueID, &filesize, &hint,
		&m.MigrationStatus, &path, &token, &attachmentID, &issueID, &spURL, &notes, &down, &up, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.JiraFilesize = intPtr(filesize)
	m.AssociationHint = strPtr(hint)
	m.LocalFilepath = strPtr(path)
	m.RedmineUploadToken = strPtr(token)
	m.RedmineAttachment = intPtr(attachmentID)
	m.RedmineIssueID = intPtr(issueID)
	m.SharePointURL = strPtr(spURL)
	m.Notes = strPtr(notes)
	m.DownloadEnabled = down != 0
	m.UploadEnabled = up != 0
	return m, nil
}

// SyncAttachmentMappings inserts skeleton rows for staged attachments in
// PENDING_DOWNLOAD and refreshes jira_filesize on every run (the descriptor
// can change when a file is re-uploaded in Jira).
func (s *Store) SyncAttachmentMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_attachments
			(jira_attachment_id, jira_issue_id, jira_filesize, migration_status, last_updated_at)
		 SELECT a.jira_attachment_id, a.jira_issue_id, a.filesize, ?, ?
		 FROM staging_jira_attachments a
		 WHERE a.jira_attachment_id NOT IN (SELECT jira_attachment_id FROM migration_mapping_attachments)`,
		StatusPendingDownload, now())
	if err != nil {
		return 0, fmt.Errorf("sync attachment mappings: %w", err)
	}
	n, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx,
		`UPDATE migration_mapping_attachments SET jira_filesize =
			(SELECT a.filesize FROM staging_jira_attachments a
			 WHERE a.jira_attachment_id = migration_mapping_attachments.jira_attachment_id)
		 WHERE jira_attachment_id IN (SELECT jira_attachment_id FROM staging_jira_attachments)`)
	if err != nil {
		return n, fmt.Errorf("refresh attachment filesizes: %w", err)
	}
	return n, nil
}

// AttachmentWorkRow couples an attachment mapping with the staged descriptor
// fields the pipeline needs, plus the owning issue's created timestamp for
// association-hint computation.
type AttachmentWorkRow struct {
	Mapping         AttachmentMapping
	Filename        string
	ContentURL      string
	AuthorAccountID *string
	Created         *string
	IssueCreated    *string
}

// AttachmentWorkRows returns attachment mappings in the given statuses
// joined with their staged descriptors, ascending mapping_id.
func (s *Store) AttachmentWorkRows(ctx context.Context, statuses ...string) ([]AttachmentWorkRow, error) {
	query := fmt.Sprintf(
		`SELECT %s, a.filename, a.content_url, a.author_account_id, a.created, i.created
		 FROM migration_mapping_attachments m
		 JOIN staging_jira_attachments a ON a.jira_attachment_id = m.jira_attachment_id
		 LEFT JOIN staging_jira_issues i ON i.jira_issue_id = m.jira_issue_id`,
		prefixCols("m", attachmentMappingCols))
	var args []any
	if len(statuses) > 0 {
		query += " WHERE m.migration_status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY m.mapping_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attachment work rows: %w", err)
	}
	defer rows.Close()

	var out []AttachmentWorkRow
	for rows.Next() {
		var r AttachmentWorkRow
		var m AttachmentMapping
		var filesize, attachmentID, issueID sql.NullInt64
		var hint, path, token, spURL, notes sql.NullString
		var down, up int64
		var author, created, issueCreated sql.NullString
		err := rows.Scan(&m.MappingID, &m.JiraAttachmentID, &m.JiraIssueID, &filesize, &hint,
			&m.MigrationStatus, &path, &token, &attachmentID, &issueID, &spURL, &notes, &down, &up,
			&m.LastUpdatedAt, &r.Filename, &r.ContentURL, &author, &created, &issueCreated)
		if err != nil {
			return nil, err
		}
		m.JiraFilesize = intPtr(filesize)
		m.AssociationHint = strPtr(hint)
		m.LocalFilepath = strPtr(path)
		m.RedmineUploadToken = strPtr(token)
		m.RedmineAttachment = intPtr(attachmentID)
		m.RedmineIssueID = intPtr(issueID)
		m.SharePointURL = strPtr(spURL)
		m.Notes = strPtr(notes)
		m.DownloadEnabled = down != 0
		m.UploadEnabled = up != 0
		r.AuthorAccountID = strPtr(author)
		r.Created = strPtr(created)
		r.IssueCreated = strPtr(issueCreated)
		r.Mapping = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// AttachmentsForIssue returns the attachment mappings of one Jira issue.
func (s *Store) AttachmentsForIssue(ctx context.Context, jiraIssueID string) ([]AttachmentMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_attachments WHERE jira_issue_id = ? ORDER BY mapping_id`,
		attachmentMappingCols), jiraIssueID)
	if err != nil {
		return nil, fmt.Errorf("query attachments for issue %s: %w", jiraIssueID, err)
	}
	defer rows.Close()

	var out []AttachmentMapping
	for rows.Next() {
		m, err := scanAttachmentMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AttachmentMappingUpdate is the mutable field set of an attachment row.
// Attachments carry no automation hash; the status machine alone governs
// them, and operators flip download_enabled/upload_enabled directly.
type AttachmentMappingUpdate struct {
	AssociationHint    *string
	MigrationStatus    string
	LocalFilepath      *string
	RedmineUploadToken *string
	RedmineAttachment  *int64
	RedmineIssueID     *int64
	SharePointURL      *string
	Notes              *string
}

// UpdateAttachmentMapping rewrites the pipeline fields of one row.
func (s *Store) UpdateAttachmentMapping(ctx context.Context, mappingID int64, u AttachmentMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_attachments SET
			association_hint = ?, migration_status = ?, local_filepath = ?, redmine_upload_token = ?,
			redmine_attachment_id = ?, redmine_issue_id = ?, sharepoint_url = ?, notes = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		nullStr(u.AssociationHint), u.MigrationStatus, nullStr(u.LocalFilepath), nullStr(u.RedmineUploadToken),
		nullInt(u.RedmineAttachment), nullInt(u.RedmineIssueID), nullStr(u.SharePointURL), nullStr(u.Notes),
		now(), mappingID)
	if err != nil {
		return fmt.Errorf("update attachment mapping %d: %w", mappingID, err)
	}
	return nil
}

// AttachmentRef is what the content rewriter needs per attachment: the
// globally unique Redmine filename and the SharePoint URL when offloaded.
type AttachmentRef struct {
	JiraAttachmentID string
	Filename         string
	UniqueFilename   string
	SharePointURL    *string
}

// AttachmentIndex returns rewriter refs for all attachments of one issue,
// or for every attachment when jiraIssueID is empty.
func (s *Store) AttachmentIndex(ctx context.Context, jiraIssueID string) (map[string]AttachmentRef, error) {
	query := `SELECT m.jira_attachment_id, a.filename, m.sharepoint_url
		 FROM migration_mapping_attachments m
		 JOIN staging_jira_attachments a ON a.jira_attachment_id = m.jira_attachment_id`
	var args []any
	if jiraIssueID != "" {
		query += " WHERE m.jira_issue_id = ?"
		args = append(args, jiraIssueID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attachment index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]AttachmentRef)
	for rows.Next() {
		var ref AttachmentRef
		var spURL sql.NullString
		if err := rows.Scan(&ref.JiraAttachmentID, &ref.Filename, &spURL); err != nil {
			return nil, err
		}
		ref.UniqueFilename = UniqueAttachmentFilename(ref.JiraAttachmentID, ref.Filename)
		ref.SharePointURL = strPtr(spURL)
		out[ref.JiraAttachmentID] = ref
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "?"
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
