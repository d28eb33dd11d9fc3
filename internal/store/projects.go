package store

import (
	"context"
	"database/sql"
	"fmt"
)

const projectMappingCols = `mapping_id, jira_project_id, redmine_project_id, migration_status, notes,
	proposed_identifier, proposed_name, proposed_description, proposed_is_public,
	automation_hash, issues_extracted_at, last_updated_at`

func scanProjectMapping(sc interface{ Scan(...any) error }) (ProjectMapping, error) {
	var m ProjectMapping
	var redmineID sql.NullInt64
	var notes, ident, name, desc, hash, extractedAt sql.NullString
	var isPublic sql.NullInt64
	err := sc.Scan(&m.MappingID, &m.JiraProjectID, &redmineID, &m.MigrationStatus, &notes,
		&ident, &name, &desc, &isPublic, &hash, &extractedAt, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.RedmineProjectID = intPtr(redmineID)
	m.Notes = strPtr(notes)
	m.ProposedIdentifier = strPtr(ident)
	m.ProposedName = strPtr(name)
	m.ProposedDescription = strPtr(desc)
	m.ProposedIsPublic = boolPtr(isPublic)
	m.AutomationHash = strPtr(hash)
	m.IssuesExtractedAt = strPtr(extractedAt)
	return m, nil
}

// SyncProjectMappings inserts a skeleton mapping row for every staged Jira
// project that has none yet. Existing rows are never touched or deleted.
func (s *Store) SyncProjectMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_projects (jira_project_id, migration_status, last_updated_at)
		 SELECT p.jira_project_id, ?, ?
		 FROM staging_jira_projects p
		 WHERE p.jira_project_id NOT IN (SELECT jira_project_id FROM migration_mapping_projects)`,
		StatusPendingAnalysis, now())
	if err != nil {
		return 0, fmt.Errorf("sync project mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ProjectTransformRow couples a project mapping row with its staged payload.
type ProjectTransformRow struct {
	Mapping ProjectMapping
	Staging StagingJiraProject
}

// ProjectMappingsForTransform returns every project mapping row joined with
// its staging row, in ascending mapping_id order.
func (s *Store) ProjectMappingsForTransform(ctx context.Context) ([]ProjectTransformRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, p.jira_key, p.name, p.description, p.lead_account_id, p.is_private, p.raw_payload, p.extracted_at
		 FROM migration_mapping_projects m
		 JOIN staging_jira_projects p ON p.jira_project_id = m.jira_project_id
		 ORDER BY m.mapping_id`, prefixCols("m", projectMappingCols)))
	if err != nil {
		return nil, fmt.Errorf("query project mappings for transform: %w", err)
	}
	defer rows.Close()

	var out []ProjectTransformRow
	for rows.Next() {
		var r ProjectTransformRow
		var m ProjectMapping
		var redmineID sql.NullInt64
		var notes, ident, name, desc, hash, extractedAt sql.NullString
		var isPublic sql.NullInt64
		var stDesc, stLead sql.NullString
		var stPrivate int64
		err := rows.Scan(&m.MappingID, &m.JiraProjectID, &redmineID, &m.MigrationStatus, &notes,
			&ident, &name, &desc, &isPublic, &hash, &extractedAt, &m.LastUpdatedAt,
			&r.Staging.JiraKey, &r.Staging.Name, &stDesc, &stLead, &stPrivate,
			&r.Staging.RawPayload, &r.Staging.ExtractedAt)
		if err != nil {
			return nil, err
		}
		m.RedmineProjectID = intPtr(redmineID)
		m.Notes = strPtr(notes)
		m.ProposedIdentifier = strPtr(ident)
		m.ProposedName = strPtr(name)
		m.ProposedDescription = strPtr(desc)
		m.ProposedIsPublic = boolPtr(isPublic)
		m.AutomationHash = strPtr(hash)
		m.IssuesExtractedAt = strPtr(extractedAt)
		r.Staging.JiraProjectID = m.JiraProjectID
		r.Staging.Description = strPtr(stDesc)
		r.Staging.LeadAccountID = strPtr(stLead)
		r.Staging.IsPrivate = stPrivate != 0
		r.Mapping = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadyProjectMappings returns rows awaiting creation on Redmine.
func (s *Store) ReadyProjectMappings(ctx context.Context) ([]ProjectMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_projects WHERE migration_status = ? ORDER BY mapping_id`,
		projectMappingCols), StatusReadyForCreation)
	if err != nil {
		return nil, fmt.Errorf("query ready project mappings: %w", err)
	}
	defer rows.Close()

	var out []ProjectMapping
	for rows.Next() {
		m, err := scanProjectMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ProjectMappingUpdate is the full automated field set of a project mapping
// row. UpdateProjectMapping always writes every field so the stored row and
// the stored hash cannot drift apart.
type ProjectMappingUpdate struct {
	RedmineProjectID    *int64
	MigrationStatus     string
	Notes               *string
	ProposedIdentifier  *string
	ProposedName        *string
	ProposedDescription *string
	ProposedIsPublic    *bool
	AutomationHash      string
}

// UpdateProjectMapping atomically rewrites the automated fields of one row.
func (s *Store) UpdateProjectMapping(ctx context.Context, mappingID int64, u ProjectMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_projects SET
			redmine_project_id = ?, migration_status = ?, notes = ?,
			proposed_identifier = ?, proposed_name = ?, proposed_description = ?, proposed_is_public = ?,
			automation_hash = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		nullInt(u.RedmineProjectID), u.MigrationStatus, nullStr(u.Notes),
		nullStr(u.ProposedIdentifier), nullStr(u.ProposedName), nullStr(u.ProposedDescription),
		nullBool(u.ProposedIsPublic), u.AutomationHash, now(), mappingID)
	if err != nil {
		return fmt.Errorf("update project mapping %d: %w", mappingID, err)
	}
	return nil
}

// ReadyProjectsForExtraction returns ready project mappings whose issues
// have not been fully extracted yet, joined with the staged Jira key.
func (s *Store) ReadyProjectsForExtraction(ctx context.Context) ([]ProjectTransformRow, error) {
	all, err := s.ProjectMappingsForTransform(ctx)
	if err != nil {
		return nil, err
	}
	var out []ProjectTransformRow
	for _, r := range all {
		if r.Mapping.IssuesExtractedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkProjectIssuesExtracted stamps issues_extracted_at after every issue
// page of a project landed. A partial run leaves the stamp NULL so the next
// run resumes the project.
func (s *Store) MarkProjectIssuesExtracted(ctx context.Context, jiraProjectID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE migration_mapping_projects SET issues_extracted_at = ? WHERE jira_project_id = ?",
		now(), jiraProjectID)
	if err != nil {
		return fmt.Errorf("mark issues extracted for project %s: %w", jiraProjectID, err)
	}
	return nil
}

// ReadyProjectLookup maps jira_project_id to redmine_project_id for rows in
// a ready state.
func (s *Store) ReadyProjectLookup(ctx context.Context) (map[string]int64, error) {
	return s.readyLookup(ctx,
		`SELECT jira_project_id, redmine_project_id FROM migration_mapping_projects
		 WHERE migration_status IN (?, ?) AND redmine_project_id IS NOT NULL`)
}

// readyLookup runs a two-column (source id, redmine id) query bound to the
// two ready statuses.
func (s *Store) readyLookup(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, StatusMatchFound, StatusCreationSuccess)
	if err != nil {
		return nil, fmt.Errorf("query ready lookup: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rows.Err()
}

// prefixCols qualifies each column in a comma-separated list with a table
// alias for use in joins.
func prefixCols(alias, cols string) string {
	parts := splitCols(cols)
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return joinCols(parts)
}
