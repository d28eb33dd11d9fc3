package store

import (
	"context"
	"database/sql"
	"fmt"
)

const issueMappingCols = `mapping_id, jira_issue_id, jira_issue_key, jira_project_id, jira_issue_type_id,
	jira_status_id, jira_priority_id, jira_reporter_account_id, jira_assignee_account_id, jira_parent_issue_id,
	redmine_issue_id, redmine_project_id, redmine_tracker_id, redmine_status_id, redmine_priority_id,
	redmine_author_id, redmine_assigned_to_id, redmine_parent_issue_id,
	proposed_subject, proposed_description, proposed_start_date, proposed_due_date,
	proposed_done_ratio, proposed_estimated_hours, proposed_is_private,
	migration_status, notes, automation_hash, last_updated_at`

func scanIssueMapping(sc interface{ Scan(...any) error }) (IssueMapping, error) {
	var m IssueMapping
	var jProject, jType, jStatus, jPriority, jReporter, jAssignee, jParent sql.NullString
	var rIssue, rProject, rTracker, rStatus, rPriority, rAuthor, rAssigned, rParent sql.NullInt64
	var subject, desc, start, due, notes, hash sql.NullString
	var doneRatio sql.NullInt64
	var estimated sql.NullFloat64
	var isPrivate sql.NullInt64
	err := sc.Scan(&m.MappingID, &m.JiraIssueID, &m.JiraIssueKey, &jProject, &jType,
		&jStatus, &jPriority, &jReporter, &jAssignee, &jParent,
		&rIssue, &rProject, &rTracker, &rStatus, &rPriority, &rAuthor, &rAssigned, &rParent,
		&subject, &desc, &start, &due, &doneRatio, &estimated, &isPrivate,
		&m.MigrationStatus, &notes, &hash, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.JiraProjectID = strPtr(jProject)
	m.JiraIssueTypeID = strPtr(jType)
	m.JiraStatusID = strPtr(jStatus)
	m.JiraPriorityID = strPtr(jPriority)
	m.JiraReporterAccountID = strPtr(jReporter)
	m.JiraAssigneeAccountID = strPtr(jAssignee)
	m.JiraParentIssueID = strPtr(jParent)
	m.RedmineIssueID = intPtr(rIssue)
	m.RedmineProjectID = intPtr(rProject)
	m.RedmineTrackerID = intPtr(rTracker)
	m.RedmineStatusID = intPtr(rStatus)
	m.RedminePriorityID = intPtr(rPriority)
	m.RedmineAuthorID = intPtr(rAuthor)
	m.RedmineAssignedToID = intPtr(rAssigned)
	m.RedmineParentIssueID = intPtr(rParent)
	m.ProposedSubject = strPtr(subject)
	m.ProposedDescription = strPtr(desc)
	m.ProposedStartDate = strPtr(start)
	m.ProposedDueDate = strPtr(due)
	m.ProposedDoneRatio = intPtr(doneRatio)
	m.ProposedEstimated = floatPtr(estimated)
	m.ProposedIsPrivate = boolPtr(isPrivate)
	m.Notes = strPtr(notes)
	m.AutomationHash = strPtr(hash)
	return m, nil
}

// SyncIssueMappings inserts skeleton mapping rows for staged issues, copying
// the Jira-side foreign references so transform never re-reads staging for
// them. Existing rows keep whatever they already have.
func (s *Store) SyncIssueMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_issues
			(jira_issue_id, jira_issue_key, jira_project_id, jira_issue_type_id, jira_status_id,
			 jira_priority_id, jira_reporter_account_id, jira_assignee_account_id, jira_parent_issue_id,
			 migration_status, last_updated_at)
		 SELECT i.jira_issue_id, i.jira_issue_key, i.jira_project_id, i.issue_type_id, i.status_id,
			 i.priority_id, i.reporter_account_id, i.assignee_account_id, i.parent_issue_id, ?, ?
		 FROM staging_jira_issues i
		 WHERE i.jira_issue_id NOT IN (SELECT jira_issue_id FROM migration_mapping_issues)`,
		StatusPendingAnalysis, now())
	if err != nil {
		return 0, fmt.Errorf("sync issue mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// IssueTransformRow couples an issue mapping row with its staged payload.
type IssueTransformRow struct {
	Mapping IssueMapping
	Staging StagingJiraIssue
}

// IssueMappingsForTransform returns every issue mapping joined with staging,
// ascending mapping_id so parents created earlier surface first.
func (s *Store) IssueMappingsForTransform(ctx context.Context) ([]IssueTransformRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, i.jira_issue_key, i.jira_project_id, i.issue_type_id, i.status_id, i.status_category,
			i.priority_id, i.reporter_account_id, i.assignee_account_id, i.parent_issue_id,
			i.summary, i.description_adf, i.created, i.updated, i.duedate, i.time_original_estimate,
			i.security_present, i.raw_payload, i.extracted_at
		 FROM migration_mapping_issues m
		 JOIN staging_jira_issues i ON i.jira_issue_id = m.jira_issue_id
		 ORDER BY m.mapping_id`, prefixCols("m", issueMappingCols)))
	if err != nil {
		return nil, fmt.Errorf("query issue mappings for transform: %w", err)
	}
	defer rows.Close()

	var out []IssueTransformRow
	for rows.Next() {
		var r IssueTransformRow
		var m IssueMapping
		var jProject, jType, jStatus, jPriority, jReporter, jAssignee, jParent sql.NullString
		var rIssue, rProject, rTracker, rStatus, rPriority, rAuthor, rAssigned, rParent sql.NullInt64
		var subject, desc, start, due, notes, hash sql.NullString
		var doneRatio sql.NullInt64
		var estimated sql.NullFloat64
		var isPrivate sql.NullInt64
		var stType, stStatus, stCategory, stPriority, stReporter, stAssignee, stParent sql.NullString
		var stADF, stCreated, stUpdated, stDue sql.NullString
		var stEstimate sql.NullInt64
		var stSecurity int64
		err := rows.Scan(&m.MappingID, &m.JiraIssueID, &m.JiraIssueKey, &jProject, &jType,
			&jStatus, &jPriority, &jReporter, &jAssignee, &jParent,
			&rIssue, &rProject, &rTracker, &rStatus, &rPriority, &rAuthor, &rAssigned, &rParent,
			&subject, &desc, &start, &due, &doneRatio, &estimated, &isPrivate,
			&m.MigrationStatus, &notes, &hash, &m.LastUpdatedAt,
			&r.Staging.JiraIssueKey, &r.Staging.JiraProjectID, &stType, &stStatus, &stCategory,
			&stPriority, &stReporter, &stAssignee, &stParent,
			&r.Staging.Summary, &stADF, &stCreated, &stUpdated, &stDue, &stEstimate,
			&stSecurity, &r.Staging.RawPayload, &r.Staging.ExtractedAt)
		if err != nil {
			return nil, err
		}
		m.JiraProjectID = strPtr(jProject)
		m.JiraIssueTypeID = strPtr(jType)
		m.JiraStatusID = strPtr(jStatus)
		m.JiraPriorityID = strPtr(jPriority)
		m.JiraReporterAccountID = strPtr(jReporter)
		m.JiraAssigneeAccountID = strPtr(jAssignee)
		m.JiraParentIssueID = strPtr(jParent)
		m.RedmineIssueID = intPtr(rIssue)
		m.RedmineProjectID = intPtr(rProject)
		m.RedmineTrackerID = intPtr(rTracker)
		m.RedmineStatusID = intPtr(rStatus)
		m.RedminePriorityID = intPtr(rPriority)
		m.RedmineAuthorID = intPtr(rAuthor)
		m.RedmineAssignedToID = intPtr(rAssigned)
		m.RedmineParentIssueID = intPtr(rParent)
		m.ProposedSubject = strPtr(subject)
		m.ProposedDescription = strPtr(desc)
		m.ProposedStartDate = strPtr(start)
		m.ProposedDueDate = strPtr(due)
		m.ProposedDoneRatio = intPtr(doneRatio)
		m.ProposedEstimated = floatPtr(estimated)
		m.ProposedIsPrivate = boolPtr(isPrivate)
		m.Notes = strPtr(notes)
		m.AutomationHash = strPtr(hash)
		r.Staging.JiraIssueID = m.JiraIssueID
		r.Staging.IssueTypeID = strPtr(stType)
		r.Staging.StatusID = strPtr(stStatus)
		r.Staging.StatusCategory = strPtr(stCategory)
		r.Staging.PriorityID = strPtr(stPriority)
		r.Staging.ReporterAccountID = strPtr(stReporter)
		r.Staging.AssigneeAccountID = strPtr(stAssignee)
		r.Staging.ParentIssueID = strPtr(stParent)
		r.Staging.DescriptionADF = strPtr(stADF)
		r.Staging.Created = strPtr(stCreated)
		r.Staging.Updated = strPtr(stUpdated)
		r.Staging.DueDate = strPtr(stDue)
		r.Staging.TimeOriginalEstimate = intPtr(stEstimate)
		r.Staging.SecurityPresent = stSecurity != 0
		r.Mapping = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadyIssueMappings returns rows awaiting creation on Redmine.
func (s *Store) ReadyIssueMappings(ctx context.Context) ([]IssueMapping, error) {
	return s.issueMappingsWhere(ctx, "migration_status = ?", StatusReadyForCreation)
}

// IssueMappingByJiraID returns the mapping row for one Jira issue id, or nil.
func (s *Store) IssueMappingByJiraID(ctx context.Context, jiraIssueID string) (*IssueMapping, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_issues WHERE jira_issue_id = ?`, issueMappingCols), jiraIssueID)
	m, err := scanIssueMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query issue mapping %s: %w", jiraIssueID, err)
	}
	return &m, nil
}

func (s *Store) issueMappingsWhere(ctx context.Context, where string, args ...any) ([]IssueMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_issues WHERE %s ORDER BY mapping_id`, issueMappingCols, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query issue mappings: %w", err)
	}
	defer rows.Close()

	var out []IssueMapping
	for rows.Next() {
		m, err := scanIssueMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IssueMappingUpdate is the full automated field set of an issue mapping row.
type IssueMappingUpdate struct {
	RedmineIssueID       *int64
	RedmineProjectID     *int64
	RedmineTrackerID     *int64
	RedmineStatusID      *int64
	RedminePriorityID    *int64
	RedmineAuthorID      *int64
	RedmineAssignedToID  *int64
	RedmineParentIssueID *int64
	ProposedSubject      *string
	ProposedDescription  *string
	ProposedStartDate    *string
	ProposedDueDate      *string
	ProposedDoneRatio    *int64
	ProposedEstimated    *float64
	ProposedIsPrivate    *bool
	MigrationStatus      string
	Notes                *string
	AutomationHash       string
}

// UpdateIssueMapping atomically rewrites the automated fields of one row.
func (s *Store) UpdateIssueMapping(ctx context.Context, mappingID int64, u IssueMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_issues SET
			redmine_issue_id = ?, redmine_project_id = ?, redmine_tracker_id = ?, redmine_status_id = ?,
			redmine_priority_id = ?, redmine_author_id = ?, redmine_assigned_to_id = ?, redmine_parent_issue_id = ?,
			proposed_subject = ?, proposed_description = ?, proposed_start_date = ?, proposed_due_date = ?,
			proposed_done_ratio = ?, proposed_estimated_hours = ?, proposed_is_private = ?,
			migration_status = ?, notes = ?, automation_hash = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		nullInt(u.RedmineIssueID), nullInt(u.RedmineProjectID), nullInt(u.RedmineTrackerID), nullInt(u.RedmineStatusID),
		nullInt(u.RedminePriorityID), nullInt(u.RedmineAuthorID), nullInt(u.RedmineAssignedToID), nullInt(u.RedmineParentIssueID),
		nullStr(u.ProposedSubject), nullStr(u.ProposedDescription), nullStr(u.ProposedStartDate), nullStr(u.ProposedDueDate),
		nullInt(u.ProposedDoneRatio), nullFloat(u.ProposedEstimated), nullBool(u.ProposedIsPrivate),
		u.MigrationStatus, nullStr(u.Notes), u.AutomationHash, now(), mappingID)
	if err != nil {
		return fmt.Errorf("update issue mapping %d: %w", mappingID, err)
	}
	return nil
}

// ReadyIssueKeyLookup maps jira_issue_key to redmine_issue_id for ready
// rows. The content rewriter resolves textual issue keys through this.
func (s *Store) ReadyIssueKeyLookup(ctx context.Context) (map[string]int64, error) {
	return s.readyLookup(ctx,
		`SELECT jira_issue_key, redmine_issue_id FROM migration_mapping_issues
		 WHERE migration_status IN (?, ?) AND redmine_issue_id IS NOT NULL`)
}

// ReadyIssueLookup maps jira_issue_id to redmine_issue_id for ready rows.
func (s *Store) ReadyIssueLookup(ctx context.Context) (map[string]int64, error) {
	return s.readyLookup(ctx,
		`SELECT jira_issue_id, redmine_issue_id FROM migration_mapping_issues
		 WHERE migration_status IN (?, ?) AND redmine_issue_id IS NOT NULL`)
}

// SubtaskLink is an open parent reference: both sides exist on Redmine but
// the child's stored parent differs from the parent's Redmine id.
type SubtaskLink struct {
	MappingID            int64
	JiraIssueID          string
	ChildRedmineIssueID  int64
	ParentRedmineIssueID int64
}

// SubtaskLinks returns the parent links still to be closed on Redmine.
func (s *Store) SubtaskLinks(ctx context.Context) ([]SubtaskLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.mapping_id, c.jira_issue_id, c.redmine_issue_id, p.redmine_issue_id
		 FROM migration_mapping_issues c
		 JOIN migration_mapping_issues p ON p.jira_issue_id = c.jira_parent_issue_id
		 WHERE c.jira_parent_issue_id IS NOT NULL
		   AND c.redmine_issue_id IS NOT NULL
		   AND p.redmine_issue_id IS NOT NULL
		   AND (c.redmine_parent_issue_id IS NULL OR c.redmine_parent_issue_id != p.redmine_issue_id)
		 ORDER BY c.mapping_id`)
	if err != nil {
		return nil, fmt.Errorf("query subtask links: %w", err)
	}
	defer rows.Close()

	var out []SubtaskLink
	for rows.Next() {
		var l SubtaskLink
		if err := rows.Scan(&l.MappingID, &l.JiraIssueID, &l.ChildRedmineIssueID, &l.ParentRedmineIssueID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetIssueParentLinked records that the subtask phase pushed a parent link.
// automation_hash is recomputed by the caller since redmine_parent_issue_id
// participates in the frozen field set.
func (s *Store) SetIssueParentLinked(ctx context.Context, mappingID, parentRedmineID int64, automationHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_issues
		 SET redmine_parent_issue_id = ?, automation_hash = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		parentRedmineID, automationHash, now(), mappingID)
	if err != nil {
		return fmt.Errorf("link parent for issue mapping %d: %w", mappingID, err)
	}
	return nil
}
