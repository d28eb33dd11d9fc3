package store

import (
	"context"
	"database/sql"
	"fmt"
)

const userMappingCols = `mapping_id, jira_account_id, redmine_user_id, migration_status, match_type, notes,
	proposed_redmine_login, proposed_redmine_mail, proposed_firstname, proposed_lastname,
	proposed_redmine_status, automation_hash, jira_display_name, jira_email_address, last_updated_at`

func scanUserMapping(sc interface{ Scan(...any) error }) (UserMapping, error) {
	var m UserMapping
	var redmineID sql.NullInt64
	var matchType, notes, login, mail, first, last, status, hash, display, email sql.NullString
	err := sc.Scan(&m.MappingID, &m.JiraAccountID, &redmineID, &m.MigrationStatus, &matchType, &notes,
		&login, &mail, &first, &last, &status, &hash, &display, &email, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.RedmineUserID = intPtr(redmineID)
	m.MatchType = strPtr(matchType)
	m.Notes = strPtr(notes)
	m.ProposedRedmineLogin = strPtr(login)
	m.ProposedRedmineMail = strPtr(mail)
	m.ProposedFirstname = strPtr(first)
	m.ProposedLastname = strPtr(last)
	m.ProposedRedmineStatus = strPtr(status)
	m.AutomationHash = strPtr(hash)
	m.JiraDisplayName = strPtr(display)
	m.JiraEmailAddress = strPtr(email)
	return m, nil
}

// SyncUserMappings inserts skeleton mapping rows for staged Jira users,
// carrying the display name and email over for operator convenience.
func (s *Store) SyncUserMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_users
			(jira_account_id, migration_status, jira_display_name, jira_email_address, last_updated_at)
		 SELECT u.jira_account_id, ?, u.display_name, u.email_address, ?
		 FROM staging_jira_users u
		 WHERE u.jira_account_id NOT IN (SELECT jira_account_id FROM migration_mapping_users)`,
		StatusPendingAnalysis, now())
	if err != nil {
		return 0, fmt.Errorf("sync user mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UserTransformRow couples a user mapping row with its staged payload.
type UserTransformRow struct {
	Mapping UserMapping
	Staging StagingJiraUser
}

// UserMappingsForTransform returns every user mapping joined with staging.
func (s *Store) UserMappingsForTransform(ctx context.Context) ([]UserTransformRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, u.display_name, u.email_address, u.active, u.raw_payload, u.extracted_at
		 FROM migration_mapping_users m
		 JOIN staging_jira_users u ON u.jira_account_id = m.jira_account_id
		 ORDER BY m.mapping_id`, prefixCols("m", userMappingCols)))
	if err != nil {
		return nil, fmt.Errorf("query user mappings for transform: %w", err)
	}
	defer rows.Close()

	var out []UserTransformRow
	for rows.Next() {
		var r UserTransformRow
		var m UserMapping
		var redmineID sql.NullInt64
		var matchType, notes, login, mail, first, last, status, hash, display, email sql.NullString
		var stEmail sql.NullString
		var active int64
		err := rows.Scan(&m.MappingID, &m.JiraAccountID, &redmineID, &m.MigrationStatus, &matchType, &notes,
			&login, &mail, &first, &last, &status, &hash, &display, &email, &m.LastUpdatedAt,
			&r.Staging.DisplayName, &stEmail, &active, &r.Staging.RawPayload, &r.Staging.ExtractedAt)
		if err != nil {
			return nil, err
		}
		m.RedmineUserID = intPtr(redmineID)
		m.MatchType = strPtr(matchType)
		m.Notes = strPtr(notes)
		m.ProposedRedmineLogin = strPtr(login)
		m.ProposedRedmineMail = strPtr(mail)
		m.ProposedFirstname = strPtr(first)
		m.ProposedLastname = strPtr(last)
		m.ProposedRedmineStatus = strPtr(status)
		m.AutomationHash = strPtr(hash)
		m.JiraDisplayName = strPtr(display)
		m.JiraEmailAddress = strPtr(email)
		r.Staging.JiraAccountID = m.JiraAccountID
		r.Staging.EmailAddress = strPtr(stEmail)
		r.Staging.Active = active != 0
		r.Mapping = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadyUserMappings returns rows awaiting creation on Redmine.
func (s *Store) ReadyUserMappings(ctx context.Context) ([]UserMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_users WHERE migration_status = ? ORDER BY mapping_id`,
		userMappingCols), StatusReadyForCreation)
	if err != nil {
		return nil, fmt.Errorf("query ready user mappings: %w", err)
	}
	defer rows.Close()

	var out []UserMapping
	for rows.Next() {
		m, err := scanUserMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UserMappingUpdate is the full automated field set of a user mapping row.
type UserMappingUpdate struct {
	RedmineUserID         *int64
	MigrationStatus       string
	MatchType             *string
	Notes                 *string
	ProposedRedmineLogin  *string
	ProposedRedmineMail   *string
	ProposedFirstname     *string
	ProposedLastname      *string
	ProposedRedmineStatus *string
	AutomationHash        string
}

// UpdateUserMapping atomically rewrites the automated fields of one row.
func (s *Store) UpdateUserMapping(ctx context.Context, mappingID int64, u UserMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_users SET
			redmine_user_id = ?, migration_status = ?, match_type = ?, notes = ?,
			proposed_redmine_login = ?, proposed_redmine_mail = ?, proposed_firstname = ?,
			proposed_lastname = ?, proposed_redmine_status = ?,
			automation_hash = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		nullInt(u.RedmineUserID), u.MigrationStatus, nullStr(u.MatchType), nullStr(u.Notes),
		nullStr(u.ProposedRedmineLogin), nullStr(u.ProposedRedmineMail), nullStr(u.ProposedFirstname),
		nullStr(u.ProposedLastname), nullStr(u.ProposedRedmineStatus),
		u.AutomationHash, now(), mappingID)
	if err != nil {
		return fmt.Errorf("update user mapping %d: %w", mappingID, err)
	}
	return nil
}

// ReadyUserLookup maps jira_account_id to redmine_user_id for ready rows.
func (s *Store) ReadyUserLookup(ctx context.Context) (map[string]int64, error) {
	return s.readyLookup(ctx,
		`SELECT jira_account_id, redmine_user_id FROM migration_mapping_users
		 WHERE migration_status IN (?, ?) AND redmine_user_id IS NOT NULL`)
}
