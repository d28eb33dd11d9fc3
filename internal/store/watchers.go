package store

import (
	"context"
	"database/sql"
	"fmt"
)

const watcherMappingCols = `mapping_id, jira_issue_id, jira_issue_key, jira_account_id,
	redmine_issue_id, redmine_user_id, migration_status, notes, last_updated_at`

func scanWatcherMapping(sc interface{ Scan(...any) error }) (WatcherMapping, error) {
	var m WatcherMapping
	var key, notes sql.NullString
	var issueID, userID sql.NullInt64
	err := sc.Scan(&m.MappingID, &m.JiraIssueID, &key, &m.JiraAccountID,
		&issueID, &userID, &m.MigrationStatus, &notes, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.JiraIssueKey = strPtr(key)
	m.RedmineIssueID = intPtr(issueID)
	m.RedmineUserID = intPtr(userID)
	m.Notes = strPtr(notes)
	return m, nil
}

// SyncWatcherMappings inserts skeleton rows for staged watchers, carrying
// the issue key over for readable notes.
func (s *Store) SyncWatcherMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_watchers
			(jira_issue_id, jira_issue_key, jira_account_id, migration_status, last_updated_at)
		 SELECT w.jira_issue_id, i.jira_issue_key, w.jira_account_id, ?, ?
		 FROM staging_jira_watchers w
		 LEFT JOIN staging_jira_issues i ON i.jira_issue_id = w.jira_issue_id
		 WHERE NOT EXISTS (SELECT 1 FROM migration_mapping_watchers m
			WHERE m.jira_issue_id = w.jira_issue_id AND m.jira_account_id = w.jira_account_id)`,
		StatusPendingAnalysis, now())
	if err != nil {
		return 0, fmt.Errorf("sync watcher mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// WatcherMappingsForTransform returns all watcher rows, ascending mapping_id.
func (s *Store) WatcherMappingsForTransform(ctx context.Context) ([]WatcherMapping, error) {
	return s.watcherMappingsWhere(ctx, "1 = 1")
}

// ReadyWatcherMappings returns watchers awaiting push.
func (s *Store) ReadyWatcherMappings(ctx context.Context) ([]WatcherMapping, error) {
	return s.watcherMappingsWhere(ctx, "migration_status = ?", StatusReadyForPush)
}

func (s *Store) watcherMappingsWhere(ctx context.Context, where string, args ...any) ([]WatcherMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_watchers WHERE %s ORDER BY mapping_id`,
		watcherMappingCols, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query watcher mappings: %w", err)
	}
	defer rows.Close()

	var out []WatcherMapping
	for rows.Next() {
		m, err := scanWatcherMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// WatcherMappingUpdate is the mutable field set of a watcher row. Watchers
// are derived entirely during transform and carry no automation hash.
type WatcherMappingUpdate struct {
	RedmineIssueID  *int64
	RedmineUserID   *int64
	MigrationStatus string
	Notes           *string
}

// UpdateWatcherMapping rewrites the derived fields of one row.
func (s *Store) UpdateWatcherMapping(ctx context.Context, mappingID int64, u WatcherMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_watchers SET
			redmine_issue_id = ?, redmine_user_id = ?, migration_status = ?, notes = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		nullInt(u.RedmineIssueID), nullInt(u.RedmineUserID), u.MigrationStatus, nullStr(u.Notes),
		now(), mappingID)
	if err != nil {
		return fmt.Errorf("update watcher mapping %d: %w", mappingID, err)
	}
	return nil
}
