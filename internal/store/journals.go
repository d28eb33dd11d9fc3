package store

import (
	"context"
	"database/sql"
	"fmt"
)

const journalMappingCols = `mapping_id, jira_entity_id, jira_issue_id, entity_type, migration_status, notes,
	proposed_notes, proposed_author_id, proposed_created_on, proposed_updated_on,
	redmine_journal_id, automation_hash, last_updated_at`

func scanJournalMapping(sc interface{ Scan(...any) error }) (JournalMapping, error) {
	var m JournalMapping
	var notes, pNotes, createdOn, updatedOn, hash sql.NullString
	var authorID, journalID sql.NullInt64
	err := sc.Scan(&m.MappingID, &m.JiraEntityID, &m.JiraIssueID, &m.EntityType, &m.MigrationStatus, &notes,
		&pNotes, &authorID, &createdOn, &updatedOn, &journalID, &hash, &m.LastUpdatedAt)
	if err != nil {
		return m, err
	}
	m.Notes = strPtr(notes)
	m.ProposedNotes = strPtr(pNotes)
	m.ProposedAuthorID = intPtr(authorID)
	m.ProposedCreatedOn = strPtr(createdOn)
	m.ProposedUpdatedOn = strPtr(updatedOn)
	m.RedmineJournalID = intPtr(journalID)
	m.AutomationHash = strPtr(hash)
	return m, nil
}

// SyncJournalMappings inserts skeleton rows for staged comments and
// changelog entries that have no mapping yet.
func (s *Store) SyncJournalMappings(ctx context.Context) (int64, error) {
	var total int64
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_journals
			(jira_entity_id, jira_issue_id, entity_type, migration_status, last_updated_at)
		 SELECT c.jira_comment_id, c.jira_issue_id, ?, ?, ?
		 FROM staging_jira_comments c
		 WHERE NOT EXISTS (SELECT 1 FROM migration_mapping_journals j
			WHERE j.entity_type = ? AND j.jira_entity_id = c.jira_comment_id)`,
		EntityComment, StatusPending, now(), EntityComment)
	if err != nil {
		return 0, fmt.Errorf("sync comment journal mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.ExecContext(ctx,
		`INSERT INTO migration_mapping_journals
			(jira_entity_id, jira_issue_id, entity_type, migration_status, last_updated_at)
		 SELECT g.jira_changelog_id, g.jira_issue_id, ?, ?, ?
		 FROM staging_jira_changelogs g
		 WHERE NOT EXISTS (SELECT 1 FROM migration_mapping_journals j
			WHERE j.entity_type = ? AND j.jira_entity_id = g.jira_changelog_id)`,
		EntityChangelog, StatusPending, now(), EntityChangelog)
	if err != nil {
		return total, fmt.Errorf("sync changelog journal mappings: %w", err)
	}
	n, _ = res.RowsAffected()
	return total + n, nil
}

// JournalTransformRow couples a journal mapping with its staged source.
// Exactly one of Comment/Changelog is set, matching EntityType.
type JournalTransformRow struct {
	Mapping   JournalMapping
	Comment   *StagingJiraComment
	Changelog *StagingJiraChangelog
}

// JournalMappingsForTransform returns all journal mappings joined with their
// staged comment or changelog payload, ascending mapping_id.
func (s *Store) JournalMappingsForTransform(ctx context.Context) ([]JournalTransformRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s,
			c.author_account_id, c.body_adf, c.rendered_body, c.created, c.updated,
			g.author_account_id, g.created, g.items
		 FROM migration_mapping_journals m
		 LEFT JOIN staging_jira_comments c
			ON m.entity_type = ? AND c.jira_comment_id = m.jira_entity_id
		 LEFT JOIN staging_jira_changelogs g
			ON m.entity_type = ? AND g.jira_changelog_id = m.jira_entity_id
		 ORDER BY m.mapping_id`, prefixCols("m", journalMappingCols)),
		EntityComment, EntityChangelog)
	if err != nil {
		return nil, fmt.Errorf("query journal mappings for transform: %w", err)
	}
	defer rows.Close()

	var out []JournalTransformRow
	for rows.Next() {
		var r JournalTransformRow
		var m JournalMapping
		var notes, pNotes, createdOn, updatedOn, hash sql.NullString
		var authorID, journalID sql.NullInt64
		var cAuthor, cBody, cRendered, cCreated, cUpdated sql.NullString
		var gAuthor, gCreated, gItems sql.NullString
		err := rows.Scan(&m.MappingID, &m.JiraEntityID, &m.JiraIssueID, &m.EntityType, &m.MigrationStatus, &notes,
			&pNotes, &authorID, &createdOn, &updatedOn, &journalID, &hash, &m.LastUpdatedAt,
			&cAuthor, &cBody, &cRendered, &cCreated, &cUpdated,
			&gAuthor, &gCreated, &gItems)
		if err != nil {
			return nil, err
		}
		m.Notes = strPtr(notes)
		m.ProposedNotes = strPtr(pNotes)
		m.ProposedAuthorID = intPtr(authorID)
		m.ProposedCreatedOn = strPtr(createdOn)
		m.ProposedUpdatedOn = strPtr(updatedOn)
		m.RedmineJournalID = intPtr(journalID)
		m.AutomationHash = strPtr(hash)
		r.Mapping = m
		switch m.EntityType {
		case EntityComment:
			r.Comment = &StagingJiraComment{
				JiraCommentID:   m.JiraEntityID,
				JiraIssueID:     m.JiraIssueID,
				AuthorAccountID: strPtr(cAuthor),
				BodyADF:         strPtr(cBody),
				RenderedBody:    strPtr(cRendered),
				Created:         strPtr(cCreated),
				Updated:         strPtr(cUpdated),
			}
		case EntityChangelog:
			items := "[]"
			if gItems.Valid {
				items = gItems.String
			}
			r.Changelog = &StagingJiraChangelog{
				JiraChangelogID: m.JiraEntityID,
				JiraIssueID:     m.JiraIssueID,
				AuthorAccountID: strPtr(gAuthor),
				Created:         strPtr(gCreated),
				Items:           items,
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadyJournalMappings returns journals awaiting push.
func (s *Store) ReadyJournalMappings(ctx context.Context) ([]JournalMapping, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM migration_mapping_journals WHERE migration_status = ? ORDER BY mapping_id`,
		journalMappingCols), StatusReadyForPush)
	if err != nil {
		return nil, fmt.Errorf("query ready journal mappings: %w", err)
	}
	defer rows.Close()

	var out []JournalMapping
	for rows.Next() {
		m, err := scanJournalMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// JournalMappingUpdate is the full automated field set of a journal row.
type JournalMappingUpdate struct {
	MigrationStatus   string
	Notes             *string
	ProposedNotes     *string
	ProposedAuthorID  *int64
	ProposedCreatedOn *string
	ProposedUpdatedOn *string
	RedmineJournalID  *int64
	AutomationHash    string
}

// UpdateJournalMapping atomically rewrites the automated fields of one row.
func (s *Store) UpdateJournalMapping(ctx context.Context, mappingID int64, u JournalMappingUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_journals SET
			migration_status = ?, notes = ?, proposed_notes = ?, proposed_author_id = ?,
			proposed_created_on = ?, proposed_updated_on = ?, redmine_journal_id = ?,
			automation_hash = ?, last_updated_at = ?
		 WHERE mapping_id = ?`,
		u.MigrationStatus, nullStr(u.Notes), nullStr(u.ProposedNotes), nullInt(u.ProposedAuthorID),
		nullStr(u.ProposedCreatedOn), nullStr(u.ProposedUpdatedOn), nullInt(u.RedmineJournalID),
		u.AutomationHash, now(), mappingID)
	if err != nil {
		return fmt.Errorf("update journal mapping %d: %w", mappingID, err)
	}
	return nil
}
