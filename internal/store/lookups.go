package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Lookup table names. Trackers, statuses and priorities are operator
// decisions loaded via `j2r seed`, never inferred from either system.
const (
	LookupTrackers   = "lookup_trackers"
	LookupStatuses   = "lookup_statuses"
	LookupPriorities = "lookup_priorities"
)

var lookupKeyCols = map[string]string{
	LookupTrackers:   "jira_issue_type_id",
	LookupStatuses:   "jira_status_id",
	LookupPriorities: "jira_priority_id",
}

var lookupValueCols = map[string]string{
	LookupTrackers:   "redmine_tracker_id",
	LookupStatuses:   "redmine_status_id",
	LookupPriorities: "redmine_priority_id",
}

// SeedLookup upserts operator rows into one lookup table.
func (s *Store) SeedLookup(ctx context.Context, table string, rows []LookupRow) error {
	keyCol, ok := lookupKeyCols[table]
	if !ok {
		return fmt.Errorf("unknown lookup table %q", table)
	}
	valCol := lookupValueCols[table]
	query := s.upsertSQL(table, []string{keyCol}, []string{valCol, "note"})
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, query, r.JiraID, r.RedmineID, nullStr(r.Note)); err != nil {
				return fmt.Errorf("seed %s row %s: %w", table, r.JiraID, err)
			}
		}
		return nil
	})
}

// Lookup loads one lookup table into a map.
func (s *Store) Lookup(ctx context.Context, table string) (map[string]int64, error) {
	keyCol, ok := lookupKeyCols[table]
	if !ok {
		return nil, fmt.Errorf("unknown lookup table %q", table)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, %s FROM %s", keyCol, lookupValueCols[table], table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
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

// StatusCounts tallies mapping rows by migration_status for one entity
// family's mapping table.
func (s *Store) StatusCounts(ctx context.Context, mappingTable string) (map[string]int, error) {
	switch mappingTable {
	case "migration_mapping_projects", "migration_mapping_users", "migration_mapping_issues",
		"migration_mapping_attachments", "migration_mapping_journals", "migration_mapping_watchers":
	default:
		return nil, fmt.Errorf("unknown mapping table %q", mappingTable)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT migration_status, COUNT(*) FROM %s GROUP BY migration_status", mappingTable))
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", mappingTable, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}
