package reconcile

import (
	"github.com/jira2redmine/jira2redmine/internal/hashguard"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// The field lists below are frozen. Stored hashes become meaningless the
// moment an entry moves or is renamed, so additions require a hash version
// bump in hashguard, never an in-place edit.

// ProjectHash digests the automated fields of a project mapping row.
func ProjectHash(m store.ProjectMapping) (string, error) {
	return hashguard.Compute([]hashguard.Field{
		{Name: "redmine_project_id", Value: m.RedmineProjectID},
		{Name: "migration_status", Value: m.MigrationStatus},
		{Name: "notes", Value: m.Notes},
		{Name: "proposed_identifier", Value: m.ProposedIdentifier},
		{Name: "proposed_name", Value: m.ProposedName},
		{Name: "proposed_description", Value: m.ProposedDescription},
		{Name: "proposed_is_public", Value: m.ProposedIsPublic},
	})
}

// UserHash digests the automated fields of a user mapping row. match_type
// is diagnostic output, not a proposal, and stays outside the digest.
func UserHash(m store.UserMapping) (string, error) {
	return hashguard.Compute([]hashguard.Field{
		{Name: "redmine_user_id", Value: m.RedmineUserID},
		{Name: "migration_status", Value: m.MigrationStatus},
		{Name: "notes", Value: m.Notes},
		{Name: "proposed_redmine_login", Value: m.ProposedRedmineLogin},
		{Name: "proposed_redmine_mail", Value: m.ProposedRedmineMail},
		{Name: "proposed_firstname", Value: m.ProposedFirstname},
		{Name: "proposed_lastname", Value: m.ProposedLastname},
		{Name: "proposed_redmine_status", Value: m.ProposedRedmineStatus},
	})
}

// IssueHash digests the automated fields of an issue mapping row.
func IssueHash(m store.IssueMapping) (string, error) {
	return hashguard.Compute([]hashguard.Field{
		{Name: "redmine_issue_id", Value: m.RedmineIssueID},
		{Name: "redmine_project_id", Value: m.RedmineProjectID},
		{Name: "redmine_tracker_id", Value: m.RedmineTrackerID},
		{Name: "redmine_status_id", Value: m.RedmineStatusID},
		{Name: "redmine_priority_id", Value: m.RedminePriorityID},
		{Name: "redmine_author_id", Value: m.RedmineAuthorID},
		{Name: "redmine_assigned_to_id", Value: m.RedmineAssignedToID},
		{Name: "redmine_parent_issue_id", Value: m.RedmineParentIssueID},
		{Name: "proposed_subject", Value: m.ProposedSubject},
		{Name: "proposed_description", Value: m.ProposedDescription},
		{Name: "proposed_start_date", Value: m.ProposedStartDate},
		{Name: "proposed_due_date", Value: m.ProposedDueDate},
		{Name: "proposed_done_ratio", Value: m.ProposedDoneRatio},
		{Name: "proposed_estimated_hours", Value: m.ProposedEstimated},
		{Name: "proposed_is_private", Value: m.ProposedIsPrivate},
		{Name: "migration_status", Value: m.MigrationStatus},
		{Name: "notes", Value: m.Notes},
	})
}

// JournalHash digests the automated fields of a journal mapping row.
func JournalHash(m store.JournalMapping) (string, error) {
	return hashguard.Compute([]hashguard.Field{
		{Name: "migration_status", Value: m.MigrationStatus},
		{Name: "notes", Value: m.Notes},
		{Name: "proposed_notes", Value: m.ProposedNotes},
		{Name: "proposed_author_id", Value: m.ProposedAuthorID},
		{Name: "proposed_created_on", Value: m.ProposedCreatedOn},
		{Name: "proposed_updated_on", Value: m.ProposedUpdatedOn},
		{Name: "redmine_journal_id", Value: m.RedmineJournalID},
	})
}
