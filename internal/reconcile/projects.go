package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// DeriveIdentifier maps a Jira project key onto a valid Redmine project
// identifier: lowercase, characters outside [a-z0-9_-] become '-', separator
// runs collapse, leading/trailing separators are trimmed, and the result is
// capped at 100 characters. Deriving twice yields the same value.
func DeriveIdentifier(jiraKey string) string {
	lower := strings.ToLower(jiraKey)
	var b strings.Builder
	lastSep := true // suppress leading separators
	for _, r := range lower {
		valid := r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-'
		if !valid {
			r = '-'
		}
		sep := r == '-' || r == '_'
		if sep && lastSep {
			continue
		}
		b.WriteRune(r)
		lastSep = sep
	}
	out := strings.TrimRight(b.String(), "-_")
	if len(out) > 100 {
		out = strings.TrimRight(out[:100], "-_")
	}
	return out
}

// Projects reconciles the project mapping table against the staged Jira
// projects and the Redmine snapshot.
func (r *Reconciler) Projects(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncProjectMappings(ctx); err != nil {
		return sum, err
	}

	snapshot, err := r.Store.RedmineProjects(ctx)
	if err != nil {
		return sum, err
	}
	byIdentifier := make(map[string]store.StagingRedmineProject, len(snapshot))
	for _, p := range snapshot {
		byIdentifier[p.Identifier] = p
	}

	rows, err := r.Store.ProjectMappingsForTransform(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	for _, row := range rows {
		m := row.Mapping
		currentHash, err := ProjectHash(m)
		if err != nil {
			return sum, fmt.Errorf("hash project mapping %d: %w", m.MappingID, err)
		}
		if sum.guard(m.AutomationHash, currentHash, m.MigrationStatus, projectTransformable) {
			continue
		}

		proposal := deriveProject(m, row.Staging, byIdentifier)
		newHash, err := ProjectHash(proposal)
		if err != nil {
			return sum, fmt.Errorf("hash project proposal %d: %w", m.MappingID, err)
		}
		sum.classify(proposal.MigrationStatus)

		if newHash == currentHash && m.AutomationHash != nil && *m.AutomationHash == newHash {
			sum.Unchanged++
			continue
		}
		err = r.Store.UpdateProjectMapping(ctx, m.MappingID, store.ProjectMappingUpdate{
			RedmineProjectID:    proposal.RedmineProjectID,
			MigrationStatus:     proposal.MigrationStatus,
			Notes:               proposal.Notes,
			ProposedIdentifier:  proposal.ProposedIdentifier,
			ProposedName:        proposal.ProposedName,
			ProposedDescription: proposal.ProposedDescription,
			ProposedIsPublic:    proposal.ProposedIsPublic,
			AutomationHash:      newHash,
		})
		if err != nil {
			return sum, err
		}
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("project transform complete")
	return sum, nil
}

// deriveProject computes the new automated state of one project row.
func deriveProject(m store.ProjectMapping, staging store.StagingJiraProject, snapshot map[string]store.StagingRedmineProject) store.ProjectMapping {
	out := m

	identifier := DeriveIdentifier(staging.JiraKey)
	if identifier == "" {
		out.RedmineProjectID = nil
		out.MigrationStatus = store.StatusManualIntervention
		out.Notes = strp(fmt.Sprintf("Cannot derive a Redmine identifier from Jira key %q.", staging.JiraKey))
		out.ProposedIdentifier = nil
		out.ProposedName = strp(staging.Name)
		out.ProposedDescription = staging.Description
		out.ProposedIsPublic = nil
		return out
	}

	if existing, ok := snapshot[identifier]; ok {
		out.RedmineProjectID = intp(existing.RedmineProjectID)
		out.MigrationStatus = store.StatusMatchFound
		out.Notes = nil
		out.ProposedIdentifier = strp(identifier)
		out.ProposedName = strp(existing.Name)
		out.ProposedDescription = existing.Description
		out.ProposedIsPublic = boolp(existing.IsPublic)
		return out
	}

	out.RedmineProjectID = nil
	out.MigrationStatus = store.StatusReadyForCreation
	out.Notes = nil
	out.ProposedIdentifier = strp(identifier)
	out.ProposedName = strp(staging.Name)
	out.ProposedDescription = staging.Description
	out.ProposedIsPublic = boolp(!staging.IsPrivate)
	return out
}
