package reconcile

import (
	"context"
	"fmt"
	"math"

	"github.com/jira2redmine/jira2redmine/internal/rewriter"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Issues reconciles the issue mapping table. Every foreign dependency is
// resolved through the mapping tables; unresolved ones fall back to the
// configured defaults or push the row to manual intervention.
func (r *Reconciler) Issues(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncIssueMappings(ctx); err != nil {
		return sum, err
	}

	res, err := NewResolver(ctx, r.Store)
	if err != nil {
		return sum, err
	}

	rows, err := r.Store.IssueMappingsForTransform(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	for _, row := range rows {
		m := row.Mapping
		currentHash, err := IssueHash(m)
		if err != nil {
			return sum, fmt.Errorf("hash issue mapping %d: %w", m.MappingID, err)
		}
		if sum.guard(m.AutomationHash, currentHash, m.MigrationStatus, issueTransformable) {
			continue
		}

		proposal, err := r.deriveIssue(ctx, res, m, row.Staging)
		if err != nil {
			return sum, err
		}
		newHash, err := IssueHash(proposal)
		if err != nil {
			return sum, fmt.Errorf("hash issue proposal %d: %w", m.MappingID, err)
		}
		sum.classify(proposal.MigrationStatus)

		if newHash == currentHash && m.AutomationHash != nil && *m.AutomationHash == newHash {
			sum.Unchanged++
			continue
		}
		err = r.Store.UpdateIssueMapping(ctx, m.MappingID, store.IssueMappingUpdate{
			RedmineIssueID:       proposal.RedmineIssueID,
			RedmineProjectID:     proposal.RedmineProjectID,
			RedmineTrackerID:     proposal.RedmineTrackerID,
			RedmineStatusID:      proposal.RedmineStatusID,
			RedminePriorityID:    proposal.RedminePriorityID,
			RedmineAuthorID:      proposal.RedmineAuthorID,
			RedmineAssignedToID:  proposal.RedmineAssignedToID,
			RedmineParentIssueID: proposal.RedmineParentIssueID,
			ProposedSubject:      proposal.ProposedSubject,
			ProposedDescription:  proposal.ProposedDescription,
			ProposedStartDate:    proposal.ProposedStartDate,
			ProposedDueDate:      proposal.ProposedDueDate,
			ProposedDoneRatio:    proposal.ProposedDoneRatio,
			ProposedEstimated:    proposal.ProposedEstimated,
			ProposedIsPrivate:    proposal.ProposedIsPrivate,
			MigrationStatus:      proposal.MigrationStatus,
			Notes:                proposal.Notes,
			AutomationHash:       newHash,
		})
		if err != nil {
			return sum, err
		}
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("issue transform complete")
	return sum, nil
}

func (r *Reconciler) deriveIssue(ctx context.Context, res *Resolver, m store.IssueMapping, staging store.StagingJiraIssue) (store.IssueMapping, error) {
	out := m
	var missing []string

	// resolve picks the mapped Redmine id, then the configured default.
	// A dependency with neither goes on the missing list.
	resolve := func(jiraID *string, lookup map[string]int64, fallback int, label string, required bool) *int64 {
		if jiraID != nil {
			if id, ok := lookup[*jiraID]; ok {
				return intp(id)
			}
		}
		if fallback > 0 {
			return intp(int64(fallback))
		}
		if required {
			if jiraID != nil {
				missing = append(missing, fmt.Sprintf("%s (jira id %s)", label, *jiraID))
			} else {
				missing = append(missing, label)
			}
		}
		return nil
	}

	projectID := strp(staging.JiraProjectID)
	out.RedmineProjectID = resolve(projectID, res.Projects, r.Defaults.ProjectID, "project", true)
	out.RedmineTrackerID = resolve(staging.IssueTypeID, res.Trackers, r.Defaults.TrackerID, "tracker", true)
	out.RedmineStatusID = resolve(staging.StatusID, res.Statuses, r.Defaults.StatusID, "status", true)
	out.RedminePriorityID = resolve(staging.PriorityID, res.Priorities, r.Defaults.PriorityID, "priority", true)
	out.RedmineAuthorID = resolve(staging.ReporterAccountID, res.Users, r.Defaults.AuthorID, "author", true)
	// An issue without an assignee is valid; the default only applies when
	// Jira names someone we cannot map.
	out.RedmineAssignedToID = nil
	if staging.AssigneeAccountID != nil {
		out.RedmineAssignedToID = resolve(staging.AssigneeAccountID, res.Users, r.Defaults.AssigneeID, "assignee", true)
	}

	// Parent linkage is best effort here; the subtask phase closes the
	// remaining links after parents are created.
	out.RedmineParentIssueID = nil
	if staging.ParentIssueID != nil {
		parent, err := res.ParentIssueID(ctx, *staging.ParentIssueID)
		if err != nil {
			return out, err
		}
		out.RedmineParentIssueID = parent
	}

	out.ProposedSubject = strp(truncate(staging.Summary, 255))
	out.ProposedDescription = nil
	if staging.DescriptionADF != nil && *staging.DescriptionADF != "" {
		atts, err := r.Store.AttachmentIndex(ctx, m.JiraIssueID)
		if err != nil {
			return out, err
		}
		desc := rewriter.Render(staging.DescriptionADF, nil, rewriter.Lookups{
			Attachments: atts,
			Users:       res.Users,
			IssueKeys:   res.IssueKeys,
		})
		out.ProposedDescription = strp(desc)
	}
	out.ProposedStartDate = jiraTimeToDate(staging.Created)
	out.ProposedDueDate = staging.DueDate
	out.ProposedDoneRatio = nil
	if staging.StatusCategory != nil && *staging.StatusCategory == "done" {
		out.ProposedDoneRatio = intp(100)
	}
	out.ProposedEstimated = nil
	if staging.TimeOriginalEstimate != nil {
		hours := math.Round(float64(*staging.TimeOriginalEstimate)/3600*100) / 100
		out.ProposedEstimated = &hours
	}
	if staging.SecurityPresent {
		out.ProposedIsPrivate = boolp(true)
	} else {
		out.ProposedIsPrivate = r.Defaults.IsPrivate
	}

	if len(missing) > 0 {
		out.MigrationStatus = store.StatusManualIntervention
		note := "Unresolved dependencies: " + joinList(missing) + "."
		out.Notes = &note
		return out, nil
	}
	out.Notes = nil
	out.MigrationStatus = store.StatusReadyForCreation
	return out, nil
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	out := items[0]
	for _, it := range items[1:] {
		out += ", " + it
	}
	return out
}
