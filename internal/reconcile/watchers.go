package reconcile

import (
	"context"
	"fmt"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Watchers derives watcher rows as a pure join over the issue and user
// mapping tables. Rows already pushed stay untouched; everything else is
// recomputed from scratch on every run.
func (r *Reconciler) Watchers(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncWatcherMappings(ctx); err != nil {
		return sum, err
	}

	issueIDs, err := r.Store.ReadyIssueLookup(ctx)
	if err != nil {
		return sum, err
	}
	userIDs, err := r.Store.ReadyUserLookup(ctx)
	if err != nil {
		return sum, err
	}

	rows, err := r.Store.WatcherMappingsForTransform(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	for _, m := range rows {
		if m.MigrationStatus == store.StatusSuccess {
			sum.Skipped++
			continue
		}

		proposal := deriveWatcher(m, issueIDs, userIDs)
		sum.classify(proposal.MigrationStatus)

		if proposal.MigrationStatus == m.MigrationStatus &&
			eqIntPtr(proposal.RedmineIssueID, m.RedmineIssueID) &&
			eqIntPtr(proposal.RedmineUserID, m.RedmineUserID) &&
			eqStrPtr(proposal.Notes, m.Notes) {
			sum.Unchanged++
			continue
		}
		err = r.Store.UpdateWatcherMapping(ctx, m.MappingID, store.WatcherMappingUpdate{
			RedmineIssueID:  proposal.RedmineIssueID,
			RedmineUserID:   proposal.RedmineUserID,
			MigrationStatus: proposal.MigrationStatus,
			Notes:           proposal.Notes,
		})
		if err != nil {
			return sum, err
		}
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("watcher transform complete")
	return sum, nil
}

func deriveWatcher(m store.WatcherMapping, issueIDs, userIDs map[string]int64) store.WatcherMapping {
	out := m
	out.RedmineIssueID = nil
	out.RedmineUserID = nil
	out.Notes = nil

	var missing []string
	if id, ok := issueIDs[m.JiraIssueID]; ok {
		out.RedmineIssueID = intp(id)
	} else {
		label := m.JiraIssueID
		if m.JiraIssueKey != nil {
			label = *m.JiraIssueKey
		}
		missing = append(missing, fmt.Sprintf("issue %s is not on Redmine yet", label))
	}
	if id, ok := userIDs[m.JiraAccountID]; ok {
		out.RedmineUserID = intp(id)
	} else {
		missing = append(missing, fmt.Sprintf("user %s has no Redmine account", m.JiraAccountID))
	}

	if len(missing) == 0 {
		out.MigrationStatus = store.StatusReadyForPush
	} else {
		out.MigrationStatus = store.StatusPendingAnalysis
		note := "Waiting: " + joinList(missing) + "."
		out.Notes = &note
	}
	return out
}

func eqIntPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
