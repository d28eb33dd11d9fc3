package push

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Watchers subscribes every READY_FOR_PUSH watcher to its Redmine issue.
// Redmine rejecting the user as already watching counts as success.
func (p *Pusher) Watchers(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.ReadyWatcherMappings(ctx)
	if err != nil {
		return counts, err
	}

	for _, m := range rows {
		if m.RedmineIssueID == nil || m.RedmineUserID == nil {
			counts.Skipped++
			continue
		}
		if p.DryRun {
			p.preview("watcher", m.MappingID, map[string]any{
				"issue_id": *m.RedmineIssueID,
				"user_id":  *m.RedmineUserID,
			})
			counts.Skipped++
			continue
		}

		var notes *string
		err := p.Redmine.AddWatcher(ctx, *m.RedmineIssueID, *m.RedmineUserID)
		status := store.StatusSuccess
		switch {
		case err == nil:
		case alreadyWatching(err):
			notes = strp("Watcher already present.")
		default:
			counts.Failed++
			p.Log.WithField("mapping_id", m.MappingID).WithError(err).Warn("watcher push failed")
			if werr := p.writeWatcher(ctx, m, store.StatusFailed, errNote(err)); werr != nil {
				return counts, werr
			}
			continue
		}
		counts.Pushed++
		if werr := p.writeWatcher(ctx, m, status, notes); werr != nil {
			return counts, werr
		}
	}
	p.Log.WithFields(counts.Fields()).Info("watcher push complete")
	return counts, nil
}

func (p *Pusher) writeWatcher(ctx context.Context, m store.WatcherMapping, status string, notes *string) error {
	return p.Store.UpdateWatcherMapping(ctx, m.MappingID, store.WatcherMappingUpdate{
		RedmineIssueID:  m.RedmineIssueID,
		RedmineUserID:   m.RedmineUserID,
		MigrationStatus: status,
		Notes:           notes,
	})
}
