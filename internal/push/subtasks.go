package push

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/reconcile"
)

// Subtasks closes the remaining parent links: children created before their
// parent existed get their parent_issue_id set now that both sides are on
// Redmine.
func (p *Pusher) Subtasks(ctx context.Context) (Counts, error) {
	var counts Counts
	links, err := p.Store.SubtaskLinks(ctx)
	if err != nil {
		return counts, err
	}

	for _, link := range links {
		if p.DryRun {
			p.preview("subtask", link.MappingID, map[string]any{
				"issue_id":        link.ChildRedmineIssueID,
				"parent_issue_id": link.ParentRedmineIssueID,
			})
			counts.Skipped++
			continue
		}

		err := p.Redmine.UpdateIssue(ctx, link.ChildRedmineIssueID, map[string]any{
			"parent_issue_id": link.ParentRedmineIssueID,
		})
		if err != nil {
			counts.Failed++
			p.Log.WithFields(map[string]any{
				"child":  link.ChildRedmineIssueID,
				"parent": link.ParentRedmineIssueID,
			}).WithError(err).Warn("subtask link failed")
			continue
		}

		m, err := p.Store.IssueMappingByJiraID(ctx, link.JiraIssueID)
		if err != nil {
			return counts, err
		}
		if m == nil {
			continue
		}
		m.RedmineParentIssueID = &link.ParentRedmineIssueID
		hash, err := reconcile.IssueHash(*m)
		if err != nil {
			return counts, err
		}
		if err := p.Store.SetIssueParentLinked(ctx, m.MappingID, link.ParentRedmineIssueID, hash); err != nil {
			return counts, err
		}
		counts.Pushed++
	}
	p.Log.WithFields(counts.Fields()).Info("subtask push complete")
	return counts, nil
}
