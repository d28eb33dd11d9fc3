package push

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Issues creates every READY_FOR_CREATION issue on Redmine, consuming the
// upload tokens of attachments hinted at issue creation, then associates
// those attachments against the created issue.
func (p *Pusher) Issues(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.ReadyIssueMappings(ctx)
	if err != nil {
		return counts, err
	}

	for _, m := range rows {
		payload, err := p.issuePayload(ctx, m)
		if err != nil {
			return counts, err
		}
		if p.DryRun {
			p.preview("issue", m.MappingID, payload)
			counts.Skipped++
			continue
		}

		id, err := p.Redmine.CreateIssue(ctx, payload)
		if err != nil {
			counts.Failed++
			p.Log.WithField("jira_key", m.JiraIssueKey).WithError(err).Warn("issue create failed")
			if werr := p.writeIssue(ctx, m, nil, store.StatusCreationFailed, errNote(err)); werr != nil {
				return counts, werr
			}
			continue
		}
		counts.Pushed++
		p.Log.WithFields(map[string]any{
			"jira_key":   m.JiraIssueKey,
			"redmine_id": id,
		}).Info("issue created")
		if werr := p.writeIssue(ctx, m, &id, store.StatusCreationSuccess, nil); werr != nil {
			return counts, werr
		}
		// Associate runs even when no token was consumed: rows offloaded
		// to SharePoint sit in PENDING_ASSOCIATION without one.
		if p.Attachments != nil {
			if aerr := p.Attachments.Associate(ctx, m.JiraIssueID, id); aerr != nil {
				p.Log.WithField("jira_key", m.JiraIssueKey).WithError(aerr).
					Warn("attachment association failed")
			}
		}
	}
	p.Log.WithFields(counts.Fields()).Info("issue push complete")
	return counts, nil
}

// issuePayload builds the create body, attaching upload tokens for rows
// hinted at issue creation.
func (p *Pusher) issuePayload(ctx context.Context, m store.IssueMapping) (map[string]any, error) {
	payload := map[string]any{
		"subject": deref(m.ProposedSubject),
	}
	setInt := func(key string, v *int64) {
		if v != nil {
			payload[key] = *v
		}
	}
	setStr := func(key string, v *string) {
		if v != nil {
			payload[key] = *v
		}
	}
	setInt("project_id", m.RedmineProjectID)
	setInt("tracker_id", m.RedmineTrackerID)
	setInt("status_id", m.RedmineStatusID)
	setInt("priority_id", m.RedminePriorityID)
	setInt("assigned_to_id", m.RedmineAssignedToID)
	setInt("parent_issue_id", m.RedmineParentIssueID)
	setStr("description", m.ProposedDescription)
	setStr("start_date", m.ProposedStartDate)
	setStr("due_date", m.ProposedDueDate)
	if m.ProposedDoneRatio != nil {
		payload["done_ratio"] = *m.ProposedDoneRatio
	}
	if m.ProposedEstimated != nil {
		payload["estimated_hours"] = *m.ProposedEstimated
	}
	if m.ProposedIsPrivate != nil {
		payload["is_private"] = *m.ProposedIsPrivate
	}

	atts, err := p.Store.AttachmentsForIssue(ctx, m.JiraIssueID)
	if err != nil {
		return nil, err
	}
	index, err := p.Store.AttachmentIndex(ctx, m.JiraIssueID)
	if err != nil {
		return nil, err
	}
	var uploads []map[string]any
	for _, a := range atts {
		if a.MigrationStatus != store.StatusPendingAssociation ||
			a.RedmineUploadToken == nil || a.SharePointURL != nil {
			continue
		}
		if a.AssociationHint == nil || *a.AssociationHint != store.HintIssue {
			continue
		}
		uploads = append(uploads, map[string]any{
			"token":    *a.RedmineUploadToken,
			"filename": index[a.JiraAttachmentID].UniqueFilename,
		})
	}
	if len(uploads) > 0 {
		payload["uploads"] = uploads
	}
	return payload, nil
}

func (p *Pusher) writeIssue(ctx context.Context, m store.IssueMapping, redmineID *int64, status string, notes *string) error {
	m.RedmineIssueID = redmineID
	m.MigrationStatus = status
	m.Notes = notes
	hash, err := reconcile.IssueHash(m)
	if err != nil {
		return err
	}
	return p.Store.UpdateIssueMapping(ctx, m.MappingID, store.IssueMappingUpdate{
		RedmineIssueID:       m.RedmineIssueID,
		RedmineProjectID:     m.RedmineProjectID,
		RedmineTrackerID:     m.RedmineTrackerID,
		RedmineStatusID:      m.RedmineStatusID,
		RedminePriorityID:    m.RedminePriorityID,
		RedmineAuthorID:      m.RedmineAuthorID,
		RedmineAssignedToID:  m.RedmineAssignedToID,
		RedmineParentIssueID: m.RedmineParentIssueID,
		ProposedSubject:      m.ProposedSubject,
		ProposedDescription:  m.ProposedDescription,
		ProposedStartDate:    m.ProposedStartDate,
		ProposedDueDate:      m.ProposedDueDate,
		ProposedDoneRatio:    m.ProposedDoneRatio,
		ProposedEstimated:    m.ProposedEstimated,
		ProposedIsPrivate:    m.ProposedIsPrivate,
		MigrationStatus:      m.MigrationStatus,
		Notes:                m.Notes,
		AutomationHash:       hash,
	})
}
