package reconcile

import (
	"context"
	"time"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// associationTolerance is how far an attachment's created timestamp may sit
// after its issue's and still count as part of issue creation.
const associationTolerance = 60 * time.Second

// Attachments requeues failed downloads and refreshes association hints.
// Attachment rows carry no automation hash; the status machine plus the
// download/upload enable flags are the operator's controls.
func (r *Reconciler) Attachments(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncAttachmentMappings(ctx); err != nil {
		return sum, err
	}

	rows, err := r.Store.AttachmentWorkRows(ctx, store.StatusPendingDownload, store.StatusFailed)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	for _, row := range rows {
		m := row.Mapping
		hint := associationHint(row.Created, row.IssueCreated)

		update := store.AttachmentMappingUpdate{
			AssociationHint:   strp(hint),
			MigrationStatus:   store.StatusPendingDownload,
			RedmineAttachment: m.RedmineAttachment,
			RedmineIssueID:    m.RedmineIssueID,
			SharePointURL:     m.SharePointURL,
		}
		if m.MigrationStatus == store.StatusFailed {
			// Requeue: wipe the transient download/upload state so the
			// pipeline starts the row over.
			update.LocalFilepath = nil
			update.RedmineUploadToken = nil
			update.Notes = nil
		} else {
			update.LocalFilepath = m.LocalFilepath
			update.RedmineUploadToken = m.RedmineUploadToken
			update.Notes = m.Notes
			if m.AssociationHint != nil && *m.AssociationHint == hint {
				sum.Unchanged++
				continue
			}
		}
		if err := r.Store.UpdateAttachmentMapping(ctx, m.MappingID, update); err != nil {
			return sum, err
		}
		sum.Ready++
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("attachment transform complete")
	return sum, nil
}

// associationHint classifies an attachment by comparing its created
// timestamp against the owning issue's. Missing timestamps default to the
// journal path, which associates lazily and is the safer guess.
func associationHint(attachmentCreated, issueCreated *string) string {
	if attachmentCreated == nil || issueCreated == nil {
		return store.HintJournal
	}
	at, ok1 := parseJiraTime(*attachmentCreated)
	it, ok2 := parseJiraTime(*issueCreated)
	if !ok1 || !ok2 {
		return store.HintJournal
	}
	diff := at.Sub(it)
	if diff < 0 {
		diff = -diff
	}
	if diff <= associationTolerance {
		return store.HintIssue
	}
	return store.HintJournal
}
