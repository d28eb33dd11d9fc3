package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// migrateToken marks a pushed journal so it can be located afterwards when
// the extended API is unavailable. Redmine renders it as an HTML comment,
// invisible to readers.
func migrateToken(mappingID int64) string {
	return fmt.Sprintf("<!-- MIGRATE:%d -->", mappingID)
}

// journalLocateWindow is how far a journal's created_on may drift from the
// Jira timestamp and still be accepted during token-less location.
const journalLocateWindow = 30 * time.Second

// Journals appends every READY_FOR_PUSH journal to its Redmine issue. With
// the extended API the original author and timestamps are preserved;
// without it the note is appended as the API key's user and located via a
// hidden marker token.
func (p *Pusher) Journals(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.ReadyJournalMappings(ctx)
	if err != nil {
		return counts, err
	}
	issueIDs, err := p.Store.ReadyIssueLookup(ctx)
	if err != nil {
		return counts, err
	}

	extended := p.UseExtended && p.Redmine.ExtendedAvailable(ctx)

	for _, m := range rows {
		issueID, ok := issueIDs[m.JiraIssueID]
		if !ok {
			counts.Skipped++
			continue
		}
		if m.ProposedNotes == nil || *m.ProposedNotes == "" {
			counts.Skipped++
			if p.DryRun {
				continue
			}
			if werr := p.writeJournal(ctx, m, nil, store.StatusSkipped, strp("Nothing to push: empty body.")); werr != nil {
				return counts, werr
			}
			continue
		}

		if p.DryRun {
			p.preview("journal", m.MappingID, map[string]any{
				"issue_id": issueID,
				"notes":    *m.ProposedNotes,
			})
			counts.Skipped++
			continue
		}

		journalID, err := p.pushJournal(ctx, m, issueID, extended)
		if err != nil {
			counts.Failed++
			p.Log.WithField("mapping_id", m.MappingID).WithError(err).Warn("journal push failed")
			if werr := p.writeJournal(ctx, m, nil, store.StatusFailed, errNote(err)); werr != nil {
				return counts, werr
			}
			continue
		}
		counts.Pushed++
		if werr := p.writeJournal(ctx, m, journalID, store.StatusSuccess, nil); werr != nil {
			return counts, werr
		}
		if p.Attachments != nil {
			if aerr := p.Attachments.Associate(ctx, m.JiraIssueID, issueID); aerr != nil {
				p.Log.WithField("mapping_id", m.MappingID).WithError(aerr).
					Warn("attachment association failed")
			}
		}
	}
	p.Log.WithFields(counts.Fields()).Info("journal push complete")
	return counts, nil
}

func (p *Pusher) pushJournal(ctx context.Context, m store.JournalMapping, issueID int64, extended bool) (*int64, error) {
	uploads, err := p.journalUploads(ctx, m.JiraIssueID)
	if err != nil {
		return nil, err
	}

	if extended && m.ProposedAuthorID != nil {
		fields := map[string]any{
			"notes": *m.ProposedNotes,
			"journal": map[string]any{
				"user_id":       *m.ProposedAuthorID,
				"updated_by_id": *m.ProposedAuthorID,
				"created_on":    deref(m.ProposedCreatedOn),
				"updated_on":    deref(m.ProposedUpdatedOn),
			},
		}
		if len(uploads) > 0 {
			fields["uploads"] = uploads
		}
		if err := p.Redmine.PatchIssue(ctx, issueID, map[string]any{"issue": fields}); err != nil {
			return nil, err
		}
		return p.locateJournal(ctx, issueID, "", m.ProposedCreatedOn)
	}

	token := migrateToken(m.MappingID)
	fields := map[string]any{"notes": *m.ProposedNotes + "\n\n" + token}
	if len(uploads) > 0 {
		fields["uploads"] = uploads
	}
	if err := p.Redmine.UpdateIssue(ctx, issueID, fields); err != nil {
		return nil, err
	}
	return p.locateJournal(ctx, issueID, token, m.ProposedCreatedOn)
}

// journalUploads collects the pending upload tokens hinted at a later
// journal. The first journal update on the issue consumes them, keeping the
// one-consumer rule for every token.
func (p *Pusher) journalUploads(ctx context.Context, jiraIssueID string) ([]map[string]any, error) {
	atts, err := p.Store.AttachmentsForIssue(ctx, jiraIssueID)
	if err != nil {
		return nil, err
	}
	index, err := p.Store.AttachmentIndex(ctx, jiraIssueID)
	if err != nil {
		return nil, err
	}
	var uploads []map[string]any
	for _, a := range atts {
		if a.MigrationStatus != store.StatusPendingAssociation ||
			a.RedmineUploadToken == nil || a.SharePointURL != nil {
			continue
		}
		if a.AssociationHint == nil || *a.AssociationHint != store.HintJournal {
			continue
		}
		uploads = append(uploads, map[string]any{
			"token":    *a.RedmineUploadToken,
			"filename": index[a.JiraAttachmentID].UniqueFilename,
		})
	}
	return uploads, nil
}

// locateJournal finds the journal just created on issueID: by marker token
// (when one was embedded), then by created_on proximity to the Jira
// timestamp, then by largest id.
func (p *Pusher) locateJournal(ctx context.Context, issueID int64, token string, jiraCreatedOn *string) (*int64, error) {
	issue, err := p.Redmine.IssueDetail(ctx, issueID, "journals")
	if err != nil {
		return nil, fmt.Errorf("locate journal on issue %d: %w", issueID, err)
	}
	if len(issue.Journals) == 0 {
		return nil, fmt.Errorf("issue %d reports no journals after update", issueID)
	}

	if token != "" {
		for _, j := range issue.Journals {
			if strings.Contains(j.Notes, token) {
				id := j.ID
				return &id, nil
			}
		}
	}

	if jiraCreatedOn != nil {
		if want, err := time.Parse(time.RFC3339, *jiraCreatedOn); err == nil {
			var matches []int64
			for _, j := range issue.Journals {
				got, err := time.Parse(time.RFC3339, j.CreatedOn)
				if err != nil {
					continue
				}
				d := got.Sub(want)
				if d < 0 {
					d = -d
				}
				if d <= journalLocateWindow {
					matches = append(matches, j.ID)
				}
			}
			if len(matches) == 1 {
				return &matches[0], nil
			}
		}
	}

	var largest int64
	for _, j := range issue.Journals {
		if j.ID > largest {
			largest = j.ID
		}
	}
	return &largest, nil
}

func (p *Pusher) writeJournal(ctx context.Context, m store.JournalMapping, journalID *int64, status string, notes *string) error {
	m.RedmineJournalID = journalID
	m.MigrationStatus = status
	m.Notes = notes
	hash, err := reconcile.JournalHash(m)
	if err != nil {
		return err
	}
	return p.Store.UpdateJournalMapping(ctx, m.MappingID, store.JournalMappingUpdate{
		MigrationStatus:   m.MigrationStatus,
		Notes:             m.Notes,
		ProposedNotes:     m.ProposedNotes,
		ProposedAuthorID:  m.ProposedAuthorID,
		ProposedCreatedOn: m.ProposedCreatedOn,
		ProposedUpdatedOn: m.ProposedUpdatedOn,
		RedmineJournalID:  m.RedmineJournalID,
		AutomationHash:    hash,
	})
}

func strp(s string) *string { return &s }
