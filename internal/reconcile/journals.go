package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jira2redmine/jira2redmine/internal/rewriter"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// changelogItem is one entry of a staged changelog's items array.
type changelogItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// Journals reconciles the journal mapping table from staged comments and
// changelog entries. Rows become READY_FOR_PUSH only once their owning
// issue exists on Redmine.
func (r *Reconciler) Journals(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncJournalMappings(ctx); err != nil {
		return sum, err
	}

	res, err := NewResolver(ctx, r.Store)
	if err != nil {
		return sum, err
	}
	issueIDs, err := r.Store.ReadyIssueLookup(ctx)
	if err != nil {
		return sum, err
	}

	rows, err := r.Store.JournalMappingsForTransform(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	// Attachment indexes are per issue and journals cluster by issue, so a
	// one-entry cache removes nearly all repeat queries.
	var cachedIssueID string
	var cachedIndex map[string]store.AttachmentRef
	indexFor := func(jiraIssueID string) (map[string]store.AttachmentRef, error) {
		if jiraIssueID == cachedIssueID && cachedIndex != nil {
			return cachedIndex, nil
		}
		idx, err := r.Store.AttachmentIndex(ctx, jiraIssueID)
		if err != nil {
			return nil, err
		}
		cachedIssueID, cachedIndex = jiraIssueID, idx
		return idx, nil
	}

	for _, row := range rows {
		m := row.Mapping
		currentHash, err := JournalHash(m)
		if err != nil {
			return sum, fmt.Errorf("hash journal mapping %d: %w", m.MappingID, err)
		}
		if sum.guard(m.AutomationHash, currentHash, m.MigrationStatus, journalTransformable) {
			continue
		}

		atts, err := indexFor(m.JiraIssueID)
		if err != nil {
			return sum, err
		}
		proposal := r.deriveJournal(m, row, res, issueIDs, atts)
		newHash, err := JournalHash(proposal)
		if err != nil {
			return sum, fmt.Errorf("hash journal proposal %d: %w", m.MappingID, err)
		}
		sum.classify(proposal.MigrationStatus)

		if newHash == currentHash && m.AutomationHash != nil && *m.AutomationHash == newHash {
			sum.Unchanged++
			continue
		}
		err = r.Store.UpdateJournalMapping(ctx, m.MappingID, store.JournalMappingUpdate{
			MigrationStatus:   proposal.MigrationStatus,
			Notes:             proposal.Notes,
			ProposedNotes:     proposal.ProposedNotes,
			ProposedAuthorID:  proposal.ProposedAuthorID,
			ProposedCreatedOn: proposal.ProposedCreatedOn,
			ProposedUpdatedOn: proposal.ProposedUpdatedOn,
			RedmineJournalID:  proposal.RedmineJournalID,
			AutomationHash:    newHash,
		})
		if err != nil {
			return sum, err
		}
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("journal transform complete")
	return sum, nil
}

func (r *Reconciler) deriveJournal(m store.JournalMapping, row store.JournalTransformRow, res *Resolver, issueIDs map[string]int64, atts map[string]store.AttachmentRef) store.JournalMapping {
	out := m
	out.Notes = nil

	var author, created, updated *string
	switch {
	case row.Comment != nil:
		c := row.Comment
		body := rewriter.Render(c.BodyADF, c.RenderedBody, rewriter.Lookups{
			Attachments: atts,
			Users:       res.Users,
			IssueKeys:   res.IssueKeys,
		})
		out.ProposedNotes = strp(body)
		author, created, updated = c.AuthorAccountID, c.Created, c.Updated
	case row.Changelog != nil:
		g := row.Changelog
		notes, warn := r.renderChangelog(m, g, atts)
		out.ProposedNotes = strp(notes)
		if warn != "" {
			out.Notes = strp(warn)
		}
		author, created, updated = g.AuthorAccountID, g.Created, g.Created
	}

	out.ProposedAuthorID = nil
	if author != nil {
		if id, ok := res.Users[*author]; ok {
			out.ProposedAuthorID = intp(id)
		}
	}
	out.ProposedCreatedOn = jiraTimeToRFC3339(created)
	out.ProposedUpdatedOn = jiraTimeToRFC3339(updated)

	if _, ok := issueIDs[m.JiraIssueID]; ok {
		out.MigrationStatus = store.StatusReadyForPush
	} else {
		out.MigrationStatus = store.StatusPending
	}
	return out
}

// renderChangelog formats changelog items as bullet lines. An entry that
// only announces attachments is replaced by the attachment block instead.
func (r *Reconciler) renderChangelog(m store.JournalMapping, g *store.StagingJiraChangelog, atts map[string]store.AttachmentRef) (notes, warn string) {
	var items []changelogItem
	if err := json.Unmarshal([]byte(g.Items), &items); err != nil {
		return "", fmt.Sprintf("Cannot parse changelog items: %s", truncate(err.Error(), 200))
	}
	if len(items) == 0 {
		return "", ""
	}

	attachmentOnly := true
	for _, it := range items {
		if !strings.EqualFold(it.Field, "Attachment") {
			attachmentOnly = false
			break
		}
	}
	if attachmentOnly {
		block := attachmentBlock(items, atts)
		if block == "" {
			r.Log.WithField("mapping_id", m.MappingID).
				Warn("changelog announces attachments but none are mapped")
		}
		return block, ""
	}

	var lines []string
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("• %s: %s → %s", it.Field, it.FromString, it.ToString))
	}
	return strings.Join(lines, "\n"), ""
}

// attachmentBlock renders the added attachments of a changelog entry.
// Offloaded files link to SharePoint; the rest use Redmine's attachment
// reference syntax against the unique filename.
func attachmentBlock(items []changelogItem, atts map[string]store.AttachmentRef) string {
	byName := make(map[string]store.AttachmentRef, len(atts))
	for _, ref := range atts {
		byName[ref.Filename] = ref
	}
	var lines []string
	for _, it := range items {
		if it.ToString == "" {
			continue // attachment removal, nothing to reference
		}
		ref, ok := byName[it.ToString]
		if !ok {
			continue
		}
		if ref.SharePointURL != nil {
			lines = append(lines, fmt.Sprintf("> SharePoint attachment: [%s](%s)", ref.Filename, *ref.SharePointURL))
		} else {
			lines = append(lines, "> Attachment: attachment:"+ref.UniqueFilename)
		}
	}
	return strings.Join(lines, "\n")
}
