// Package attachments moves files from Jira to Redmine or SharePoint as a
// per-row state machine: PENDING_DOWNLOAD, PENDING_UPLOAD,
// PENDING_ASSOCIATION, SUCCESS, with FAILED requeued by the next transform.
package attachments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jira2redmine/jira2redmine/internal/config"
	"github.com/jira2redmine/jira2redmine/internal/jira"
	"github.com/jira2redmine/jira2redmine/internal/redmine"
	"github.com/jira2redmine/jira2redmine/internal/sharepoint"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Pipeline executes the download and upload steps.
type Pipeline struct {
	Store      *store.Store
	Jira       *jira.Client
	Redmine    *redmine.Client
	SharePoint *sharepoint.Client
	Log        logrus.FieldLogger
	Local      config.Attachments
	Offload    config.SharePoint

	// DownloadLimit and UploadLimit cap how many rows one run handles;
	// zero means no cap. Useful for trial runs against large instances.
	DownloadLimit int
	UploadLimit   int

	// UseExtended requests the extended API's upload endpoint, which
	// preserves the original attachment author and timestamp.
	UseExtended bool
}

// capRows applies a row limit, keeping ascending mapping_id order.
func capRows(rows []store.AttachmentWorkRow, limit int) []store.AttachmentWorkRow {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// Counts summarizes one pipeline step.
type Counts struct {
	Handled int
	Failed  int
	Skipped int
}

func (c Counts) Fields() logrus.Fields {
	return logrus.Fields{"handled": c.Handled, "failed": c.Failed, "skipped": c.Skipped}
}

// Pull downloads every PENDING_DOWNLOAD attachment with downloads enabled.
// Workers run concurrently; each writes its own file and its own mapping row.
func (p *Pipeline) Pull(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.AttachmentWorkRows(ctx, store.StatusPendingDownload)
	if err != nil {
		return counts, err
	}
	rows = capRows(rows, p.DownloadLimit)

	dir, err := filepath.Abs(p.Local.Dir)
	if err != nil {
		return counts, fmt.Errorf("resolve attachment dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return counts, fmt.Errorf("create attachment dir: %w", err)
	}

	workers := p.Local.DownloadWorkers
	if workers < 1 {
		workers = 1
	}

	var handled, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, row := range rows {
		if !row.Mapping.DownloadEnabled {
			skipped.Add(1)
			continue
		}
		row := row
		g.Go(func() error {
			if err := p.pullOne(gctx, dir, row); err != nil {
				failed.Add(1)
				p.Log.WithFields(logrus.Fields{
					"attachment": row.Mapping.JiraAttachmentID,
					"filename":   row.Filename,
				}).WithError(err).Warn("attachment download failed")
				return p.markFailed(gctx, row.Mapping, err)
			}
			handled.Add(1)
			return nil
		})
	}
	err = g.Wait()
	counts = Counts{Handled: int(handled.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}
	p.Log.WithFields(counts.Fields()).Info("attachment pull complete")
	return counts, err
}

func (p *Pipeline) pullOne(ctx context.Context, dir string, row store.AttachmentWorkRow) error {
	target := filepath.Join(dir, store.UniqueAttachmentFilename(row.Mapping.JiraAttachmentID, row.Filename))
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	_, err = p.Jira.Download(ctx, row.ContentURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return err
	}
	return p.Store.UpdateAttachmentMapping(ctx, row.Mapping.MappingID, store.AttachmentMappingUpdate{
		AssociationHint: row.Mapping.AssociationHint,
		MigrationStatus: store.StatusPendingUpload,
		LocalFilepath:   &target,
	})
}

// Push uploads every PENDING_UPLOAD attachment with uploads enabled. Files at
// or above the offload threshold go to SharePoint when it is configured;
// everything else streams to Redmine's upload endpoint.
func (p *Pipeline) Push(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.AttachmentWorkRows(ctx, store.StatusPendingUpload)
	if err != nil {
		return counts, err
	}
	rows = capRows(rows, p.UploadLimit)

	var authors map[string]int64
	if p.UseExtended && p.Redmine.ExtendedAvailable(ctx) {
		if authors, err = p.Store.ReadyUserLookup(ctx); err != nil {
			return counts, err
		}
	}

	for _, row := range rows {
		m := row.Mapping
		if !m.UploadEnabled {
			counts.Skipped++
			continue
		}
		if m.LocalFilepath == nil {
			counts.Failed++
			if err := p.markFailed(ctx, m, fmt.Errorf("no local file recorded")); err != nil {
				return counts, err
			}
			continue
		}
		if err := p.pushOne(ctx, row, authors); err != nil {
			counts.Failed++
			p.Log.WithFields(logrus.Fields{
				"attachment": m.JiraAttachmentID,
				"filename":   row.Filename,
			}).WithError(err).Warn("attachment upload failed")
			if err := p.markFailed(ctx, m, err); err != nil {
				return counts, err
			}
			continue
		}
		counts.Handled++
	}
	p.Log.WithFields(counts.Fields()).Info("attachment push complete")
	return counts, nil
}

func (p *Pipeline) pushOne(ctx context.Context, row store.AttachmentWorkRow, authors map[string]int64) error {
	m := row.Mapping
	f, err := os.Open(*m.LocalFilepath)
	if err != nil {
		return fmt.Errorf("open %s: %w", *m.LocalFilepath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	unique := store.UniqueAttachmentFilename(m.JiraAttachmentID, row.Filename)

	if p.SharePoint != nil && p.Offload.Configured() && info.Size() >= p.Offload.OffloadThresholdBytes {
		webURL, err := p.SharePoint.Upload(ctx, unique, f, info.Size())
		if err != nil {
			return fmt.Errorf("sharepoint upload: %w", err)
		}
		return p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
			AssociationHint: m.AssociationHint,
			MigrationStatus: store.StatusPendingAssociation,
			LocalFilepath:   m.LocalFilepath,
			SharePointURL:   &webURL,
		})
	}

	token, err := p.uploadRedmine(ctx, unique, f, row, authors)
	if err != nil {
		return fmt.Errorf("redmine upload: %w", err)
	}
	return p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
		AssociationHint:    m.AssociationHint,
		MigrationStatus:    store.StatusPendingAssociation,
		LocalFilepath:      m.LocalFilepath,
		RedmineUploadToken: &token,
		RedmineAttachment:  TokenAttachmentID(token),
	})
}

// uploadRedmine picks the upload endpoint: the extended variant when the
// author resolves to a Redmine user and the descriptor carries a timestamp,
// the plain one otherwise.
func (p *Pipeline) uploadRedmine(ctx context.Context, filename string, body io.Reader, row store.AttachmentWorkRow, authors map[string]int64) (string, error) {
	if authors != nil && row.AuthorAccountID != nil && row.Created != nil {
		if authorID, ok := authors[*row.AuthorAccountID]; ok {
			return p.Redmine.UploadWithAttribution(ctx, filename, body, authorID, jiraTimeRFC3339(*row.Created))
		}
	}
	return p.Redmine.Upload(ctx, filename, body)
}

// jiraTimeRFC3339 converts Jira's timestamp format for the extended upload
// query. Unparsable input passes through unchanged.
func jiraTimeRFC3339(s string) string {
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return s
}

func (p *Pipeline) markFailed(ctx context.Context, m store.AttachmentMapping, cause error) error {
	summary := cause.Error()
	if len(summary) > 500 {
		// Cut on a rune boundary, marking the truncation.
		cut := 499
		for cut > 0 && (summary[cut]&0xC0) == 0x80 {
			cut--
		}
		summary = summary[:cut] + "…"
	}
	return p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
		AssociationHint: m.AssociationHint,
		MigrationStatus: store.StatusFailed,
		Notes:           &summary,
	})
}

// TokenAttachmentID extracts the attachment id Redmine embeds as the numeric
// prefix of an upload token ("123.abc…"). Nil when the token has no such
// prefix.
func TokenAttachmentID(token string) *int64 {
	prefix, _, found := strings.Cut(token, ".")
	if !found {
		return nil
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// Associate resolves PENDING_ASSOCIATION rows of one issue after Redmine has
// accepted its create or update. Rows offloaded to SharePoint complete
// immediately; the rest are matched by (filename, filesize) against the
// attachments Redmine reports on the issue.
func (p *Pipeline) Associate(ctx context.Context, jiraIssueID string, redmineIssueID int64) error {
	rows, err := p.Store.AttachmentsForIssue(ctx, jiraIssueID)
	if err != nil {
		return err
	}
	var pending []store.AttachmentMapping
	for _, m := range rows {
		if m.MigrationStatus != store.StatusPendingAssociation {
			continue
		}
		if m.SharePointURL != nil {
			err := p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
				AssociationHint: m.AssociationHint,
				MigrationStatus: store.StatusSuccess,
				LocalFilepath:   m.LocalFilepath,
				RedmineIssueID:  &redmineIssueID,
				SharePointURL:   m.SharePointURL,
			})
			if err != nil {
				return err
			}
			continue
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return nil
	}

	issue, err := p.Redmine.IssueDetail(ctx, redmineIssueID, "attachments")
	if err != nil {
		return fmt.Errorf("fetch issue %d attachments: %w", redmineIssueID, err)
	}
	index, err := p.Store.AttachmentIndex(ctx, jiraIssueID)
	if err != nil {
		return err
	}

	type key struct {
		name string
		size int64
	}
	remote := make(map[key]int64)
	for _, a := range issue.Attachments {
		remote[key{a.Filename, a.Filesize}] = a.ID
	}

	for _, m := range pending {
		var size int64
		if m.JiraFilesize != nil {
			size = *m.JiraFilesize
		}
		name := index[m.JiraAttachmentID].UniqueFilename
		if id, ok := remote[key{name, size}]; ok {
			err := p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
				AssociationHint:   m.AssociationHint,
				MigrationStatus:   store.StatusSuccess,
				LocalFilepath:     m.LocalFilepath,
				RedmineAttachment: &id,
				RedmineIssueID:    &redmineIssueID,
			})
			if err != nil {
				return err
			}
			continue
		}
		note := fmt.Sprintf("Issue %d does not report %q (%d bytes) after push.", redmineIssueID, name, size)
		err := p.Store.UpdateAttachmentMapping(ctx, m.MappingID, store.AttachmentMappingUpdate{
			AssociationHint:    m.AssociationHint,
			MigrationStatus:    store.StatusPendingAssociation,
			LocalFilepath:      m.LocalFilepath,
			RedmineUploadToken: m.RedmineUploadToken,
			RedmineAttachment:  m.RedmineAttachment,
			Notes:              &note,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
