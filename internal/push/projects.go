package push

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Projects creates every READY_FOR_CREATION project on Redmine.
func (p *Pusher) Projects(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.ReadyProjectMappings(ctx)
	if err != nil {
		return counts, err
	}

	for _, m := range rows {
		payload := map[string]any{
			"name":       deref(m.ProposedName),
			"identifier": deref(m.ProposedIdentifier),
			"is_public":  m.ProposedIsPublic != nil && *m.ProposedIsPublic,
		}
		if m.ProposedDescription != nil {
			payload["description"] = *m.ProposedDescription
		}
		if p.DryRun {
			p.preview("project", m.MappingID, payload)
			counts.Skipped++
			continue
		}

		id, err := p.Redmine.CreateProject(ctx, payload)
		if err != nil {
			counts.Failed++
			if werr := p.writeProject(ctx, m, nil, store.StatusCreationFailed, errNote(err)); werr != nil {
				return counts, werr
			}
			continue
		}
		counts.Pushed++
		p.Log.WithFields(map[string]any{
			"identifier": deref(m.ProposedIdentifier),
			"redmine_id": id,
		}).Info("project created")
		if werr := p.writeProject(ctx, m, &id, store.StatusCreationSuccess, nil); werr != nil {
			return counts, werr
		}
	}
	p.Log.WithFields(counts.Fields()).Info("project push complete")
	return counts, nil
}

// writeProject persists the push outcome and refreshes the automation hash
// so the next transform does not mistake it for an operator edit.
func (p *Pusher) writeProject(ctx context.Context, m store.ProjectMapping, redmineID *int64, status string, notes *string) error {
	m.RedmineProjectID = redmineID
	m.MigrationStatus = status
	m.Notes = notes
	hash, err := reconcile.ProjectHash(m)
	if err != nil {
		return err
	}
	return p.Store.UpdateProjectMapping(ctx, m.MappingID, store.ProjectMappingUpdate{
		RedmineProjectID:    m.RedmineProjectID,
		MigrationStatus:     m.MigrationStatus,
		Notes:               m.Notes,
		ProposedIdentifier:  m.ProposedIdentifier,
		ProposedName:        m.ProposedName,
		ProposedDescription: m.ProposedDescription,
		ProposedIsPublic:    m.ProposedIsPublic,
		AutomationHash:      hash,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
