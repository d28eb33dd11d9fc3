package push

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// redmineUserStatus maps the mapping table's status names onto Redmine's
// numeric codes.
func redmineUserStatus(name *string) int {
	if name != nil && *name == "ACTIVE" {
		return 1
	}
	return 3 // locked
}

// Users creates every READY_FOR_CREATION user on Redmine. New accounts get
// a generated password they must change on first login.
func (p *Pusher) Users(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := p.Store.ReadyUserMappings(ctx)
	if err != nil {
		return counts, err
	}

	for _, m := range rows {
		payload := map[string]any{
			"login":              deref(m.ProposedRedmineLogin),
			"firstname":          deref(m.ProposedFirstname),
			"lastname":           deref(m.ProposedLastname),
			"mail":               deref(m.ProposedRedmineMail),
			"generate_password":  true,
			"must_change_passwd": true,
			"status":             redmineUserStatus(m.ProposedRedmineStatus),
		}
		if p.DryRun {
			p.preview("user", m.MappingID, payload)
			counts.Skipped++
			continue
		}

		id, err := p.Redmine.CreateUser(ctx, payload)
		if err != nil {
			counts.Failed++
			if werr := p.writeUser(ctx, m, nil, store.StatusCreationFailed, errNote(err)); werr != nil {
				return counts, werr
			}
			continue
		}
		counts.Pushed++
		p.Log.WithFields(map[string]any{
			"login":      deref(m.ProposedRedmineLogin),
			"redmine_id": id,
		}).Info("user created")
		if werr := p.writeUser(ctx, m, &id, store.StatusCreationSuccess, nil); werr != nil {
			return counts, werr
		}
	}
	p.Log.WithFields(counts.Fields()).Info("user push complete")
	return counts, nil
}

func (p *Pusher) writeUser(ctx context.Context, m store.UserMapping, redmineID *int64, status string, notes *string) error {
	m.RedmineUserID = redmineID
	m.MigrationStatus = status
	m.Notes = notes
	hash, err := reconcile.UserHash(m)
	if err != nil {
		return err
	}
	return p.Store.UpdateUserMapping(ctx, m.MappingID, store.UserMappingUpdate{
		RedmineUserID:         m.RedmineUserID,
		MigrationStatus:       m.MigrationStatus,
		MatchType:             m.MatchType,
		Notes:                 m.Notes,
		ProposedRedmineLogin:  m.ProposedRedmineLogin,
		ProposedRedmineMail:   m.ProposedRedmineMail,
		ProposedFirstname:     m.ProposedFirstname,
		ProposedLastname:      m.ProposedLastname,
		ProposedRedmineStatus: m.ProposedRedmineStatus,
		AutomationHash:        hash,
	})
}
