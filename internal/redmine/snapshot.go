package redmine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Snapshotter replaces the Redmine staging tables with a fresh read-only
// enumeration of the target instance. Trackers, statuses and priorities are
// deliberately not snapshotted; those mappings are operator decisions.
type Snapshotter struct {
	Client *Client
	Store  *store.Store
	Log    logrus.FieldLogger
}

func NewSnapshotter(client *Client, st *store.Store, log logrus.FieldLogger) *Snapshotter {
	return &Snapshotter{Client: client, Store: st, Log: log}
}

// Projects replaces the Redmine project snapshot.
func (s *Snapshotter) Projects(ctx context.Context) (int, error) {
	projects, raws, err := s.Client.Projects(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([]store.StagingRedmineProject, 0, len(projects))
	for i, p := range projects {
		row := store.StagingRedmineProject{
			RedmineProjectID: p.ID,
			Identifier:       p.Identifier,
			Name:             p.Name,
			IsPublic:         p.IsPublic,
			RawPayload:       string(raws[i]),
		}
		if p.Description != "" {
			desc := p.Description
			row.Description = &desc
		}
		rows = append(rows, row)
	}
	if err := s.Store.ReplaceRedmineProjects(ctx, rows); err != nil {
		return 0, err
	}
	s.Log.WithField("count", len(rows)).Info("redmine projects snapshotted")
	return len(rows), nil
}

// Users replaces the Redmine user snapshot. The summary listing omits mail
// on most instances, so every user is fetched individually; a user without
// mail makes the snapshot unusable for matching and aborts the run.
func (s *Snapshotter) Users(ctx context.Context) (int, error) {
	users, err := s.Client.Users(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([]store.StagingRedmineUser, 0, len(users))
	for _, summary := range users {
		u, raw, err := s.Client.UserDetail(ctx, summary.ID)
		if err != nil {
			return 0, err
		}
		if u.Mail == "" {
			return 0, fmt.Errorf("redmine user %d (%s) has no mail; an admin API key is required for the user snapshot", u.ID, u.Login)
		}
		rows = append(rows, store.StagingRedmineUser{
			RedmineUserID: u.ID,
			Login:         u.Login,
			Mail:          u.Mail,
			Firstname:     u.Firstname,
			Lastname:      u.Lastname,
			Status:        u.Status,
			RawPayload:    string(raw),
		})
	}
	if err := s.Store.ReplaceRedmineUsers(ctx, rows); err != nil {
		return 0, err
	}
	s.Log.WithField("count", len(rows)).Info("redmine users snapshotted")
	return len(rows), nil
}
