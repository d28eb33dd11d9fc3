package reconcile

import (
	"context"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Resolver resolves Jira-side foreign references to Redmine ids. The
// project/user/lookup maps are snapshotted once per transform run; parent
// issues are read live because parents become available mid-run as the
// pusher creates them.
type Resolver struct {
	st         *store.Store
	Projects   map[string]int64
	Users      map[string]int64
	Trackers   map[string]int64
	Statuses   map[string]int64
	Priorities map[string]int64
	IssueKeys  map[string]int64
}

// NewResolver loads all ready-mapping lookups.
func NewResolver(ctx context.Context, st *store.Store) (*Resolver, error) {
	r := &Resolver{st: st}
	var err error
	if r.Projects, err = st.ReadyProjectLookup(ctx); err != nil {
		return nil, err
	}
	if r.Users, err = st.ReadyUserLookup(ctx); err != nil {
		return nil, err
	}
	if r.Trackers, err = st.Lookup(ctx, store.LookupTrackers); err != nil {
		return nil, err
	}
	if r.Statuses, err = st.Lookup(ctx, store.LookupStatuses); err != nil {
		return nil, err
	}
	if r.Priorities, err = st.Lookup(ctx, store.LookupPriorities); err != nil {
		return nil, err
	}
	if r.IssueKeys, err = st.ReadyIssueKeyLookup(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ParentIssueID resolves a Jira parent issue id against the current issue
// mapping table. Returns nil when the parent is not created yet; the
// subtask phase closes those links later.
func (r *Resolver) ParentIssueID(ctx context.Context, jiraParentID string) (*int64, error) {
	m, err := r.st.IssueMappingByJiraID(ctx, jiraParentID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.RedmineIssueID == nil || !store.Ready(m.MigrationStatus) {
		return nil, nil
	}
	id := *m.RedmineIssueID
	return &id, nil
}
