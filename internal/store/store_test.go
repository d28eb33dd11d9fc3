package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strp(s string) *string { return &s }
func intp(n int64) *int64   { return &n }

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "dsn")
	require.Error(t, err)
}

func TestSyncProjectMappingsCreatesSkeletons(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraProjects(ctx, []StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", Name: "Project", RawPayload: "{}"},
		{JiraProjectID: "10002", JiraKey: "OPS", Name: "Ops", RawPayload: "{}"},
	}))

	n, err := s.SyncProjectMappings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Re-running must not touch existing rows.
	n, err = s.SyncProjectMappings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	rows, err := s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusPendingAnalysis, rows[0].Mapping.MigrationStatus)
	assert.Equal(t, "PROJ", rows[0].Staging.JiraKey)
	assert.Nil(t, rows[0].Mapping.AutomationHash)
}

func TestUpdateProjectMappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraProjects(ctx, []StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", RawPayload: "{}"},
	}))
	_, err := s.SyncProjectMappings(ctx)
	require.NoError(t, err)

	rows, err := s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	id := rows[0].Mapping.MappingID

	require.NoError(t, s.UpdateProjectMapping(ctx, id, ProjectMappingUpdate{
		RedmineProjectID:   intp(7),
		MigrationStatus:    StatusMatchFound,
		ProposedIdentifier: strp("proj"),
		ProposedName:       strp("Project"),
		AutomationHash:     "deadbeef",
	}))

	rows, err = s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	assert.Equal(t, StatusMatchFound, m.MigrationStatus)
	require.NotNil(t, m.RedmineProjectID)
	assert.EqualValues(t, 7, *m.RedmineProjectID)
	assert.Equal(t, "proj", *m.ProposedIdentifier)
	assert.Nil(t, m.Notes)

	lookup, err := s.ReadyProjectLookup(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"10001": 7}, lookup)
}

func TestUpsertStagingRefreshesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraUsers(ctx, []StagingJiraUser{
		{JiraAccountID: "a1", DisplayName: "Alice", EmailAddress: strp("alice@example.com"), Active: true, RawPayload: "{}"},
	}))
	require.NoError(t, s.UpsertJiraUsers(ctx, []StagingJiraUser{
		{JiraAccountID: "a1", DisplayName: "Alice Smith", EmailAddress: strp("alice@example.com"), Active: true, RawPayload: "{}"},
	}))

	_, err := s.SyncUserMappings(ctx)
	require.NoError(t, err)

	rows, err := s.UserMappingsForTransform(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice Smith", rows[0].Staging.DisplayName)
}

func TestSyncJournalMappingsBothSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraComments(ctx, []StagingJiraComment{
		{JiraCommentID: "100", JiraIssueID: "1", BodyADF: strp(`{"type":"doc"}`), RawPayload: "{}"},
	}))
	require.NoError(t, s.UpsertJiraChangelogs(ctx, []StagingJiraChangelog{
		{JiraChangelogID: "100", JiraIssueID: "1", Items: `[]`, RawPayload: "{}"},
	}))

	// Same numeric id in both sources must produce two mapping rows.
	n, err := s.SyncJournalMappings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	rows, err := s.JournalMappingsForTransform(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byType := map[string]JournalTransformRow{}
	for _, r := range rows {
		byType[r.Mapping.EntityType] = r
	}
	require.NotNil(t, byType[EntityComment].Comment)
	require.NotNil(t, byType[EntityChangelog].Changelog)
	assert.Nil(t, byType[EntityComment].Changelog)
}

func TestAttachmentWorkRowsFilterAndHintData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraIssues(ctx, []StagingJiraIssue{
		{JiraIssueID: "1", JiraIssueKey: "PROJ-1", JiraProjectID: "10001",
			Created: strp("2024-01-01T10:00:00.000+0000"), RawPayload: "{}"},
	}))
	require.NoError(t, s.UpsertJiraAttachments(ctx, []StagingJiraAttachment{
		{JiraAttachmentID: "55", JiraIssueID: "1", Filename: "Design Doc.pdf", Filesize: 1024,
			ContentURL: "https://jira.example.com/content/55", Created: strp("2024-01-01T10:00:30.000+0000"),
			RawPayload: "{}"},
	}))

	_, err := s.SyncAttachmentMappings(ctx)
	require.NoError(t, err)

	rows, err := s.AttachmentWorkRows(ctx, StatusPendingDownload)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Design Doc.pdf", rows[0].Filename)
	require.NotNil(t, rows[0].IssueCreated)
	require.NotNil(t, rows[0].Mapping.JiraFilesize)
	assert.EqualValues(t, 1024, *rows[0].Mapping.JiraFilesize)

	none, err := s.AttachmentWorkRows(ctx, StatusPendingUpload)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAttachmentIndexUniqueNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraAttachments(ctx, []StagingJiraAttachment{
		{JiraAttachmentID: "55", JiraIssueID: "1", Filename: "Design Doc.pdf", RawPayload: "{}"},
		{JiraAttachmentID: "56", JiraIssueID: "1", Filename: "Design Doc.pdf", RawPayload: "{}"},
	}))
	_, err := s.SyncAttachmentMappings(ctx)
	require.NoError(t, err)

	idx, err := s.AttachmentIndex(ctx, "1")
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, "55__Design_Doc.pdf", idx["55"].UniqueFilename)
	assert.Equal(t, "56__Design_Doc.pdf", idx["56"].UniqueFilename)
}

func TestSubtaskLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertJiraIssues(ctx, []StagingJiraIssue{
		{JiraIssueID: "1", JiraIssueKey: "PROJ-1", JiraProjectID: "p", RawPayload: "{}"},
		{JiraIssueID: "2", JiraIssueKey: "PROJ-2", JiraProjectID: "p", ParentIssueID: strp("1"), RawPayload: "{}"},
	}))
	_, err := s.SyncIssueMappings(ctx)
	require.NoError(t, err)

	// Nothing to link before either side exists on Redmine.
	links, err := s.SubtaskLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)

	parent, err := s.IssueMappingByJiraID(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueMapping(ctx, parent.MappingID, IssueMappingUpdate{
		RedmineIssueID: intp(100), MigrationStatus: StatusCreationSuccess, AutomationHash: "h",
	}))
	child, err := s.IssueMappingByJiraID(ctx, "2")
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueMapping(ctx, child.MappingID, IssueMappingUpdate{
		RedmineIssueID: intp(101), MigrationStatus: StatusCreationSuccess, AutomationHash: "h",
	}))

	links, err = s.SubtaskLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.EqualValues(t, 101, links[0].ChildRedmineIssueID)
	assert.EqualValues(t, 100, links[0].ParentRedmineIssueID)

	require.NoError(t, s.SetIssueParentLinked(ctx, links[0].MappingID, 100, "h2"))
	links, err = s.SubtaskLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSeedAndReadLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SeedLookup(ctx, LookupTrackers, []LookupRow{
		{JiraID: "10100", RedmineID: 1},
		{JiraID: "10101", RedmineID: 2, Note: strp("bugs")},
	}))
	// Upsert wins on re-seed.
	require.NoError(t, s.SeedLookup(ctx, LookupTrackers, []LookupRow{
		{JiraID: "10100", RedmineID: 3},
	}))

	m, err := s.Lookup(ctx, LookupTrackers)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"10100": 3, "10101": 2}, m)

	_, err = s.Lookup(ctx, "lookup_nope")
	require.Error(t, err)
}

func TestExtractionState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetExtractionState(ctx, ExtractionState{
		JiraIssueID: "1", Aspect: AspectComments, Status: StateWarning, Detail: strp("HTTP 403"),
	}))
	require.NoError(t, s.SetExtractionState(ctx, ExtractionState{
		JiraIssueID: "1", Aspect: AspectComments, Status: StateSuccess,
	}))

	states, err := s.ExtractionStates(ctx, "1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, StateSuccess, states[AspectComments].Status)
	assert.Nil(t, states[AspectComments].Detail)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"Design Doc.pdf", "Design_Doc.pdf"},
		{"../../etc/passwd", "etc_passwd"},
		{"übersicht (final).xlsx", "bersicht__final_.xlsx"},
		{"", "file"},
		{"...", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "SanitizeFilename(%q)", tt.in)
	}
}
