package reconcile

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jira2redmine/jira2redmine/internal/config"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(s, log, config.Defaults{}), s
}

func TestDeriveIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PROJ", "proj"},
		{"My Project!", "my-project"},
		{"__X__", "x"},
		{"A--B__C", "a-b_c"},
		{"***", ""},
		{"", ""},
	}
	for _, tc := range tests {
		got := DeriveIdentifier(tc.in)
		assert.Equal(t, tc.want, got, "key %q", tc.in)
		// Deriving an already-derived identifier is a no-op.
		assert.Equal(t, got, DeriveIdentifier(got))
	}

	long := strings.Repeat("X", 150)
	assert.Len(t, DeriveIdentifier(long), 100)
}

func TestProjectsMatchAndCreate(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraProjects(ctx, []store.StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", Name: "Project", RawPayload: "{}"},
		{JiraProjectID: "10002", JiraKey: "OPS", Name: "Ops", IsPrivate: true, RawPayload: "{}"},
	}))
	require.NoError(t, s.ReplaceRedmineProjects(ctx, []store.StagingRedmineProject{
		{RedmineProjectID: 7, Identifier: "proj", Name: "Existing Project", IsPublic: true, RawPayload: "{}"},
	}))

	sum, err := r.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 1, sum.Ready)
	assert.Equal(t, 2, sum.Updated)

	rows, err := s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	byKey := map[string]store.ProjectMapping{}
	for _, row := range rows {
		byKey[row.Staging.JiraKey] = row.Mapping
	}

	matched := byKey["PROJ"]
	assert.Equal(t, store.StatusMatchFound, matched.MigrationStatus)
	require.NotNil(t, matched.RedmineProjectID)
	assert.EqualValues(t, 7, *matched.RedmineProjectID)
	require.NotNil(t, matched.ProposedName)
	assert.Equal(t, "Existing Project", *matched.ProposedName)
	require.NotNil(t, matched.AutomationHash)

	created := byKey["OPS"]
	assert.Equal(t, store.StatusReadyForCreation, created.MigrationStatus)
	assert.Nil(t, created.RedmineProjectID)
	require.NotNil(t, created.ProposedIdentifier)
	assert.Equal(t, "ops", *created.ProposedIdentifier)
	require.NotNil(t, created.ProposedIsPublic)
	assert.False(t, *created.ProposedIsPublic)

	// A second run finds nothing to do.
	sum, err = r.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Equal(t, 0, sum.Updated)
}

func TestProjectsRespectManualOverride(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraProjects(ctx, []store.StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", Name: "Project", RawPayload: "{}"},
	}))
	_, err := r.Projects(ctx)
	require.NoError(t, err)

	// Simulate an operator edit: change a field without refreshing the hash.
	rows, err := s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	require.NoError(t, s.UpdateProjectMapping(ctx, m.MappingID, store.ProjectMappingUpdate{
		MigrationStatus:    store.StatusReadyForCreation,
		Notes:              strPtr("operator says: use identifier legacy-proj"),
		ProposedIdentifier: strPtr("legacy-proj"),
		ProposedName:       m.ProposedName,
		AutomationHash:     *m.AutomationHash,
	}))

	sum, err := r.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Overrides)
	assert.Equal(t, 0, sum.Updated)

	rows, err = s.ProjectMappingsForTransform(ctx)
	require.NoError(t, err)
	require.NotNil(t, rows[0].Mapping.ProposedIdentifier)
	assert.Equal(t, "legacy-proj", *rows[0].Mapping.ProposedIdentifier)
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
		ok          bool
	}{
		{"Alice Smith", "Alice", "Smith", true},
		{"Smith, Alice", "Alice", "Smith", true},
		{"Anna Maria van Dyk", "Anna", "Dyk", true},
		{"Admin", "", "", false},
		{"", "", "", false},
		{",", "", "", false},
	}
	for _, tc := range tests {
		first, last, ok := splitDisplayName(tc.in)
		assert.Equal(t, tc.ok, ok, "display %q", tc.in)
		assert.Equal(t, tc.first, first)
		assert.Equal(t, tc.last, last)
	}
}

func TestUsersMatchProposeAndManual(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	r.Defaults.UserStatus = "LOCKED"

	require.NoError(t, s.UpsertJiraUsers(ctx, []store.StagingJiraUser{
		{JiraAccountID: "a1", DisplayName: "Alice Smith", EmailAddress: strPtr("alice@example.com"), Active: true, RawPayload: "{}"},
		{JiraAccountID: "a2", DisplayName: "Bob Jones", EmailAddress: strPtr("bob@example.com"), Active: true, RawPayload: "{}"},
		{JiraAccountID: "a3", DisplayName: "NoMail", RawPayload: "{}"},
	}))
	require.NoError(t, s.ReplaceRedmineUsers(ctx, []store.StagingRedmineUser{
		{RedmineUserID: 42, Login: "alice@example.com", Mail: "alice@example.com", Firstname: "Alice", Lastname: "Smith", Status: 1, RawPayload: "{}"},
	}))

	sum, err := r.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 1, sum.Ready)
	assert.Equal(t, 1, sum.Manual)

	rows, err := s.UserMappingsForTransform(ctx)
	require.NoError(t, err)
	byAccount := map[string]store.UserMapping{}
	for _, row := range rows {
		byAccount[row.Mapping.JiraAccountID] = row.Mapping
	}

	alice := byAccount["a1"]
	assert.Equal(t, store.StatusMatchFound, alice.MigrationStatus)
	require.NotNil(t, alice.RedmineUserID)
	assert.EqualValues(t, 42, *alice.RedmineUserID)
	require.NotNil(t, alice.MatchType)
	assert.Equal(t, store.MatchLogin, *alice.MatchType)
	require.NotNil(t, alice.ProposedRedmineStatus)
	assert.Equal(t, "ACTIVE", *alice.ProposedRedmineStatus)

	bob := byAccount["a2"]
	assert.Equal(t, store.StatusReadyForCreation, bob.MigrationStatus)
	require.NotNil(t, bob.ProposedRedmineLogin)
	assert.Equal(t, "bob@example.com", *bob.ProposedRedmineLogin)
	require.NotNil(t, bob.ProposedFirstname)
	assert.Equal(t, "Bob", *bob.ProposedFirstname)
	require.NotNil(t, bob.ProposedRedmineStatus)
	assert.Equal(t, "LOCKED", *bob.ProposedRedmineStatus)

	nomail := byAccount["a3"]
	assert.Equal(t, store.StatusManualIntervention, nomail.MigrationStatus)
	require.NotNil(t, nomail.Notes)
}

func TestUsersMatchByMail(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraUsers(ctx, []store.StagingJiraUser{
		{JiraAccountID: "a1", DisplayName: "Carol King", EmailAddress: strPtr("Carol@Example.com"), Active: true, RawPayload: "{}"},
	}))
	require.NoError(t, s.ReplaceRedmineUsers(ctx, []store.StagingRedmineUser{
		{RedmineUserID: 9, Login: "cking", Mail: "carol@example.com", Firstname: "Carol", Lastname: "King", Status: 3, RawPayload: "{}"},
	}))

	_, err := r.Users(ctx)
	require.NoError(t, err)

	rows, err := s.UserMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	assert.Equal(t, store.StatusMatchFound, m.MigrationStatus)
	require.NotNil(t, m.MatchType)
	assert.Equal(t, store.MatchMail, *m.MatchType)
	require.NotNil(t, m.ProposedRedmineStatus)
	assert.Equal(t, "LOCKED", *m.ProposedRedmineStatus)
}

// seedIssueDeps stages one project and one user, reconciles them into ready
// mappings, and seeds the tracker/status/priority lookups.
func seedIssueDeps(t *testing.T, ctx context.Context, r *Reconciler, s *store.Store) {
	t.Helper()
	require.NoError(t, s.UpsertJiraProjects(ctx, []store.StagingJiraProject{
		{JiraProjectID: "10001", JiraKey: "PROJ", Name: "Project", RawPayload: "{}"},
	}))
	require.NoError(t, s.ReplaceRedmineProjects(ctx, []store.StagingRedmineProject{
		{RedmineProjectID: 7, Identifier: "proj", Name: "Project", IsPublic: true, RawPayload: "{}"},
	}))
	require.NoError(t, s.UpsertJiraUsers(ctx, []store.StagingJiraUser{
		{JiraAccountID: "a1", DisplayName: "Alice Smith", EmailAddress: strPtr("alice@example.com"), Active: true, RawPayload: "{}"},
	}))
	require.NoError(t, s.ReplaceRedmineUsers(ctx, []store.StagingRedmineUser{
		{RedmineUserID: 42, Login: "alice@example.com", Mail: "alice@example.com", Firstname: "Alice", Lastname: "Smith", Status: 1, RawPayload: "{}"},
	}))
	_, err := r.Projects(ctx)
	require.NoError(t, err)
	_, err = r.Users(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SeedLookup(ctx, store.LookupTrackers, []store.LookupRow{{JiraID: "10100", RedmineID: 1}}))
	require.NoError(t, s.SeedLookup(ctx, store.LookupStatuses, []store.LookupRow{{JiraID: "3", RedmineID: 2}}))
	require.NoError(t, s.SeedLookup(ctx, store.LookupPriorities, []store.LookupRow{{JiraID: "2", RedmineID: 3}}))
}

func TestIssuesResolveDependencies(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	seedIssueDeps(t, ctx, r, s)

	estimate := int64(5400)
	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID:          "20001",
		JiraIssueKey:         "PROJ-1",
		JiraProjectID:        "10001",
		IssueTypeID:          strPtr("10100"),
		StatusID:             strPtr("3"),
		StatusCategory:       strPtr("done"),
		PriorityID:           strPtr("2"),
		ReporterAccountID:    strPtr("a1"),
		AssigneeAccountID:    strPtr("a1"),
		Summary:              "Fix the widget",
		Created:              strPtr("2024-03-01T10:00:00.000+0000"),
		DueDate:              strPtr("2024-04-01"),
		TimeOriginalEstimate: &estimate,
		RawPayload:           "{}",
	}}))

	sum, err := r.Issues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ready)

	rows, err := s.IssueMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	assert.Equal(t, store.StatusReadyForCreation, m.MigrationStatus)
	require.NotNil(t, m.RedmineProjectID)
	assert.EqualValues(t, 7, *m.RedmineProjectID)
	require.NotNil(t, m.RedmineTrackerID)
	assert.EqualValues(t, 1, *m.RedmineTrackerID)
	require.NotNil(t, m.RedmineStatusID)
	assert.EqualValues(t, 2, *m.RedmineStatusID)
	require.NotNil(t, m.RedminePriorityID)
	assert.EqualValues(t, 3, *m.RedminePriorityID)
	require.NotNil(t, m.RedmineAuthorID)
	assert.EqualValues(t, 42, *m.RedmineAuthorID)
	require.NotNil(t, m.RedmineAssignedToID)
	assert.EqualValues(t, 42, *m.RedmineAssignedToID)
	require.NotNil(t, m.ProposedSubject)
	assert.Equal(t, "Fix the widget", *m.ProposedSubject)
	require.NotNil(t, m.ProposedStartDate)
	assert.Equal(t, "2024-03-01", *m.ProposedStartDate)
	require.NotNil(t, m.ProposedDueDate)
	assert.Equal(t, "2024-04-01", *m.ProposedDueDate)
	require.NotNil(t, m.ProposedDoneRatio)
	assert.EqualValues(t, 100, *m.ProposedDoneRatio)
	require.NotNil(t, m.ProposedEstimated)
	assert.InDelta(t, 1.5, *m.ProposedEstimated, 0.001)
}

func TestIssuesUnresolvedDependencyGoesManual(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	seedIssueDeps(t, ctx, r, s)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID:       "20002",
		JiraIssueKey:      "PROJ-2",
		JiraProjectID:     "10001",
		IssueTypeID:       strPtr("99999"), // no tracker mapping, no default
		StatusID:          strPtr("3"),
		PriorityID:        strPtr("2"),
		ReporterAccountID: strPtr("a1"),
		Summary:           "Orphan",
		RawPayload:        "{}",
	}}))

	sum, err := r.Issues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Manual)

	rows, err := s.IssueMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	assert.Equal(t, store.StatusManualIntervention, m.MigrationStatus)
	require.NotNil(t, m.Notes)
	assert.Contains(t, *m.Notes, "tracker")
	assert.Contains(t, *m.Notes, "99999")
}

func TestIssuesDefaultsFillGaps(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	seedIssueDeps(t, ctx, r, s)
	r.Defaults.TrackerID = 11

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID:       "20003",
		JiraIssueKey:      "PROJ-3",
		JiraProjectID:     "10001",
		IssueTypeID:       strPtr("99999"),
		StatusID:          strPtr("3"),
		PriorityID:        strPtr("2"),
		ReporterAccountID: strPtr("a1"),
		Summary:           "Defaulted",
		SecurityPresent:   true,
		RawPayload:        "{}",
	}}))

	sum, err := r.Issues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ready)

	rows, err := s.IssueMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	require.NotNil(t, m.RedmineTrackerID)
	assert.EqualValues(t, 11, *m.RedmineTrackerID)
	require.NotNil(t, m.ProposedIsPrivate)
	assert.True(t, *m.ProposedIsPrivate)
}

func TestAttachmentsHintAndRequeue(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID:   "20001",
		JiraIssueKey:  "PROJ-1",
		JiraProjectID: "10001",
		Summary:       "Issue",
		Created:       strPtr("2024-03-01T10:00:00.000+0000"),
		RawPayload:    "{}",
	}}))
	require.NoError(t, s.UpsertJiraAttachments(ctx, []store.StagingJiraAttachment{
		{JiraAttachmentID: "55", JiraIssueID: "20001", Filename: "early.pdf", Filesize: 10,
			ContentURL: "https://x/55", Created: strPtr("2024-03-01T10:00:30.000+0000"), RawPayload: "{}"},
		{JiraAttachmentID: "56", JiraIssueID: "20001", Filename: "late.pdf", Filesize: 20,
			ContentURL: "https://x/56", Created: strPtr("2024-03-02T09:00:00.000+0000"), RawPayload: "{}"},
	}))

	_, err := r.Attachments(ctx)
	require.NoError(t, err)

	rows, err := s.AttachmentWorkRows(ctx)
	require.NoError(t, err)
	byID := map[string]store.AttachmentMapping{}
	for _, row := range rows {
		byID[row.Mapping.JiraAttachmentID] = row.Mapping
	}
	require.NotNil(t, byID["55"].AssociationHint)
	assert.Equal(t, store.HintIssue, *byID["55"].AssociationHint)
	require.NotNil(t, byID["56"].AssociationHint)
	assert.Equal(t, store.HintJournal, *byID["56"].AssociationHint)

	// Fail one download, then transform again: the row requeues clean.
	failed := byID["55"]
	require.NoError(t, s.UpdateAttachmentMapping(ctx, failed.MappingID, store.AttachmentMappingUpdate{
		AssociationHint: failed.AssociationHint,
		MigrationStatus: store.StatusFailed,
		LocalFilepath:   strPtr("/tmp/partial"),
		Notes:           strPtr("connection reset"),
	}))

	_, err = r.Attachments(ctx)
	require.NoError(t, err)

	rows, err = s.AttachmentWorkRows(ctx, store.StatusPendingDownload)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Mapping.JiraAttachmentID != "55" {
			continue
		}
		assert.Equal(t, store.StatusPendingDownload, row.Mapping.MigrationStatus)
		assert.Nil(t, row.Mapping.LocalFilepath)
		assert.Nil(t, row.Mapping.Notes)
	}
}

func TestJournalsCommentAndChangelog(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	seedIssueDeps(t, ctx, r, s)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID: "20001", JiraIssueKey: "PROJ-1", JiraProjectID: "10001",
		Summary: "Issue", RawPayload: "{}",
	}}))
	_, err := r.Issues(ctx)
	require.NoError(t, err)

	// Mark the issue as created so its journals go ready.
	issues, err := s.IssueMappingsForTransform(ctx)
	require.NoError(t, err)
	im := issues[0].Mapping
	im.RedmineIssueID = intp(101)
	im.MigrationStatus = store.StatusCreationSuccess
	hash, err := IssueHash(im)
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueMapping(ctx, im.MappingID, store.IssueMappingUpdate{
		RedmineIssueID:   im.RedmineIssueID,
		RedmineProjectID: im.RedmineProjectID,
		ProposedSubject:  im.ProposedSubject,
		MigrationStatus:  im.MigrationStatus,
		AutomationHash:   hash,
	}))

	adf := `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"Looks good."}]}]}`
	require.NoError(t, s.UpsertJiraComments(ctx, []store.StagingJiraComment{{
		JiraCommentID: "c1", JiraIssueID: "20001", AuthorAccountID: strPtr("a1"),
		BodyADF: strPtr(adf), Created: strPtr("2024-03-01T11:00:00.000+0000"),
		Updated: strPtr("2024-03-01T11:05:00.000+0000"), RawPayload: "{}",
	}}))
	require.NoError(t, s.UpsertJiraChangelogs(ctx, []store.StagingJiraChangelog{{
		JiraChangelogID: "g1", JiraIssueID: "20001", AuthorAccountID: strPtr("a1"),
		Created: strPtr("2024-03-01T12:00:00.000+0000"),
		Items:   `[{"field":"status","fromString":"Open","toString":"Done"}]`,
		RawPayload: "{}",
	}}))

	sum, err := r.Journals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Ready)

	rows, err := s.JournalMappingsForTransform(ctx)
	require.NoError(t, err)
	byEntity := map[string]store.JournalMapping{}
	for _, row := range rows {
		byEntity[row.Mapping.JiraEntityID] = row.Mapping
	}

	comment := byEntity["c1"]
	assert.Equal(t, store.StatusReadyForPush, comment.MigrationStatus)
	require.NotNil(t, comment.ProposedNotes)
	assert.Equal(t, "Looks good.", *comment.ProposedNotes)
	require.NotNil(t, comment.ProposedAuthorID)
	assert.EqualValues(t, 42, *comment.ProposedAuthorID)
	require.NotNil(t, comment.ProposedCreatedOn)
	assert.Equal(t, "2024-03-01T11:00:00Z", *comment.ProposedCreatedOn)

	change := byEntity["g1"]
	assert.Equal(t, store.StatusReadyForPush, change.MigrationStatus)
	require.NotNil(t, change.ProposedNotes)
	assert.Equal(t, "• status: Open → Done", *change.ProposedNotes)
}

func TestJournalsPendingUntilIssueExists(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID: "20001", JiraIssueKey: "PROJ-1", JiraProjectID: "10001",
		Summary: "Issue", RawPayload: "{}",
	}}))
	require.NoError(t, s.UpsertJiraComments(ctx, []store.StagingJiraComment{{
		JiraCommentID: "c1", JiraIssueID: "20001", RawPayload: "{}",
	}}))

	_, err := r.Journals(ctx)
	require.NoError(t, err)

	rows, err := s.JournalMappingsForTransform(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rows[0].Mapping.MigrationStatus)
}

func TestChangelogAttachmentBlock(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID: "20001", JiraIssueKey: "PROJ-1", JiraProjectID: "10001",
		Summary: "Issue", RawPayload: "{}",
	}}))
	require.NoError(t, s.UpsertJiraAttachments(ctx, []store.StagingJiraAttachment{
		{JiraAttachmentID: "55", JiraIssueID: "20001", Filename: "design.pdf", Filesize: 10,
			ContentURL: "https://x/55", RawPayload: "{}"},
		{JiraAttachmentID: "56", JiraIssueID: "20001", Filename: "big.bin", Filesize: 99,
			ContentURL: "https://x/56", RawPayload: "{}"},
	}))
	_, err := r.Attachments(ctx)
	require.NoError(t, err)

	// Offload one of the two to SharePoint.
	work, err := s.AttachmentWorkRows(ctx)
	require.NoError(t, err)
	for _, row := range work {
		if row.Mapping.JiraAttachmentID == "56" {
			require.NoError(t, s.UpdateAttachmentMapping(ctx, row.Mapping.MappingID, store.AttachmentMappingUpdate{
				AssociationHint: row.Mapping.AssociationHint,
				MigrationStatus: store.StatusPendingAssociation,
				SharePointURL:   strPtr("https://sp.example.com/big.bin"),
			}))
		}
	}

	require.NoError(t, s.UpsertJiraChangelogs(ctx, []store.StagingJiraChangelog{{
		JiraChangelogID: "g1", JiraIssueID: "20001",
		Items:      `[{"field":"Attachment","fromString":"","toString":"design.pdf"},{"field":"Attachment","fromString":"","toString":"big.bin"}]`,
		RawPayload: "{}",
	}}))

	_, err = r.Journals(ctx)
	require.NoError(t, err)

	rows, err := s.JournalMappingsForTransform(ctx)
	require.NoError(t, err)
	m := rows[0].Mapping
	require.NotNil(t, m.ProposedNotes)
	assert.Contains(t, *m.ProposedNotes, "> Attachment: attachment:55__design.pdf")
	assert.Contains(t, *m.ProposedNotes, "> SharePoint attachment: [big.bin](https://sp.example.com/big.bin)")
}

func TestWatchersJoin(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	seedIssueDeps(t, ctx, r, s)

	require.NoError(t, s.UpsertJiraIssues(ctx, []store.StagingJiraIssue{{
		JiraIssueID: "20001", JiraIssueKey: "PROJ-1", JiraProjectID: "10001",
		Summary: "Issue", RawPayload: "{}",
	}}))
	_, err := r.Issues(ctx)
	require.NoError(t, err)
	issues, err := s.IssueMappingsForTransform(ctx)
	require.NoError(t, err)
	im := issues[0].Mapping
	im.RedmineIssueID = intp(101)
	im.MigrationStatus = store.StatusCreationSuccess
	hash, err := IssueHash(im)
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssueMapping(ctx, im.MappingID, store.IssueMappingUpdate{
		RedmineIssueID:  im.RedmineIssueID,
		MigrationStatus: im.MigrationStatus,
		AutomationHash:  hash,
	}))

	require.NoError(t, s.UpsertJiraWatchers(ctx, []store.StagingJiraWatcher{
		{JiraIssueID: "20001", JiraAccountID: "a1", RawPayload: "{}"},
		{JiraIssueID: "20001", JiraAccountID: "stranger", RawPayload: "{}"},
	}))

	sum, err := r.Watchers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Ready)

	rows, err := s.WatcherMappingsForTransform(ctx)
	require.NoError(t, err)
	byAccount := map[string]store.WatcherMapping{}
	for _, m := range rows {
		byAccount[m.JiraAccountID] = m
	}

	ready := byAccount["a1"]
	assert.Equal(t, store.StatusReadyForPush, ready.MigrationStatus)
	require.NotNil(t, ready.RedmineIssueID)
	assert.EqualValues(t, 101, *ready.RedmineIssueID)
	require.NotNil(t, ready.RedmineUserID)
	assert.EqualValues(t, 42, *ready.RedmineUserID)

	waiting := byAccount["stranger"]
	assert.Equal(t, store.StatusPendingAnalysis, waiting.MigrationStatus)
	require.NotNil(t, waiting.Notes)
	assert.Contains(t, *waiting.Notes, "stranger")
}

func strPtr(s string) *string { return &s }
