package store

// Migration statuses shared by the mapping tables. Not every entity uses
// every status; the per-entity transform and push code documents which
// subset applies.
const (
	StatusPendingAnalysis    = "PENDING_ANALYSIS"
	StatusReadyForCreation   = "READY_FOR_CREATION"
	StatusReadyForPush       = "READY_FOR_PUSH"
	StatusMatchFound         = "MATCH_FOUND"
	StatusManualIntervention = "MANUAL_INTERVENTION_REQUIRED"
	StatusCreationSuccess    = "CREATION_SUCCESS"
	StatusCreationFailed     = "CREATION_FAILED"
	StatusSuccess            = "SUCCESS"
	StatusFailed             = "FAILED"
	StatusSkipped            = "SKIPPED"
	StatusPending            = "PENDING"

	// Attachment pipeline sub-states.
	StatusPendingDownload    = "PENDING_DOWNLOAD"
	StatusPendingUpload      = "PENDING_UPLOAD"
	StatusPendingAssociation = "PENDING_ASSOCIATION"
)

// Association hints for attachments.
const (
	HintIssue   = "ISSUE"
	HintJournal = "JOURNAL"
)

// Journal entity types.
const (
	EntityComment   = "COMMENT"
	EntityChangelog = "CHANGELOG"
)

// User match types.
const (
	MatchLogin = "LOGIN"
	MatchMail  = "MAIL"
)

// Per-issue extraction aspects tracked in migration_state.
const (
	AspectComments  = "comments"
	AspectChangelog = "changelog"
	AspectWatchers  = "watchers"
)

// Extraction states recorded in migration_state.
const (
	StateSuccess = "SUCCESS"
	StateWarning = "WARNING"
	StateFailed  = "FAILED"
)

// Ready reports whether a mapping status counts as "ready" for foreign
// dependency resolution: the Redmine object exists.
func Ready(status string) bool {
	return status == StatusMatchFound || status == StatusCreationSuccess
}

// --- Staging rows ---

// StagingJiraProject mirrors one row of staging_jira_projects.
type StagingJiraProject struct {
	JiraProjectID string
	JiraKey       string
	Name          string
	Description   *string
	LeadAccountID *string
	IsPrivate     bool
	RawPayload    string
	ExtractedAt   string
}

// StagingJiraUser mirrors one row of staging_jira_users.
type StagingJiraUser struct {
	JiraAccountID string
	DisplayName   string
	EmailAddress  *string
	Active        bool
	RawPayload    string
	ExtractedAt   string
}

// StagingJiraIssue mirrors one row of staging_jira_issues.
type StagingJiraIssue struct {
	JiraIssueID          string
	JiraIssueKey         string
	JiraProjectID        string
	IssueTypeID          *string
	StatusID             *string
	StatusCategory       *string
	PriorityID           *string
	ReporterAccountID    *string
	AssigneeAccountID    *string
	ParentIssueID        *string
	Summary              string
	DescriptionADF       *string
	Created              *string
	Updated              *string
	DueDate              *string
	TimeOriginalEstimate *int64
	SecurityPresent      bool
	RawPayload           string
	ExtractedAt          string
}

// StagingJiraComment mirrors one row of staging_jira_comments.
type StagingJiraComment struct {
	JiraCommentID   string
	JiraIssueID     string
	AuthorAccountID *string
	BodyADF         *string
	RenderedBody    *string
	Created         *string
	Updated         *string
	RawPayload      string
	ExtractedAt     string
}

// StagingJiraChangelog mirrors one row of staging_jira_changelogs.
type StagingJiraChangelog struct {
	JiraChangelogID string
	JiraIssueID     string
	AuthorAccountID *string
	Created         *string
	Items           string // JSON array of {field, fromString, toString}
	RawPayload      string
	ExtractedAt     string
}

// StagingJiraWatcher mirrors one row of staging_jira_watchers.
type StagingJiraWatcher struct {
	JiraIssueID   string
	JiraAccountID string
	RawPayload    string
	ExtractedAt   string
}

// StagingJiraAttachment mirrors one row of staging_jira_attachments.
type StagingJiraAttachment struct {
	JiraAttachmentID string
	JiraIssueID      string
	Filename         string
	Filesize         int64
	MimeType         *string
	ContentURL       string
	AuthorAccountID  *string
	Created          *string
	RawPayload       string
	ExtractedAt      string
}

// StagingRedmineProject mirrors one row of staging_redmine_projects.
type StagingRedmineProject struct {
	RedmineProjectID int64
	Identifier       string
	Name             string
	Description      *string
	IsPublic         bool
	RawPayload       string
	ExtractedAt      string
}

// StagingRedmineUser mirrors one row of staging_redmine_users.
type StagingRedmineUser struct {
	RedmineUserID int64
	Login         string
	Mail          string
	Firstname     string
	Lastname      string
	Status        int64
	RawPayload    string
	ExtractedAt   string
}

// --- Mapping rows ---

// ProjectMapping mirrors migration_mapping_projects.
type ProjectMapping struct {
	MappingID           int64
	JiraProjectID       string
	RedmineProjectID    *int64
	MigrationStatus     string
	Notes               *string
	ProposedIdentifier  *string
	ProposedName        *string
	ProposedDescription *string
	ProposedIsPublic    *bool
	AutomationHash      *string
	IssuesExtractedAt   *string
	LastUpdatedAt       string
}

// UserMapping mirrors migration_mapping_users.
type UserMapping struct {
	MappingID             int64
	JiraAccountID         string
	RedmineUserID         *int64
	MigrationStatus       string
	MatchType             *string
	Notes                 *string
	ProposedRedmineLogin  *string
	ProposedRedmineMail   *string
	ProposedFirstname     *string
	ProposedLastname      *string
	ProposedRedmineStatus *string
	AutomationHash        *string
	JiraDisplayName       *string
	JiraEmailAddress      *string
	LastUpdatedAt         string
}

// IssueMapping mirrors migration_mapping_issues.
type IssueMapping struct {
	MappingID             int64
	JiraIssueID           string
	JiraIssueKey          string
	JiraProjectID         *string
	JiraIssueTypeID       *string
	JiraStatusID          *string
	JiraPriorityID        *string
	JiraReporterAccountID *string
	JiraAssigneeAccountID *string
	JiraParentIssueID     *string
	RedmineIssueID        *int64
	RedmineProjectID      *int64
	RedmineTrackerID      *int64
	RedmineStatusID       *int64
	RedminePriorityID     *int64
	RedmineAuthorID       *int64
	RedmineAssignedToID   *int64
	RedmineParentIssueID  *int64
	ProposedSubject       *string
	ProposedDescription   *string
	ProposedStartDate     *string
	ProposedDueDate       *string
	ProposedDoneRatio     *int64
	ProposedEstimated     *float64
	ProposedIsPrivate     *bool
	MigrationStatus       string
	Notes                 *string
	AutomationHash        *string
	LastUpdatedAt         string
}

// AttachmentMapping mirrors migration_mapping_attachments.
type AttachmentMapping struct {
	MappingID          int64
	JiraAttachmentID   string
	JiraIssueID        string
	JiraFilesize       *int64
	AssociationHint    *string
	MigrationStatus    string
	LocalFilepath      *string
	RedmineUploadToken *string
	RedmineAttachment  *int64
	RedmineIssueID     *int64
	SharePointURL      *string
	Notes              *string
	DownloadEnabled    bool
	UploadEnabled      bool
	LastUpdatedAt      string
}

// JournalMapping mirrors migration_mapping_journals.
type JournalMapping struct {
	MappingID         int64
	JiraEntityID      string
	JiraIssueID       string
	EntityType        string
	MigrationStatus   string
	Notes             *string
	ProposedNotes     *string
	ProposedAuthorID  *int64
	ProposedCreatedOn *string
	ProposedUpdatedOn *string
	RedmineJournalID  *int64
	AutomationHash    *string
	LastUpdatedAt     string
}

// WatcherMapping mirrors migration_mapping_watchers.
type WatcherMapping struct {
	MappingID       int64
	JiraIssueID     string
	JiraIssueKey    *string
	JiraAccountID   string
	RedmineIssueID  *int64
	RedmineUserID   *int64
	MigrationStatus string
	Notes           *string
	LastUpdatedAt   string
}

// LookupRow is one operator-maintained mapping of a Jira lookup id to a
// Redmine id (trackers, statuses, priorities).
type LookupRow struct {
	JiraID    string
	RedmineID int64
	Note      *string
}

// ExtractionState is one row of migration_state: the outcome of a per-issue
// comment/changelog/watcher fetch.
type ExtractionState struct {
	JiraIssueID string
	Aspect      string
	Status      string
	Detail      *string
	UpdatedAt   string
}
