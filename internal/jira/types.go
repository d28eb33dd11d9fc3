package jira

import "encoding/json"

// Project represents a Jira project from the REST API.
type Project struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Lead        *UserField      `json:"lead"`
	IsPrivate   bool            `json:"isPrivate"`
	Raw         json.RawMessage `json:"-"`
}

// projectSearchResult is the envelope of /rest/api/3/project/search.
type projectSearchResult struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	IsLast     bool              `json:"isLast"`
	Values     []json.RawMessage `json:"values"`
}

// User represents a Jira user from /rest/api/3/users/search.
type User struct {
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// UserField is the short user shape embedded in other payloads.
type UserField struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Issue represents a Jira issue. Fields stays raw so the staging table keeps
// the untouched payload; IssueFields is the parsed subset the pipeline needs.
type Issue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

// IssueFields is the subset of issue fields persisted into staging columns.
type IssueFields struct {
	Summary              string          `json:"summary"`
	Description          json.RawMessage `json:"description"` // ADF document or null
	IssueType            *IDField        `json:"issuetype"`
	Status               *StatusField    `json:"status"`
	Priority             *IDField        `json:"priority"`
	Reporter             *UserField      `json:"reporter"`
	Assignee             *UserField      `json:"assignee"`
	Parent               *IDField        `json:"parent"`
	Created              string          `json:"created"`
	Updated              string          `json:"updated"`
	DueDate              string          `json:"duedate"`
	TimeOriginalEstimate *int64          `json:"timeoriginalestimate"`
	Security             json.RawMessage `json:"security"`
	Attachment           []Attachment    `json:"attachment"`
}

// IDField carries just the id of a referenced object.
type IDField struct {
	ID string `json:"id"`
}

// StatusField carries a status id plus its category key (done detection).
type StatusField struct {
	ID             string `json:"id"`
	StatusCategory *struct {
		Key string `json:"key"`
	} `json:"statusCategory"`
}

// Attachment is the descriptor embedded in issue fields.
type Attachment struct {
	ID       string     `json:"id"`
	Filename string     `json:"filename"`
	Size     int64      `json:"size"`
	MimeType string     `json:"mimeType"`
	Content  string     `json:"content"`
	Author   *UserField `json:"author"`
	Created  string     `json:"created"`
}

// searchJQLRequest is the body of POST /rest/api/3/search/jql.
type searchJQLRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

// searchJQLResult is the response envelope of POST /rest/api/3/search/jql.
type searchJQLResult struct {
	Issues []json.RawMessage `json:"issues"`
}

// commentPage is the envelope of /rest/api/3/issue/{id}/comment.
type commentPage struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Comments   []json.RawMessage `json:"comments"`
}

// Comment is one issue comment.
type Comment struct {
	ID           string          `json:"id"`
	Author       *UserField      `json:"author"`
	Body         json.RawMessage `json:"body"` // ADF document
	RenderedBody string          `json:"renderedBody"`
	Created      string          `json:"created"`
	Updated      string          `json:"updated"`
}

// changelogPage is the envelope of /rest/api/3/issue/{id}/changelog.
type changelogPage struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Values     []json.RawMessage `json:"values"`
}

// ChangelogEntry is one changelog group with its item list.
type ChangelogEntry struct {
	ID      string          `json:"id"`
	Author  *UserField      `json:"author"`
	Created string          `json:"created"`
	Items   []ChangelogItem `json:"items"`
}

// ChangelogItem is one field change inside a changelog group.
type ChangelogItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// watchersResult is the envelope of /rest/api/3/issue/{id}/watchers.
type watchersResult struct {
	WatchCount int         `json:"watchCount"`
	Watchers   []UserField `json:"watchers"`
}
