package store

// schemaSQLite is the mapping-database DDL for the sqlite backend.
// Staging tables hold raw source payloads; migration_mapping_* tables hold
// proposals, statuses and Redmine identifiers. Mapping rows are never
// deleted, so no ON DELETE clauses reference them.
const schemaSQLite = `
-- Jira staging (upserted on every extraction run)
CREATE TABLE IF NOT EXISTS staging_jira_projects (
    jira_project_id TEXT PRIMARY KEY,
    jira_key TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    description TEXT,
    lead_account_id TEXT,
    is_private INTEGER NOT NULL DEFAULT 0,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_jira_users (
    jira_account_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    email_address TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_jira_issues (
    jira_issue_id TEXT PRIMARY KEY,
    jira_issue_key TEXT NOT NULL,
    jira_project_id TEXT NOT NULL,
    issue_type_id TEXT,
    status_id TEXT,
    status_category TEXT,
    priority_id TEXT,
    reporter_account_id TEXT,
    assignee_account_id TEXT,
    parent_issue_id TEXT,
    summary TEXT NOT NULL DEFAULT '',
    description_adf TEXT,
    created TEXT,
    updated TEXT,
    duedate TEXT,
    time_original_estimate INTEGER,
    security_present INTEGER NOT NULL DEFAULT 0,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staging_issues_project ON staging_jira_issues(jira_project_id);

CREATE TABLE IF NOT EXISTS staging_jira_comments (
    jira_comment_id TEXT PRIMARY KEY,
    jira_issue_id TEXT NOT NULL,
    author_account_id TEXT,
    body_adf TEXT,
    rendered_body TEXT,
    created TEXT,
    updated TEXT,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staging_comments_issue ON staging_jira_comments(jira_issue_id);

CREATE TABLE IF NOT EXISTS staging_jira_changelogs (
    jira_changelog_id TEXT PRIMARY KEY,
    jira_issue_id TEXT NOT NULL,
    author_account_id TEXT,
    created TEXT,
    items TEXT NOT NULL DEFAULT '[]',
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staging_changelogs_issue ON staging_jira_changelogs(jira_issue_id);

CREATE TABLE IF NOT EXISTS staging_jira_watchers (
    jira_issue_id TEXT NOT NULL,
    jira_account_id TEXT NOT NULL,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL,
    PRIMARY KEY (jira_issue_id, jira_account_id)
);

CREATE TABLE IF NOT EXISTS staging_jira_attachments (
    jira_attachment_id TEXT PRIMARY KEY,
    jira_issue_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    filesize INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT,
    content_url TEXT NOT NULL DEFAULT '',
    author_account_id TEXT,
    created TEXT,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staging_attachments_issue ON staging_jira_attachments(jira_issue_id);

-- Redmine snapshots (truncated and reloaded each run)
CREATE TABLE IF NOT EXISTS staging_redmine_projects (
    redmine_project_id INTEGER PRIMARY KEY,
    identifier TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    description TEXT,
    is_public INTEGER NOT NULL DEFAULT 1,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staging_rm_projects_identifier ON staging_redmine_projects(identifier);

CREATE TABLE IF NOT EXISTS staging_redmine_users (
    redmine_user_id INTEGER PRIMARY KEY,
    login TEXT NOT NULL DEFAULT '',
    mail TEXT NOT NULL DEFAULT '',
    firstname TEXT NOT NULL DEFAULT '',
    lastname TEXT NOT NULL DEFAULT '',
    status INTEGER NOT NULL DEFAULT 1,
    raw_payload TEXT NOT NULL DEFAULT '{}',
    extracted_at TEXT NOT NULL
);

-- Operator-maintained lookups (explicit decisions, never inferred)
CREATE TABLE IF NOT EXISTS lookup_trackers (
    jira_issue_type_id TEXT PRIMARY KEY,
    redmine_tracker_id INTEGER NOT NULL,
    note TEXT
);

CREATE TABLE IF NOT EXISTS lookup_statuses (
    jira_status_id TEXT PRIMARY KEY,
    redmine_status_id INTEGER NOT NULL,
    note TEXT
);

CREATE TABLE IF NOT EXISTS lookup_priorities (
    jira_priority_id TEXT PRIMARY KEY,
    redmine_priority_id INTEGER NOT NULL,
    note TEXT
);

-- Mapping tables
CREATE TABLE IF NOT EXISTS migration_mapping_projects (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_project_id TEXT NOT NULL UNIQUE,
    redmine_project_id INTEGER,
    migration_status TEXT NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    proposed_identifier TEXT,
    proposed_name TEXT,
    proposed_description TEXT,
    proposed_is_public INTEGER,
    automation_hash TEXT,
    issues_extracted_at TEXT,
    last_updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS migration_mapping_users (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_account_id TEXT NOT NULL UNIQUE,
    redmine_user_id INTEGER,
    migration_status TEXT NOT NULL DEFAULT 'PENDING_ANALYSIS',
    match_type TEXT,
    notes TEXT,
    proposed_redmine_login TEXT,
    proposed_redmine_mail TEXT,
    proposed_firstname TEXT,
    proposed_lastname TEXT,
    proposed_redmine_status TEXT,
    automation_hash TEXT,
    jira_display_name TEXT,
    jira_email_address TEXT,
    last_updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS migration_mapping_issues (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_issue_id TEXT NOT NULL UNIQUE,
    jira_issue_key TEXT NOT NULL DEFAULT '',
    jira_project_id TEXT,
    jira_issue_type_id TEXT,
    jira_status_id TEXT,
    jira_priority_id TEXT,
    jira_reporter_account_id TEXT,
    jira_assignee_account_id TEXT,
    jira_parent_issue_id TEXT,
    redmine_issue_id INTEGER,
    redmine_project_id INTEGER,
    redmine_tracker_id INTEGER,
    redmine_status_id INTEGER,
    redmine_priority_id INTEGER,
    redmine_author_id INTEGER,
    redmine_assigned_to_id INTEGER,
    redmine_parent_issue_id INTEGER,
    proposed_subject TEXT,
    proposed_description TEXT,
    proposed_start_date TEXT,
    proposed_due_date TEXT,
    proposed_done_ratio INTEGER,
    proposed_estimated_hours REAL,
    proposed_is_private INTEGER,
    migration_status TEXT NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    automation_hash TEXT,
    last_updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mapping_issues_status ON migration_mapping_issues(migration_status);
CREATE INDEX IF NOT EXISTS idx_mapping_issues_parent ON migration_mapping_issues(jira_parent_issue_id);

CREATE TABLE IF NOT EXISTS migration_mapping_attachments (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_attachment_id TEXT NOT NULL UNIQUE,
    jira_issue_id TEXT NOT NULL,
    jira_filesize INTEGER,
    association_hint TEXT,
    migration_status TEXT NOT NULL DEFAULT 'PENDING_DOWNLOAD',
    local_filepath TEXT,
    redmine_upload_token TEXT,
    redmine_attachment_id INTEGER,
    redmine_issue_id INTEGER,
    sharepoint_url TEXT,
    notes TEXT,
    download_enabled INTEGER NOT NULL DEFAULT 1,
    upload_enabled INTEGER NOT NULL DEFAULT 1,
    last_updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mapping_attachments_issue ON migration_mapping_attachments(jira_issue_id);
CREATE INDEX IF NOT EXISTS idx_mapping_attachments_status ON migration_mapping_attachments(migration_status);

CREATE TABLE IF NOT EXISTS migration_mapping_journals (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_entity_id TEXT NOT NULL,
    jira_issue_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    migration_status TEXT NOT NULL DEFAULT 'PENDING',
    notes TEXT,
    proposed_notes TEXT,
    proposed_author_id INTEGER,
    proposed_created_on TEXT,
    proposed_updated_on TEXT,
    redmine_journal_id INTEGER,
    automation_hash TEXT,
    last_updated_at TEXT NOT NULL,
    UNIQUE (entity_type, jira_entity_id)
);
CREATE INDEX IF NOT EXISTS idx_mapping_journals_issue ON migration_mapping_journals(jira_issue_id);

CREATE TABLE IF NOT EXISTS migration_mapping_watchers (
    mapping_id INTEGER PRIMARY KEY AUTOINCREMENT,
    jira_issue_id TEXT NOT NULL,
    jira_issue_key TEXT,
    jira_account_id TEXT NOT NULL,
    redmine_issue_id INTEGER,
    redmine_user_id INTEGER,
    migration_status TEXT NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    last_updated_at TEXT NOT NULL,
    UNIQUE (jira_issue_id, jira_account_id)
);

-- Per-issue extraction outcomes for comment/changelog/watcher fetches
CREATE TABLE IF NOT EXISTS migration_state (
    jira_issue_id TEXT NOT NULL,
    aspect TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (jira_issue_id, aspect)
);
`
