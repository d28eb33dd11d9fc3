package store

// schemaMySQL mirrors schema_sqlite.go for the mysql backend. Differences
// are limited to dialect: VARCHAR keys (utf8mb4 index width), AUTO_INCREMENT
// surrogate ids, TINYINT(1) booleans and LONGTEXT payloads. Statement-level
// content must stay in lockstep with the sqlite DDL.
var schemaMySQL = []string{
	`CREATE TABLE IF NOT EXISTS staging_jira_projects (
    jira_project_id VARCHAR(64) PRIMARY KEY,
    jira_key VARCHAR(255) NOT NULL,
    name VARCHAR(512) NOT NULL DEFAULT '',
    description LONGTEXT,
    lead_account_id VARCHAR(128),
    is_private TINYINT(1) NOT NULL DEFAULT 0,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_users (
    jira_account_id VARCHAR(128) PRIMARY KEY,
    display_name VARCHAR(512) NOT NULL DEFAULT '',
    email_address VARCHAR(320),
    active TINYINT(1) NOT NULL DEFAULT 1,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_issues (
    jira_issue_id VARCHAR(64) PRIMARY KEY,
    jira_issue_key VARCHAR(64) NOT NULL,
    jira_project_id VARCHAR(64) NOT NULL,
    issue_type_id VARCHAR(64),
    status_id VARCHAR(64),
    status_category VARCHAR(64),
    priority_id VARCHAR(64),
    reporter_account_id VARCHAR(128),
    assignee_account_id VARCHAR(128),
    parent_issue_id VARCHAR(64),
    summary VARCHAR(1024) NOT NULL DEFAULT '',
    description_adf LONGTEXT,
    created VARCHAR(40),
    updated VARCHAR(40),
    duedate VARCHAR(16),
    time_original_estimate BIGINT,
    security_present TINYINT(1) NOT NULL DEFAULT 0,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    INDEX idx_staging_issues_project (jira_project_id)
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_comments (
    jira_comment_id VARCHAR(64) PRIMARY KEY,
    jira_issue_id VARCHAR(64) NOT NULL,
    author_account_id VARCHAR(128),
    body_adf LONGTEXT,
    rendered_body LONGTEXT,
    created VARCHAR(40),
    updated VARCHAR(40),
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    INDEX idx_staging_comments_issue (jira_issue_id)
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_changelogs (
    jira_changelog_id VARCHAR(64) PRIMARY KEY,
    jira_issue_id VARCHAR(64) NOT NULL,
    author_account_id VARCHAR(128),
    created VARCHAR(40),
    items LONGTEXT NOT NULL,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    INDEX idx_staging_changelogs_issue (jira_issue_id)
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_watchers (
    jira_issue_id VARCHAR(64) NOT NULL,
    jira_account_id VARCHAR(128) NOT NULL,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    PRIMARY KEY (jira_issue_id, jira_account_id)
)`,
	`CREATE TABLE IF NOT EXISTS staging_jira_attachments (
    jira_attachment_id VARCHAR(64) PRIMARY KEY,
    jira_issue_id VARCHAR(64) NOT NULL,
    filename VARCHAR(512) NOT NULL,
    filesize BIGINT NOT NULL DEFAULT 0,
    mime_type VARCHAR(255),
    content_url VARCHAR(2048) NOT NULL DEFAULT '',
    author_account_id VARCHAR(128),
    created VARCHAR(40),
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    INDEX idx_staging_attachments_issue (jira_issue_id)
)`,
	`CREATE TABLE IF NOT EXISTS staging_redmine_projects (
    redmine_project_id BIGINT PRIMARY KEY,
    identifier VARCHAR(255) NOT NULL,
    name VARCHAR(512) NOT NULL DEFAULT '',
    description LONGTEXT,
    is_public TINYINT(1) NOT NULL DEFAULT 1,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL,
    INDEX idx_staging_rm_projects_identifier (identifier)
)`,
	`CREATE TABLE IF NOT EXISTS staging_redmine_users (
    redmine_user_id BIGINT PRIMARY KEY,
    login VARCHAR(320) NOT NULL DEFAULT '',
    mail VARCHAR(320) NOT NULL DEFAULT '',
    firstname VARCHAR(255) NOT NULL DEFAULT '',
    lastname VARCHAR(255) NOT NULL DEFAULT '',
    status BIGINT NOT NULL DEFAULT 1,
    raw_payload LONGTEXT NOT NULL,
    extracted_at VARCHAR(40) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS lookup_trackers (
    jira_issue_type_id VARCHAR(64) PRIMARY KEY,
    redmine_tracker_id BIGINT NOT NULL,
    note TEXT
)`,
	`CREATE TABLE IF NOT EXISTS lookup_statuses (
    jira_status_id VARCHAR(64) PRIMARY KEY,
    redmine_status_id BIGINT NOT NULL,
    note TEXT
)`,
	`CREATE TABLE IF NOT EXISTS lookup_priorities (
    jira_priority_id VARCHAR(64) PRIMARY KEY,
    redmine_priority_id BIGINT NOT NULL,
    note TEXT
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_projects (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_project_id VARCHAR(64) NOT NULL UNIQUE,
    redmine_project_id BIGINT,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    proposed_identifier VARCHAR(255),
    proposed_name VARCHAR(512),
    proposed_description LONGTEXT,
    proposed_is_public TINYINT(1),
    automation_hash VARCHAR(80),
    issues_extracted_at VARCHAR(40),
    last_updated_at VARCHAR(40) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_users (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_account_id VARCHAR(128) NOT NULL UNIQUE,
    redmine_user_id BIGINT,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    match_type VARCHAR(16),
    notes TEXT,
    proposed_redmine_login VARCHAR(320),
    proposed_redmine_mail VARCHAR(320),
    proposed_firstname VARCHAR(255),
    proposed_lastname VARCHAR(255),
    proposed_redmine_status VARCHAR(16),
    automation_hash VARCHAR(80),
    jira_display_name VARCHAR(512),
    jira_email_address VARCHAR(320),
    last_updated_at VARCHAR(40) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_issues (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_issue_id VARCHAR(64) NOT NULL UNIQUE,
    jira_issue_key VARCHAR(64) NOT NULL DEFAULT '',
    jira_project_id VARCHAR(64),
    jira_issue_type_id VARCHAR(64),
    jira_status_id VARCHAR(64),
    jira_priority_id VARCHAR(64),
    jira_reporter_account_id VARCHAR(128),
    jira_assignee_account_id VARCHAR(128),
    jira_parent_issue_id VARCHAR(64),
    redmine_issue_id BIGINT,
    redmine_project_id BIGINT,
    redmine_tracker_id BIGINT,
    redmine_status_id BIGINT,
    redmine_priority_id BIGINT,
    redmine_author_id BIGINT,
    redmine_assigned_to_id BIGINT,
    redmine_parent_issue_id BIGINT,
    proposed_subject VARCHAR(255),
    proposed_description LONGTEXT,
    proposed_start_date VARCHAR(16),
    proposed_due_date VARCHAR(16),
    proposed_done_ratio BIGINT,
    proposed_estimated_hours DOUBLE,
    proposed_is_private TINYINT(1),
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    automation_hash VARCHAR(80),
    last_updated_at VARCHAR(40) NOT NULL,
    INDEX idx_mapping_issues_status (migration_status),
    INDEX idx_mapping_issues_parent (jira_parent_issue_id)
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_attachments (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_attachment_id VARCHAR(64) NOT NULL UNIQUE,
    jira_issue_id VARCHAR(64) NOT NULL,
    jira_filesize BIGINT,
    association_hint VARCHAR(16),
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_DOWNLOAD',
    local_filepath VARCHAR(1024),
    redmine_upload_token VARCHAR(255),
    redmine_attachment_id BIGINT,
    redmine_issue_id BIGINT,
    sharepoint_url VARCHAR(2048),
    notes TEXT,
    download_enabled TINYINT(1) NOT NULL DEFAULT 1,
    upload_enabled TINYINT(1) NOT NULL DEFAULT 1,
    last_updated_at VARCHAR(40) NOT NULL,
    INDEX idx_mapping_attachments_issue (jira_issue_id),
    INDEX idx_mapping_attachments_status (migration_status)
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_journals (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_entity_id VARCHAR(64) NOT NULL,
    jira_issue_id VARCHAR(64) NOT NULL,
    entity_type VARCHAR(16) NOT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING',
    notes TEXT,
    proposed_notes LONGTEXT,
    proposed_author_id BIGINT,
    proposed_created_on VARCHAR(40),
    proposed_updated_on VARCHAR(40),
    redmine_journal_id BIGINT,
    automation_hash VARCHAR(80),
    last_updated_at VARCHAR(40) NOT NULL,
    UNIQUE KEY uniq_journal_entity (entity_type, jira_entity_id),
    INDEX idx_mapping_journals_issue (jira_issue_id)
)`,
	`CREATE TABLE IF NOT EXISTS migration_mapping_watchers (
    mapping_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    jira_issue_id VARCHAR(64) NOT NULL,
    jira_issue_key VARCHAR(64),
    jira_account_id VARCHAR(128) NOT NULL,
    redmine_issue_id BIGINT,
    redmine_user_id BIGINT,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    notes TEXT,
    last_updated_at VARCHAR(40) NOT NULL,
    UNIQUE KEY uniq_watcher (jira_issue_id, jira_account_id)
)`,
	`CREATE TABLE IF NOT EXISTS migration_state (
    jira_issue_id VARCHAR(64) NOT NULL,
    aspect VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    detail TEXT,
    updated_at VARCHAR(40) NOT NULL,
    PRIMARY KEY (jira_issue_id, aspect)
)`,
}
