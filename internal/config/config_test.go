package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "j2r.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "jira:\n  base_url: https://example.atlassian.net\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "j2r.db", cfg.Database.DSN)
	assert.Equal(t, "/extended_api", cfg.Redmine.ExtendedAPIPrefix)
	assert.Equal(t, "LOCKED", cfg.Defaults.UserStatus)
	assert.EqualValues(t, 50*1024*1024, cfg.SharePoint.OffloadThresholdBytes)
	assert.EqualValues(t, 5*1024*1024, cfg.SharePoint.ChunkSizeBytes)
	assert.Equal(t, 4, cfg.Attachments.DownloadWorkers)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
jira:
  base_url: https://example.atlassian.net
  email: migration@example.com
  api_token: tok
redmine:
  base_url: https://redmine.example.com
  api_key: key
database:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/j2r?parseTime=true"
defaults:
  tracker_id: 2
  user_status: ACTIVE
sharepoint:
  tenant_id: t
  client_id: c
  client_secret: s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.RequireJira())
	require.NoError(t, cfg.RequireRedmine())
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Defaults.TrackerID)
	assert.Equal(t, "ACTIVE", cfg.Defaults.UserStatus)
	assert.True(t, cfg.SharePoint.Configured())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "database:\n  driver: postgres\n"},
		{"bad user status", "defaults:\n  user_status: FROZEN\n"},
		{"negative chunk size", "sharepoint:\n  chunk_size_bytes: -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRequireSectionsIncomplete(t *testing.T) {
	path := writeConfig(t, "jira:\n  base_url: https://example.atlassian.net\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Error(t, cfg.RequireJira())
	assert.Error(t, cfg.RequireRedmine())
}

func TestSharePointNotConfigured(t *testing.T) {
	var sp SharePoint
	assert.False(t, sp.Configured())
	sp.TenantID = "t"
	assert.False(t, sp.Configured())
}
