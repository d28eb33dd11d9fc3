// Package config loads and validates the j2r configuration file.
//
// Configuration is read from j2r.yaml via viper, with J2R_* environment
// variables overriding file values (e.g. J2R_JIRA_API_TOKEN overrides
// jira.api_token). Credentials are required lazily: a command that never
// talks to SharePoint does not need the sharepoint section.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Jira holds connection settings for the Jira Cloud instance.
type Jira struct {
	BaseURL  string `mapstructure:"base_url"`
	Email    string `mapstructure:"email"`
	APIToken string `mapstructure:"api_token"`
}

// Redmine holds connection settings for the target Redmine instance.
type Redmine struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// ExtendedAPIPrefix is the URL prefix of the optional extended API
	// plugin that accepts author/timestamp overrides on journals.
	ExtendedAPIPrefix string `mapstructure:"extended_api_prefix"`
}

// Database selects the mapping database backend.
type Database struct {
	// Driver is "sqlite" or "mysql".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// SharePoint holds Microsoft Graph settings for large-attachment offload.
// Offload is disabled when TenantID or ClientID is empty.
type SharePoint struct {
	TenantID              string `mapstructure:"tenant_id"`
	ClientID              string `mapstructure:"client_id"`
	ClientSecret          string `mapstructure:"client_secret"`
	SiteID                string `mapstructure:"site_id"`
	DriveID               string `mapstructure:"drive_id"`
	Folder                string `mapstructure:"folder"`
	OffloadThresholdBytes int64  `mapstructure:"offload_threshold_bytes"`
	ChunkSizeBytes        int64  `mapstructure:"chunk_size_bytes"`
}

// Configured reports whether SharePoint offload can be used at all.
func (s SharePoint) Configured() bool {
	return s.TenantID != "" && s.ClientID != "" && s.ClientSecret != ""
}

// Defaults are the operator-configured fallbacks used when a foreign
// dependency of an issue cannot be resolved. A zero value means "no
// default configured" and pushes the row to manual intervention.
type Defaults struct {
	ProjectID  int    `mapstructure:"project_id"`
	TrackerID  int    `mapstructure:"tracker_id"`
	StatusID   int    `mapstructure:"status_id"`
	PriorityID int    `mapstructure:"priority_id"`
	AuthorID   int    `mapstructure:"author_id"`
	AssigneeID int    `mapstructure:"assignee_id"`
	IsPrivate  *bool  `mapstructure:"is_private"`
	UserStatus string `mapstructure:"user_status"` // ACTIVE or LOCKED; default LOCKED
}

// Attachments holds local download settings.
type Attachments struct {
	Dir             string `mapstructure:"dir"`
	DownloadWorkers int    `mapstructure:"download_workers"`
}

// Config is the full parsed configuration.
type Config struct {
	Jira        Jira        `mapstructure:"jira"`
	Redmine     Redmine     `mapstructure:"redmine"`
	Database    Database    `mapstructure:"database"`
	SharePoint  SharePoint  `mapstructure:"sharepoint"`
	Defaults    Defaults    `mapstructure:"defaults"`
	Attachments Attachments `mapstructure:"attachments"`
}

// Load reads the configuration from the given path, or from the default
// search locations (cwd, then $HOME/.config/j2r) when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("J2R")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("j2r")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "j2r"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when everything comes from the
		// environment; a malformed file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "j2r.db")
	v.SetDefault("redmine.extended_api_prefix", "/extended_api")
	v.SetDefault("sharepoint.offload_threshold_bytes", int64(50*1024*1024))
	v.SetDefault("sharepoint.chunk_size_bytes", int64(5*1024*1024))
	v.SetDefault("defaults.user_status", "LOCKED")
	v.SetDefault("attachments.dir", filepath.Join(os.TempDir(), "attachments", "jira"))
	v.SetDefault("attachments.download_workers", 4)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Defaults.UserStatus {
	case "", "ACTIVE", "LOCKED":
	default:
		return fmt.Errorf("defaults.user_status must be ACTIVE or LOCKED, got %q", c.Defaults.UserStatus)
	}
	if c.SharePoint.ChunkSizeBytes < 0 || c.SharePoint.OffloadThresholdBytes < 0 {
		return fmt.Errorf("sharepoint sizes must be non-negative")
	}
	return nil
}

// RequireJira returns an error unless the Jira section is complete.
func (c *Config) RequireJira() error {
	if c.Jira.BaseURL == "" || c.Jira.Email == "" || c.Jira.APIToken == "" {
		return fmt.Errorf("jira.base_url, jira.email and jira.api_token are required (j2r.yaml or J2R_JIRA_* env)")
	}
	return nil
}

// RequireRedmine returns an error unless the Redmine section is complete.
func (c *Config) RequireRedmine() error {
	if c.Redmine.BaseURL == "" || c.Redmine.APIKey == "" {
		return fmt.Errorf("redmine.base_url and redmine.api_key are required (j2r.yaml or J2R_REDMINE_* env)")
	}
	return nil
}
