package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// starterConfig mirrors the config package's YAML layout with placeholder
// values an operator fills in before the first run.
type starterConfig struct {
	Jira struct {
		BaseURL  string `yaml:"base_url"`
		Email    string `yaml:"email"`
		APIToken string `yaml:"api_token"`
	} `yaml:"jira"`
	Redmine struct {
		BaseURL           string `yaml:"base_url"`
		APIKey            string `yaml:"api_key"`
		ExtendedAPIPrefix string `yaml:"extended_api_prefix"`
	} `yaml:"redmine"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Defaults struct {
		ProjectID  int    `yaml:"project_id"`
		TrackerID  int    `yaml:"tracker_id"`
		StatusID   int    `yaml:"status_id"`
		PriorityID int    `yaml:"priority_id"`
		AuthorID   int    `yaml:"author_id"`
		UserStatus string `yaml:"user_status"`
	} `yaml:"defaults"`
	Attachments struct {
		Dir             string `yaml:"dir"`
		DownloadWorkers int    `yaml:"download_workers"`
	} `yaml:"attachments"`
	SharePoint struct {
		TenantID              string `yaml:"tenant_id"`
		ClientID              string `yaml:"client_id"`
		ClientSecret          string `yaml:"client_secret"`
		SiteID                string `yaml:"site_id"`
		DriveID               string `yaml:"drive_id"`
		Folder                string `yaml:"folder"`
		OffloadThresholdBytes int64  `yaml:"offload_threshold_bytes"`
	} `yaml:"sharepoint"`
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter j2r.yaml in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "j2r.yaml"
			if configPath != "" {
				target = configPath
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}

			var c starterConfig
			c.Jira.BaseURL = "https://your-instance.atlassian.net"
			c.Jira.Email = "migration@example.com"
			c.Jira.APIToken = "changeme"
			c.Redmine.BaseURL = "https://redmine.example.com"
			c.Redmine.APIKey = "changeme"
			c.Redmine.ExtendedAPIPrefix = "/extended_api"
			c.Database.Driver = "sqlite"
			c.Database.DSN = "j2r.db"
			c.Defaults.UserStatus = "LOCKED"
			c.Attachments.Dir = filepath.Join(os.TempDir(), "attachments", "jira")
			c.Attachments.DownloadWorkers = 4
			c.SharePoint.OffloadThresholdBytes = 50 * 1024 * 1024

			out, err := yaml.Marshal(&c)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, out, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
