package main

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// seedEntry is one operator decision: a Jira id mapped to a Redmine id,
// with an optional human note kept alongside for later review.
type seedEntry struct {
	Redmine int64  `toml:"redmine"`
	Note    string `toml:"note"`
}

// seedFile is the TOML shape of a lookup seed file:
//
//	[trackers.10100]
//	redmine = 1
//	note = "Story -> Feature"
//
//	[statuses.3]
//	redmine = 2
type seedFile struct {
	Trackers   map[string]seedEntry `toml:"trackers"`
	Statuses   map[string]seedEntry `toml:"statuses"`
	Priorities map[string]seedEntry `toml:"priorities"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <lookups.toml>",
		Short: "Load tracker/status/priority decisions into the lookup tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			var f seedFile
			if _, err := toml.DecodeFile(args[0], &f); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			cfg, err := configLoad()
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			log := newLogger()
			for _, sec := range []struct {
				table   string
				entries map[string]seedEntry
			}{
				{store.LookupTrackers, f.Trackers},
				{store.LookupStatuses, f.Statuses},
				{store.LookupPriorities, f.Priorities},
			} {
				rows := seedRows(sec.entries)
				if len(rows) == 0 {
					continue
				}
				if err := st.SeedLookup(ctx, sec.table, rows); err != nil {
					return fmt.Errorf("seed %s: %w", sec.table, err)
				}
				log.WithFields(logrus.Fields{
					"table": sec.table,
					"rows":  len(rows),
				}).Info("lookup seeded")
			}
			return nil
		},
	}
}

func seedRows(entries map[string]seedEntry) []store.LookupRow {
	rows := make([]store.LookupRow, 0, len(entries))
	for jiraID, e := range entries {
		row := store.LookupRow{JiraID: jiraID, RedmineID: e.Redmine}
		if e.Note != "" {
			note := e.Note
			row.Note = &note
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].JiraID < rows[j].JiraID })
	return rows
}
