package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// mappingTables pairs each entity family with its mapping table, in
// migration order.
var mappingTables = []struct {
	family string
	table  string
}{
	{"projects", "migration_mapping_projects"},
	{"users", "migration_mapping_users"},
	{"issues", "migration_mapping_issues"},
	{"attachments", "migration_mapping_attachments"},
	{"journals", "migration_mapping_journals"},
	{"watchers", "migration_mapping_watchers"},
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show mapping row counts by migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := configLoad()
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FAMILY\tSTATUS\tCOUNT")
			for _, mt := range mappingTables {
				counts, err := st.StatusCounts(ctx, mt.table)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Fprintf(w, "%s\t-\t0\n", mt.family)
					continue
				}
				statuses := make([]string, 0, len(counts))
				for s := range counts {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%d\n", mt.family, s, counts[s])
				}
			}
			return w.Flush()
		},
	}
}
