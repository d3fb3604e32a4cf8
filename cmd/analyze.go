// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/schema"
)

// newAnalyzeCmd prints per-table row counts and FK fan-out, grounded on
// original_source/padmy/db.py's pretty_print_stats. --show-graphs is
// explicitly out of scope (see SPEC_FULL.md's Supplemented Features).
func newAnalyzeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "analyze",
		Short: "Print row counts and foreign-key fan-out for every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := flags.Schemas(cmd)
			if len(schemas) == 0 {
				schemas = []string{"public"}
			}

			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			graph, err := schema.NewIntrospector(conn).Load(cmd.Context(), schemas)
			if err != nil {
				return fmt.Errorf("introspecting schema: %w", err)
			}

			names := make([]string, 0, len(graph.Tables))
			for name := range graph.Tables {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS\tPARENTS\tCHILDREN\tIGNORED")
			for _, name := range names {
				t := graph.Tables[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%t\n", name, t.RowCount, len(t.ParentsSafe()), len(t.ChildrenSafe(graph.IgnoredFunc())), t.Ignored)
			}
			return w.Flush()
		},
	}

	flags.AddConnectionFlags(c, flags.SideDefault)
	flags.AddSchemasFlag(c, "public")

	return c
}
