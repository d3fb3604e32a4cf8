// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/compare"
)

func newCompareCmd() *cobra.Command {
	var noPrivileges bool

	c := &cobra.Command{
		Use:   "compare",
		Short: "Compare the schemas of two databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := flags.Schemas(cmd)

			fromDesc, err := flags.Connection(cmd, flags.SideFrom)
			if err != nil {
				return err
			}
			toDesc, err := flags.Connection(cmd, flags.SideTo)
			if err != nil {
				return err
			}

			result, err := compare.CompareSchemas(cmd.Context(), newCLI(fromDesc), fromDesc.Database, newCLI(toDesc), toDesc.Database, compare.Options{
				Schemas:      schemas,
				NoPrivileges: noPrivileges,
			})
			if err != nil {
				return err
			}

			if result.Equal {
				fmt.Fprintln(cmd.OutOrStdout(), "Schemas are identical")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Diff)
			return fmt.Errorf("schemas differ")
		},
	}

	flags.AddConnectionFlags(c, flags.SideFrom)
	flags.AddConnectionFlags(c, flags.SideTo)
	flags.AddSchemasFlag(c)
	c.Flags().BoolVar(&noPrivileges, "no-privileges", true, "Omit privilege (GRANT/REVOKE) statements from the dump")

	return c
}
