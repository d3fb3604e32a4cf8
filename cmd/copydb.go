// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/sampling"
)

func newCopyDBCmd() *cobra.Command {
	var dropPublic bool

	c := &cobra.Command{
		Use:   "copy-db",
		Short: "Dump and recreate a schema-only clone of a database into another",
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

			return sampling.CopySchema(cmd.Context(), newCLI(fromDesc), fromDesc.Database, newCLI(toDesc), toDesc.Database, schemas, dropPublic)
		},
	}

	flags.AddConnectionFlags(c, flags.SideFrom)
	flags.AddConnectionFlags(c, flags.SideTo)
	flags.AddSchemasFlag(c, "public")
	c.Flags().BoolVar(&dropPublic, "drop-public", false, "Drop the target's public schema before restoring")

	return c
}
