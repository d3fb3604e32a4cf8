// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/sampling"
	"github.com/Tracktor/padmy/pkg/schema"
)

func newSampleCmd() *cobra.Command {
	var samplePercent float64
	var configPath string
	var chunkSize int
	var disableTriggers bool
	var startFrom string
	var copySchemaFirst bool
	var dropPublic bool

	c := &cobra.Command{
		Use:   "sample",
		Short: "Sample an FK-closure-preserving subset of a database into another",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := flags.Schemas(cmd)
			if len(schemas) == 0 {
				return fmt.Errorf("at least one --schema is required")
			}

			fromDesc, err := flags.Connection(cmd, flags.SideFrom)
			if err != nil {
				return err
			}
			toDesc, err := flags.Connection(cmd, flags.SideTo)
			if err != nil {
				return err
			}

			fromConn, err := openDB(fromDesc)
			if err != nil {
				return err
			}
			defer fromConn.Close()

			if copySchemaFirst {
				if err := sampling.CopySchema(cmd.Context(), newCLI(fromDesc), fromDesc.Database, newCLI(toDesc), toDesc.Database, schemas, dropPublic); err != nil {
					return fmt.Errorf("copying schema: %w", err)
				}
			}

			toConn, err := openDB(toDesc)
			if err != nil {
				return err
			}
			defer toConn.Close()

			graph, err := schema.NewIntrospector(fromConn).Load(cmd.Context(), schemas)
			if err != nil {
				return fmt.Errorf("introspecting schema: %w", err)
			}

			cfg := sampling.NewGlobalConfig(samplePercent, schemas)
			if configPath != "" {
				cfg, err = sampling.LoadConfig(configPath)
				if err != nil {
					return err
				}
			}

			if err := sampling.ResolveSampleSizes(graph, cfg); err != nil {
				return err
			}

			opts := sampling.RunOptions{
				StartFrom:       sampling.StartFrom(startFrom),
				DisableTriggers: disableTriggers,
			}

			return sampling.SampleDatabase(cmd.Context(), fromConn, toConn, graph, opts, chunkSize, nil)
		},
	}

	flags.AddConnectionFlags(c, flags.SideFrom)
	flags.AddConnectionFlags(c, flags.SideTo)
	flags.AddSchemasFlag(c)
	c.Flags().Float64Var(&samplePercent, "sample", 10, "Global sample percentage (0-100), used when --config is not set")
	c.Flags().StringVar(&configPath, "config", "", "Path to a sampling YAML config (overrides --sample)")
	c.Flags().IntVar(&chunkSize, "chunk-size", 0, "Rows per INSERT batch when transferring sampled data")
	c.Flags().BoolVar(&disableTriggers, "disable-triggers", true, "Disable triggers on the target while inserting")
	c.Flags().StringVar(&startFrom, "start-from", "root", "Worklist traversal start: root or leaf")
	c.Flags().BoolVar(&copySchemaFirst, "copy-schema", false, "Copy the schema into the target database before sampling")
	c.Flags().BoolVar(&dropPublic, "drop-public", false, "Drop the target's public schema before restoring (with --copy-schema)")

	return c
}
