// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/anonymize"
	"github.com/Tracktor/padmy/pkg/sampling"
	"github.com/Tracktor/padmy/pkg/schema"
)

func newAnonymizeCmd() *cobra.Command {
	var configPath string
	var chunkSize int

	c := &cobra.Command{
		Use:   "anonymize",
		Short: "Anonymize the columns declared in a config file, in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
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

			cfg, err := sampling.LoadConfig(configPath)
			if err != nil {
				return err
			}

			schemas := flags.Schemas(cmd)
			if len(schemas) == 0 {
				for _, s := range cfg.Schemas {
					schemas = append(schemas, s.Schema)
				}
				for _, t := range cfg.Tables {
					schemas = append(schemas, t.Schema)
				}
			}

			graph, err := schema.NewIntrospector(conn).Load(cmd.Context(), schemas)
			if err != nil {
				return fmt.Errorf("introspecting schema: %w", err)
			}

			return anonymize.AnonymizeDatabase(cmd.Context(), conn, graph, cfg, anonymize.Options{ChunkSize: chunkSize})
		},
	}

	flags.AddConnectionFlags(c, flags.SideDefault)
	flags.AddSchemasFlag(c)
	c.Flags().StringVar(&configPath, "config", "", "Path to the anonymize YAML config")
	c.Flags().IntVar(&chunkSize, "chunk-size", 0, "Rows read per batch while anonymizing")

	return c
}
