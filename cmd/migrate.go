// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/migrations"
	"github.com/Tracktor/padmy/pkg/pgconn"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration utilities",
		Long: "Utilities to handle schema migrations with PostgreSQL.\n" +
			"If this is the first time running these commands, run `padmy migrate setup` first.",
	}
	flags.AddMigrationDirFlag(migrateCmd)
	flags.AddConnectionFlags(migrateCmd, flags.SideDefault)

	migrateCmd.AddCommand(newMigrateNewCmd())
	migrateCmd.AddCommand(newMigrateUpCmd())
	migrateCmd.AddCommand(newMigrateDownCmd())
	migrateCmd.AddCommand(newMigrateSetupCmd())
	migrateCmd.AddCommand(newMigrateVerifyCmd())
	migrateCmd.AddCommand(newMigrateVerifyFilesCmd())
	migrateCmd.AddCommand(newMigrateVerifyMigrationsCmd())
	migrateCmd.AddCommand(newMigrateReorderFilesCmd())

	return migrateCmd
}

func newMigrateNewCmd() *cobra.Command {
	var version, author string
	var skipVerify bool

	c := &cobra.Command{
		Use:   "new",
		Short: "Create a new up/down migration file pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			up, down, err := migrations.CreateMigration(flags.MigrationDir(), migrations.CreateOptions{
				Version:    version,
				Author:     author,
				SkipVerify: skipVerify,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\nCreated %s\n", up.Path, down.Path)
			return nil
		},
	}
	c.Flags().StringVar(&version, "version", "", "Version of the migration")
	c.Flags().StringVar(&author, "author", "", "Author of the migration")
	c.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip round-trip verification of the down file")
	return c
}

func newMigrateUpCmd() *cobra.Command {
	var n int

	c := &cobra.Command{
		Use:   "up",
		Short: "Migrate the database to the latest (or N next) migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			opts := migrations.ApplyOptions{UseTransaction: true}
			if cmd.Flags().Changed("nb-migrations") {
				opts.N = &n
			}

			applied, err := migrations.MigrateUp(cmd.Context(), conn, flags.MigrationDir(), opts, migrations.NewLogger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", len(applied))
			return nil
		},
	}
	c.Flags().IntVarP(&n, "nb-migrations", "n", 1, "Number of migrations to apply")
	return c
}

func newMigrateDownCmd() *cobra.Command {
	var n int
	var migrationID string

	c := &cobra.Command{
		Use:   "down",
		Short: "Roll back the database to a previous migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			opts := migrations.ApplyOptions{UseTransaction: true, UntilFileID: migrationID}
			if cmd.Flags().Changed("nb-rollbacks") {
				opts.N = &n
			}

			applied, err := migrations.MigrateDown(cmd.Context(), conn, flags.MigrationDir(), opts, migrations.NewLogger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", len(applied))
			return nil
		},
	}
	c.Flags().IntVarP(&n, "nb-rollbacks", "n", 1, "Number of migrations to roll back")
	c.Flags().StringVarP(&migrationID, "migration-id", "m", "", "Migration id to roll back to (inclusive)")
	return c
}

func newMigrateSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the table that tracks applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			return migrations.Setup(cmd.Context(), conn)
		},
	}
}

func newMigrateVerifyCmd() *cobra.Command {
	var onlyLast, skipDownRestore bool

	c := &cobra.Command{
		Use:   "verify",
		Short: "Verify that applying up then down reproduces the original schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := flags.Schemas(cmd)

			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			cli := pgconn.NewCLI(desc)
			err = migrations.MigrateVerify(cmd.Context(), conn, cli, desc.Database, schemas, flags.MigrationDir(), migrations.VerifyOptions{
				OnlyLast:        onlyLast,
				SkipDownRestore: skipDownRestore,
			}, migrations.NewLogger())

			if migErr, ok := err.(*migrations.MigrationError); ok {
				fmt.Fprintln(cmd.ErrOrStderr(), migErr.Diff)
			}
			return err
		},
	}
	c.Flags().BoolVar(&onlyLast, "only-last", false, "Only verify the most recently created migration pair")
	c.Flags().BoolVar(&skipDownRestore, "skip-down-restore", false, "Do not re-apply the down files after verifying")
	flags.AddSchemasFlag(c)
	return c
}

func newMigrateVerifyFilesCmd() *cobra.Command {
	var noRaise bool

	c := &cobra.Command{
		Use:   "verify-files",
		Short: "Verify that the migration files are correctly ordered",
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := migrations.VerifyMigrationFiles(flags.MigrationDir())
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Files are correctly ordered")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p.Error())
			}
			if !noRaise {
				return fmt.Errorf("files are not correctly ordered (%d issue(s))", len(problems))
			}
			return nil
		},
	}
	c.Flags().BoolVar(&noRaise, "no-raise", false, "Do not fail the command if ordering issues are found")
	return c
}

func newMigrateVerifyMigrationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-migrations",
		Short: "Apply any migration file missing from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			conn, err := openDB(desc)
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := migrations.VerifyMigrations(cmd.Context(), conn, flags.MigrationDir(), migrations.NewLogger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d missing migration(s)\n", len(applied))
			return nil
		},
	}
}

func newMigrateReorderFilesCmd() *cobra.Command {
	var ids []string
	var by string

	c := &cobra.Command{
		Use:   "reorder-files",
		Short: "Reorder migration files by timestamp",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := flags.MigrationDir()

			if len(ids) == 0 {
				modified, err := migrations.RepairHeaders(dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d header(s)\n", len(modified))
				return nil
			}

			var modified []string
			var err error
			switch by {
			case "last-applied":
				modified, err = migrations.ReorderByApplied(dir, ids, nil)
			case "last", "":
				modified, err = migrations.ReorderByLast(dir, ids, nil)
			default:
				return fmt.Errorf("unknown --by value %q (expected last or last-applied)", by)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d header(s)\n", len(modified))
			return nil
		},
	}
	c.Flags().StringSliceVarP(&ids, "ids", "l", nil, "Migration ids to reorder (order matters)")
	c.Flags().StringVar(&by, "by", "last", "Reorder method: last or last-applied")
	return c
}
