// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Tracktor/padmy/cmd/flags"
	"github.com/Tracktor/padmy/pkg/pgconn"
)

// newSQLFolderCmd groups the plain-SQL-folder utilities (new-sql,
// apply-sql) that operate on SQL_DIR rather than the paired up/down
// migration folder, grounded on
// original_source/padmy/migration/run.py's new_sql_file/apply_sql_files.
func newSQLFolderCmd() *cobra.Command {
	sqlCmd := &cobra.Command{
		Use:   "sql",
		Short: "Utilities for the plain SQL file folder",
	}
	flags.AddSQLDirFlag(sqlCmd)

	sqlCmd.AddCommand(newSQLNewCmd())
	sqlCmd.AddCommand(newSQLApplyCmd())

	return sqlCmd
}

func newSQLNewCmd() *cobra.Command {
	var position int

	c := &cobra.Command{
		Use:   "new-sql",
		Short: "Insert a new numbered SQL file at the given position",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := flags.SQLDir()
			path, err := createSQLFile(dir, position)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created new sql file: %s\n", path)
			return nil
		},
	}
	c.Flags().IntVar(&position, "position", 1, "Position where to insert the sql file")
	return c
}

func newSQLApplyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "apply-sql",
		Short: "Apply every *.sql file in the SQL folder, in name order",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := flags.Connection(cmd, flags.SideDefault)
			if err != nil {
				return err
			}
			cli := pgconn.NewCLI(desc)

			dir := flags.SQLDir()
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("reading sql folder %q: %w", dir, err)
			}

			var names []string
			for _, e := range entries {
				if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)

			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "Applying %s\n", name)
				if err := cli.ExecFile(cmd.Context(), desc.Database, filepath.Join(dir, name)); err != nil {
					return fmt.Errorf("applying %s: %w", name, err)
				}
			}
			return nil
		},
	}
	return c
}

// createSQLFile inserts a new zero-padded numbered SQL file at
// position, shifting every existing file at or after that position up
// by one, mirroring padmy's new_sql.create_sql_file.
func createSQLFile(dir string, position int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading sql folder %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for i := len(names) - 1; i >= position-1; i-- {
		oldPath := filepath.Join(dir, names[i])
		newPath := filepath.Join(dir, fmt.Sprintf("%02d_%s", i+2, stripIndex(names[i])))
		if err := os.Rename(oldPath, newPath); err != nil {
			return "", fmt.Errorf("shifting %q to %q: %w", oldPath, newPath, err)
		}
	}

	newName := fmt.Sprintf("%02d_new.sql", position)
	newPath := filepath.Join(dir, newName)
	if err := os.WriteFile(newPath, []byte("-- add your sql here\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing %q: %w", newPath, err)
	}

	return newPath, nil
}

// stripIndex removes a leading "NN_" index prefix from a SQL filename,
// if present.
func stripIndex(name string) string {
	for i, r := range name {
		if r == '_' {
			return name[i+1:]
		}
		if r < '0' || r > '9' {
			break
		}
	}
	return name
}
