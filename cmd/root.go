// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tracktor/padmy/pkg/db"
	"github.com/Tracktor/padmy/pkg/pgconn"
)

// Version is the padmy version, set at build time via -ldflags.
var Version = "development"

func init() {
	viper.SetEnvPrefix("PADMY")
	viper.AutomaticEnv()
}

var rootCmd = &cobra.Command{
	Use:          "padmy",
	Short:        "Postgres schema migration, sampling, anonymization and comparison toolkit",
	SilenceUsage: true,
	Version:      Version,
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSQLFolderCmd())
	rootCmd.AddCommand(newSampleCmd())
	rootCmd.AddCommand(newCopyDBCmd())
	rootCmd.AddCommand(newAnonymizeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newCompareCmd())

	return rootCmd.Execute()
}

// openDB opens a *sql.DB against d using the lib/pq driver and wraps it
// in the retry-on-lock_timeout db.RDB used throughout the migration,
// sampling and anonymize engines. TLS material is validated fail-fast
// (missing CA/cert/key paths, half-specified mTLS) before the driver is
// ever handed a DSN, per §4.A.
func openDB(d *pgconn.ConnectionDescriptor) (*db.RDB, error) {
	if _, err := d.BuildTLSContext(); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", d.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s:%d/%s: %w", d.Host, d.Port, d.Database, err)
	}
	return &db.RDB{DB: sqlDB}, nil
}

// newCLI wraps d's pg_dump/pg_restore/createdb/dropdb/psql CLI access.
func newCLI(d *pgconn.ConnectionDescriptor) *pgconn.CLI {
	return pgconn.NewCLI(d)
}
