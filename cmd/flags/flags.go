// SPDX-License-Identifier: Apache-2.0

// Package flags wires cobra flags and PG_-prefixed environment
// variables into the connection descriptors and folder paths every
// subcommand needs, grounded on original_source/padmy/env.py.
//
// Connection values are resolved per-command from that command's own
// flags (with an environment-variable fallback read directly, not
// through viper) rather than through a single global viper key, since
// several sibling commands each declare their own --from-*/--to-*/
// --uri flag sets and a shared viper key would have the last
// registration silently win over the others.
package flags

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Tracktor/padmy/pkg/pgconn"
)

// ConnSide distinguishes which side of a two-database command a set of
// connection flags belongs to.
type ConnSide string

const (
	SideDefault ConnSide = ""
	SideFrom    ConnSide = "from"
	SideTo      ConnSide = "to"
)

func flagPrefix(side ConnSide) string {
	if side == SideDefault {
		return ""
	}
	return string(side) + "-"
}

// envName returns the environment variable read for base on side:
// base itself for SideDefault, base plus a _FROM/_TO suffix otherwise.
func envName(side ConnSide, base string) string {
	if side == SideDefault {
		return base
	}
	return base + "_" + strings.ToUpper(string(side))
}

// AddConnectionFlags registers --uri (or --from-uri/--to-uri) plus the
// discrete --host/--port/--user/--password/--database/--ssl-* flags for
// one connection, as persistent flags so subcommands of cmd inherit
// them.
func AddConnectionFlags(cmd *cobra.Command, side ConnSide) {
	registerConnectionFlags(cmd.PersistentFlags(), side)
}

// registerConnectionFlags declares one side's connection flags on an
// explicit *pflag.FlagSet, the type cobra.Command.PersistentFlags()
// itself returns.
func registerConnectionFlags(fs *pflag.FlagSet, side ConnSide) {
	p := flagPrefix(side)
	env := func(base string) string { return "$" + envName(side, base) }
	fs.String(p+"uri", "", "Full postgresql:// connection URI; overrides the discrete connection flags below")
	fs.String(p+"host", "", fmt.Sprintf("Postgres host (default \"localhost\", or %s)", env("PG_HOST")))
	fs.String(p+"port", "", fmt.Sprintf("Postgres port (default 5432, or %s)", env("PG_PORT")))
	fs.String(p+"user", "", fmt.Sprintf("Postgres user (default \"postgres\", or %s)", env("PG_USER")))
	fs.String(p+"password", "", fmt.Sprintf("Postgres password (default \"postgres\", or %s)", env("PG_PASSWORD")))
	fs.String(p+"database", "", fmt.Sprintf("Postgres database name (default \"postgres\", or %s)", env("PG_DATABASE")))
	fs.String(p+"ssl-mode", "", fmt.Sprintf("TLS mode: require, verify-ca or verify-full (or %s)", env("PG_SSL_MODE")))
	fs.String(p+"ssl-ca", "", fmt.Sprintf("Path to the CA certificate bundle (or %s)", env("PG_SSL_CA")))
	fs.String(p+"ssl-cert", "", fmt.Sprintf("Path to the client certificate, for mTLS (or %s)", env("PG_SSL_CERT")))
	fs.String(p+"ssl-key", "", fmt.Sprintf("Path to the client private key, for mTLS (or %s)", env("PG_SSL_KEY")))
}

// resolve returns the flag's value if set on the command line, else the
// side-prefixed environment variable, else def.
func resolve(cmd *cobra.Command, side ConnSide, flag, envSuffix, def string) string {
	name := flagPrefix(side) + flag
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return f.Value.String()
	}
	if v := os.Getenv(envName(side, envSuffix)); v != "" {
		return v
	}
	if f := cmd.Flags().Lookup(name); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return def
}

// Connection resolves the descriptor for side: the full URI flag/env
// wins if set, otherwise the discrete host/port/user/... flags (or
// their PG_* environment fallback) are combined.
func Connection(cmd *cobra.Command, side ConnSide) (*pgconn.ConnectionDescriptor, error) {
	if uri := resolve(cmd, side, "uri", "PG_URI", ""); uri != "" {
		return pgconn.ParseURI(uri)
	}

	portStr := resolve(cmd, side, "port", "PG_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, &pgconn.ConfigError{Message: fmt.Sprintf("invalid port %q: %s", portStr, err)}
	}

	return &pgconn.ConnectionDescriptor{
		Host:     resolve(cmd, side, "host", "PG_HOST", "localhost"),
		Port:     port,
		User:     resolve(cmd, side, "user", "PG_USER", "postgres"),
		Password: resolve(cmd, side, "password", "PG_PASSWORD", "postgres"),
		Database: resolve(cmd, side, "database", "PG_DATABASE", "postgres"),
		TLSMode:  pgconn.TLSMode(resolve(cmd, side, "ssl-mode", "PG_SSL_MODE", "")),
		TLSCa:    resolve(cmd, side, "ssl-ca", "PG_SSL_CA", ""),
		TLSCert:  resolve(cmd, side, "ssl-cert", "PG_SSL_CERT", ""),
		TLSKey:   resolve(cmd, side, "ssl-key", "PG_SSL_KEY", ""),
	}, nil
}

// SQLDir returns the folder holding plain, unnumbered SQL files applied
// by the sql command group (SQL_DIR in env.py).
func SQLDir() string {
	return viper.GetString("SQL_DIR")
}

// MigrationDir returns the folder holding up/down migration file pairs
// (MIGRATION_DIR in env.py).
func MigrationDir() string {
	return viper.GetString("MIGRATION_DIR")
}

// Schemas returns the --schema flag's repeated values.
func Schemas(cmd *cobra.Command) []string {
	schemas, _ := cmd.Flags().GetStringSlice("schema")
	return schemas
}

// AddSchemasFlag registers the repeatable --schema flag used by every
// schema-introspecting command.
func AddSchemasFlag(cmd *cobra.Command, def ...string) {
	cmd.Flags().StringSlice("schema", def, "Postgres schema to include (repeatable)")
}

// AddMigrationDirFlag registers --migration-dir, bound to MIGRATION_DIR.
func AddMigrationDirFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("migration-dir", "migrations", "Folder holding up/down migration file pairs")
	viper.BindPFlag("MIGRATION_DIR", cmd.PersistentFlags().Lookup("migration-dir"))
	viper.BindEnv("MIGRATION_DIR", "MIGRATION_DIR")
}

// AddSQLDirFlag registers --sql-dir, bound to SQL_DIR.
func AddSQLDirFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("sql-dir", "sql", "Folder holding plain SQL files applied as-is")
	viper.BindPFlag("SQL_DIR", cmd.PersistentFlags().Lookup("sql-dir"))
	viper.BindEnv("SQL_DIR", "SQL_DIR")
}
