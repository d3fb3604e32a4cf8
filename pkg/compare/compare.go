// SPDX-License-Identifier: Apache-2.0

// Package compare diffs the schema of two databases by dumping both
// with pg_dump and comparing the sanitized output byte-for-byte,
// grounded on original_source/padmy/compare.py's compare_databases.
package compare

import (
	"context"
	"fmt"

	"github.com/Tracktor/padmy/pkg/migrations"
	"github.com/Tracktor/padmy/pkg/pgconn"
)

// Options configures CompareSchemas.
type Options struct {
	Schemas      []string
	NoPrivileges bool
}

// Result is the outcome of comparing two schema dumps: either Equal is
// true, or Diff holds a unified diff of the two dumps.
type Result struct {
	Equal bool
	Diff  string
}

// CompareSchemas dumps --schema-only for both databases (possibly on
// two different servers) and returns whether they match, and if not, a
// unified diff of the sanitized dumps.
func CompareSchemas(ctx context.Context, fromCLI *pgconn.CLI, fromDatabase string, toCLI *pgconn.CLI, toDatabase string, opts Options) (*Result, error) {
	fromDump, err := fromCLI.Dump(ctx, fromDatabase, pgconn.DumpOptions{
		SchemaOnly:   true,
		NoPrivileges: opts.NoPrivileges,
		Encoding:     "utf8",
		Schemas:      opts.Schemas,
	})
	if err != nil {
		return nil, fmt.Errorf("dumping schema from %q: %w", fromDatabase, err)
	}

	toDump, err := toCLI.Dump(ctx, toDatabase, pgconn.DumpOptions{
		SchemaOnly:   true,
		NoPrivileges: opts.NoPrivileges,
		Encoding:     "utf8",
		Schemas:      opts.Schemas,
	})
	if err != nil {
		return nil, fmt.Errorf("dumping schema from %q: %w", toDatabase, err)
	}

	from := pgconn.SanitizeDump(string(fromDump))
	to := pgconn.SanitizeDump(string(toDump))

	if from == to {
		return &Result{Equal: true}, nil
	}

	fromName := fmt.Sprintf("%s-from.sql", fromDatabase)
	toName := fmt.Sprintf("%s-to.sql", toDatabase)

	return &Result{
		Equal: false,
		Diff:  migrations.UnifiedDiff(fromName, toName, from, to),
	}, nil
}
