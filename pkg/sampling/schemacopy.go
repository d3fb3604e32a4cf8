// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"context"
	"fmt"

	"github.com/Tracktor/padmy/pkg/pgconn"
)

// CopySchema dumps the given schemas from the source database in
// custom format and restores them into the target database, optionally
// dropping the target's public schema first to avoid a "schema already
// exists" error when public is itself one of the copied schemas
// (§4.D.4, grounded on original_source/padmy/sampling/sampling.py's
// copy_database).
func CopySchema(ctx context.Context, fromCLI *pgconn.CLI, fromDatabase string, toCLI *pgconn.CLI, toDatabase string, schemas []string, dropPublic bool) error {
	dump, err := fromCLI.Dump(ctx, fromDatabase, pgconn.DumpOptions{
		SchemaOnly:    true,
		NoOwner:       true,
		NoPrivileges:  true,
		CustomFormat:  true,
		AllExtensions: true,
		Schemas:       schemas,
	})
	if err != nil {
		return fmt.Errorf("dumping schema from %q: %w", fromDatabase, err)
	}

	if err := toCLI.DropDB(ctx, toDatabase); err != nil {
		return fmt.Errorf("dropping target database %q: %w", toDatabase, err)
	}
	if err := toCLI.CreateDB(ctx, toDatabase); err != nil {
		return fmt.Errorf("creating target database %q: %w", toDatabase, err)
	}

	if dropPublic || containsSchema(schemas, "public") {
		if err := toCLI.ExecStatement(ctx, toDatabase, "DROP SCHEMA public;"); err != nil {
			return fmt.Errorf("dropping public schema on %q: %w", toDatabase, err)
		}
	}

	if err := toCLI.Restore(ctx, toDatabase, dump, true, true); err != nil {
		return fmt.Errorf("restoring schema into %q: %w", toDatabase, err)
	}

	return nil
}

func containsSchema(schemas []string, name string) bool {
	for _, s := range schemas {
		if s == name {
			return true
		}
	}
	return false
}
