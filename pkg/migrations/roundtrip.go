// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/Tracktor/padmy/pkg/db"
	"github.com/Tracktor/padmy/pkg/pgconn"
)

// VerifyOptions configures MigrateVerify.
type VerifyOptions struct {
	OnlyLast        bool
	SkipDownRestore bool
}

// MigrateVerify walks every up/down pair (or only the last, if
// OnlyLast and there is more than one) and checks that applying up then
// down reproduces the schema byte-for-byte (modulo \restrict
// sanitization). Unless SkipDownRestore, the down files are re-applied
// in reverse order afterwards to leave the database in its initial
// state.
func MigrateVerify(ctx context.Context, conn db.DB, cli *pgconn.CLI, database string, schemas []string, folder string, opts VerifyOptions, logger Logger) error {
	pairs, err := sortedPairs(folder)
	if err != nil {
		return err
	}
	if opts.OnlyLast && len(pairs) > 1 {
		pairs = pairs[len(pairs)-1:]
	}

	for _, p := range pairs {
		if p.Down.Header != nil && p.Down.Header.SkipVerify {
			continue
		}

		if logger != nil {
			logger.LogRoundTripCheck(p.FileID)
		}

		before, err := dumpSchema(ctx, cli, database, schemas)
		if err != nil {
			return fmt.Errorf("dumping schema before %s: %w", p.FileID, err)
		}

		if err := execFile(ctx, conn, p.Up); err != nil {
			return fmt.Errorf("applying up %s: %w", p.Up.Name(), err)
		}
		if err := execFile(ctx, conn, p.Down); err != nil {
			return fmt.Errorf("applying down %s: %w", p.Down.Name(), err)
		}

		after, err := dumpSchema(ctx, cli, database, schemas)
		if err != nil {
			return fmt.Errorf("dumping schema after %s: %w", p.FileID, err)
		}

		sanitizedBefore := pgconn.SanitizeDump(before)
		sanitizedAfter := pgconn.SanitizeDump(after)
		if sanitizedBefore != sanitizedAfter {
			return &MigrationError{
				MigrationID: p.FileID,
				Diff:        UnifiedDiff("before.sql", "after.sql", sanitizedBefore, sanitizedAfter),
			}
		}

		if err := execFile(ctx, conn, p.Up); err != nil {
			return fmt.Errorf("re-applying up %s: %w", p.Up.Name(), err)
		}

		if logger != nil {
			logger.LogRoundTripOK(p.FileID)
		}
	}

	if !opts.SkipDownRestore {
		for i := len(pairs) - 1; i >= 0; i-- {
			if err := execFile(ctx, conn, pairs[i].Down); err != nil {
				return fmt.Errorf("restoring down %s: %w", pairs[i].Down.Name(), err)
			}
		}
	}

	return nil
}

func dumpSchema(ctx context.Context, cli *pgconn.CLI, database string, schemas []string) (string, error) {
	out, err := cli.Dump(ctx, database, pgconn.DumpOptions{SchemaOnly: true, Schemas: schemas})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func execFile(ctx context.Context, conn db.DB, f *File) error {
	body, err := readBody(f)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, body)
	return err
}
