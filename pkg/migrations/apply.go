// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Tracktor/padmy/pkg/db"
)

// ApplyOptions configures MigrateUp/MigrateDown.
type ApplyOptions struct {
	N              *int
	UntilFileID    string
	Meta           json.RawMessage
	UseTransaction bool
}

// MigrateUp applies every pending up file (those at or after
// latestApplied, per §4.C.4), in ascending (ts, fileId) order, truncated
// to N if given. Each file is executed and its ledger row inserted in a
// single transaction unless UseTransaction is false.
func MigrateUp(ctx context.Context, conn db.DB, folder string, opts ApplyOptions, logger Logger) ([]*File, error) {
	if err := requireSetup(ctx, conn); err != nil {
		return nil, err
	}

	ups, err := ListFiles(folder, KindUp)
	if err != nil {
		return nil, err
	}

	latest, err := LatestApplied(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("loading latest applied migration: %w", err)
	}

	var pending []*File
	for _, up := range ups {
		if latest == nil {
			pending = append(pending, up)
			continue
		}
		if up.Ts >= latest.FileTs.Unix() && up.Name() != latest.FileName {
			pending = append(pending, up)
		}
	}

	if opts.N != nil && *opts.N < len(pending) {
		pending = pending[:*opts.N]
	}

	applied := make([]*File, 0, len(pending))
	for _, up := range pending {
		if err := applyOne(ctx, conn, up, opts.Meta, opts.UseTransaction); err != nil {
			return applied, fmt.Errorf("applying %s: %w", up.Name(), err)
		}
		applied = append(applied, up)
		if logger != nil {
			logger.LogMigrationApply(up.Name())
		}
	}

	return applied, nil
}

// MigrateDown rolls back the N most recently applied migrations, or
// every migration down to and including UntilFileID. N and UntilFileID
// are mutually exclusive.
func MigrateDown(ctx context.Context, conn db.DB, folder string, opts ApplyOptions, logger Logger) ([]*File, error) {
	if err := requireSetup(ctx, conn); err != nil {
		return nil, err
	}
	if opts.N != nil && opts.UntilFileID != "" {
		return nil, &ConflictingOptionsError{Options: []string{"n", "untilFileId"}}
	}

	appliedIDs, err := AppliedUpFileIDs(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("loading applied migrations: %w", err)
	}

	downs, err := ListFiles(folder, KindDown)
	if err != nil {
		return nil, err
	}
	downByID := make(map[string]*File, len(downs))
	for _, d := range downs {
		downByID[d.FileID] = d
	}

	var rollbacks []*File
	for _, id := range appliedIDs {
		d, ok := downByID[id]
		if !ok {
			continue
		}
		rollbacks = append(rollbacks, d)
	}

	switch {
	case opts.N != nil:
		if *opts.N < len(rollbacks) {
			rollbacks = rollbacks[:*opts.N]
		}
	case opts.UntilFileID != "":
		idx := -1
		for i, d := range rollbacks {
			if d.FileID == opts.UntilFileID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, &UnknownFileIDError{FileID: opts.UntilFileID}
		}
		rollbacks = rollbacks[:idx+1]
	}

	applied := make([]*File, 0, len(rollbacks))
	for _, d := range rollbacks {
		if err := applyOne(ctx, conn, d, opts.Meta, opts.UseTransaction); err != nil {
			return applied, fmt.Errorf("rolling back %s: %w", d.Name(), err)
		}
		applied = append(applied, d)
		if logger != nil {
			logger.LogMigrationRollback(d.Name())
		}
	}

	return applied, nil
}

// VerifyMigrations applies every up file whose fileId does not yet
// appear in the ledger, tagging the inserted rows meta={"missing":true}.
func VerifyMigrations(ctx context.Context, conn db.DB, folder string, logger Logger) ([]*File, error) {
	if err := requireSetup(ctx, conn); err != nil {
		return nil, err
	}

	ups, err := ListFiles(folder, KindUp)
	if err != nil {
		return nil, err
	}

	appliedIDs, err := AllAppliedFileIDs(ctx, conn)
	if err != nil {
		return nil, err
	}

	missingMeta := json.RawMessage(`{"missing":true}`)

	var applied []*File
	for _, up := range ups {
		if appliedIDs[up.FileID] {
			continue
		}
		if err := applyOne(ctx, conn, up, missingMeta, true); err != nil {
			return applied, fmt.Errorf("applying missing migration %s: %w", up.Name(), err)
		}
		applied = append(applied, up)
		if logger != nil {
			logger.LogMigrationApply(up.Name())
		}
	}

	return applied, nil
}

func applyOne(ctx context.Context, conn db.DB, f *File, meta json.RawMessage, useTransaction bool) error {
	body, err := readBody(f)
	if err != nil {
		return err
	}

	if useTransaction {
		return conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, body); err != nil {
				return err
			}
			return insertLedgerRow(ctx, tx, f, meta)
		})
	}

	if _, err := conn.ExecContext(ctx, body); err != nil {
		return err
	}
	return insertLedgerRow(ctx, conn, f, meta)
}

func readBody(f *File) (string, error) {
	loaded, err := LoadFile(f.Path)
	if err != nil {
		return "", err
	}
	return loaded.Body, nil
}
