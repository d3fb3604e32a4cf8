// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oapi-codegen/nullable"

	"github.com/Tracktor/padmy/pkg/db"
)

// advisoryLockKey namespaces the setup advisory lock so it can never
// collide with an application-chosen lock key, the same pattern the
// teacher's pkg/state.Init uses around its own DDL transaction.
const advisoryLockKey = 872364981

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS public.migration (
	id serial PRIMARY KEY,
	applied_at timestamptz NOT NULL DEFAULT now(),
	file_ts timestamp NOT NULL,
	file_id text NOT NULL,
	migration_type text NOT NULL CHECK (migration_type IN ('up', 'down')),
	file_name text NOT NULL,
	meta jsonb
)
`

const ledgerExistsQuery = `SELECT to_regclass('public.migration') IS NOT NULL`

// LedgerEntry is a single row of the public.migration ledger table.
type LedgerEntry struct {
	ID        int64
	AppliedAt time.Time
	FileTs    time.Time
	FileID    string
	Kind      Kind
	FileName  string
	Meta      nullable.Nullable[json.RawMessage]
}

// Setup creates the ledger table if it doesn't exist, guarded by a
// Postgres advisory transaction lock so concurrent `migrate setup`
// invocations never race on CREATE TABLE — the same advisory-lock
// guarded DDL transaction shape as the teacher's pkg/state.Init.
func Setup(ctx context.Context, conn db.DB) error {
	return conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ledgerDDL); err != nil {
			return err
		}
		return nil
	})
}

// IsSetup reports whether the ledger table already exists.
func IsSetup(ctx context.Context, conn db.DB) (bool, error) {
	rows, err := conn.QueryContext(ctx, ledgerExistsQuery)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var exists bool
	if err := db.ScanFirstValue(rows, &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// requireSetup returns NoSetupTableError if the ledger table is absent.
func requireSetup(ctx context.Context, conn db.DB) error {
	exists, err := IsSetup(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking migration ledger: %w", err)
	}
	if !exists {
		return &NoSetupTableError{}
	}
	return nil
}

// LatestApplied returns the most recent ledger row of kind "up" whose
// fileId has no matching "down" row, or nil if there is none.
func LatestApplied(ctx context.Context, conn db.DB) (*LedgerEntry, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT up.id, up.applied_at, up.file_ts, up.file_id, up.migration_type, up.file_name
		FROM public.migration up
		WHERE up.migration_type = 'up'
		  AND NOT EXISTS (
		    SELECT 1 FROM public.migration down
		    WHERE down.migration_type = 'down' AND down.file_id = up.file_id
		  )
		ORDER BY up.file_ts DESC, up.file_id DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var e LedgerEntry
	var kind string
	if err := rows.Scan(&e.ID, &e.AppliedAt, &e.FileTs, &e.FileID, &kind, &e.FileName); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	return &e, nil
}

// AppliedUpFileIDs returns, newest first, the fileIds of every "up"
// migration applied without a matching "down".
func AppliedUpFileIDs(ctx context.Context, conn db.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT up.file_id
		FROM public.migration up
		WHERE up.migration_type = 'up'
		  AND NOT EXISTS (
		    SELECT 1 FROM public.migration down
		    WHERE down.migration_type = 'down' AND down.file_id = up.file_id
		  )
		ORDER BY up.file_ts DESC, up.file_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllAppliedFileIDs returns every fileId with at least one ledger row,
// used by verifyMigrations to find the up files not yet applied.
func AllAppliedFileIDs(ctx context.Context, conn db.DB) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT DISTINCT file_id FROM public.migration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// sqlExecer is satisfied by both *sql.Tx and db.DB, letting
// insertLedgerRow run either inside a transaction (migrateUp/Down with
// UseTransaction=true) or directly against the pooled connection
// (UseTransaction=false).
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertLedgerRow inserts a ledger row for f, optionally tagged with
// meta (e.g. {"missing": true} from verifyMigrations).
func insertLedgerRow(ctx context.Context, exec sqlExecer, f *File, meta json.RawMessage) error {
	fileTs := time.Unix(f.Ts, 0).UTC()

	var metaArg interface{}
	if meta != nil {
		metaArg = []byte(meta)
	}

	_, err := exec.ExecContext(ctx, `
		INSERT INTO public.migration (file_ts, file_id, migration_type, file_name, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, fileTs, f.FileID, string(f.Kind), f.Name(), metaArg)
	return err
}
