// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Tracktor/padmy/pkg/db"
	"github.com/Tracktor/padmy/pkg/schema"
)

// SampleDatabase builds an FK-closure-preserving sample of g's tables
// from source and streams it into target, chunkSize rows per INSERT.
// Materialization and the source-side read both happen inside a single
// source transaction, since the intermediate temp tables are
// `ON COMMIT DROP`; the target-side writes (and the optional trigger
// disabling) happen inside a single target transaction, so that a
// session-local `SET session_replication_role` applies to every insert
// (grounded on original_source/padmy/sampling/sampling.py's
// sample_database).
func SampleDatabase(ctx context.Context, source db.DB, target db.DB, g *schema.Graph, opts RunOptions, chunkSize int, logger Logger) error {
	return source.WithRetryableTransaction(ctx, func(ctx context.Context, sourceTx *sql.Tx) error {
		if logger != nil {
			logger.Warn("creating temporary sample tables")
		}
		if err := Materialize(ctx, sourceTx, g, opts, logger); err != nil {
			return err
		}

		return target.WithRetryableTransaction(ctx, func(ctx context.Context, targetTx *sql.Tx) error {
			if opts.DisableTriggers {
				if _, err := targetTx.ExecContext(ctx, "SET session_replication_role = 'replica'"); err != nil {
					return fmt.Errorf("disabling target triggers: %w", err)
				}
			}
			return TransferAll(ctx, sourceTx, targetTx, g, chunkSize, logger)
		})
	})
}
