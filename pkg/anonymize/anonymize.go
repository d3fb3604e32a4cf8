// SPDX-License-Identifier: Apache-2.0

package anonymize

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Tracktor/padmy/pkg/db"
	"github.com/Tracktor/padmy/pkg/sampling"
	"github.com/Tracktor/padmy/pkg/schema"
)

const defaultChunkSize = 1000

// Options configures AnonymizeDatabase.
type Options struct {
	ChunkSize int
}

// AnonymizeDatabase anonymizes every table in cfg that declares
// anonymization fields, one goroutine per table (§4.E, grounded on
// original_source/padmy/anonymize/anonymize.py's anonymize_db, which
// fans out with asyncio.gather over one connection per table).
func AnonymizeDatabase(ctx context.Context, conn db.DB, g *schema.Graph, cfg *sampling.Config, opts Options) error {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	grp, gctx := errgroup.WithContext(ctx)

	found := false
	for fullName, t := range g.Tables {
		fields := cfg.AnoFields(t.Schema, t.Name)
		if len(fields) == 0 {
			continue
		}
		found = true
		table := t
		tableFields := fields
		grp.Go(func() error {
			if err := AnonymizeTable(gctx, conn, table, tableFields, chunkSize); err != nil {
				return fmt.Errorf("anonymizing %s: %w", fullName, err)
			}
			return nil
		})
	}

	if !found {
		return nil
	}

	return grp.Wait()
}

// AnonymizeTable reads t's primary keys through a server-side cursor,
// fetching chunkSize rows at a time, and issues one UPDATE-FROM-VALUES
// statement per row, setting each configured field to a freshly
// generated value (§4.E.2, §4.E.3, §9 "Streaming cursors" — the whole
// table is never buffered in memory at once).
func AnonymizeTable(ctx context.Context, conn db.DB, t *schema.Table, fields []sampling.AnoField, chunkSize int) error {
	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("anonymize: table %s has no primary key", t.FullName())
	}

	columnNames := make([]string, 0, len(fields))
	generators := make(map[string]FieldGenerator, len(fields))
	extraArgs := make(map[string]map[string]string, len(fields))
	for _, f := range fields {
		gen, err := resolveFieldGenerator(f)
		if err != nil {
			return err
		}
		columnNames = append(columnNames, f.Column)
		generators[f.Column] = gen
		extraArgs[f.Column] = f.ExtraArgs
	}

	allColumns := append(append([]string{}, t.PrimaryKey...), columnNames...)
	columnTypes, err := schema.ListColumnTypes(ctx, conn, t.Schema, t.Name, allColumns)
	if err != nil {
		return fmt.Errorf("loading column types: %w", err)
	}

	updateQuery := buildUpdateQuery(quoteFullName(t.Schema, t.Name), t.PrimaryKey, columnNames, columnTypes)
	cursorName := cursorIdentifier(t)
	pkCount := len(t.PrimaryKey)

	return conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		declareQuery := fmt.Sprintf(
			"DECLARE %s NO SCROLL CURSOR FOR SELECT %s FROM %s",
			pq.QuoteIdentifier(cursorName),
			strings.Join(quoteIdentifiers(t.PrimaryKey), ", "),
			quoteFullName(t.Schema, t.Name),
		)
		if _, err := tx.ExecContext(ctx, declareQuery); err != nil {
			return fmt.Errorf("declaring cursor for %s: %w", t.FullName(), err)
		}

		fetchQuery := fmt.Sprintf("FETCH FORWARD %d FROM %s", chunkSize, pq.QuoteIdentifier(cursorName))
		for {
			rows, err := tx.QueryContext(ctx, fetchQuery)
			if err != nil {
				return fmt.Errorf("fetching from cursor for %s: %w", t.FullName(), err)
			}

			fetched := 0
			for rows.Next() {
				fetched++
				pkValues := make([]interface{}, pkCount)
				ptrs := make([]interface{}, pkCount)
				for i := range pkValues {
					ptrs[i] = &pkValues[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					rows.Close()
					return fmt.Errorf("scanning primary key: %w", err)
				}

				args := make([]interface{}, 0, pkCount+len(columnNames))
				args = append(args, pkValues...)
				for _, col := range columnNames {
					value, err := generators[col].Generate(extraArgs[col])
					if err != nil {
						rows.Close()
						return fmt.Errorf("generating value for %s.%s: %w", t.FullName(), col, err)
					}
					args = append(args, value)
				}

				if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
					rows.Close()
					return fmt.Errorf("updating %s: %w", t.FullName(), err)
				}
			}
			rowsErr := rows.Err()
			rows.Close()
			if rowsErr != nil {
				return rowsErr
			}

			if fetched < chunkSize {
				return nil
			}
		}
	})
}

// cursorIdentifier derives a per-table cursor name so anonymizing
// several tables concurrently (one goroutine per table, each on its own
// pooled connection) never collides.
func cursorIdentifier(t *schema.Table) string {
	return fmt.Sprintf("_%s_%s_anon_cur", t.Schema, t.Name)
}

// buildUpdateQuery renders the UPDATE ... FROM (VALUES ...) statement
// that sets `fields` on the row matched by `pks`, grounded on
// get_update_query in original_source/padmy/anonymize/anonymize.py.
func buildUpdateQuery(fullName string, pks, fields []string, columnTypes map[string]string) string {
	keys := append(append([]string{}, pks...), fields...)

	var setFields []string
	for _, f := range fields {
		setFields = append(setFields, fmt.Sprintf("%s = u2.%s", pq.QuoteIdentifier(f), pq.QuoteIdentifier(f)))
	}

	var values []string
	for i, k := range keys {
		values = append(values, fmt.Sprintf("$%d::%s", i+1, columnTypes[k]))
	}

	var where []string
	for _, pk := range pks {
		q := pq.QuoteIdentifier(pk)
		where = append(where, fmt.Sprintf("u2.%s = u.%s", q, q))
	}

	return fmt.Sprintf(
		"UPDATE %s AS u\nSET %s\nFROM (VALUES (%s)) AS u2(%s)\nWHERE %s",
		fullName, strings.Join(setFields, ", "), strings.Join(values, ", "),
		strings.Join(quoteIdentifiers(keys), ", "), strings.Join(where, " AND "),
	)
}

func quoteIdentifiers(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pq.QuoteIdentifier(n)
	}
	return out
}

func quoteFullName(schemaName, table string) string {
	return fmt.Sprintf("%s.%s", pq.QuoteIdentifier(schemaName), pq.QuoteIdentifier(table))
}
