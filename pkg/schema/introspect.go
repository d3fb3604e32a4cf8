// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Tracktor/padmy/pkg/db"
)

const listTablesQuery = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE' AND table_schema = ANY($1::text[])
ORDER BY table_schema, table_name
`

const listColumnsQuery = `
SELECT table_schema, table_name, column_name, data_type,
       (generation_expression IS NOT NULL) OR (identity_generation = 'ALWAYS') AS is_generated
FROM information_schema.columns
WHERE table_schema = ANY($1::text[])
ORDER BY table_schema, table_name, ordinal_position
`

const listPrimaryKeysQuery = `
SELECT kcu.table_schema, kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = ANY($1::text[])
ORDER BY kcu.table_schema, kcu.table_name, kcu.ordinal_position
`

// listForeignKeysQuery is the composite-aware FK query grounded on
// original_source/padmy/db.py's SCHEMA_FK_QUERY: pg_constraint joined to
// pg_attribute via UNNEST(... WITH ORDINALITY) so that multi-column FKs
// come back with aligned, ordered column arrays instead of one row per
// column.
const listForeignKeysQuery = `
SELECT
    con.conname,
    ns.nspname AS schema_name,
    cl.relname AS table_name,
    array_agg(att.attname ORDER BY u.ord) AS columns,
    fns.nspname AS referenced_schema,
    fcl.relname AS referenced_table,
    array_agg(fatt.attname ORDER BY u.ord) AS referenced_columns
FROM pg_constraint con
JOIN pg_class cl ON cl.oid = con.conrelid
JOIN pg_namespace ns ON ns.oid = cl.relnamespace
JOIN pg_class fcl ON fcl.oid = con.confrelid
JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
JOIN LATERAL UNNEST(con.conkey, con.confkey) WITH ORDINALITY AS u(conkey, confkey, ord) ON true
JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.conkey
JOIN pg_attribute fatt ON fatt.attrelid = con.confrelid AND fatt.attnum = u.confkey
WHERE con.contype = 'f'
  AND ns.nspname = ANY($1::text[])
  AND fns.nspname = ANY($1::text[])
GROUP BY con.conname, ns.nspname, cl.relname, fns.nspname, fcl.relname
`

// Introspector loads table/column/key metadata and assembles a Graph.
type Introspector struct {
	DB db.DB
}

func NewIntrospector(rdb db.DB) *Introspector {
	return &Introspector{DB: rdb}
}

// Load builds the full schema graph for the given schemas, including
// row counts loaded concurrently per table via errgroup, mirroring
// padmy's asyncio.gather(*[get_conn(pool, table.load_count) ...]).
// Introspection is read-only; any query failure aborts the whole load.
func (i *Introspector) Load(ctx context.Context, schemas []string) (*Graph, error) {
	g := NewGraph()

	if err := i.loadTables(ctx, schemas, g); err != nil {
		return nil, fmt.Errorf("loading tables: %w", err)
	}
	if err := i.loadColumns(ctx, schemas, g); err != nil {
		return nil, fmt.Errorf("loading columns: %w", err)
	}
	if err := i.loadPrimaryKeys(ctx, schemas, g); err != nil {
		return nil, fmt.Errorf("loading primary keys: %w", err)
	}
	if err := i.loadForeignKeys(ctx, schemas, g); err != nil {
		return nil, fmt.Errorf("loading foreign keys: %w", err)
	}
	if err := i.loadRowCounts(ctx, g); err != nil {
		return nil, fmt.Errorf("loading row counts: %w", err)
	}

	return g, nil
}

func (i *Introspector) loadTables(ctx context.Context, schemas []string, g *Graph) error {
	rows, err := i.DB.QueryContext(ctx, listTablesQuery, pq.Array(schemas))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableSchema, tableName string
		if err := rows.Scan(&tableSchema, &tableName); err != nil {
			return err
		}
		g.AddTable(&Table{Schema: tableSchema, Name: tableName})
	}
	return rows.Err()
}

func (i *Introspector) loadColumns(ctx context.Context, schemas []string, g *Graph) error {
	rows, err := i.DB.QueryContext(ctx, listColumnsQuery, pq.Array(schemas))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableSchema, tableName, colName, dataType string
		var isGenerated bool
		if err := rows.Scan(&tableSchema, &tableName, &colName, &dataType, &isGenerated); err != nil {
			return err
		}
		t, ok := g.Tables[fmt.Sprintf("%s.%s", tableSchema, tableName)]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, Column{Name: colName, Type: dataType, IsGenerated: isGenerated})
	}
	return rows.Err()
}

func (i *Introspector) loadPrimaryKeys(ctx context.Context, schemas []string, g *Graph) error {
	rows, err := i.DB.QueryContext(ctx, listPrimaryKeysQuery, pq.Array(schemas))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableSchema, tableName, colName string
		if err := rows.Scan(&tableSchema, &tableName, &colName); err != nil {
			return err
		}
		t, ok := g.Tables[fmt.Sprintf("%s.%s", tableSchema, tableName)]
		if !ok {
			continue
		}
		t.PrimaryKey = append(t.PrimaryKey, colName)
	}
	return rows.Err()
}

func (i *Introspector) loadForeignKeys(ctx context.Context, schemas []string, g *Graph) error {
	rows, err := i.DB.QueryContext(ctx, listForeignKeysQuery, pq.Array(schemas))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, tableSchema, tableName, refSchema, refTable string
		var columns, refColumns pq.StringArray
		if err := rows.Scan(&name, &tableSchema, &tableName, &columns, &refSchema, &refTable, &refColumns); err != nil {
			return err
		}
		fk := ForeignKey{
			Name:              name,
			Columns:           []string(columns),
			ReferencedSchema:  refSchema,
			ReferencedTable:   refTable,
			ReferencedColumns: []string(refColumns),
		}
		g.AddForeignKey(fmt.Sprintf("%s.%s", tableSchema, tableName), fk)
	}
	return rows.Err()
}

// loadRowCounts fans a SELECT count(*) out across tables concurrently,
// one goroutine per table, the one-task-per-connection model the
// teacher's pkg/db.RDB is itself built to support, aborting all
// in-flight counts on the first error.
func (i *Introspector) loadRowCounts(ctx context.Context, g *Graph) error {
	group, gctx := errgroup.WithContext(ctx)

	for _, t := range g.Tables {
		t := t
		group.Go(func() error {
			var count int64
			query := fmt.Sprintf("SELECT count(*) FROM %s.%s", pq.QuoteIdentifier(t.Schema), pq.QuoteIdentifier(t.Name))
			rows, err := i.DB.QueryContext(gctx, query)
			if err != nil {
				return err
			}
			defer rows.Close()
			if err := db.ScanFirstValue(rows, &count); err != nil {
				return err
			}
			t.RowCount = count
			return nil
		})
	}

	return group.Wait()
}

// ListColumnTypes returns the Postgres type name of each requested
// column on schema.table, keyed by column name.
func ListColumnTypes(ctx context.Context, conn db.DB, schema, table string, columnNames []string) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3::text[])
	`, schema, table, pq.Array(columnNames))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]string, len(columnNames))
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		types[name] = typ
	}
	return types, rows.Err()
}
