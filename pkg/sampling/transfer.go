// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Tracktor/padmy/pkg/schema"
)

const defaultChunkSize = 500

// execer is satisfied by both *sql.Tx and db.DB, letting TransferAll
// write through whichever scope the caller wants session-local SETs
// (such as disabling triggers) to apply to.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TopologicalOrder returns every non-ignored table's full name in
// parent-before-child order, the order data must be inserted into a
// target database so that foreign key constraints are satisfied.
func TopologicalOrder(g *schema.Graph) ([]string, error) {
	ignored := g.IgnoredFunc()

	indegree := make(map[string]int)
	for name, t := range g.Tables {
		if t.Ignored {
			continue
		}
		deg := 0
		for _, p := range t.ParentsSafe() {
			if !ignored(p) {
				deg++
			}
		}
		indegree[name] = deg
	}

	var order []string
	for len(order) < len(indegree) {
		progressed := false
		for name, deg := range indegree {
			if deg != 0 {
				continue
			}
			order = append(order, name)
			delete(indegree, name)
			for _, child := range g.Tables[name].ChildrenSafe(ignored) {
				if _, ok := indegree[child]; ok {
					indegree[child]--
				}
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for name := range indegree {
				stuck = append(stuck, name)
			}
			return nil, &CycleError{Tables: stuck}
		}
	}

	return order, nil
}

// TransferAll streams every non-ignored table's materialized temp table
// (created by Materialize, within the same source transaction) into the
// target database, in parent-before-child order, chunkSize rows at a
// time per INSERT statement (§4.D.3).
func TransferAll(ctx context.Context, tx *sql.Tx, target execer, g *schema.Graph, chunkSize int, logger Logger) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	order, err := TopologicalOrder(g)
	if err != nil {
		return err
	}

	for _, fullName := range order {
		t := g.Tables[fullName]
		n, err := transferTable(ctx, tx, target, t, chunkSize)
		if err != nil {
			return fmt.Errorf("transferring %s: %w", fullName, err)
		}
		if logger != nil {
			logger.LogTableSampled(fullName, n, n)
		}
	}

	return nil
}

func transferTable(ctx context.Context, tx *sql.Tx, target execer, t *schema.Table, chunkSize int) (int, error) {
	cols := t.InsertColumns()
	if len(cols) == 0 {
		return 0, nil
	}

	selectQuery := fmt.Sprintf("SELECT %s FROM %s", quoteColumns(cols), quoteTmp(t))
	rows, err := tx.QueryContext(ctx, selectQuery)
	if err != nil {
		return 0, fmt.Errorf("reading sampled rows: %w", err)
	}
	defer rows.Close()

	insertCols := quoteColumns(cols)
	targetTable := quoteFull(t)

	total := 0
	batch := make([][]interface{}, 0, chunkSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		query, args := buildBulkInsert(targetTable, insertCols, batch)
		if _, err := target.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", targetTable, err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		dest := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return total, fmt.Errorf("scanning sampled row: %w", err)
		}
		batch = append(batch, dest)
		if len(batch) >= chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}

	return total, nil
}

// buildBulkInsert renders a single multi-row
// `INSERT INTO t (cols) VALUES (...), (...), ... ON CONFLICT DO NOTHING`
// statement for one chunk of rows.
func buildBulkInsert(table, cols string, rows [][]interface{}) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, cols)

	args := make([]interface{}, 0, len(rows)*len(rows[0]))
	n := len(rows[0])
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < n; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", placeholder)
			placeholder++
		}
		sb.WriteString(")")
		args = append(args, row...)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	return sb.String(), args
}
