// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"

	"github.com/Tracktor/padmy/pkg/schema"
)

// Logger receives progress notifications from Materialize. All methods
// are optional; a nil Logger is valid.
type Logger interface {
	LogTableSampled(fullName string, rows, target int)
	LogSampleCapped(fullName string, got, want int)
	Warn(msg string, args ...any)
}

// StartFrom selects which end of the dependency graph the worklist
// begins from. The default, StartFromRoot, mirrors padmy's original
// create_temp_tables(start_from="node") default: begin from tables with
// no parents, deferring each node's own materialization until all of
// its children have been materialized first.
type StartFrom string

const (
	StartFromRoot StartFrom = "root"
	StartFromLeaf StartFrom = "leaf"
)

// RunOptions configures Materialize.
type RunOptions struct {
	StartFrom       StartFrom
	DisableTriggers bool
}

// ResolveSampleSizes applies cfg's resolution chain to every non-ignored
// table in g, setting Table.SampleSizePercent and Table.Ignored.
// MissingSampleSizeError is returned for the first non-ignored table
// that has no resolvable percentage.
func ResolveSampleSizes(g *schema.Graph, cfg *Config) error {
	for fullName, t := range g.Tables {
		if cfg.IsIgnored(t.Schema, t.Name) {
			t.Ignored = true
			continue
		}
		percent, ok := cfg.ResolveSample(t.Schema, t.Name)
		if !ok {
			return &MissingSampleSizeError{Table: fullName}
		}
		p := percent
		t.SampleSizePercent = &p
	}
	return nil
}

// Materialize runs the worklist traversal described in §4.D.2: starting
// from the graph's roots (or leaves, per opts.StartFrom), it builds a
// session-scoped `ON COMMIT DROP` temporary table per non-ignored table,
// populated with a TABLESAMPLE-based sample for leaves and an
// FK-closure-preserving INSERT for tables with already-sampled
// children, padding up to the target row count where the closure alone
// falls short. It must run inside the transaction that will later read
// the temp tables back out (see Transfer), since they are dropped on
// commit.
func Materialize(ctx context.Context, tx *sql.Tx, g *schema.Graph, opts RunOptions, logger Logger) error {
	if _, err := tx.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS tsm_system_rows"); err != nil {
		return fmt.Errorf("enabling tsm_system_rows: %w", err)
	}

	if opts.DisableTriggers {
		if _, err := tx.ExecContext(ctx, "SET session_replication_role = 'replica'"); err != nil {
			return fmt.Errorf("disabling triggers: %w", err)
		}
		defer tx.ExecContext(ctx, "SET session_replication_role = 'origin'")
	}

	ignored := g.IgnoredFunc()
	processed := make(map[string]bool)

	startFrom := opts.StartFrom
	if startFrom == "" {
		startFrom = StartFromRoot
	}

	var frontier map[string]bool
	if startFrom == StartFromRoot {
		frontier = toSet(g.Roots())
	} else {
		frontier = toSet(g.Leaves())
	}

	if len(frontier) == 0 {
		return fmt.Errorf("sampling: no starting table found for strategy %q", startFrom)
	}

	for len(frontier) > 0 {
		next := make(map[string]bool)

		for fullName := range frontier {
			if processed[fullName] {
				continue
			}
			t := g.Tables[fullName]

			waiting, err := processTable(ctx, tx, g, t, processed, ignored, logger)
			if err != nil {
				return err
			}
			for w := range waiting {
				next[w] = true
			}
		}

		if sameSet(frontier, next) {
			return &CycleError{Tables: unprocessedTables(g, processed)}
		}

		frontier = next
	}

	if stuck := unprocessedTables(g, processed); len(stuck) > 0 {
		return &CycleError{Tables: stuck}
	}

	return nil
}

// processTable materializes a single table if ready, and returns the
// set of tables that must be processed before it can be (its
// unprocessed children, if it isn't a leaf) or, once processed, the set
// of its unprocessed parents so the caller can advance the frontier.
func processTable(ctx context.Context, tx *sql.Tx, g *schema.Graph, t *schema.Table, processed map[string]bool, ignored func(string) bool, logger Logger) (map[string]bool, error) {
	if t.SampleSizePercent == nil {
		return nil, &MissingSampleSizeError{Table: t.FullName()}
	}
	tableSize := int(math.Floor(float64(t.RowCount) * *t.SampleSizePercent / 100))

	isLeaf := t.IsLeaf(ignored)
	if isLeaf {
		if err := insertLeafTable(ctx, tx, t, tableSize); err != nil {
			return nil, err
		}
		if logger != nil {
			logger.LogTableSampled(t.FullName(), tableSize, tableSize)
		}
	} else {
		children := t.ChildrenSafe(ignored)
		waiting := make(map[string]bool)
		for _, c := range children {
			if !processed[c] {
				waiting[c] = true
			}
		}
		if len(waiting) > 0 {
			return waiting, nil
		}

		got, err := insertNodeTable(ctx, tx, g, t, children, tableSize)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			if got > tableSize {
				logger.LogSampleCapped(t.FullName(), got, tableSize)
			} else {
				logger.LogTableSampled(t.FullName(), got, tableSize)
			}
		}
	}

	processed[t.FullName()] = true

	parents := make(map[string]bool)
	for _, p := range t.ParentsSafe() {
		if !processed[p] {
			parents[p] = true
		}
	}
	return parents, nil
}

func insertLeafTable(ctx context.Context, tx *sql.Tx, t *schema.Table, tableSize int) error {
	query := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT * FROM %s TABLESAMPLE SYSTEM_ROWS($1)",
		quoteTmp(t), quoteFull(t),
	)
	_, err := tx.ExecContext(ctx, query, tableSize)
	if err != nil {
		return fmt.Errorf("sampling leaf table %s: %w", t.FullName(), err)
	}
	return nil
}

func insertNodeTable(ctx context.Context, tx *sql.Tx, g *schema.Graph, t *schema.Table, children []string, tableSize int) (int, error) {
	createQuery := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING ALL) ON COMMIT DROP",
		quoteTmp(t), quoteFull(t),
	)
	if _, err := tx.ExecContext(ctx, createQuery); err != nil {
		return 0, fmt.Errorf("creating sample table for %s: %w", t.FullName(), err)
	}

	cols := quoteColumns(t.InsertColumns())

	for _, childName := range children {
		child := g.Tables[childName]
		insertQuery := childFKInsertQuery(t, child, cols)
		if insertQuery == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertQuery); err != nil {
			return 0, fmt.Errorf("inserting %s rows referenced by %s: %w", t.FullName(), child.FullName(), err)
		}
	}

	var count int
	countQuery := fmt.Sprintf("SELECT count(*) FROM %s", quoteTmp(t))
	if err := tx.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sampled rows for %s: %w", t.FullName(), err)
	}

	if count < tableSize {
		limit := tableSize - count
		padQuery := paddingInsertQuery(t, cols)
		if _, err := tx.ExecContext(ctx, padQuery, limit); err != nil {
			return 0, fmt.Errorf("padding sample for %s: %w", t.FullName(), err)
		}
		count = tableSize
	}

	return count, nil
}

// childFKInsertQuery builds the INSERT INTO parent.tmp ... query that
// pulls parent rows referenced by rows already sampled into child's
// temp table, one inner join per foreign key on child that references
// parent (§4.D.2).
func childFKInsertQuery(parent *schema.Table, child *schema.Table, cols string) string {
	var joins []string
	for i, fk := range child.ForeignKeys {
		if fmt.Sprintf("%s.%s", fk.ReferencedSchema, fk.ReferencedTable) != parent.FullName() {
			continue
		}
		var conds []string
		for j, col := range fk.Columns {
			conds = append(conds, fmt.Sprintf("_s%d.%s = t.%s", i, pq.QuoteIdentifier(col), pq.QuoteIdentifier(fk.ReferencedColumns[j])))
		}
		joins = append(joins, fmt.Sprintf("INNER JOIN %s _s%d ON %s", quoteTmp(child), i, strings.Join(conds, " AND ")))
	}
	if len(joins) == 0 {
		return ""
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s)\nSELECT %s FROM %s t\n%s\nON CONFLICT DO NOTHING",
		quoteTmp(parent), cols, qualifiedColumns("t", parent.InsertColumns()), quoteFull(parent), strings.Join(joins, "\n"),
	)
}

// paddingInsertQuery tops up a node table's sample with additional
// unrelated rows, up to $1 more, when the FK closure alone under-filled
// it relative to the target size.
func paddingInsertQuery(t *schema.Table, cols string) string {
	var whereClause string
	if len(t.PrimaryKey) > 0 {
		var conds []string
		for _, pk := range t.PrimaryKey {
			q := pq.QuoteIdentifier(pk)
			conds = append(conds, fmt.Sprintf("t2.%s = t1.%s", q, q))
		}
		whereClause = fmt.Sprintf("WHERE NOT EXISTS (SELECT 1 FROM %s t2 WHERE %s)\n", quoteTmp(t), strings.Join(conds, " AND "))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s)\nSELECT %s FROM %s t1\n%sLIMIT $1",
		quoteTmp(t), cols, qualifiedColumns("t1", t.InsertColumns()), quoteFull(t), whereClause,
	)
}

func quoteFull(t *schema.Table) string {
	return fmt.Sprintf("%s.%s", pq.QuoteIdentifier(t.Schema), pq.QuoteIdentifier(t.Name))
}

func quoteTmp(t *schema.Table) string {
	return pq.QuoteIdentifier(t.TmpName())
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func qualifiedColumns(alias string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%s.%s", alias, pq.QuoteIdentifier(c))
	}
	return strings.Join(quoted, ", ")
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// unprocessedTables returns every non-ignored table not yet in
// processed. A cycle can leave such tables entirely unreached by the
// frontier walk — e.g. a mutually-referencing pair with no path from
// any root or leaf — rather than merely stalling a non-empty frontier,
// so the worklist loop checks this both when the frontier stops
// shrinking and after it has drained to empty.
func unprocessedTables(g *schema.Graph, processed map[string]bool) []string {
	var stuck []string
	for name, t := range g.Tables {
		if t.Ignored || processed[name] {
			continue
		}
		stuck = append(stuck, name)
	}
	return stuck
}
