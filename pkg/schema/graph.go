// SPDX-License-Identifier: Apache-2.0

// Package schema introspects a set of Postgres schemas into an
// in-memory, directed foreign-key graph shared by the sampling engine,
// the anonymizer and the analyze command.
package schema

import "fmt"

// Column describes a single table column.
type Column struct {
	Name        string
	Type        string
	IsGenerated bool
}

// ForeignKey is a (possibly composite) foreign key constraint. Columns
// and ReferencedColumns are aligned ordered arrays: Columns[i]
// references ReferencedColumns[i].
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
}

// Table is a node in the schema graph. Parents/Children are populated
// by Graph.AddForeignKey and may include the table's own FullName for
// self-referencing foreign keys.
type Table struct {
	Schema  string
	Name    string
	Columns []Column

	PrimaryKey  []string
	ForeignKeys []ForeignKey

	RowCount          int64
	SampleSizePercent *float64
	Ignored           bool

	Parents  map[string]bool
	Children map[string]bool
}

// FullName is schema.name, the table's identity key in the graph.
func (t *Table) FullName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// TmpName is the session-scoped temporary table name used during
// sampling.
func (t *Table) TmpName() string {
	return fmt.Sprintf("_%s_%s_tmp", t.Schema, t.Name)
}

// InsertColumns returns the non-generated column names, the set used
// for every INSERT/UPDATE column list.
func (t *Table) InsertColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.IsGenerated {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// ParentsSafe returns parent full-names excluding self-references.
func (t *Table) ParentsSafe() []string {
	return filterSelf(t.FullName(), t.Parents)
}

// ChildrenSafe returns non-ignored child full-names excluding
// self-references. ignored reports whether a given full name is
// flagged ignored.
func (t *Table) ChildrenSafe(ignored func(string) bool) []string {
	out := filterSelf(t.FullName(), t.Children)
	if ignored == nil {
		return out
	}
	filtered := out[:0]
	for _, c := range out {
		if !ignored(c) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func filterSelf(self string, set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != self {
			out = append(out, k)
		}
	}
	return out
}

// IsRoot reports whether t has no parents (self-loops excluded).
func (t *Table) IsRoot() bool {
	return len(t.ParentsSafe()) == 0
}

// IsLeaf reports whether t has no non-ignored children (self-loops
// excluded). ignored classifies a full name as ignored or not.
func (t *Table) IsLeaf(ignored func(string) bool) bool {
	return len(t.ChildrenSafe(ignored)) == 0
}

// Graph is a directed graph over Table keyed by FullName, with an edge
// parent -> child whenever child has a foreign key into parent.
type Graph struct {
	Tables map[string]*Table
}

func NewGraph() *Graph {
	return &Graph{Tables: make(map[string]*Table)}
}

// AddTable registers t in the graph, initializing its edge sets.
func (g *Graph) AddTable(t *Table) {
	if t.Parents == nil {
		t.Parents = make(map[string]bool)
	}
	if t.Children == nil {
		t.Children = make(map[string]bool)
	}
	g.Tables[t.FullName()] = t
}

// AddForeignKey wires the parent -> child edge for fk, which is
// declared on the referencing table referencingFullName.
func (g *Graph) AddForeignKey(referencingFullName string, fk ForeignKey) {
	referencing, ok := g.Tables[referencingFullName]
	if !ok {
		return
	}
	referencing.ForeignKeys = append(referencing.ForeignKeys, fk)

	parentFullName := fmt.Sprintf("%s.%s", fk.ReferencedSchema, fk.ReferencedTable)
	parent, ok := g.Tables[parentFullName]
	if !ok {
		return
	}

	referencing.Parents[parentFullName] = true
	parent.Children[referencingFullName] = true
}

// IgnoredFunc returns a classifier usable with ChildrenSafe/IsLeaf that
// reports whether fullName is flagged Ignored in this graph.
func (g *Graph) IgnoredFunc() func(string) bool {
	return func(fullName string) bool {
		t, ok := g.Tables[fullName]
		return ok && t.Ignored
	}
}

// Roots returns the full names of every non-ignored table with no
// parents.
func (g *Graph) Roots() []string {
	var roots []string
	for name, t := range g.Tables {
		if t.Ignored {
			continue
		}
		if t.IsRoot() {
			roots = append(roots, name)
		}
	}
	return roots
}

// Leaves returns the full names of every non-ignored table with no
// non-ignored children.
func (g *Graph) Leaves() []string {
	ignored := g.IgnoredFunc()
	var leaves []string
	for name, t := range g.Tables {
		if t.Ignored {
			continue
		}
		if t.IsLeaf(ignored) {
			leaves = append(leaves, name)
		}
	}
	return leaves
}
