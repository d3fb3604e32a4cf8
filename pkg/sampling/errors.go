// SPDX-License-Identifier: Apache-2.0

// Package sampling implements the foreign-key-aware sampling engine:
// per-table size resolution, DAG traversal with cycle detection,
// RI-closed temporary-table materialization, and streaming transfer to
// a target database.
package sampling

import (
	"fmt"
	"strings"
)

// CycleError is raised when a worklist pass makes no progress, meaning
// the remaining tables form a foreign-key cycle.
type CycleError struct {
	Tables []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic foreign keys detected among tables: %s", strings.Join(e.Tables, ", "))
}

// MissingSampleSizeError is raised when a non-ignored table has no
// resolvable sample percentage after the per-table/per-schema/global
// resolution chain.
type MissingSampleSizeError struct {
	Table string
}

func (e *MissingSampleSizeError) Error() string {
	return fmt.Sprintf("no sample size configured for table %q", e.Table)
}
