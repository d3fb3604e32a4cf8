// SPDX-License-Identifier: Apache-2.0

package migrations

import "fmt"

// FileErrorKind classifies a migration-file-ordering violation.
type FileErrorKind string

const (
	FileErrorOrder     FileErrorKind = "order"
	FileErrorHeader    FileErrorKind = "header"
	FileErrorDuplicate FileErrorKind = "duplicate"
)

// MigrationFileError is raised by the ordering-invariants verifier
// (§4.C.2). Duplicate fileId errors are always fatal; order/header
// errors may be collected non-fatally by a caller intending to repair.
type MigrationFileError struct {
	Kind    FileErrorKind
	FileID  string
	Message string
}

func (e *MigrationFileError) Error() string {
	return fmt.Sprintf("migration file error (%s) for %s: %s", e.Kind, e.FileID, e.Message)
}

// MigrationError is raised on round-trip verification mismatch (§4.C.5).
type MigrationError struct {
	MigrationID string
	Diff        string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("round-trip verification failed for migration %s:\n%s", e.MigrationID, e.Diff)
}

// NoSetupTableError is raised when a migration command runs before
// migrateSetup has created the ledger table.
type NoSetupTableError struct{}

func (e *NoSetupTableError) Error() string {
	return "migration ledger table public.migration does not exist; run migrate setup first"
}

// ConflictingOptionsError is raised when mutually-exclusive options are
// both set: migrateDown's n and untilFileId.
type ConflictingOptionsError struct {
	Options []string
}

func (e *ConflictingOptionsError) Error() string {
	return fmt.Sprintf("conflicting options: %v are mutually exclusive", e.Options)
}

// UnknownFileIDError is raised when a reorder operation references a
// fileId that does not exist in the folder.
type UnknownFileIDError struct {
	FileID string
}

func (e *UnknownFileIDError) Error() string {
	return fmt.Sprintf("unknown migration fileId %q", e.FileID)
}
