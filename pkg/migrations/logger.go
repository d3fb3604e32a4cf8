// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Logger reports migration-engine lifecycle events. Re-themed from the
// teacher's pkg/migrations/logger.go (itself built around pterm's
// prefix printers) to the up/down file model instead of pgroll's
// declarative operations.
type Logger interface {
	LogMigrationApply(fileName string)
	LogMigrationRollback(fileName string)
	LogRoundTripCheck(fileID string)
	LogRoundTripOK(fileID string)
	LogReorder(modified []string)
	Info(msg string, args ...any)
}

type migrationLogger struct{}

// NewLogger returns a Logger that writes structured console output via
// pterm's prefix printers, the same dependency the teacher uses
// throughout its CLI for migration progress.
func NewLogger() Logger {
	return &migrationLogger{}
}

func (l *migrationLogger) LogMigrationApply(fileName string) {
	pterm.Success.Printfln("applied %s", fileName)
}

func (l *migrationLogger) LogMigrationRollback(fileName string) {
	pterm.Info.Printfln("rolled back %s", fileName)
}

func (l *migrationLogger) LogRoundTripCheck(fileID string) {
	pterm.Info.Printfln("checking round-trip for %s", fileID)
}

func (l *migrationLogger) LogRoundTripOK(fileID string) {
	pterm.Success.Printfln("round-trip verified for %s", fileID)
}

func (l *migrationLogger) LogReorder(modified []string) {
	pterm.Info.Printfln("reordered %d migration file(s)", len(modified))
}

func (l *migrationLogger) Info(msg string, args ...any) {
	pterm.Info.Println(fmt.Sprintf(msg, args...))
}

// noopLogger discards every event, matching the teacher's noopLogger
// for library callers (including tests) that don't want console output.
type noopLogger struct{}

func NewNoopLogger() Logger { return &noopLogger{} }

func (n *noopLogger) LogMigrationApply(string)    {}
func (n *noopLogger) LogMigrationRollback(string) {}
func (n *noopLogger) LogRoundTripCheck(string)    {}
func (n *noopLogger) LogRoundTripOK(string)       {}
func (n *noopLogger) LogReorder([]string)         {}
func (n *noopLogger) Info(string, ...any)         {}
