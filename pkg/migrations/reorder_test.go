// SPDX-License-Identifier: Apache-2.0

package migrations_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tracktor/padmy/pkg/migrations"
)

// fixedClock returns a now func advancing by a second on every call, so
// successive reorder operations in the same test never collide on a ts.
func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		cur := t
		t = t.Add(time.Second)
		return cur
	}
}

// seedFiveIdentical lays out five pairs "00".."04" at ts = 1..5, each
// correctly chained to the previous one, the starting layout for
// scenarios S2 and S3.
func seedFiveIdentical(t *testing.T, dir string) {
	t.Helper()

	ids := []string{"00000000", "00000001", "00000002", "00000003", "00000004"}
	var prevUp, prevDown string
	for i, id := range ids {
		ts := int64(i + 1)
		writeMigrationFile(t, dir, ts, id, migrations.KindUp, prevUp)
		writeMigrationFile(t, dir, ts, id, migrations.KindDown, prevDown)
		prevUp = (&migrations.File{Ts: ts, FileID: id, Kind: migrations.KindUp}).Name()
		prevDown = (&migrations.File{Ts: ts, FileID: id, Kind: migrations.KindDown}).Name()
	}
}

func orderedUpIDs(t *testing.T, dir string) []string {
	t.Helper()
	files, err := migrations.ListFiles(dir, migrations.KindUp)
	require.NoError(t, err)
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.FileID
	}
	return ids
}

// TestReorderByLastMovesSinglePairToEnd is scenario S2: reordering "02"
// to the end of ["00","01","02","03","04"] yields 00,01,03,04,02.
func TestReorderByLastMovesSinglePairToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedFiveIdentical(t, dir)

	_, err := migrations.ReorderByLast(dir, []string{"00000002"}, fixedClock(time.Unix(1000, 0)))
	require.NoError(t, err)

	got := orderedUpIDs(t, dir)
	want := []string{"00000000", "00000001", "00000003", "00000004", "00000002"}
	assert.Equal(t, want, got)

	problems, err := migrations.VerifyMigrationFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

// TestReorderByAppliedInsertsChronologicalRun is scenario S3: the
// applied ids ["02","04"], given last-applied-first (so "04" was applied
// before "02"), reorder ["00","01","02","03","04"] to 00,01,04,02,03 —
// the applied ids relocate, in the order they were applied, to
// immediately follow the last unaffected pair that precedes them.
func TestReorderByAppliedInsertsChronologicalRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedFiveIdentical(t, dir)

	_, err := migrations.ReorderByApplied(dir, []string{"00000002", "00000004"}, fixedClock(time.Unix(2000, 0)))
	require.NoError(t, err)

	got := orderedUpIDs(t, dir)
	want := []string{"00000000", "00000001", "00000004", "00000002", "00000003"}
	assert.Equal(t, want, got)

	problems, err := migrations.VerifyMigrationFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestReorderByLastUnknownFileID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedFiveIdentical(t, dir)

	_, err := migrations.ReorderByLast(dir, []string{"ffffffff"}, fixedClock(time.Unix(3000, 0)))
	require.Error(t, err)

	var unknownErr *migrations.UnknownFileIDError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "ffffffff", unknownErr.FileID)
}

// TestRepairHeadersIsIdempotent covers invariant 2: once headers agree
// with the actual on-disk order, a second run modifies nothing.
func TestRepairHeadersIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedFiveIdentical(t, dir)

	// Corrupt one header so the first run has something to repair.
	writeMigrationFile(t, dir, 3, "00000002", migrations.KindUp, "9-ffffffff-up.sql")

	first, err := migrations.RepairHeaders(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := migrations.RepairHeaders(dir)
	require.NoError(t, err)
	assert.Empty(t, second)
}
