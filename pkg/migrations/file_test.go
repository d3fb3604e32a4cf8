// SPDX-License-Identifier: Apache-2.0

package migrations_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tracktor/padmy/pkg/migrations"
)

func TestParseFilename(t *testing.T) {
	t.Parallel()

	ts, fileID, kind, err := migrations.ParseFilename("1700000000-deadbeef-up.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, "deadbeef", fileID)
	assert.Equal(t, migrations.KindUp, kind)

	_, _, _, err = migrations.ParseFilename("not-a-migration.sql")
	assert.Error(t, err)

	_, _, _, err = migrations.ParseFilename("123-short-up.sql")
	assert.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := &migrations.Header{
		PrevFile:   "1-aaaaaaaa-up.sql",
		Author:     "dev@example.com",
		Version:    "1.2.3",
		SkipVerify: true,
		SkipReason: "contains a data backfill",
	}

	body := "SELECT 1;\n"
	text := h.AsText() + body

	parsed, rest := migrations.ParseHeader(text)
	require.NotNil(t, parsed)
	assert.Equal(t, h.PrevFile, parsed.PrevFile)
	assert.Equal(t, h.Author, parsed.Author)
	assert.Equal(t, h.Version, parsed.Version)
	assert.True(t, parsed.SkipVerify)
	assert.Equal(t, h.SkipReason, parsed.SkipReason)
	assert.Equal(t, body, rest)
}

func TestHeaderEmptyIsAbsent(t *testing.T) {
	t.Parallel()

	body := "CREATE TABLE foo (id int);\n"
	parsed, rest := migrations.ParseHeader(body)
	assert.Nil(t, parsed)
	assert.Equal(t, body, rest)
}

func TestListFilesOrdering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMigrationFile(t, dir, 2, "bbbbbbbb", migrations.KindUp, "")
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindUp, "")
	writeMigrationFile(t, dir, 1, "cccccccc", migrations.KindUp, "")

	files, err := migrations.ListFiles(dir, migrations.KindUp)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "aaaaaaaa", files[0].FileID)
	assert.Equal(t, "cccccccc", files[1].FileID)
	assert.Equal(t, "bbbbbbbb", files[2].FileID)
}

func TestGenerateFileIDIsEightHexChars(t *testing.T) {
	t.Parallel()

	id, err := migrations.GenerateFileID()
	require.NoError(t, err)
	assert.Len(t, id, 8)
	for _, r := range id {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected rune %q", r)
	}
}

// writeMigrationFile is a shared helper used across this package's unit
// tests to lay out a bare migration file on disk without a live
// database.
func writeMigrationFile(t *testing.T, dir string, ts int64, fileID string, kind migrations.Kind, prevFile string) string {
	t.Helper()

	f := &migrations.File{Ts: ts, FileID: fileID, Kind: kind, Header: &migrations.Header{PrevFile: prevFile}}
	path := filepath.Join(dir, f.Name())
	f.Path = path
	require.NoError(t, f.WriteHeader())
	return path
}
