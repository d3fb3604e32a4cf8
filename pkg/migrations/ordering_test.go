// SPDX-License-Identifier: Apache-2.0

package migrations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tracktor/padmy/pkg/migrations"
)

// TestVerifyMigrationFilesChainIntegrity is scenario S1: three migration
// pairs created with ts = 1, 2, 3 must verify with zero errors and each
// up file's header.prevFile must equal the previous up filename.
func TestVerifyMigrationFilesChainIntegrity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindUp, "")
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindDown, "")
	writeMigrationFile(t, dir, 2, "bbbbbbbb", migrations.KindUp, "1-aaaaaaaa-up.sql")
	writeMigrationFile(t, dir, 2, "bbbbbbbb", migrations.KindDown, "1-aaaaaaaa-down.sql")
	writeMigrationFile(t, dir, 3, "cccccccc", migrations.KindUp, "2-bbbbbbbb-up.sql")
	writeMigrationFile(t, dir, 3, "cccccccc", migrations.KindDown, "2-bbbbbbbb-down.sql")

	problems, err := migrations.VerifyMigrationFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestVerifyMigrationFilesDetectsDuplicateFileID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindUp, "")
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindDown, "")
	writeMigrationFile(t, dir, 2, "aaaaaaaa", migrations.KindUp, "1-aaaaaaaa-up.sql")

	_, err := migrations.VerifyMigrationFiles(dir)
	require.Error(t, err)

	var fileErr *migrations.MigrationFileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, migrations.FileErrorDuplicate, fileErr.Kind)
}

func TestVerifyMigrationFilesDetectsHeaderMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindUp, "")
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindDown, "")
	// Points at the wrong previous file.
	writeMigrationFile(t, dir, 2, "bbbbbbbb", migrations.KindUp, "9-ffffffff-up.sql")
	writeMigrationFile(t, dir, 2, "bbbbbbbb", migrations.KindDown, "1-aaaaaaaa-down.sql")

	problems, err := migrations.VerifyMigrationFiles(dir)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, migrations.FileErrorHeader, problems[0].Kind)
	assert.Equal(t, "bbbbbbbb", problems[0].FileID)
}

func TestVerifyMigrationFilesRequiresMatchingPair(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMigrationFile(t, dir, 1, "aaaaaaaa", migrations.KindUp, "")
	// No matching down file for "aaaaaaaa".

	_, err := migrations.VerifyMigrationFiles(dir)
	require.Error(t, err)

	var fileErr *migrations.MigrationFileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, migrations.FileErrorDuplicate, fileErr.Kind)
}
