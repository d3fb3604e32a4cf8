// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"fmt"
	"path/filepath"
	"time"
)

// CreateOptions configures CreateMigration.
type CreateOptions struct {
	Version    string
	Author     string
	SkipVerify bool
	SkipReason string
	Now        func() time.Time
}

// CreateMigration writes a new empty up/down file pair into folder,
// pointing each file's Prev-file header at the most recent existing
// file of its kind. SkipVerify (and its reason) is applied only to the
// down file.
func CreateMigration(folder string, opts CreateOptions) (up, down *File, err error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	fileID, err := GenerateFileID()
	if err != nil {
		return nil, nil, err
	}
	ts := now().Unix()

	prevUp, err := lastFile(folder, KindUp)
	if err != nil {
		return nil, nil, err
	}
	prevDown, err := lastFile(folder, KindDown)
	if err != nil {
		return nil, nil, err
	}

	up = &File{
		Ts:     ts,
		FileID: fileID,
		Kind:   KindUp,
		Header: &Header{PrevFile: prevUp, Author: opts.Author, Version: opts.Version},
	}
	up.Path = filepath.Join(folder, up.Name())

	skipReason := opts.SkipReason
	if opts.SkipVerify && skipReason == "" {
		skipReason = "no reason provided"
	}
	down = &File{
		Ts:     ts,
		FileID: fileID,
		Kind:   KindDown,
		Header: &Header{PrevFile: prevDown, Author: opts.Author, Version: opts.Version, SkipVerify: opts.SkipVerify, SkipReason: skipReason},
	}
	down.Path = filepath.Join(folder, down.Name())

	if err := up.WriteHeader(); err != nil {
		return nil, nil, fmt.Errorf("writing up file: %w", err)
	}
	if err := down.WriteHeader(); err != nil {
		return nil, nil, fmt.Errorf("writing down file: %w", err)
	}

	return up, down, nil
}

func lastFile(folder string, kind Kind) (string, error) {
	files, err := ListFiles(folder, kind)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[len(files)-1].Name(), nil
}
