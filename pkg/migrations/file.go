// SPDX-License-Identifier: Apache-2.0

// Package migrations implements the content-addressed up/down SQL
// migration engine: file model, ordering invariants, ledger-tracked
// application, round-trip verification, and reorder/repair.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind is "up" or "down".
type Kind string

const (
	KindUp   Kind = "up"
	KindDown Kind = "down"
)

var filenameRE = regexp.MustCompile(`^([0-9]+)-([0-9a-f]{8})-(up|down)\.sql$`)

// Header is the leading metadata block embedded in a migration file as
// `-- Prev-file:`, `-- Author:`, `-- Version:`, `-- Skip-verify:` lines.
type Header struct {
	PrevFile   string
	Author     string
	Version    string
	SkipVerify bool
	SkipReason string
}

// IsEmpty reports whether none of the recognized header fields are set,
// the "absent header" representation from §4.C.1.
func (h *Header) IsEmpty() bool {
	return h == nil || (h.PrevFile == "" && h.Author == "" && h.Version == "" && !h.SkipVerify)
}

var headerPrefixes = map[string]string{
	"Prev-file":   "",
	"Author":      "",
	"Version":     "",
	"Skip-verify": "",
}

// ParseHeader reads the leading `-- <prefix>:` lines of body and returns
// the parsed Header plus the remaining body with the header lines
// stripped. Lines that stop matching known prefixes end the header.
func ParseHeader(body string) (*Header, string) {
	lines := strings.Split(body, "\n")
	h := &Header{}
	found := false

	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "--") {
			break
		}
		content := strings.TrimSpace(strings.TrimPrefix(trimmed, "--"))
		key, value, ok := splitHeaderLine(content)
		if !ok {
			break
		}
		if _, known := headerPrefixes[key]; !known {
			break
		}

		found = true
		switch key {
		case "Prev-file":
			h.PrevFile = value
		case "Author":
			h.Author = value
		case "Version":
			h.Version = value
		case "Skip-verify":
			h.SkipVerify = value != ""
			h.SkipReason = value
		}
	}

	if !found {
		return nil, body
	}

	return h, strings.Join(lines[i:], "\n")
}

func splitHeaderLine(content string) (key, value string, ok bool) {
	idx := strings.Index(content, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(content[:idx])
	value = strings.TrimSpace(content[idx+1:])
	return key, value, true
}

// AsText renders the header as its canonical leading-comment-block form.
func (h *Header) AsText() string {
	if h == nil {
		h = &Header{}
	}
	skipVerify := ""
	if h.SkipVerify {
		reason := h.SkipReason
		if reason == "" {
			reason = "no reason provided"
		}
		skipVerify = reason
	}

	return fmt.Sprintf(
		"-- Prev-file: %s\n-- Author: %s\n-- Version: %s\n-- Skip-verify: %s\n",
		h.PrevFile, h.Author, h.Version, skipVerify,
	)
}

// File is a single up or down migration file.
type File struct {
	Ts     int64
	FileID string
	Kind   Kind
	Path   string
	Header *Header
	Body   string
}

// Name is the canonical {ts}-{fileId}-{kind}.sql filename.
func (f *File) Name() string {
	return fmt.Sprintf("%d-%s-%s.sql", f.Ts, f.FileID, f.Kind)
}

// ParseFilename parses a bare filename (no directory component) into its
// timestamp, fileId and kind.
func ParseFilename(name string) (ts int64, fileID string, kind Kind, err error) {
	m := filenameRE.FindStringSubmatch(name)
	if m == nil {
		return 0, "", "", fmt.Errorf("invalid migration filename %q", name)
	}
	ts, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid timestamp in filename %q: %w", name, err)
	}
	return ts, m[2], Kind(m[3]), nil
}

// LoadFile reads and parses a migration file from disk.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading migration file %q: %w", path, err)
	}

	ts, fileID, kind, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	header, body := ParseHeader(string(raw))

	return &File{
		Ts:     ts,
		FileID: fileID,
		Kind:   kind,
		Path:   path,
		Header: header,
		Body:   body,
	}, nil
}

// Rename atomically renames f's underlying file to reflect a new
// timestamp, updating f.Ts and f.Path. Used by the reorder operations
// to reassign a file's position without touching its body or fileId.
func (f *File) Rename(newTs int64) error {
	dir := filepath.Dir(f.Path)
	f.Ts = newTs
	newPath := filepath.Join(dir, f.Name())
	if newPath == f.Path {
		return nil
	}
	if err := os.Rename(f.Path, newPath); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", f.Path, newPath, err)
	}
	f.Path = newPath
	return nil
}

// WriteHeader rewrites f's header in place on disk, replacing the
// leading header block (if any) and preserving the rest of the body.
func (f *File) WriteHeader() error {
	content := f.Header.AsText() + f.Body
	return os.WriteFile(f.Path, []byte(content), 0o644)
}

// GenerateFileID returns a random 8-character hex token, the first 8
// hex digits of a fresh random UUID — the same uuid.New() source of
// randomness the teacher's pkg/migrations/dbactions.go uses for its own
// IDs, truncated to this engine's shorter fileId format.
func GenerateFileID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating fileId: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:8], nil
}

// ListFiles returns every migration file of the given kind in folder,
// sorted by (ts, fileId) as required throughout §4.C.
func ListFiles(folder string, kind Kind) ([]*File, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading migration folder %q: %w", folder, err)
	}

	var files []*File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_, _, k, err := ParseFilename(e.Name())
		if err != nil || k != kind {
			continue
		}
		f, err := LoadFile(filepath.Join(folder, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Ts != files[j].Ts {
			return files[i].Ts < files[j].Ts
		}
		return files[i].FileID < files[j].FileID
	})

	return files, nil
}

// Pair groups the up/down files that share a fileId.
type Pair struct {
	FileID string
	Up     *File
	Down   *File
}

// ListPairs groups every up/down file in folder by fileId, ordered by
// the up file's (ts, fileId).
func ListPairs(folder string) ([]*Pair, error) {
	ups, err := ListFiles(folder, KindUp)
	if err != nil {
		return nil, err
	}
	downs, err := ListFiles(folder, KindDown)
	if err != nil {
		return nil, err
	}

	downByID := make(map[string]*File, len(downs))
	for _, d := range downs {
		downByID[d.FileID] = d
	}

	pairs := make([]*Pair, 0, len(ups))
	for _, u := range ups {
		pairs = append(pairs, &Pair{FileID: u.FileID, Up: u, Down: downByID[u.FileID]})
	}

	return pairs, nil
}
