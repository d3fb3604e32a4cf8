// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"sort"
	"time"
)

// sortedPairs returns every up/down pair in folder ordered by the up
// file's (ts, fileId) — the canonical existing order reorder operations
// start from.
func sortedPairs(folder string) ([]*Pair, error) {
	pairs, err := ListPairs(folder)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Up.Ts != pairs[j].Up.Ts {
			return pairs[i].Up.Ts < pairs[j].Up.Ts
		}
		return pairs[i].FileID < pairs[j].FileID
	})
	return pairs, nil
}

// RepairHeaders walks the up and down sequences in ascending order and
// rewrites any file whose header's Prev-file disagrees with the actual
// previous file of its kind. Never renames files. Running it twice is
// idempotent: the second run reports zero modified files.
func RepairHeaders(folder string) ([]string, error) {
	var modified []string

	for _, kind := range []Kind{KindUp, KindDown} {
		files, err := ListFiles(folder, kind)
		if err != nil {
			return nil, err
		}

		var prevName string
		for _, f := range files {
			wantPrev := prevName
			if f.Header == nil {
				f.Header = &Header{}
			}
			if f.Header.PrevFile != wantPrev {
				f.Header.PrevFile = wantPrev
				if err := f.WriteHeader(); err != nil {
					return modified, err
				}
				modified = append(modified, f.Path)
			}
			prevName = f.Name()
		}
	}

	return modified, nil
}

// ReorderByLast reassigns timestamps so that the pairs named by ids, in
// the order given, sort last — ascending-ts order — after every other
// pair, which keeps its existing relative order untouched. Headers are
// then repaired. Missing ids fail with UnknownFileIDError.
func ReorderByLast(folder string, ids []string, now func() time.Time) ([]string, error) {
	if now == nil {
		now = time.Now
	}

	pairs, err := sortedPairs(folder)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Pair, len(pairs))
	for _, p := range pairs {
		byID[p.FileID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, &UnknownFileIDError{FileID: id}
		}
	}

	base := now()
	for i, id := range ids {
		p := byID[id]
		newTs := base.Add(time.Duration(i) * time.Second).Unix()
		if err := retimePair(p, newTs); err != nil {
			return nil, err
		}
	}

	return RepairHeaders(folder)
}

// ReorderByApplied reorders folder so that the pairs in appliedIds
// (given last-applied-first) sort immediately after every pair that
// precedes the first applied pair in the current order, preserving the
// chronological-applied order among themselves, followed by every
// remaining pair in its original relative order.
func ReorderByApplied(folder string, appliedIds []string, now func() time.Time) ([]string, error) {
	if now == nil {
		now = time.Now
	}

	pairs, err := sortedPairs(folder)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]bool, len(appliedIds))
	for _, id := range appliedIds {
		appliedSet[id] = true
	}

	byID := make(map[string]*Pair, len(pairs))
	firstMatch := -1
	for i, p := range pairs {
		byID[p.FileID] = p
		if firstMatch == -1 && appliedSet[p.FileID] {
			firstMatch = i
		}
	}
	for _, id := range appliedIds {
		if _, ok := byID[id]; !ok {
			return nil, &UnknownFileIDError{FileID: id}
		}
	}
	if firstMatch == -1 {
		firstMatch = len(pairs)
	}

	before := pairs[:firstMatch]
	remainder := pairs[firstMatch:]

	chronological := make([]*Pair, 0, len(appliedIds))
	for i := len(appliedIds) - 1; i >= 0; i-- {
		chronological = append(chronological, byID[appliedIds[i]])
	}

	var after []*Pair
	for _, p := range remainder {
		if !appliedSet[p.FileID] {
			after = append(after, p)
		}
	}

	newOrder := make([]*Pair, 0, len(pairs))
	newOrder = append(newOrder, before...)
	newOrder = append(newOrder, chronological...)
	newOrder = append(newOrder, after...)

	base := now()
	for i, p := range newOrder {
		newTs := base.Add(time.Duration(i) * time.Second).Unix()
		if err := retimePair(p, newTs); err != nil {
			return nil, err
		}
	}

	return RepairHeaders(folder)
}

func retimePair(p *Pair, newTs int64) error {
	for _, f := range []*File{p.Up, p.Down} {
		if f == nil {
			continue
		}
		if err := f.Rename(newTs); err != nil {
			return err
		}
	}
	return nil
}
