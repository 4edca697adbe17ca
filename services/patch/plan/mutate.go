// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Mutation is a closed set of ledger operations: Upsert or Remove.
type Mutation interface {
	mutation()
}

// Entry is one row of an Upsert.
//
// ID 0 appends a new item, which must be todo (an empty Status means todo).
// A positive ID overwrites the item at that position; an empty Title or
// Status keeps the current value. A non-empty Status must be a legal
// transition from the current one, so restating the current status fails.
type Entry struct {
	ID     int    `json:"id,omitempty"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// Upsert appends id-less entries in order and overwrites id-bearing ones.
type Upsert struct {
	Entries []Entry
}

// Remove deletes the items at the given positions.
type Remove struct {
	IDs []int
}

func (Upsert) mutation() {}
func (Remove) mutation() {}

// Mutate parses text, applies m, and renders the result.
//
// Description:
//
//	The one entry point for changing a ledger. The input is validated in
//	full before anything is applied, so a failing mutation never yields a
//	partially changed ledger.
//
// Inputs:
//
//	text - Current canonical ledger text.
//	m - Upsert or Remove.
//
// Outputs:
//
//	string - New canonical text.
//	[]Item - New items, reindexed 1..N.
//	error - ErrFormat, ErrRange, ErrConflict or ErrInvalidTransition.
func Mutate(text string, m Mutation) (string, []Item, error) {
	items, err := Parse(text)
	if err != nil {
		return "", nil, err
	}
	next, err := Apply(items, m)
	if err != nil {
		return "", nil, err
	}
	out, err := Render(next)
	if err != nil {
		return "", nil, err
	}
	return out, next, nil
}

// Apply is Mutate over already-parsed items. items is not modified.
func Apply(items []Item, m Mutation) ([]Item, error) {
	switch op := m.(type) {
	case Upsert:
		return applyUpsert(items, op.Entries)
	case *Upsert:
		if op == nil {
			return nil, formatErrorf("nil upsert")
		}
		return applyUpsert(items, op.Entries)
	case Remove:
		return applyRemove(items, op.IDs)
	case *Remove:
		if op == nil {
			return nil, formatErrorf("nil remove")
		}
		return applyRemove(items, op.IDs)
	default:
		return nil, formatErrorf("unsupported mutation %T", m)
	}
}

func applyUpsert(items []Item, entries []Entry) ([]Item, error) {
	if len(entries) == 0 {
		return nil, formatErrorf("upsert requires at least one entry")
	}

	next := Reindex(items)
	seen := make(map[int]struct{}, len(entries))
	var appended []Item

	for i, e := range entries {
		title := strings.TrimSpace(e.Title)

		if e.ID == 0 {
			status := e.Status
			if status == "" {
				status = StatusTodo
			}
			if status != StatusTodo {
				return nil, formatErrorf("entry %d: new items must be %s, got %q", i+1, StatusTodo, status)
			}
			if title == "" {
				return nil, formatErrorf("entry %d: title cannot be empty", i+1)
			}
			appended = append(appended, Item{Title: title, Status: status})
			continue
		}

		if e.ID < 0 || e.ID > len(items) {
			return nil, rangeError(e.ID, len(items))
		}
		if _, dup := seen[e.ID]; dup {
			return nil, &PlanError{Kind: ErrConflict, ItemID: e.ID, Message: "duplicate id in one upsert"}
		}
		seen[e.ID] = struct{}{}

		cur := next[e.ID-1]
		if e.Status != "" {
			if !e.Status.Valid() {
				return nil, &PlanError{Kind: ErrFormat, ItemID: e.ID, Message: fmt.Sprintf("unknown status %q", e.Status)}
			}
			if err := ValidateTransition(e.ID, cur.Status, e.Status); err != nil {
				return nil, err
			}
			cur.Status = e.Status
		}
		if title != "" {
			cur.Title = title
		}
		next[e.ID-1] = cur
	}

	return Reindex(append(next, appended...)), nil
}

func applyRemove(items []Item, ids []int) ([]Item, error) {
	if len(ids) == 0 {
		return nil, formatErrorf("remove requires at least one id")
	}

	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 || id > len(items) {
			return nil, rangeError(id, len(items))
		}
		drop[id] = struct{}{}
	}

	next := make([]Item, 0, len(items)-len(drop))
	for i, it := range items {
		if _, ok := drop[i+1]; ok {
			continue
		}
		next = append(next, it)
	}
	return Reindex(next), nil
}

// ParseIDs parses a comma-separated id list such as "2,4".
//
// Blank parts are skipped. Every id must be a positive integer and appear
// once. The result is sorted ascending.
func ParseIDs(csv string) ([]int, error) {
	var ids []int
	seen := make(map[int]struct{})
	for _, part := range strings.Split(csv, ",") {
		raw := strings.TrimSpace(part)
		if raw == "" {
			continue
		}
		id := 0
		for _, r := range raw {
			if r < '0' || r > '9' {
				return nil, formatErrorf("invalid id %q", raw)
			}
			id = id*10 + int(r-'0')
			if id > 1<<30 {
				return nil, formatErrorf("invalid id %q", raw)
			}
		}
		if id == 0 {
			return nil, formatErrorf("invalid id %q", raw)
		}
		if _, dup := seen[id]; dup {
			return nil, &PlanError{Kind: ErrConflict, ItemID: id, Message: "duplicate id"}
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, formatErrorf("ids must contain at least one id")
	}
	sort.Ints(ids)
	return ids, nil
}
