// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan implements the canonical plan ledger: an ordered list of
// task items with positional ids and an enforced status lifecycle.
//
// The ledger is stored as text:
//
//	<PLAN>
//	- [todo][1] collect sources
//	- [doing][2] summarize findings
//	</PLAN>
//
// Parse and Render convert between text and items. Mutate applies exactly
// one Upsert or Remove and returns the reindexed canonical text. All
// functions are pure; persistence belongs to the caller (see the ledger
// package).
package plan

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// StartMarker opens the ledger block.
	StartMarker = "<PLAN>"

	// EndMarker closes the ledger block.
	EndMarker = "</PLAN>"
)

// EmptyText is the canonical text of a ledger with no items.
const EmptyText = StartMarker + "\n" + EndMarker + "\n"

// Status is the lifecycle state of a plan item.
type Status string

const (
	StatusTodo    Status = "todo"
	StatusDoing   Status = "doing"
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
)

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone, StatusAborted:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusAborted
}

// Item is one row of the ledger.
//
// ID is positional: it always equals the item's 1-based index in the
// ledger it was read from, and changes whenever earlier items are removed.
type Item struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

var (
	blockRe = regexp.MustCompile(`(?s)<PLAN>\s*(.*?)\s*</PLAN>`)
	lineRe  = regexp.MustCompile(`^- \[(todo|doing|done|aborted)\]\[(\d+)\] (.+)$`)
)

// Parse reads canonical ledger text into items.
//
// Description:
//
//	Locates the <PLAN>...</PLAN> block and parses each non-blank body
//	line as "- [status][id] title". Ids must run 1..N without gaps.
//
// Inputs:
//
//	text - Ledger text. Content outside the block is ignored.
//
// Outputs:
//
//	[]Item - Items in ledger order. Empty (non-nil) for an empty block.
//	error - ErrFormat on missing markers, a malformed line, an id out of
//	        sequence, or an empty title.
func Parse(text string) ([]Item, error) {
	m := blockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, formatErrorf("missing %s...%s block", StartMarker, EndMarker)
	}

	items := []Item{}
	body := strings.TrimSpace(m[1])
	if body == "" {
		return items, nil
	}

	expected := 1
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lm := lineRe.FindStringSubmatch(line)
		if lm == nil {
			return nil, formatErrorf("invalid plan line %q", raw)
		}
		id, err := strconv.Atoi(lm[2])
		if err != nil || id != expected {
			return nil, formatErrorf("invalid plan id sequence: expected %d, got %s", expected, lm[2])
		}
		title := strings.TrimSpace(lm[3])
		if title == "" {
			return nil, &PlanError{Kind: ErrFormat, ItemID: id, Message: "title cannot be empty"}
		}
		items = append(items, Item{ID: id, Title: title, Status: Status(lm[1])})
		expected++
	}
	return items, nil
}

// Render writes items as canonical ledger text.
//
// Ids embedded in items are ignored; the output is always numbered 1..N
// by position. The result ends with a newline.
//
// Returns ErrFormat for an unknown status or a blank title.
func Render(items []Item) (string, error) {
	var b strings.Builder
	b.WriteString(StartMarker)
	b.WriteByte('\n')
	for i, it := range items {
		if !it.Status.Valid() {
			return "", &PlanError{Kind: ErrFormat, ItemID: i + 1, Message: "unknown status " + strconv.Quote(string(it.Status))}
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			return "", &PlanError{Kind: ErrFormat, ItemID: i + 1, Message: "title cannot be empty"}
		}
		if strings.ContainsAny(title, "\r\n") || strings.Contains(title, EndMarker) {
			return "", &PlanError{Kind: ErrFormat, ItemID: i + 1, Message: "title must be a single line without ledger markers"}
		}
		b.WriteString("- [")
		b.WriteString(string(it.Status))
		b.WriteString("][")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(title)
		b.WriteByte('\n')
	}
	b.WriteString(EndMarker)
	b.WriteByte('\n')
	return b.String(), nil
}

// Reindex returns a copy of items with ids reassigned 1..N and titles trimmed.
func Reindex(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{ID: i + 1, Title: strings.TrimSpace(it.Title), Status: it.Status}
	}
	return out
}

// Open returns the ids of items still in todo or doing.
func Open(items []Item) []int {
	var ids []int
	for _, it := range items {
		if !it.Status.Terminal() {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// NextTodo returns the first todo item in ledger order.
func NextTodo(items []Item) (Item, bool) {
	for _, it := range items {
		if it.Status == StatusTodo {
			return it, true
		}
	}
	return Item{}, false
}
