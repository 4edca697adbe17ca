// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// DiffStats summarizes a unified diff. A deleted line directly replaced by
// an added one counts once in Changed and not in Added or Deleted.
type DiffStats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Changed int `json:"changed"`
}

// unifiedDiff renders a before/after unified diff for rel with three lines
// of context. It returns "" when the contents are equal.
func unifiedDiff(rel, before, after string) string {
	if before == after {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        diffLines(before),
		B:        diffLines(after),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}

// diffStats parses a unified diff produced by unifiedDiff and counts lines.
func diffStats(unified string) DiffStats {
	if unified == "" {
		return DiffStats{}
	}
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return DiffStats{}
	}
	st := fd.Stat()
	return DiffStats{Added: int(st.Added), Deleted: int(st.Deleted), Changed: int(st.Changed)}
}

func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
