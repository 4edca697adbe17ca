// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editblock

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

// Ellipsis is the line that separates independent sub-hunks.
const Ellipsis = "..."

// ApplyOne applies a single SEARCH/REPLACE hunk to content.
//
// Description:
//
//	Normalizes search and replace (strips a leading filename echo and a
//	wrapping code fence, ensures a trailing newline), then tries the
//	matching strategies in order. A blank search appends replace to the
//	end of content.
//
// Inputs:
//
//	content - Current artifact text. Not modified.
//	search - Text to find.
//	replace - Replacement text.
//	target - Target filename, used for filename-echo stripping and errors.
//	         May be empty.
//
// Outputs:
//
//	string - New content.
//	error - ErrMatch when no strategy applies or ellipsis anchors differ.
func ApplyOne(content, search, replace, target string) (string, error) {
	search = stripWrapping(search, target)
	replace = stripWrapping(replace, target)

	if strings.TrimSpace(search) == "" {
		return ensureFinalNewline(content) + replace, nil
	}

	whole := ensureFinalNewline(content)
	search = ensureFinalNewline(search)
	replace = ensureFinalNewline(replace)

	wholeLines := splitLinesKeep(whole)
	searchLines := splitLinesKeep(search)
	replaceLines := splitLinesKeep(replace)

	candidates := [][]string{searchLines}
	if len(searchLines) > 1 && isBlank(searchLines[0]) {
		candidates = append(candidates, searchLines[1:])
	}
	for _, cand := range candidates {
		if out, ok := exactReplace(wholeLines, cand, replaceLines); ok {
			return out, nil
		}
		if out, ok := indentFlexibleReplace(wholeLines, cand, replaceLines); ok {
			return out, nil
		}
	}

	out, ok, err := ellipsisReplace(whole, search, replace)
	if err != nil {
		return "", &EditError{Kind: ErrMatch, Path: target, Message: err.Error()}
	}
	if ok {
		return out, nil
	}
	return "", NewMatchError(target, "SEARCH block did not match target content")
}

// exactReplace splices replace over the first window identical to search.
func exactReplace(whole, search, replace []string) (string, bool) {
	n := len(search)
	if n == 0 {
		return "", false
	}
	for idx := 0; idx+n <= len(whole); idx++ {
		if equalLines(whole[idx:idx+n], search) {
			return splice(whole, idx, n, replace), true
		}
	}
	return "", false
}

// indentFlexibleReplace matches ignoring leading whitespace, provided every
// non-blank matched line carries the same extra indentation. That prefix
// is then added to every non-blank replace line.
func indentFlexibleReplace(whole, search, replace []string) (string, bool) {
	n := len(search)
	if n == 0 {
		return "", false
	}

	if outdent := minIndent(search, replace); outdent > 0 {
		search = trimIndent(search, outdent)
		replace = trimIndent(replace, outdent)
	}

	for idx := 0; idx+n <= len(whole); idx++ {
		window := whole[idx : idx+n]
		if !matchStripped(window, search) {
			continue
		}
		prefix, ok := sharedPrefix(window, search)
		if !ok {
			continue
		}
		patched := make([]string, len(replace))
		for i, line := range replace {
			if isBlank(line) {
				patched[i] = line
				continue
			}
			patched[i] = prefix + line
		}
		return splice(whole, idx, n, patched), true
	}
	return "", false
}

func matchStripped(window, search []string) bool {
	for j := range search {
		if trimLeftSpace(window[j]) != trimLeftSpace(search[j]) {
			return false
		}
	}
	return true
}

// sharedPrefix returns the single indentation prefix the window adds to the
// search lines. Blank lines are ignored.
func sharedPrefix(window, search []string) (string, bool) {
	var prefix string
	found := false
	for j := range search {
		if isBlank(window[j]) {
			continue
		}
		k := len(window[j]) - len(search[j])
		if k < 0 {
			return "", false
		}
		p := window[j][:k]
		if found && p != prefix {
			return "", false
		}
		prefix, found = p, true
	}
	return prefix, found
}

// ellipsisReplace applies each literal segment between "..." lines as its
// own hunk. It returns ok=false to decline and a non-nil error when the
// "..." separators differ between search and replace.
func ellipsisReplace(whole, search, replace string) (string, bool, error) {
	sp := splitEllipsis(search)
	rp := splitEllipsis(replace)
	if len(sp) != len(rp) || len(sp) == 1 {
		return "", false, nil
	}
	for i := 1; i < len(sp); i += 2 {
		if sp[i] != rp[i] {
			return "", false, errMismatchedEllipsis
		}
	}

	updated := whole
	for i := 0; i < len(sp); i += 2 {
		src, dst := sp[i], rp[i]
		switch {
		case src == "" && dst == "":
			continue
		case src == "":
			updated = ensureFinalNewline(updated) + dst
		default:
			if strings.Count(updated, src) != 1 {
				return "", false, nil
			}
			updated = strings.Replace(updated, src, dst, 1)
		}
	}
	return updated, true, nil
}

var errMismatchedEllipsis = errors.New("mismatched '...' segments between SEARCH and REPLACE")

// splitEllipsis splits text on ellipsis lines, keeping each separator line
// at the odd positions of the result.
func splitEllipsis(text string) []string {
	parts := []string{}
	var chunk strings.Builder
	for _, line := range splitLinesKeep(text) {
		if strings.TrimSpace(line) == Ellipsis {
			parts = append(parts, chunk.String(), line)
			chunk.Reset()
			continue
		}
		chunk.WriteString(line)
	}
	return append(parts, chunk.String())
}

// stripWrapping removes a leading line that echoes the target's base name
// and a surrounding code fence pair.
func stripWrapping(text, target string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if target != "" && len(lines) > 0 {
		base := path.Base(toSlash(target))
		if strings.HasSuffix(strings.TrimSpace(lines[0]), base) {
			lines = lines[1:]
		}
	}
	if len(lines) >= 2 && strings.HasPrefix(lines[0], Fence) && strings.HasPrefix(lines[len(lines)-1], Fence) {
		lines = lines[1 : len(lines)-1]
	}
	return ensureFinalNewline(strings.Join(lines, "\n"))
}

func ensureFinalNewline(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

func splice(whole []string, idx, n int, replace []string) string {
	var b strings.Builder
	for _, l := range whole[:idx] {
		b.WriteString(l)
	}
	for _, l := range replace {
		b.WriteString(l)
	}
	for _, l := range whole[idx+n:] {
		b.WriteString(l)
	}
	return b.String()
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func minIndent(groups ...[]string) int {
	lowest := -1
	for _, lines := range groups {
		for _, l := range lines {
			if isBlank(l) {
				continue
			}
			w := len(l) - len(trimLeftSpace(l))
			if lowest < 0 || w < lowest {
				lowest = w
			}
		}
	}
	return max(lowest, 0)
}

func trimIndent(lines []string, n int) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if isBlank(l) {
			out[i] = l
			continue
		}
		out[i] = l[n:]
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func trimLeftSpace(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}
