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
	"path"
	"regexp"
	"strings"
	"unicode"
)

// Fence opens and closes a markdown code block.
const Fence = "```"

// lookback is how many lines before a SEARCH marker may name the file.
const lookback = 3

var (
	searchRe  = regexp.MustCompile(`^<{5,9} SEARCH>?(?:\s.*)?$`)
	dividerRe = regexp.MustCompile(`^={5,9}$`)
	replaceRe = regexp.MustCompile(`^>{5,9} REPLACE$`)
)

// EditBlock is one SEARCH/REPLACE hunk and the file it targets.
type EditBlock struct {
	Path    string `json:"path"`
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

type scanState int

const (
	scanning scanState = iota
	inSearch
	inReplace
)

// Parse scans an instruction document into edit blocks.
//
// Description:
//
//	Runs a three-state scanner (scanning, in search, in replace) over the
//	document. Marker lines are compared after trimming surrounding
//	whitespace. Text outside blocks is ignored except as filename context.
//
// Inputs:
//
//	text - The instruction document.
//	valid - Known filenames used to resolve the filename context.
//	ranker - Fuzzy filename ranking. Nil means DefaultRanker{}.
//
// Outputs:
//
//	[]EditBlock - Blocks in document order.
//	error - ErrParse when a SEARCH has no divider, a REPLACE section has no
//	        closing marker, or no filename can be determined.
func Parse(text string, valid []string, ranker Ranker) ([]EditBlock, error) {
	if ranker == nil {
		ranker = DefaultRanker{}
	}
	lines := splitLinesKeep(text)

	var (
		blocks  []EditBlock
		current string
		state   = scanning
		block   EditBlock
		search  strings.Builder
		replace strings.Builder
		opened  int
		floor   int
	)

	for i, raw := range lines {
		marker := strings.TrimSpace(raw)
		switch state {
		case scanning:
			if !searchRe.MatchString(marker) {
				continue
			}
			name, ok := resolveFilename(lines[max(floor, i-lookback):i], valid, ranker)
			if !ok {
				name = current
			}
			if name == "" {
				return nil, parseError(i+1, "missing filename before SEARCH")
			}
			current = name
			block = EditBlock{Path: name}
			search.Reset()
			replace.Reset()
			opened = i + 1
			state = inSearch

		case inSearch:
			if dividerRe.MatchString(marker) {
				state = inReplace
				continue
			}
			search.WriteString(raw)

		case inReplace:
			if replaceRe.MatchString(marker) {
				block.Search = search.String()
				block.Replace = replace.String()
				blocks = append(blocks, block)
				floor = i + 1
				state = scanning
				continue
			}
			replace.WriteString(raw)
		}
	}

	switch state {
	case inSearch:
		return nil, &EditError{Kind: ErrParse, Path: block.Path, Line: opened, Message: "expected divider line: ======="}
	case inReplace:
		return nil, &EditError{Kind: ErrParse, Path: block.Path, Line: opened, Message: "expected closing line: >>>>>>> REPLACE"}
	}
	return blocks, nil
}

// resolveFilename picks the target filename from the lines preceding a
// SEARCH marker, nearest first.
//
// Candidates come from the nearest line and from any fence lines between it
// and the marker. Resolution order: exact valid name, ranker choice, then
// the nearest path-like raw candidate so new files can be named.
func resolveFilename(context []string, valid []string, ranker Ranker) (string, bool) {
	var candidates []string
	for i := len(context) - 1; i >= 0; i-- {
		line := strings.TrimRight(context[i], "\r\n")
		if c, ok := normalizeFilename(line); ok {
			candidates = append(candidates, c)
		}
		if !strings.HasPrefix(line, Fence) {
			break
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	for _, c := range candidates {
		for _, v := range valid {
			if c == v {
				return v, true
			}
		}
	}
	for _, c := range candidates {
		if v, ok := ranker.Rank(c, valid); ok {
			return v, true
		}
	}
	for _, c := range candidates {
		if pathLike(c) {
			return c, true
		}
	}
	return "", false
}

// pathLike reports whether c could name a file rather than prose: no
// whitespace, and either a directory separator or an extension.
func pathLike(c string) bool {
	if c == "" || strings.IndexFunc(c, unicode.IsSpace) >= 0 {
		return false
	}
	if strings.ContainsAny(c, `/\`) {
		return true
	}
	ext := path.Ext(c)
	return len(ext) > 1
}

// normalizeFilename strips markdown decoration from a filename line.
//
// A fence line yields its info string only when it looks like a path.
func normalizeFilename(line string) (string, bool) {
	text := strings.TrimSpace(line)
	if text == "" || text == "..." || isMarker(text) {
		return "", false
	}

	if strings.HasPrefix(text, Fence) {
		idx := strings.IndexFunc(text, unicode.IsSpace)
		if idx < 0 {
			return "", false
		}
		c := strings.TrimSpace(text[idx:])
		if pathLike(c) {
			return c, true
		}
		return "", false
	}

	text = strings.TrimRight(text, ":")
	text = strings.TrimLeft(text, "#")
	text = strings.TrimSpace(text)
	for {
		prev := text
		text = strings.TrimRight(strings.Trim(text, "`*"), ":")
		if len(text) > 1 && text[0] == '_' && text[len(text)-1] == '_' {
			text = text[1 : len(text)-1]
		}
		text = strings.TrimSpace(text)
		if text == prev {
			break
		}
	}
	return text, text != ""
}

func isMarker(text string) bool {
	return searchRe.MatchString(text) || dividerRe.MatchString(text) || replaceRe.MatchString(text)
}

// splitLinesKeep splits s after each newline, keeping the terminators.
func splitLinesKeep(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
