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
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity ratio DefaultRanker accepts.
const DefaultCutoff = 0.8

// Ranker picks the valid filename that best matches a candidate taken from
// an instruction document. It is consulted only after an exact match fails.
type Ranker interface {
	// Rank returns the chosen valid filename, or false when none qualifies.
	// Implementations must be deterministic for identical inputs.
	Rank(candidate string, valid []string) (string, bool)
}

// RankerFunc adapts a function to the Ranker interface.
type RankerFunc func(candidate string, valid []string) (string, bool)

// Rank calls f.
func (f RankerFunc) Rank(candidate string, valid []string) (string, bool) {
	return f(candidate, valid)
}

// ExactOnly declines every candidate, leaving only exact matches.
var ExactOnly Ranker = RankerFunc(func(string, []string) (string, bool) { return "", false })

// DefaultRanker matches by base name first, then by character similarity.
//
// Similarity is the difflib SequenceMatcher ratio over the two names. Ties
// at either stage go to the lexicographically smallest valid name, so the
// result does not depend on the order of valid.
type DefaultRanker struct {
	// Cutoff is the minimum ratio accepted. Zero means DefaultCutoff.
	Cutoff float64
}

// Rank implements Ranker.
func (r DefaultRanker) Rank(candidate string, valid []string) (string, bool) {
	if candidate == "" || len(valid) == 0 {
		return "", false
	}
	sorted := append([]string(nil), valid...)
	sort.Strings(sorted)

	for _, v := range sorted {
		if path.Base(toSlash(v)) == candidate {
			return v, true
		}
	}

	cutoff := r.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	best, bestRatio := "", 0.0
	cand := strings.Split(candidate, "")
	for _, v := range sorted {
		ratio := Similarity(cand, strings.Split(v, ""))
		if ratio >= cutoff && ratio > bestRatio {
			best, bestRatio = v, ratio
		}
	}
	return best, best != ""
}

// Similarity returns the SequenceMatcher ratio of a and b in [0, 1].
func Similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	return difflib.NewMatcher(a, b).Ratio()
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
