// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package editblock parses SEARCH/REPLACE instruction documents and applies
// single hunks to text.
//
// An instruction document holds one or more blocks, each optionally preceded
// by a filename line:
//
//	path/to/file.go
//	<<<<<<< SEARCH
//	old lines
//	=======
//	new lines
//	>>>>>>> REPLACE
//
// # Matching
//
// ApplyOne tries, in order: an exact contiguous line match, an
// indentation-flexible match that allows one consistent re-indent, and an
// ellipsis-segmented match where lines consisting of "..." separate
// independent sub-hunks. An empty SEARCH appends.
//
// # Filenames
//
// Parse resolves the filename for each block from the three lines before the
// SEARCH marker. Fuzzy resolution is delegated to a Ranker so callers can
// substitute stricter or looser matching.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use. DefaultRanker holds no
// state.
package editblock
