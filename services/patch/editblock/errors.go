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
	"fmt"
)

var (
	// ErrParse indicates a malformed instruction document.
	ErrParse = errors.New("edit block parse error")

	// ErrMatch indicates that no strategy could apply a hunk, or that the
	// target is in a state the hunk cannot apply to.
	ErrMatch = errors.New("edit match error")
)

// EditError describes a failed parse or apply.
type EditError struct {
	// Kind is ErrParse or ErrMatch.
	Kind error

	// Path is the target filename, if known.
	Path string

	// Line is the 1-based document line for parse errors, or 0.
	Line int

	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e *EditError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%v: %s (line %d): %s", e.Kind, e.Path, e.Line, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Path, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%v: line %d: %s", e.Kind, e.Line, e.Message)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the sentinel kind.
func (e *EditError) Unwrap() error {
	return e.Kind
}

// NewMatchError returns an ErrMatch EditError for path.
func NewMatchError(path, message string) error {
	return &EditError{Kind: ErrMatch, Path: path, Message: message}
}

func parseError(line int, message string) error {
	return &EditError{Kind: ErrParse, Line: line, Message: message}
}
