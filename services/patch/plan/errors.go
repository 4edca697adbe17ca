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
	"errors"
	"fmt"
)

// Sentinel errors for plan ledger operations.
var (
	// ErrFormat indicates malformed ledger text, items, or mutation payloads.
	ErrFormat = errors.New("plan format error")

	// ErrRange indicates an item id outside 1..len(items).
	ErrRange = errors.New("plan id out of range")

	// ErrConflict indicates the same id was supplied more than once in one call.
	ErrConflict = errors.New("plan id conflict")

	// ErrInvalidTransition indicates a status edge outside the lifecycle table.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PlanError carries the detail of a failed plan operation.
//
// Kind is one of the sentinel errors above, so callers test with
// errors.Is(err, plan.ErrRange) and read details with errors.As.
type PlanError struct {
	// Kind is the sentinel category.
	Kind error

	// ItemID is the offending id, or 0 when the error is not item-specific.
	ItemID int

	// From and To are set for ErrInvalidTransition.
	From Status
	To   Status

	// Message is a human-readable detail.
	Message string
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	switch {
	case e.Kind == ErrInvalidTransition:
		return fmt.Sprintf("%v: id=%d %s -> %s", e.Kind, e.ItemID, e.From, e.To)
	case e.ItemID > 0 && e.Message != "":
		return fmt.Sprintf("%v: id=%d: %s", e.Kind, e.ItemID, e.Message)
	case e.ItemID > 0:
		return fmt.Sprintf("%v: id=%d", e.Kind, e.ItemID)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the sentinel kind.
func (e *PlanError) Unwrap() error {
	return e.Kind
}

func formatErrorf(format string, args ...any) error {
	return &PlanError{Kind: ErrFormat, Message: fmt.Sprintf(format, args...)}
}

func rangeError(id, count int) error {
	return &PlanError{
		Kind:    ErrRange,
		ItemID:  id,
		Message: fmt.Sprintf("current max id is %d", count),
	}
}
