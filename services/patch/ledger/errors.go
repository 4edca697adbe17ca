// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFinished is returned by CheckFinalize while todo or doing items
	// remain.
	ErrNotFinished = errors.New("plan has unfinished items")

	// ErrTooManyItems is returned when a mutation would grow the ledger past
	// the configured item limit.
	ErrTooManyItems = errors.New("plan item limit exceeded")

	// ErrHistoryUnsupported is returned by History when the store keeps no
	// revisions.
	ErrHistoryUnsupported = errors.New("store does not keep history")

	// ErrStoreClosed is returned by a store used after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// NotFinishedError lists the ids still open when finalization is refused.
type NotFinishedError struct {
	Open []int
}

func (e *NotFinishedError) Error() string {
	ids := make([]string, len(e.Open))
	for i, id := range e.Open {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%v: open ids %s", ErrNotFinished, strings.Join(ids, ","))
}

func (e *NotFinishedError) Unwrap() error {
	return ErrNotFinished
}
