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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Tom-0727/researcher-zero/services/patch/plan"
)

// DefaultDebounce is how long Watch waits for further events before
// re-reading the file.
const DefaultDebounce = 100 * time.Millisecond

// WatchHandler receives the ledger after each settled change. err is set
// when the file could not be read or is not a valid ledger.
type WatchHandler func(text string, items []plan.Item, err error)

// Watch calls handler with the current ledger, then again after every
// change to the store's file, until ctx is done.
//
// Description:
//
//	The parent directory is watched rather than the file so that atomic
//	rename-over writes are seen. Bursts of events within debounce are
//	collapsed into one read. A non-positive debounce uses DefaultDebounce.
//
// Outputs:
//
//	error - Non-nil if the watcher could not be set up. Cancellation of
//	        ctx returns nil.
func Watch(ctx context.Context, store *FileStore, debounce time.Duration, handler WatchHandler) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating plan directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	emit := func() {
		text, err := store.Load(ctx)
		if err != nil {
			handler("", nil, err)
			return
		}
		items, err := plan.Parse(text)
		handler(text, items, err)
	}
	emit()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != store.Path() {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if ctx.Err() != nil {
				return nil
			}
			emit()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			handler("", nil, fmt.Errorf("watch error: %w", err))
		}
	}
}
