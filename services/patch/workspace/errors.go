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

import "errors"

// Sentinel errors for workspace operations.
var (
	// ErrPathNotAllowed indicates a path resolving outside the workspace root
	// or the configured allowed paths.
	ErrPathNotAllowed = errors.New("path outside workspace")

	// ErrSensitivePath indicates a path on the sensitive list.
	ErrSensitivePath = errors.New("cannot write to sensitive path")

	// ErrFileExists indicates a create without overwrite on an existing file.
	ErrFileExists = errors.New("file already exists")

	// ErrNotFound indicates a read of a file that does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrIsDirectory indicates a file operation on a directory.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrContentChanged indicates the file changed since it was read
	// (optimistic lock failure).
	ErrContentChanged = errors.New("file modified since read")
)
