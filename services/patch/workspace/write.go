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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFilePerm is used for files the workspace creates.
const DefaultFilePerm os.FileMode = 0o644

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// WriteFileAtomic writes content via a temp file and rename so readers never
// observe a partial write.
func WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// readTarget reads path, reporting existence separately from errors.
func readTarget(path string) (content string, perm os.FileMode, exists bool, err error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", DefaultFilePerm, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return "", 0, true, ErrIsDirectory
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, true, fmt.Errorf("reading file: %w", err)
	}
	return string(data), info.Mode().Perm(), true, nil
}

// verifyAndWrite re-reads path and writes content only if the file still
// hashes to expectedHash. An empty expectedHash skips the check.
func verifyAndWrite(path, expectedHash, content string, perm os.FileMode) error {
	if expectedHash != "" {
		current, _, exists, err := readTarget(path)
		if err != nil {
			return err
		}
		if !exists || ContentHash(current) != expectedHash {
			return ErrContentChanged
		}
	}
	return WriteFileAtomic(path, []byte(content), perm)
}
