// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger persists the plan ledger and wraps the pure plan engine
// with serialized read-modify-write, lifecycle helpers and change watching.
//
// Two stores are provided: FileStore keeps the canonical text in a single
// file, BadgerStore keeps it under a key in BadgerDB together with a
// revision history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tom-0727/researcher-zero/services/patch/plan"
	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

// Store persists canonical plan text.
//
// Load returns plan.EmptyText when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, text string) error
	Close() error
}

// Historian is implemented by stores that keep prior revisions.
type Historian interface {
	// History returns up to n revisions, newest first. n <= 0 means all.
	History(ctx context.Context, n int) ([]Revision, error)
}

// Revision is one saved version of the ledger.
type Revision struct {
	Seq     uint64    `json:"seq"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// FileStore keeps the ledger in one file on disk.
//
// Thread Safety: Safe for concurrent use; writes are atomic renames. The
// Service serializes read-modify-write cycles.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path. The file need not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("plan file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving plan path: %w", err)
	}
	return &FileStore{path: abs}, nil
}

// Path returns the absolute file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file, returning plan.EmptyText when it does not exist.
func (s *FileStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return plan.EmptyText, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading plan file: %w", err)
	}
	return string(data), nil
}

// Save replaces the file contents atomically, creating parent directories.
func (s *FileStore) Save(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := workspace.WriteFileAtomic(s.path, []byte(text), workspace.DefaultFilePerm); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
