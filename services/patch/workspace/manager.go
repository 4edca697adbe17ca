// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace applies file operations and SEARCH/REPLACE edits inside
// a guarded workspace root.
//
// Manager is the persistence side of the edit-block engine: it reads the
// current content, calls editblock.ApplyOne, and writes the result back
// atomically. Every path goes through a Guard first.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tom-0727/researcher-zero/services/patch/editblock"
	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
)

const tracerName = "patch.workspace"

// Outcome reports the effect of one write or edit.
type Outcome struct {
	// Path is the slash-separated path relative to the workspace root.
	Path string `json:"path"`

	// Changed is false only when the new content equals the old content.
	Changed bool `json:"changed"`

	// Created is true when the file did not exist before.
	Created bool `json:"created,omitempty"`

	// Hash is the SHA-256 of the content now on disk.
	Hash string `json:"hash,omitempty"`

	// Diff is the unified diff of the change, empty when unchanged.
	Diff string `json:"diff,omitempty"`

	// Stats counts the lines in Diff.
	Stats DiffStats `json:"stats"`
}

// ListOptions controls ListFiles.
type ListOptions struct {
	Recursive     bool `json:"recursive"`
	IncludeDirs   bool `json:"include_dirs"`
	IncludeHidden bool `json:"include_hidden"`
}

// EditOptions controls EditFile.
type EditOptions struct {
	// ExpectedHash, when set, must equal the SHA-256 of the file's current
	// content or the edit fails with ErrContentChanged.
	ExpectedHash string `json:"expected_hash,omitempty"`
}

// Manager performs guarded file operations.
//
// Thread Safety: Safe for concurrent use. Writes to the same path are
// serialized; the read-modify-write of one edit holds that path's lock.
type Manager struct {
	guard   *Guard
	ranker  editblock.Ranker
	logger  *slog.Logger
	metrics *telemetry.Metrics

	fileLocks   map[string]*sync.Mutex
	fileLocksMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithRanker sets the filename ranker used by ApplyEditBlocks.
func WithRanker(r editblock.Ranker) Option {
	return func(m *Manager) { m.ranker = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the instruments. Default: none.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager over guard.
func NewManager(guard *Guard, opts ...Option) *Manager {
	m := &Manager{
		guard:     guard,
		ranker:    editblock.DefaultRanker{},
		logger:    slog.Default(),
		fileLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Guard returns the manager's guard.
func (m *Manager) Guard() *Guard {
	return m.guard
}

// CreateFile writes content to rel.
//
// Description:
//
//	Creates parent directories as needed. An existing file is replaced only
//	when overwrite is true; otherwise ErrFileExists is returned.
//
// Outputs:
//
//	Outcome - With Created set for new files.
//	error - ErrPathNotAllowed, ErrSensitivePath, ErrFileExists, or I/O errors.
func (m *Manager) CreateFile(ctx context.Context, rel, content string, overwrite bool) (out Outcome, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Manager.CreateFile",
		trace.WithAttributes(attribute.String("path", rel), attribute.Bool("overwrite", overwrite)))
	defer func() {
		telemetry.EndSpan(span, err)
		m.metrics.RecordFileOp(ctx, "create", start, err)
	}()

	abs, err := m.guard.ResolveForWrite(rel)
	if err != nil {
		return Outcome{}, err
	}
	unlock := m.lock(abs)
	defer unlock()

	before, perm, exists, err := readTarget(abs)
	if err != nil {
		return Outcome{}, err
	}
	if exists && !overwrite {
		return Outcome{}, fmt.Errorf("%w: %s", ErrFileExists, m.guard.Rel(abs))
	}
	if err := WriteFileAtomic(abs, []byte(content), perm); err != nil {
		return Outcome{}, err
	}

	out = m.outcome(abs, before, content, !exists)
	telemetry.LoggerWithTrace(ctx, m.logger).Info("file created",
		slog.String("path", out.Path),
		slog.Bool("created", out.Created),
		slog.Bool("changed", out.Changed),
	)
	return out, nil
}

// ReadFile returns the content of rel and its hash for use as
// EditOptions.ExpectedHash.
func (m *Manager) ReadFile(ctx context.Context, rel string) (content, hash string, err error) {
	_, span := telemetry.StartSpan(ctx, tracerName, "Manager.ReadFile",
		trace.WithAttributes(attribute.String("path", rel)))
	defer func() { telemetry.EndSpan(span, err) }()

	abs, err := m.guard.Resolve(rel)
	if err != nil {
		return "", "", err
	}
	content, _, exists, err := readTarget(abs)
	if err != nil {
		return "", "", err
	}
	if !exists {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, m.guard.Rel(abs))
	}
	return content, ContentHash(content), nil
}

// ListFiles lists paths under base, relative to the root and sorted.
//
// A missing base yields an empty list; a file base yields just that file.
// Hidden entries (any path component starting with ".") are skipped unless
// IncludeHidden is set.
func (m *Manager) ListFiles(ctx context.Context, base string, opts ListOptions) (files []string, err error) {
	_, span := telemetry.StartSpan(ctx, tracerName, "Manager.ListFiles",
		trace.WithAttributes(attribute.String("base", base), attribute.Bool("recursive", opts.Recursive)))
	defer func() { telemetry.EndSpan(span, err) }()

	absBase, err := m.guard.Resolve(base)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absBase)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if !info.IsDir() {
		return []string{m.guard.Rel(absBase)}, nil
	}

	files = []string{}
	err = filepath.WalkDir(absBase, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if p == absBase {
			return nil
		}
		rel := m.guard.Rel(p)
		if !opts.IncludeHidden && hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if opts.IncludeDirs {
				files = append(files, rel)
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", base, err)
	}
	sort.Strings(files)
	return files, nil
}

// EditFile applies one SEARCH/REPLACE hunk to rel.
//
// Description:
//
//	A missing target is created when search is blank; with a non-blank
//	search it fails with editblock.ErrMatch and nothing is written. The
//	file is rewritten only when the content changes.
//
// Inputs:
//
//	rel - Target path.
//	search, replace - The hunk.
//	opts - Optional optimistic-lock hash.
//
// Outputs:
//
//	Outcome - Changed is false when the result equals the current content.
//	error - editblock.ErrMatch, ErrContentChanged, guard errors, I/O errors.
func (m *Manager) EditFile(ctx context.Context, rel, search, replace string, opts EditOptions) (out Outcome, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Manager.EditFile",
		trace.WithAttributes(attribute.String("path", rel)))
	defer func() {
		telemetry.EndSpan(span, err)
		m.metrics.RecordFileOp(ctx, "edit", start, err)
	}()

	abs, err := m.guard.ResolveForWrite(rel)
	if err != nil {
		return Outcome{}, err
	}
	relPath := m.guard.Rel(abs)

	unlock := m.lock(abs)
	defer unlock()

	before, perm, exists, err := readTarget(abs)
	if err != nil {
		return Outcome{}, err
	}
	if !exists && strings.TrimSpace(search) != "" {
		return Outcome{}, editblock.NewMatchError(relPath, "target does not exist")
	}
	if exists && opts.ExpectedHash != "" && ContentHash(before) != opts.ExpectedHash {
		return Outcome{}, fmt.Errorf("%w: %s", ErrContentChanged, relPath)
	}

	after, err := editblock.ApplyOne(before, search, replace, relPath)
	if err != nil {
		return Outcome{}, err
	}

	if after != before || !exists {
		expected := ""
		if exists {
			expected = opts.ExpectedHash
		}
		if err := verifyAndWrite(abs, expected, after, perm); err != nil {
			if errors.Is(err, ErrContentChanged) {
				return Outcome{}, fmt.Errorf("%w: %s", ErrContentChanged, relPath)
			}
			return Outcome{}, err
		}
	}

	out = m.outcome(abs, before, after, !exists)
	telemetry.LoggerWithTrace(ctx, m.logger).Info("edit applied",
		slog.String("path", out.Path),
		slog.Bool("changed", out.Changed),
		slog.Int("added", out.Stats.Added),
		slog.Int("deleted", out.Stats.Deleted),
		slog.Int("modified", out.Stats.Changed),
	)
	return out, nil
}

// ApplyEditBlocks parses an instruction document and applies each block in
// document order.
//
// Description:
//
//	The valid filename set is every file in the workspace, hidden files
//	included. A parse error applies nothing. Blocks are independent: when
//	a block fails, the outcomes of the blocks before it are returned along
//	with the error and their writes stay on disk.
//
// Outputs:
//
//	[]Outcome - One per applied block, in order.
//	error - editblock.ErrParse, editblock.ErrMatch, or any EditFile error,
//	        wrapped with the failing block's index and path.
func (m *Manager) ApplyEditBlocks(ctx context.Context, text string) (outcomes []Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Manager.ApplyEditBlocks")
	defer func() { telemetry.EndSpan(span, err) }()

	valid, err := m.ListFiles(ctx, ".", ListOptions{Recursive: true, IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	blocks, err := editblock.Parse(text, valid, m.ranker)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("blocks", len(blocks)))

	outcomes = make([]Outcome, 0, len(blocks))
	for i, b := range blocks {
		out, err := m.EditFile(ctx, b.Path, b.Search, b.Replace, EditOptions{})
		m.metrics.RecordEditBlock(ctx, out.Changed, err)
		if err != nil {
			return outcomes, fmt.Errorf("block %d (%s): %w", i+1, b.Path, err)
		}
		outcomes = append(outcomes, out)
	}

	telemetry.LoggerWithTrace(ctx, m.logger).Info("edit blocks applied",
		slog.Int("blocks", len(blocks)),
	)
	return outcomes, nil
}

func (m *Manager) outcome(abs, before, after string, created bool) Outcome {
	rel := m.guard.Rel(abs)
	d := unifiedDiff(rel, before, after)
	return Outcome{
		Path:    rel,
		Changed: after != before || created,
		Created: created,
		Hash:    ContentHash(after),
		Diff:    d,
		Stats:   diffStats(d),
	}
}

// lock acquires the per-file mutex for abs and returns its unlock.
func (m *Manager) lock(abs string) func() {
	m.fileLocksMu.Lock()
	l, ok := m.fileLocks[abs]
	if !ok {
		l = &sync.Mutex{}
		m.fileLocks[abs] = l
	}
	m.fileLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
