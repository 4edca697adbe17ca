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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SensitivePaths contains path fragments that are never written.
var SensitivePaths = []string{
	"/.ssh/",
	"/.gnupg/",
	"/.aws/credentials",
	"/.env",
	"/id_rsa",
	"/id_ed25519",
	"/.git/config",
}

// IsSensitivePath reports whether path contains a sensitive fragment.
func IsSensitivePath(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, s := range SensitivePaths {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Guard confines file paths to a workspace root.
//
// Paths are resolved through symlinks (via the nearest existing ancestor
// for paths that do not exist yet) before the containment check, so a
// symlink inside the root cannot point writes outside it.
//
// Thread Safety: Guard is immutable after NewGuard and safe for concurrent use.
type Guard struct {
	root           string
	allowed        []string
	blockSensitive bool
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithAllowedPaths narrows writes to the given subtrees of the root.
// Relative entries are taken relative to the root.
func WithAllowedPaths(paths ...string) GuardOption {
	return func(g *Guard) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(g.root, p)
			}
			g.allowed = append(g.allowed, resolvePathWithAncestors(filepath.Clean(p)))
		}
	}
}

// WithSensitiveBlocking enables or disables the sensitive path check.
// It is enabled by default.
func WithSensitiveBlocking(enabled bool) GuardOption {
	return func(g *Guard) { g.blockSensitive = enabled }
}

// NewGuard creates a Guard rooted at root, creating the directory if needed.
//
// Inputs:
//
//	root - Workspace directory. Made absolute and symlink-resolved.
//	opts - Optional allowed paths and sensitive-path policy.
//
// Outputs:
//
//	*Guard - The guard.
//	error - Non-nil if root cannot be created or resolved.
func NewGuard(root string, opts ...GuardOption) (*Guard, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	g := &Guard{root: resolved, blockSensitive: true}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.allowed) == 0 {
		g.allowed = []string{resolved}
	}
	return g, nil
}

// Root returns the resolved workspace root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve returns the absolute, symlink-resolved form of path.
//
// Relative paths are joined to the root. The result must lie inside the
// root; otherwise ErrPathNotAllowed is returned.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	resolved := resolvePathWithAncestors(filepath.Clean(p))
	if !within(g.root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
	}
	return resolved, nil
}

// ResolveForWrite is Resolve plus the allowed-path and sensitive checks.
func (g *Guard) ResolveForWrite(path string) (string, error) {
	resolved, err := g.Resolve(path)
	if err != nil {
		return "", err
	}
	allowed := false
	for _, a := range g.allowed {
		if within(a, resolved) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
	}
	if g.blockSensitive && IsSensitivePath(resolved) {
		return "", fmt.Errorf("%w: %s", ErrSensitivePath, path)
	}
	return resolved, nil
}

// Rel returns the slash-separated path of abs relative to the root.
func (g *Guard) Rel(abs string) string {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// within reports whether path equals dir or lies beneath it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolvePathWithAncestors resolves symlinks by finding the nearest existing
// ancestor, so paths that do not exist yet still resolve.
func resolvePathWithAncestors(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	current := path
	var missing []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		missing = append(missing, filepath.Base(current))
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		current = parent
	}
	return path
}
