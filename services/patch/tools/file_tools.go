// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

// FileTools returns the workspace file tools bound to m.
func FileTools(m *workspace.Manager) []Tool {
	return []Tool{
		&fileRead{m: m},
		&fileCreate{m: m},
		&fileList{m: m},
		&fileEdit{m: m},
		&fileEditBlocks{m: m},
	}
}

// FileReadOutput is the output of file_read.
type FileReadOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

type fileRead struct{ m *workspace.Manager }

func (t *fileRead) Name() string           { return "file_read" }
func (t *fileRead) Category() ToolCategory { return CategoryFile }

func (t *fileRead) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Read a workspace file. hash can be passed to file_edit as expected_hash.",
		Category:    CategoryFile,
		Parameters: map[string]ParamDef{
			"path": {Type: ParamTypeString, Description: "Path relative to the workspace root.", Required: true},
		},
	}
}

func (t *fileRead) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	path := stringParam(params, "path")
	content, hash, err := t.m.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Result{Output: FileReadOutput{Path: path, Content: content, Hash: hash}, OutputText: content}, nil
}

type fileCreate struct{ m *workspace.Manager }

func (t *fileCreate) Name() string           { return "file_create" }
func (t *fileCreate) Category() ToolCategory { return CategoryFile }

func (t *fileCreate) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Create a file, creating parent directories. Fails if it exists unless overwrite is true.",
		Category:    CategoryFile,
		Parameters: map[string]ParamDef{
			"path":      {Type: ParamTypeString, Description: "Path relative to the workspace root.", Required: true},
			"content":   {Type: ParamTypeString, Description: "Full file content.", Required: true},
			"overwrite": {Type: ParamTypeBool, Description: "Replace an existing file.", Default: false},
		},
		SideEffects: true,
	}
}

func (t *fileCreate) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	out, err := t.m.CreateFile(ctx, stringParam(params, "path"), stringParam(params, "content"), boolParam(params, "overwrite"))
	if err != nil {
		return nil, err
	}
	return outcomeResult(out), nil
}

type fileList struct{ m *workspace.Manager }

func (t *fileList) Name() string           { return "file_list" }
func (t *fileList) Category() ToolCategory { return CategoryFile }

func (t *fileList) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "List paths under a directory, sorted and relative to the workspace root.",
		Category:    CategoryFile,
		Parameters: map[string]ParamDef{
			"path":           {Type: ParamTypeString, Description: "Directory to list.", Default: "."},
			"recursive":      {Type: ParamTypeBool, Description: "Descend into subdirectories.", Default: false},
			"include_dirs":   {Type: ParamTypeBool, Description: "Include directories.", Default: false},
			"include_hidden": {Type: ParamTypeBool, Description: "Include dot files and directories.", Default: false},
		},
	}
}

func (t *fileList) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	base := stringParam(params, "path")
	if base == "" {
		base = "."
	}
	files, err := t.m.ListFiles(ctx, base, workspace.ListOptions{
		Recursive:     boolParam(params, "recursive"),
		IncludeDirs:   boolParam(params, "include_dirs"),
		IncludeHidden: boolParam(params, "include_hidden"),
	})
	if err != nil {
		return nil, err
	}
	return &Result{Output: files, OutputText: strings.Join(files, "\n")}, nil
}

type fileEdit struct{ m *workspace.Manager }

func (t *fileEdit) Name() string           { return "file_edit" }
func (t *fileEdit) Category() ToolCategory { return CategoryFile }

func (t *fileEdit) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Replace one occurrence of search with replace. An empty search appends; a missing file is created only when search is empty.",
		Category:    CategoryFile,
		Parameters: map[string]ParamDef{
			"path":          {Type: ParamTypeString, Description: "Path relative to the workspace root.", Required: true},
			"search":        {Type: ParamTypeString, Description: "Text to find.", Required: true},
			"replace":       {Type: ParamTypeString, Description: "Replacement text.", Required: true},
			"expected_hash": {Type: ParamTypeString, Description: "SHA-256 of the content the edit was written against."},
		},
		SideEffects: true,
	}
}

func (t *fileEdit) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	out, err := t.m.EditFile(ctx,
		stringParam(params, "path"),
		stringParam(params, "search"),
		stringParam(params, "replace"),
		workspace.EditOptions{ExpectedHash: stringParam(params, "expected_hash")},
	)
	if err != nil {
		return nil, err
	}
	return outcomeResult(out), nil
}

type fileEditBlocks struct{ m *workspace.Manager }

func (t *fileEditBlocks) Name() string           { return "file_edit_blocks" }
func (t *fileEditBlocks) Category() ToolCategory { return CategoryFile }

func (t *fileEditBlocks) Definition() ToolDefinition {
	return ToolDefinition{
		Name: t.Name(),
		Description: "Apply SEARCH/REPLACE edit blocks. Each block is a filename line, then " +
			"<<<<<<< SEARCH, the text to find, =======, the replacement, >>>>>>> REPLACE.",
		Category: CategoryFile,
		Parameters: map[string]ParamDef{
			"text": {Type: ParamTypeString, Description: "Document containing one or more edit blocks.", Required: true},
		},
		SideEffects: true,
	}
}

func (t *fileEditBlocks) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	outs, err := t.m.ApplyEditBlocks(ctx, stringParam(params, "text"))
	res := &Result{Output: outs}
	var lines []string
	for _, o := range outs {
		if o.Changed {
			res.ModifiedFiles = append(res.ModifiedFiles, o.Path)
		}
		lines = append(lines, summarize(o))
	}
	res.OutputText = strings.Join(lines, "\n")
	return res, err
}

func outcomeResult(o workspace.Outcome) *Result {
	res := &Result{Output: o, OutputText: summarize(o)}
	if o.Changed {
		res.ModifiedFiles = []string{o.Path}
	}
	return res
}

func summarize(o workspace.Outcome) string {
	switch {
	case o.Created:
		return fmt.Sprintf("created %s", o.Path)
	case !o.Changed:
		return fmt.Sprintf("unchanged %s", o.Path)
	default:
		return fmt.Sprintf("edited %s (+%d -%d ~%d)", o.Path, o.Stats.Added, o.Stats.Deleted, o.Stats.Changed)
	}
}
