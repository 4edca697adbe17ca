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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tom-0727/researcher-zero/services/patch/editblock"
	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/plan"
	"github.com/Tom-0727/researcher-zero/services/patch/workspace"
)

func setupRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := workspace.NewGuard(root)
	require.NoError(t, err)
	store, err := ledger.NewFileStore(filepath.Join(t.TempDir(), "plan.md"))
	require.NoError(t, err)
	return Default(ledger.NewService(store), workspace.NewManager(guard)), guard.Root()
}

func execute(t *testing.T, r *Registry, name string, params map[string]any) *Result {
	t.Helper()
	res, err := r.Execute(context.Background(), name, params)
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

func TestRegistry(t *testing.T) {
	r, _ := setupRegistry(t)

	assert.Equal(t, []string{
		"file_create", "file_edit", "file_edit_blocks", "file_list", "file_read",
		"plan_history", "plan_read", "plan_remove_ids", "plan_start_next", "plan_transition", "plan_upsert_todos",
	}, r.Names())
	assert.Len(t, r.GetByCategory(CategoryPlan), 6)
	assert.Len(t, r.GetByCategory(CategoryFile), 5)

	defs := r.Definitions()
	require.Len(t, defs, 11)
	assert.Equal(t, "file_create", defs[0].Name)

	tool, ok := r.Get("plan_transition")
	require.True(t, ok)
	def := tool.Definition()
	assert.ElementsMatch(t, []string{"id", "status"}, def.RequiredParams())
	assert.True(t, def.SideEffects)

	t.Run("replace keeps one entry", func(t *testing.T) {
		r.Register(tool)
		assert.Len(t, r.GetByCategory(CategoryPlan), 6)
		r.Register(nil)
		assert.Len(t, r.Names(), 11)
	})
}

func TestRegistry_ExecuteErrors(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		res, err := r.Execute(ctx, "nope", nil)
		assert.ErrorIs(t, err, ErrUnknownTool)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.InvocationID)
		assert.Contains(t, res.Error, "nope")
	})

	tests := []struct {
		name   string
		tool   string
		params map[string]any
	}{
		{"missing required", "file_create", map[string]any{"path": "a.txt"}},
		{"wrong type", "file_read", map[string]any{"path": 5.0}},
		{"unknown parameter", "plan_read", map[string]any{"verbose": true}},
		{"enum", "plan_transition", map[string]any{"id": 1.0, "status": "todo"}},
		{"fractional int", "plan_transition", map[string]any{"id": 1.5, "status": "doing"}},
		{"non-positive id", "plan_transition", map[string]any{"id": 0.0, "status": "doing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Execute(ctx, tt.tool, tt.params)
			assert.ErrorIs(t, err, ErrInvalidParams)
			require.NotNil(t, res)
			assert.False(t, res.Success)
		})
	}

	t.Run("validation detail", func(t *testing.T) {
		_, err := r.Execute(ctx, "file_read", map[string]any{"path": 5.0})
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "path", ve.Parameter)
		assert.Equal(t, "string", ve.Expected)
		assert.Equal(t, "float64", ve.Actual)
	})

	t.Run("invocation ids differ", func(t *testing.T) {
		a := execute(t, r, "plan_read", nil)
		b := execute(t, r, "plan_read", nil)
		assert.NotEqual(t, a.InvocationID, b.InvocationID)
		assert.Equal(t, "plan_read", a.Tool)
	})
}

func TestPlanTools(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	res := execute(t, r, "plan_read", nil)
	assert.Equal(t, plan.EmptyText, res.OutputText)

	res = execute(t, r, "plan_upsert_todos", map[string]any{
		"items": []any{
			map[string]any{"status": "todo", "title": "find papers"},
			map[string]any{"status": "todo", "title": "take notes"},
		},
	})
	assert.Equal(t, "<PLAN>\n- [todo][1] find papers\n- [todo][2] take notes\n</PLAN>\n", res.OutputText)
	out := res.Output.(PlanOutput)
	assert.Len(t, out.Items, 2)

	res = execute(t, r, "plan_upsert_todos", map[string]any{
		"items_json": `[{"status":"todo","title":"write summary"}]`,
	})
	assert.Contains(t, res.OutputText, "- [todo][3] write summary")

	t.Run("todo payload rules", func(t *testing.T) {
		bad := []map[string]any{
			{"items": []any{map[string]any{"id": 1.0, "status": "todo", "title": "x"}}},
			{"items": []any{map[string]any{"status": "doing", "title": "x"}}},
			{"items": []any{map[string]any{"title": "x"}}},
			{"items": []any{map[string]any{"status": "todo", "title": "  "}}},
			{"items": []any{map[string]any{"status": "todo", "title": "x", "note": "y"}}},
			{"items": []any{"x"}},
			{"items": []any{}},
			{"items_json": `{"status":"todo"}`},
			{"items_json": `not json`},
			{"items": []any{map[string]any{"status": "todo", "title": "x"}}, "items_json": "[]"},
			{},
		}
		for i, params := range bad {
			_, err := r.Execute(ctx, "plan_upsert_todos", params)
			assert.ErrorIs(t, err, ErrInvalidParams, "case %d", i)
		}
		res := execute(t, r, "plan_read", nil)
		assert.Len(t, res.Output.(PlanOutput).Items, 3, "rejected payloads change nothing")
	})

	res = execute(t, r, "plan_transition", map[string]any{"id": 1.0, "status": "doing"})
	out = res.Output.(PlanOutput)
	require.NotNil(t, out.Item)
	assert.Equal(t, plan.StatusDoing, out.Item.Status)
	assert.Contains(t, res.OutputText, "- [doing][1] find papers")

	_, err := r.Execute(ctx, "plan_transition", map[string]any{"id": 2.0, "status": "done"})
	assert.ErrorIs(t, err, plan.ErrInvalidTransition)

	res = execute(t, r, "plan_start_next", nil)
	out = res.Output.(PlanOutput)
	require.NotNil(t, out.Started)
	assert.True(t, *out.Started)
	assert.Equal(t, 2, out.Item.ID)

	t.Run("remove payload rules", func(t *testing.T) {
		for i, params := range []map[string]any{
			{"ids_csv": "1,1"},
			{"ids_csv": "a"},
			{"ids": []any{0.0}},
			{"ids": []any{2.0, 2.0}},
			{"ids": []any{}},
			{"ids": []any{1.0}, "ids_csv": "1"},
			{},
		} {
			_, err := r.Execute(ctx, "plan_remove_ids", params)
			assert.ErrorIs(t, err, ErrInvalidParams, "case %d", i)
		}
		_, err := r.Execute(ctx, "plan_remove_ids", map[string]any{"ids": []any{9.0}})
		assert.ErrorIs(t, err, plan.ErrRange)
	})

	res = execute(t, r, "plan_remove_ids", map[string]any{"ids_csv": "1"})
	assert.Equal(t, "<PLAN>\n- [doing][1] take notes\n- [todo][2] write summary\n</PLAN>\n", res.OutputText)

	res = execute(t, r, "plan_remove_ids", map[string]any{"ids": []any{2.0}})
	assert.Equal(t, "<PLAN>\n- [doing][1] take notes\n</PLAN>\n", res.OutputText)

	res = execute(t, r, "plan_start_next", nil)
	out = res.Output.(PlanOutput)
	assert.False(t, *out.Started)
	assert.Nil(t, out.Item)

	_, err = r.Execute(ctx, "plan_history", nil)
	assert.ErrorIs(t, err, ledger.ErrHistoryUnsupported)
}

func TestPlanHistoryTool(t *testing.T) {
	store, err := ledger.OpenBadgerStore(ledger.InMemoryBadgerConfig())
	require.NoError(t, err)
	defer store.Close()

	guard, err := workspace.NewGuard(t.TempDir())
	require.NoError(t, err)
	r := Default(ledger.NewService(store), workspace.NewManager(guard))

	execute(t, r, "plan_upsert_todos", map[string]any{"items_json": `[{"status":"todo","title":"a"}]`})
	execute(t, r, "plan_start_next", nil)

	res := execute(t, r, "plan_history", map[string]any{"limit": 1.0})
	revs := res.Output.(PlanOutput).Revisions
	require.Len(t, revs, 1)
	assert.Contains(t, revs[0].Text, "[doing][1] a")

	res = execute(t, r, "plan_history", nil)
	assert.Len(t, res.Output.(PlanOutput).Revisions, 2)

	_, err = r.Execute(context.Background(), "plan_history", map[string]any{"limit": -1.0})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFileTools(t *testing.T) {
	r, root := setupRegistry(t)
	ctx := context.Background()

	res := execute(t, r, "file_create", map[string]any{"path": "notes/a.md", "content": "alpha\nbeta\n"})
	assert.Equal(t, []string{"notes/a.md"}, res.ModifiedFiles)
	assert.Equal(t, "created notes/a.md", res.OutputText)

	_, err := r.Execute(ctx, "file_create", map[string]any{"path": "notes/a.md", "content": "x"})
	assert.ErrorIs(t, err, workspace.ErrFileExists)

	res = execute(t, r, "file_read", map[string]any{"path": "notes/a.md"})
	read := res.Output.(FileReadOutput)
	assert.Equal(t, "alpha\nbeta\n", read.Content)

	_, err = r.Execute(ctx, "file_edit", map[string]any{
		"path": "notes/a.md", "search": "beta\n", "replace": "gamma\n", "expected_hash": "stale",
	})
	assert.ErrorIs(t, err, workspace.ErrContentChanged)

	res = execute(t, r, "file_edit", map[string]any{
		"path": "notes/a.md", "search": "beta\n", "replace": "gamma\n", "expected_hash": read.Hash,
	})
	assert.Contains(t, res.OutputText, "edited notes/a.md")

	res = execute(t, r, "file_edit", map[string]any{"path": "notes/a.md", "search": "gamma\n", "replace": "gamma\n"})
	assert.Empty(t, res.ModifiedFiles)
	assert.Equal(t, "unchanged notes/a.md", res.OutputText)

	_, err = r.Execute(ctx, "file_edit", map[string]any{"path": "ghost.md", "search": "x", "replace": "y"})
	assert.ErrorIs(t, err, editblock.ErrMatch)

	execute(t, r, "file_create", map[string]any{"path": "src/b.go", "content": "package b\n"})
	res = execute(t, r, "file_list", map[string]any{"recursive": true})
	assert.Equal(t, []string{"notes/a.md", "src/b.go"}, res.Output)
	res = execute(t, r, "file_list", map[string]any{"include_dirs": true})
	assert.Equal(t, []string{"notes", "src"}, res.Output)

	_, err = r.Execute(ctx, "file_read", map[string]any{"path": "../outside"})
	assert.ErrorIs(t, err, workspace.ErrPathNotAllowed)

	t.Run("edit blocks with partial failure", func(t *testing.T) {
		text := "notes/a.md\n<<<<<<< SEARCH\nalpha\n=======\nALPHA\n>>>>>>> REPLACE\n" +
			"src/b.go\n<<<<<<< SEARCH\npackage c\n=======\npackage d\n>>>>>>> REPLACE\n"
		res, err := r.Execute(ctx, "file_edit_blocks", map[string]any{"text": text})
		assert.ErrorIs(t, err, editblock.ErrMatch)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Equal(t, []string{"notes/a.md"}, res.ModifiedFiles)
		outs, ok := res.Output.([]workspace.Outcome)
		require.True(t, ok)
		assert.Len(t, outs, 1)

		data, err := os.ReadFile(filepath.Join(root, "notes/a.md"))
		require.NoError(t, err)
		assert.Equal(t, "ALPHA\ngamma\n", string(data))
	})
}

func TestCheckTodo(t *testing.T) {
	require.NoError(t, checkTodo("items[1]", todoPayload{Title: "a", Status: "todo"}))

	err := checkTodo("items[1]", todoPayload{Title: "a", Status: "doing"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "todo", ve.Expected)
	assert.Equal(t, "doing", ve.Actual)

	err = checkTodo("items[2]", todoPayload{Status: "todo"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "items[2]", ve.Parameter)
	assert.ErrorIs(t, err, ErrInvalidParams)
}
