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

	"github.com/Tom-0727/researcher-zero/services/patch/ledger"
	"github.com/Tom-0727/researcher-zero/services/patch/plan"
)

// PlanOutput is the structured output of every plan tool.
type PlanOutput struct {
	// Plan is the canonical text after the call.
	Plan  string      `json:"plan"`
	Items []plan.Item `json:"items"`

	// Item is the item a transition or start_next touched.
	Item *plan.Item `json:"item,omitempty"`

	// Started is set by plan_start_next.
	Started *bool `json:"started,omitempty"`

	// Revisions is set by plan_history.
	Revisions []ledger.Revision `json:"revisions,omitempty"`
}

// PlanTools returns the plan tools bound to svc.
func PlanTools(svc *ledger.Service) []Tool {
	return []Tool{
		&planRead{svc: svc},
		&planUpsertTodos{svc: svc},
		&planRemoveIDs{svc: svc},
		&planTransition{svc: svc},
		&planStartNext{svc: svc},
		&planHistory{svc: svc},
	}
}

func planResult(text string, items []plan.Item) *Result {
	if items == nil {
		items = []plan.Item{}
	}
	return &Result{Output: PlanOutput{Plan: text, Items: items}, OutputText: text}
}

type planRead struct{ svc *ledger.Service }

func (t *planRead) Name() string           { return "plan_read" }
func (t *planRead) Category() ToolCategory { return CategoryPlan }

func (t *planRead) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Return the current <PLAN> ledger and its items.",
		Category:    CategoryPlan,
		Parameters:  map[string]ParamDef{},
	}
}

func (t *planRead) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	text, items, err := t.svc.Load(ctx)
	if err != nil {
		return nil, err
	}
	return planResult(text, items), nil
}

type planUpsertTodos struct{ svc *ledger.Service }

func (t *planUpsertTodos) Name() string           { return "plan_upsert_todos" }
func (t *planUpsertTodos) Category() ToolCategory { return CategoryPlan }

func (t *planUpsertTodos) Definition() ToolDefinition {
	entry := &ParamDef{Type: ParamTypeObject, Description: `{"status":"todo","title":"..."}`}
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Append todo steps to the plan. Each item must be {\"status\":\"todo\",\"title\":\"...\"} with no id.",
		Category:    CategoryPlan,
		Parameters: map[string]ParamDef{
			"items":      {Type: ParamTypeArray, Description: "Todo items to append.", Items: entry},
			"items_json": {Type: ParamTypeString, Description: "The same items as a JSON array string."},
		},
		SideEffects: true,
	}
}

func (t *planUpsertTodos) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	entries, err := todoEntries(params)
	if err != nil {
		return nil, err
	}
	text, items, err := t.svc.Upsert(ctx, entries)
	if err != nil {
		return nil, err
	}
	return planResult(text, items), nil
}

type planRemoveIDs struct{ svc *ledger.Service }

func (t *planRemoveIDs) Name() string           { return "plan_remove_ids" }
func (t *planRemoveIDs) Category() ToolCategory { return CategoryPlan }

func (t *planRemoveIDs) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Remove plan rows by id. Remaining rows are renumbered 1..N.",
		Category:    CategoryPlan,
		Parameters: map[string]ParamDef{
			"ids":     {Type: ParamTypeArray, Description: "Positive ids to remove.", Items: &ParamDef{Type: ParamTypeInt}},
			"ids_csv": {Type: ParamTypeString, Description: `Comma-separated ids, e.g. "2,4".`},
		},
		SideEffects: true,
	}
}

func (t *planRemoveIDs) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	ids, err := removeIDs(params)
	if err != nil {
		return nil, err
	}
	text, items, err := t.svc.Remove(ctx, ids)
	if err != nil {
		return nil, err
	}
	return planResult(text, items), nil
}

type planTransition struct{ svc *ledger.Service }

func (t *planTransition) Name() string           { return "plan_transition" }
func (t *planTransition) Category() ToolCategory { return CategoryPlan }

func (t *planTransition) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Move one item along todo -> doing -> done|aborted.",
		Category:    CategoryPlan,
		Parameters: map[string]ParamDef{
			"id": {Type: ParamTypeInt, Description: "Item id.", Required: true},
			"status": {Type: ParamTypeString, Description: "Target status.", Required: true,
				Enum: []any{string(plan.StatusDoing), string(plan.StatusDone), string(plan.StatusAborted)}},
		},
		SideEffects: true,
	}
}

func (t *planTransition) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := intParam(params, "id", 0)
	if id < 1 {
		return nil, invalid("id", "must be a positive integer")
	}
	item, items, err := t.svc.TransitionItem(ctx, id, plan.Status(stringParam(params, "status")))
	if err != nil {
		return nil, err
	}
	text, err := plan.Render(items)
	if err != nil {
		return nil, err
	}
	res := planResult(text, items)
	out := res.Output.(PlanOutput)
	out.Item = &item
	res.Output = out
	return res, nil
}

type planStartNext struct{ svc *ledger.Service }

func (t *planStartNext) Name() string           { return "plan_start_next" }
func (t *planStartNext) Category() ToolCategory { return CategoryPlan }

func (t *planStartNext) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "Move the first todo item to doing. started is false when no todo item remains.",
		Category:    CategoryPlan,
		Parameters:  map[string]ParamDef{},
		SideEffects: true,
	}
}

func (t *planStartNext) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	item, ok, items, err := t.svc.StartNextSubtask(ctx)
	if err != nil {
		return nil, err
	}
	text, err := plan.Render(items)
	if err != nil {
		return nil, err
	}
	res := planResult(text, items)
	out := res.Output.(PlanOutput)
	out.Started = &ok
	if ok {
		out.Item = &item
	}
	res.Output = out
	return res, nil
}

type planHistory struct{ svc *ledger.Service }

func (t *planHistory) Name() string           { return "plan_history" }
func (t *planHistory) Category() ToolCategory { return CategoryPlan }

func (t *planHistory) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: "List prior plan revisions, newest first. Needs the badger ledger backend.",
		Category:    CategoryPlan,
		Parameters: map[string]ParamDef{
			"limit": {Type: ParamTypeInt, Description: "Maximum revisions; 0 for all.", Default: 10},
		},
	}
}

func (t *planHistory) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	limit := intParam(params, "limit", 10)
	if limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	revs, err := t.svc.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:     PlanOutput{Revisions: revs, Items: []plan.Item{}},
		OutputText: fmt.Sprintf("%d revisions", len(revs)),
	}, nil
}
