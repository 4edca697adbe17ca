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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Tom-0727/researcher-zero/services/patch/plan"
)

var validate = validator.New()

// todoPayload is one plan_upsert_todos entry after shape checks.
type todoPayload struct {
	Title  string `validate:"required"`
	Status string `validate:"eq=todo"`
}

func checkTodo(param string, p todoPayload) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(param, err.Error())
	}
	if verrs[0].Field() == "Status" {
		return &ValidationError{Parameter: param, Message: `status must be "todo"`, Expected: "todo", Actual: p.Status}
	}
	return invalid(param, "title must be a non-empty string")
}

// toInt accepts the integer shapes JSON decoding and Go callers produce.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("%T is not an integer", v)
	}
}

func stringParam(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return s
}

func boolParam(params map[string]any, name string) bool {
	b, _ := params[name].(bool)
	return b
}

func intParam(params map[string]any, name string, fallback int) int {
	v, ok := params[name]
	if !ok || v == nil {
		return fallback
	}
	n, err := toInt(v)
	if err != nil {
		return fallback
	}
	return n
}

// todoEntries reads plan_upsert_todos input from either an "items" array
// or an "items_json" string. Every entry must be an object with no id,
// status "todo" and a non-blank title.
func todoEntries(params map[string]any) ([]plan.Entry, error) {
	raw, hasItems := params["items"]
	text, hasJSON := params["items_json"].(string)
	switch {
	case hasItems && hasJSON:
		return nil, invalid("items", "give items or items_json, not both")
	case hasJSON:
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, invalid("items_json", "must be a JSON array: "+err.Error())
		}
		raw = decoded
	case !hasItems:
		return nil, invalid("items", "is required")
	}

	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, invalid("items", "must be a non-empty array")
	}
	entries := make([]plan.Entry, 0, len(list))
	for i, elem := range list {
		param := fmt.Sprintf("items[%d]", i+1)
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, invalid(param, "must be an object")
		}
		if _, has := obj["id"]; has {
			return nil, invalid(param, "id is not allowed when appending todos")
		}
		for key := range obj {
			if key != "status" && key != "title" {
				return nil, invalid(param, "unknown field "+key)
			}
		}
		title, _ := obj["title"].(string)
		status, _ := obj["status"].(string)
		p := todoPayload{Title: strings.TrimSpace(title), Status: status}
		if err := checkTodo(param, p); err != nil {
			return nil, err
		}
		entries = append(entries, plan.Entry{Title: p.Title, Status: plan.StatusTodo})
	}
	return entries, nil
}

// removeIDs reads plan_remove_ids input from either an "ids" array of
// positive integers or an "ids_csv" string such as "2,4". Duplicates are
// rejected.
func removeIDs(params map[string]any) ([]int, error) {
	raw, hasList := params["ids"]
	csv, hasCSV := params["ids_csv"].(string)
	switch {
	case hasList && hasCSV:
		return nil, invalid("ids", "give ids or ids_csv, not both")
	case hasCSV:
		ids, err := plan.ParseIDs(csv)
		if err != nil {
			return nil, &ValidationError{Parameter: "ids_csv", Message: err.Error()}
		}
		return ids, nil
	case !hasList:
		return nil, invalid("ids", "is required")
	}

	list, _ := raw.([]any)
	if len(list) == 0 {
		return nil, invalid("ids", "must contain at least one id")
	}
	seen := make(map[int]struct{}, len(list))
	ids := make([]int, 0, len(list))
	for _, v := range list {
		id, err := toInt(v)
		if err != nil || id < 1 {
			return nil, &ValidationError{Parameter: "ids", Message: "ids must be positive integers", Actual: fmt.Sprint(v)}
		}
		if _, dup := seen[id]; dup {
			return nil, &ValidationError{Parameter: "ids", Message: "duplicate id", Actual: fmt.Sprint(id)}
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
