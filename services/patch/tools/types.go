// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools exposes plan and file operations as named tools with
// parameter schemas, so that an agent loop or the HTTP server can invoke
// them with JSON-shaped parameters.
package tools

import (
	"context"
	"errors"
	"time"
)

// ToolCategory groups tools.
type ToolCategory string

const (
	// CategoryPlan tools read or mutate the plan ledger.
	CategoryPlan ToolCategory = "plan"

	// CategoryFile tools read or write workspace files.
	CategoryFile ToolCategory = "file"
)

// String returns the category name.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType is a JSON Schema primitive type.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeArray  ParamType = "array"
	ParamTypeObject ParamType = "object"
)

// ParamDef describes one tool parameter.
type ParamDef struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *ParamDef `json:"items,omitempty"`
}

// ToolDefinition is the schema a caller sees for a tool.
type ToolDefinition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    ToolCategory        `json:"category"`
	Parameters  map[string]ParamDef `json:"parameters"`

	// SideEffects is true for tools that write.
	SideEffects bool `json:"side_effects"`
}

// RequiredParams returns the names of required parameters.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, p := range d.Parameters {
		if p.Required {
			required = append(required, name)
		}
	}
	return required
}

// Tool is an executable tool.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	Name() string
	Category() ToolCategory
	Definition() ToolDefinition

	// Execute runs the tool. params have passed schema validation.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of one tool invocation.
type Result struct {
	// InvocationID uniquely identifies this call.
	InvocationID string `json:"invocation_id"`

	// Tool is the tool name.
	Tool string `json:"tool"`

	Success bool `json:"success"`

	// Output is the structured output.
	Output any `json:"output,omitempty"`

	// OutputText is the text an agent should see, such as the canonical
	// plan text.
	OutputText string `json:"output_text"`

	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// ModifiedFiles lists workspace paths written by this call.
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

var (
	// ErrUnknownTool is returned for a name with no registered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidParams wraps every ValidationError.
	ErrInvalidParams = errors.New("invalid tool parameters")
)

// ValidationError is a parameter validation failure.
type ValidationError struct {
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Expected != "" && e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (expected " + e.Expected + ", got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}

// Unwrap returns ErrInvalidParams.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidParams
}

func invalid(param, message string) error {
	return &ValidationError{Parameter: param, Message: message}
}
