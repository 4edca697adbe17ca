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
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tom-0727/researcher-zero/services/patch/telemetry"
)

const tracerName = "patch.tools"

// Registry manages tool registration, lookup and invocation.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string]Tool
	byCategory map[ToolCategory][]Tool

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the invocation logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *telemetry.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:     make(map[string]Tool),
		byCategory: make(map[ToolCategory][]Tool),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if existing, ok := r.byName[name]; ok {
		r.removeFromCategory(existing.Category(), name)
	}
	r.byName[name] = tool
	r.byCategory[tool.Category()] = append(r.byCategory[tool.Category()], tool)
}

// removeFromCategory drops name from a category list. Caller holds the lock.
func (r *Registry) removeFromCategory(category ToolCategory, name string) {
	tools := r.byCategory[category]
	for i, t := range tools {
		if t.Name() == name {
			r.byCategory[category] = append(tools[:i], tools[i+1:]...)
			return
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

// GetByCategory returns a copy of the tools in category, in registration order.
func (r *Registry) GetByCategory(category ToolCategory) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, len(r.byCategory[category]))
	copy(result, r.byCategory[category])
	return result
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every tool definition, sorted by name.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.byName))
	for _, tool := range r.byName {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates params against the tool's schema and runs it.
//
// Description:
//
//	The returned Result is never nil. On failure it carries Success=false
//	and the error text, and the error is also returned so callers can
//	classify it with errors.Is.
//
// Outputs:
//
//	*Result - Always non-nil, with a fresh InvocationID.
//	error - ErrUnknownTool, a ValidationError, or the tool's error.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (res *Result, err error) {
	start := time.Now()
	id := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Registry.Execute",
		trace.WithAttributes(attribute.String("tool", name), attribute.String("invocation_id", id)))
	defer func() {
		telemetry.EndSpan(span, err)
		r.metrics.RecordToolCall(ctx, name, err)
	}()
	logger := telemetry.LoggerWithTrace(ctx, r.logger).With(
		slog.String("tool", name),
		slog.String("invocation_id", id),
	)

	fail := func(err error) (*Result, error) {
		logger.Warn("tool call failed", slog.String("error", err.Error()))
		return &Result{InvocationID: id, Tool: name, Error: err.Error(), Duration: time.Since(start)}, err
	}

	tool, ok := r.Get(name)
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	if params == nil {
		params = map[string]any{}
	}
	def := tool.Definition()
	if err := validateParams(def, params); err != nil {
		return fail(err)
	}

	out, err := tool.Execute(ctx, params)
	if err != nil {
		res, err = fail(err)
		if out != nil {
			// Partial work, such as edit blocks applied before a failure.
			res.Output = out.Output
			res.ModifiedFiles = out.ModifiedFiles
		}
		return res, err
	}
	res = out
	if res == nil {
		res = &Result{}
	}
	res.InvocationID = id
	res.Tool = name
	res.Success = true
	res.Duration = time.Since(start)

	logger.Info("tool call completed",
		slog.Duration("duration", res.Duration),
		slog.Int("modified_files", len(res.ModifiedFiles)),
	)
	return res, nil
}

// validateParams checks required parameters, rejects unknown ones and
// checks primitive types.
func validateParams(def ToolDefinition, params map[string]any) error {
	for name, p := range def.Parameters {
		v, ok := params[name]
		if !ok || v == nil {
			if p.Required {
				return invalid(name, "is required")
			}
			continue
		}
		if actual, ok := typeMatches(p.Type, v); !ok {
			return &ValidationError{Parameter: name, Message: "wrong type", Expected: string(p.Type), Actual: actual}
		}
		if len(p.Enum) > 0 && !inEnum(p.Enum, v) {
			return &ValidationError{Parameter: name, Message: "not an allowed value", Actual: fmt.Sprint(v)}
		}
	}
	for name := range params {
		if _, ok := def.Parameters[name]; !ok {
			return invalid(name, "unknown parameter")
		}
	}
	return nil
}

func typeMatches(t ParamType, v any) (string, bool) {
	actual := fmt.Sprintf("%T", v)
	switch t {
	case ParamTypeString:
		_, ok := v.(string)
		return actual, ok
	case ParamTypeBool:
		_, ok := v.(bool)
		return actual, ok
	case ParamTypeInt:
		_, err := toInt(v)
		return actual, err == nil
	case ParamTypeArray:
		_, ok := v.([]any)
		return actual, ok
	case ParamTypeObject:
		_, ok := v.(map[string]any)
		return actual, ok
	}
	return actual, true
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}
