// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for patch engine metrics.
const MeterName = "github.com/Tom-0727/researcher-zero/services/patch"

// Metrics holds the patch engine instruments.
//
// All Record methods are safe on a nil *Metrics.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// PlanMutationsTotal counts plan mutations by op and result.
	PlanMutationsTotal metric.Int64Counter

	// EditBlocksTotal counts applied edit blocks by result and changed.
	EditBlocksTotal metric.Int64Counter

	// FileOpsTotal counts workspace file operations by op and result.
	FileOpsTotal metric.Int64Counter

	// OperationDuration records operation latency in seconds by op.
	OperationDuration metric.Float64Histogram

	// ToolCallsTotal counts tool invocations by tool and result.
	ToolCallsTotal metric.Int64Counter

	// HTTPRequestsTotal counts tool server requests by route and status.
	HTTPRequestsTotal metric.Int64Counter
}

// NewMetrics registers all instruments with meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PlanMutationsTotal, err = meter.Int64Counter(
		"patch_plan_mutations_total",
		metric.WithDescription("Total plan ledger mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create plan_mutations_total: %w", err)
	}

	m.EditBlocksTotal, err = meter.Int64Counter(
		"patch_edit_blocks_total",
		metric.WithDescription("Total SEARCH/REPLACE blocks applied"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create edit_blocks_total: %w", err)
	}

	m.FileOpsTotal, err = meter.Int64Counter(
		"patch_file_ops_total",
		metric.WithDescription("Total workspace file operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create file_ops_total: %w", err)
	}

	m.OperationDuration, err = meter.Float64Histogram(
		"patch_operation_duration_seconds",
		metric.WithDescription("Patch engine operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operation_duration_seconds: %w", err)
	}

	m.ToolCallsTotal, err = meter.Int64Counter(
		"patch_tool_calls_total",
		metric.WithDescription("Total tool invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool_calls_total: %w", err)
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"patch_http_requests_total",
		metric.WithDescription("Total tool server HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	return m, nil
}

// DefaultMetrics creates Metrics on the global meter provider.
//
// Before Init configures a provider the instruments are no-ops.
func DefaultMetrics() *Metrics {
	m, err := NewMetrics(otel.Meter(MeterName))
	if err != nil {
		return nil
	}
	return m
}

func result(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("result", "error")
	}
	return attribute.String("result", "ok")
}

// RecordPlanMutation records one plan mutation.
func (m *Metrics) RecordPlanMutation(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.PlanMutationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), result(err)))
	m.OperationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", "plan_"+op)))
}

// RecordEditBlock records one applied (or failed) edit block.
func (m *Metrics) RecordEditBlock(ctx context.Context, changed bool, err error) {
	if m == nil {
		return
	}
	m.EditBlocksTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("changed", changed), result(err)))
}

// RecordFileOp records one workspace file operation.
func (m *Metrics) RecordFileOp(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.FileOpsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), result(err)))
	m.OperationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", "file_"+op)))
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, err error) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool), result(err)))
}

// RecordHTTPRequest records one tool server request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
