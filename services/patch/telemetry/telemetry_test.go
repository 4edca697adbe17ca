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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return sr
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := DefaultConfig()
	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "none", cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)

	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, "stdout", DefaultConfig().TraceExporter)
}

func TestInit(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		_, err := Init(nil, Config{})
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("disabled exporters", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{TraceExporter: "none"})
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout metrics", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{MetricExporter: "stdout"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("unknown trace exporter", func(t *testing.T) {
		_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})

	t.Run("unknown metric exporter", func(t *testing.T) {
		_, err := Init(context.Background(), Config{MetricExporter: "statsd"})
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})
}

func TestSpans(t *testing.T) {
	sr := recordSpans(t)

	_, ok := StartSpan(context.Background(), "test", "Op.OK")
	EndSpan(ok, nil)

	_, failed := StartSpan(context.Background(), "test", "Op.Failed")
	EndSpan(failed, errors.New("boom"))

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "Op.OK", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)

	// nil guards
	RecordError(nil, errors.New("x"))
	SetSpanOK(nil)
	EndSpan(nil, nil)
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithTrace(context.Background(), logger).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")

	assert.NotNil(t, LoggerWithTrace(context.Background(), nil))

	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	buf.Reset()
	LoggerWithTrace(ctx, logger).Info("traced")
	assert.Contains(t, buf.String(), traceID.String())
	assert.Contains(t, buf.String(), spanID.String())
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordPlanMutation(ctx, "upsert", time.Now(), nil)
	m.RecordPlanMutation(ctx, "remove", time.Now(), errors.New("range"))
	m.RecordEditBlock(ctx, true, nil)
	m.RecordFileOp(ctx, "create", time.Now(), nil)
	m.RecordToolCall(ctx, "plan_read", nil)
	m.RecordHTTPRequest(ctx, "/health", 200)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		names[md.Name] = md
	}
	require.Contains(t, names, "patch_plan_mutations_total")
	require.Contains(t, names, "patch_operation_duration_seconds")

	sum, ok := names["patch_plan_mutations_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.Len(t, sum.DataPoints, 2)

	var nilMetrics *Metrics
	nilMetrics.RecordEditBlock(ctx, false, nil)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
