/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the Decision
// Gate tool surface and evaluation engine.
//
// Spans wrap each tool-surface call, each engine Trigger call and each
// evidence_query dispatch (§4.4, AMBIENT STACK); the steps inside one
// evaluation get no spans of their own. Custom span attributes use the `decisiongate.`
// prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "decisiongate/engine"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initializes the OTel trace provider with an OTLP
// gRPC exporter. If endpoint is empty, tracing is disabled (the no-op
// global provider is left in place). Returns a shutdown function that
// must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("decisiongated"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartToolCallSpan creates the parent span for one tool-surface call.
func StartToolCallSpan(ctx context.Context, tool, principal string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "toolsurface.call",
		trace.WithAttributes(
			attribute.String("decisiongate.tool", tool),
			attribute.String("decisiongate.principal", principal),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndToolCallSpan enriches and ends a tool-call span.
func EndToolCallSpan(span trace.Span, allowed bool, code string) {
	span.SetAttributes(
		attribute.Bool("decisiongate.allowed", allowed),
	)
	if code != "" {
		span.SetAttributes(attribute.String("decisiongate.error_code", code))
	}
	span.End()
}

// StartTriggerSpan creates a child span for one engine.Trigger call.
func StartTriggerSpan(ctx context.Context, runID, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "engine.trigger",
		trace.WithAttributes(
			attribute.String("decisiongate.run_id", runID),
			attribute.String("decisiongate.trigger_kind", kind),
		),
	)
}

// EndTriggerSpan enriches and ends a trigger span.
func EndTriggerSpan(span trace.Span, decision string) {
	span.SetAttributes(attribute.String("decisiongate.decision", decision))
	span.End()
}

// StartEvidenceQuerySpan creates a child span for one provider dispatch.
func StartEvidenceQuerySpan(ctx context.Context, providerID, checkID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "evidence.query",
		trace.WithAttributes(
			attribute.String("decisiongate.provider_id", providerID),
			attribute.String("decisiongate.check_id", checkID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndEvidenceQuerySpan enriches and ends an evidence-query span.
func EndEvidenceQuerySpan(span trace.Span, lane, errCode string) {
	span.SetAttributes(attribute.String("decisiongate.lane", lane))
	if errCode != "" {
		span.SetAttributes(attribute.String("decisiongate.error_code", errCode))
	}
	span.End()
}
