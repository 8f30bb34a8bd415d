/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the Decision Gate tool
// surface and evaluation engine.
//
// All metrics are registered with the controller-runtime default registry
// so they are served automatically on the metrics endpoint, including
// when the optional CRD-backed store is in use.
//
// Metric naming follows Prometheus conventions:
//   - decisiongate_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// ToolCallsTotal counts tool-surface calls by tool name and outcome
	// (allow/deny/error code).
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisiongate_tool_calls_total",
			Help: "Total tool-surface calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	// ToolCallDurationSeconds is a histogram of tool-call latency by tool.
	ToolCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decisiongate_tool_call_duration_seconds",
			Help:    "Duration of tool-surface calls in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"tool"},
	)

	// TriggersTotal counts scenario_trigger outcomes by trigger kind and
	// decision kind.
	TriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisiongate_triggers_total",
			Help: "Total triggers processed by kind and resulting decision.",
		},
		[]string{"kind", "decision"},
	)

	// GateEvalsTotal counts gate evaluations by tri-state outcome.
	GateEvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisiongate_gate_evals_total",
			Help: "Total gate evaluations by tri-state outcome.",
		},
		[]string{"outcome"},
	)

	// ProviderDispatchTotal counts evidence dispatches by provider and
	// outcome (ok or an EvidenceCode).
	ProviderDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisiongate_provider_dispatch_total",
			Help: "Total evidence provider dispatches by provider and outcome.",
		},
		[]string{"provider_id", "outcome"},
	)

	// RunpackBuildsTotal counts runpack_export calls by success/failure.
	RunpackBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisiongate_runpack_builds_total",
			Help: "Total runpack export attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveRuns is the number of runs currently Active in the store.
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decisiongate_active_runs",
			Help: "Number of runs currently in the Active status.",
		},
	)

	// InflightToolCalls is the current tool-surface inflight gauge.
	InflightToolCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decisiongate_inflight_tool_calls",
			Help: "Number of tool-surface calls currently being dispatched.",
		},
	)
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		ToolCallsTotal,
		ToolCallDurationSeconds,
		TriggersTotal,
		GateEvalsTotal,
		ProviderDispatchTotal,
		RunpackBuildsTotal,
		ActiveRuns,
		InflightToolCalls,
	)
}

// RecordToolCall records one completed tool-surface call.
func RecordToolCall(tool, outcome string, d time.Duration) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordTrigger records one processed trigger.
func RecordTrigger(kind, decision string) {
	TriggersTotal.WithLabelValues(kind, decision).Inc()
}

// RecordGateEval records one gate evaluation outcome.
func RecordGateEval(outcome string) {
	GateEvalsTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderDispatch records one evidence dispatch outcome.
func RecordProviderDispatch(providerID, outcome string) {
	ProviderDispatchTotal.WithLabelValues(providerID, outcome).Inc()
}

// RecordRunpackBuild records one runpack_export attempt.
func RecordRunpackBuild(outcome string) {
	RunpackBuildsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveRuns sets the current active-run gauge.
func SetActiveRuns(n int) {
	ActiveRuns.Set(float64(n))
}
