/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package toolsurface

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/engine"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/metrics"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/telemetry"
)

// triggerRun is the shared path behind scenario_next, scenario_submit,
// and scenario_trigger: it builds the TriggerEvent and dispatch Context
// §4.4.3 expects and hands both to the engine, which owns the per-run
// lock and the idempotent-replay check. A blank correlationID (the
// scenario_next "just re-evaluate" case) gets a fresh trigger_id each
// call, since there is no caller-supplied idempotency key to replay
// against.
func (s *Server) triggerRun(ctx context.Context, runID string, kind runstate.TriggerKind, correlationID string, now runstate.Timestamp, payload map[string]any) (engine.SafeSummary, error) {
	rs, ok, err := s.engine.GetRun(ctx, runID)
	if err != nil {
		return engine.SafeSummary{}, err
	}
	if !ok {
		return engine.SafeSummary{}, dgerr.New(dgerr.NotFound, fmt.Sprintf("run %q not found", runID))
	}

	triggerID := correlationID
	if triggerID == "" {
		triggerID = uuid.NewString()
	}
	payloadHash, err := canon.Hash(payload)
	if err != nil {
		return engine.SafeSummary{}, dgerr.Wrap(dgerr.InvalidRequest, "hash trigger payload", err)
	}

	trig := runstate.TriggerEvent{
		TriggerID:     triggerID,
		Kind:          kind,
		Time:          now,
		CorrelationID: correlationID,
		Payload:       payload,
		PayloadHash:   payloadHash,
	}
	dctx := evidence.Context{
		TenantID:      rs.TenantID,
		NamespaceID:   rs.NamespaceID,
		RunID:         rs.RunID,
		ScenarioID:    string(rs.ScenarioID),
		StageID:       string(rs.CurrentStageID),
		TriggerID:     triggerID,
		TriggerTime:   now.Value,
		CorrelationID: correlationID,
	}

	ctx, span := telemetry.StartTriggerSpan(ctx, runID, string(kind))
	summary, err := s.engine.Trigger(ctx, runID, trig, dctx)
	decision := "none"
	if err == nil && summary.LastDecisionOutcome != nil {
		decision = string(summary.LastDecisionOutcome.Kind)
	}
	telemetry.EndTriggerSpan(span, decision)
	if err == nil {
		metrics.RecordTrigger(string(kind), decision)
	}
	return summary, err
}

// Tick fires a Tick trigger for runID at wall-clock time now, bypassing
// the §4.6.3 tool-call pipeline (step 1's transport auth has no meaning
// for a trigger raised by the process's own cron scheduler rather than
// an external caller). It is the function internal/tickgen.Scheduler is
// wired against in cmd/decisiongated — cron only ever decides *when* to
// call Tick; the fired time still flows into the engine as an ordinary
// caller-supplied runstate.Timestamp (§5), never read from the wall
// clock by Trigger itself.
func (s *Server) Tick(ctx context.Context, runID string, now time.Time) error {
	ts := runstate.Timestamp{Kind: runstate.UnixMillis, Value: now.UnixMilli()}
	_, err := s.triggerRun(ctx, runID, runstate.TriggerTick, "tick-"+now.UTC().Format(time.RFC3339Nano)+"-"+runID, ts, nil)
	return err
}

// loadSummary is scenario_status's read-only counterpart to triggerRun:
// it loads the run's current state and returns the same hash-only
// projection a Trigger call would, without acquiring the run lock or
// appending anything to the log.
func (s *Server) loadSummary(ctx context.Context, runID string) (engine.SafeSummary, error) {
	rs, ok, err := s.engine.GetRun(ctx, runID)
	if err != nil {
		return engine.SafeSummary{}, err
	}
	if !ok {
		return engine.SafeSummary{}, dgerr.New(dgerr.NotFound, fmt.Sprintf("run %q not found", runID))
	}
	return engine.Summarize(rs), nil
}

// disclose implements §4.6.4's evidence disclosure policy: a raw value
// only ever leaves the tool surface when the deployment config allows
// it, the caller explicitly opts in, and — unless the operator has
// disabled the per-provider requirement — the dispatched provider's own
// contract has opted in to raw disclosure. Every other path returns the
// hash/anchor projection only.
func disclose(result evidence.Result, callerAllowsRaw bool, contract evidence.Contract, cfg EvidenceConfig) evidence.Result {
	if result.Value == nil {
		return result
	}

	rawAllowed := cfg.AllowRawValues && callerAllowsRaw
	if rawAllowed && cfg.RequireProviderOptIn {
		rawAllowed = contract.AllowRawDisclosure
	}
	if rawAllowed {
		return result
	}

	redacted := result
	redacted.Value = nil
	if redacted.EvidenceHash == nil {
		if digest, err := canon.Hash(result.Value); err == nil {
			redacted.EvidenceHash = &digest
		}
	}
	return redacted
}

// dispatchOutcome labels a provider dispatch for RecordProviderDispatch:
// "ok" or the structured EvidenceCode the dispatch failed with.
func dispatchOutcome(result evidence.Result) string {
	if result.Error != nil {
		return string(result.Error.Code)
	}
	return "ok"
}

// buildOutcome labels a runpack_export attempt for RecordRunpackBuild.
func buildOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
