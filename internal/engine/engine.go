/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package engine implements the C4 evaluation engine: the scenario
// lifecycle state machine, trigger processing (§4.4.3), precheck
// (§4.4.5), and the safe summary projection (§4.4.4).
//
// Every trigger passes through Trigger. Evaluation follows the
// teacher's step-numbered Decision-building shape: build a working copy
// of the run state, run each step in order, and stop the moment a step
// is conclusive; whichever step ends the evaluation commits the whole
// working copy with a single PutRun.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/comparator"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// Engine evaluates triggers against a registered scenario spec and a
// per-run state store. It holds no run state itself — Store owns
// persistence and the per-run locking that makes concurrent triggers for
// distinct runs safe (§4.4.6).
type Engine struct {
	store    Store
	registry *evidence.Registry
	now      func() time.Time // wall clock used only for stdlib time.Time bookkeeping, never for business decisions
}

// New builds an engine over store and the evidence registry used to
// dispatch condition queries.
func New(store Store, registry *evidence.Registry) *Engine {
	return &Engine{store: store, registry: registry, now: time.Now}
}

// Define registers an immutable scenario spec, keyed by its own spec_hash.
func (e *Engine) Define(ctx context.Context, s *spec.ScenarioSpec) (canon.Digest, error) {
	if err := s.Validate(); err != nil {
		return canon.Digest{}, dgerr.Wrap(dgerr.InvalidRequest, "invalid scenario spec", err)
	}
	hash, err := s.SpecHash()
	if err != nil {
		return canon.Digest{}, dgerr.Wrap(dgerr.Internal, "compute spec hash", err)
	}
	if err := e.store.PutSpec(ctx, hash, s); err != nil {
		return canon.Digest{}, dgerr.Wrap(dgerr.Internal, "persist spec", err)
	}
	return hash, nil
}

// Start creates a new RunState at the first stage of a registered spec.
func (e *Engine) Start(ctx context.Context, runID string, specHash canon.Digest, namespaceID, tenantID string, now runstate.Timestamp) (*runstate.RunState, error) {
	s, ok, err := e.store.GetSpec(ctx, specHash)
	if err != nil {
		return nil, dgerr.Wrap(dgerr.Internal, "load spec", err)
	}
	if !ok {
		return nil, dgerr.New(dgerr.NotFound, fmt.Sprintf("spec %s not registered", specHash))
	}
	if s.NamespaceID != namespaceID {
		return nil, dgerr.New(dgerr.NamespaceMismatch, fmt.Sprintf("spec namespace %q does not match run namespace %q", s.NamespaceID, namespaceID))
	}

	rs := &runstate.RunState{
		RunID:          runID,
		ScenarioID:     s.ScenarioID,
		NamespaceID:    namespaceID,
		TenantID:       tenantID,
		SpecHash:       specHash.String(),
		Status:         runstate.Active,
		CurrentStageID: s.Stages[0].StageID,
		StageEnteredAt: now,
		Version:        1,
	}
	if err := e.store.CreateRun(ctx, rs); err != nil {
		return nil, dgerr.Wrap(dgerr.Internal, "create run", err)
	}
	return rs, nil
}

// GetSpec returns a previously registered scenario spec by its content
// hash, for callers (runpack_export, precheck) that need the spec
// outside of a trigger's own store access.
func (e *Engine) GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error) {
	s, ok, err := e.store.GetSpec(ctx, hash)
	if err != nil {
		return nil, false, dgerr.Wrap(dgerr.Internal, "load spec", err)
	}
	return s, ok, nil
}

// GetRun returns a run's current state by id, without acquiring the
// per-run lock Trigger uses — callers that only read (runpack_export,
// scenario_status) never need mutual exclusion against a concurrent
// trigger, since Store's append-only log vectors make a stale read
// merely a moment-in-time snapshot, not a torn one.
func (e *Engine) GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error) {
	rs, ok, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, false, dgerr.Wrap(dgerr.Internal, "load run", err)
	}
	return rs, ok, nil
}

// ListRuns enumerates run ids for a scenario id (scenarios_list).
func (e *Engine) ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error) {
	ids, err := e.store.ListRuns(ctx, scenarioID)
	if err != nil {
		return nil, dgerr.Wrap(dgerr.Internal, "list runs", err)
	}
	return ids, nil
}

// Trigger runs the §4.4.3 algorithm for one trigger event, under the
// store's per-run lock, and returns the resulting safe summary.
func (e *Engine) Trigger(ctx context.Context, runID string, trig runstate.TriggerEvent, dctx evidence.Context) (SafeSummary, error) {
	unlock, err := e.store.LockRun(ctx, runID)
	if err != nil {
		return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "acquire run lock", err)
	}
	defer unlock()

	rs, ok, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "load run", err)
	}
	if !ok {
		return SafeSummary{}, dgerr.New(dgerr.NotFound, fmt.Sprintf("run %q not found", runID))
	}

	// Step 2: idempotent replay.
	if existing, found := rs.FindTrigger(trig.TriggerID); found {
		if !existing.PayloadHash.Equal(trig.PayloadHash) {
			return SafeSummary{}, dgerr.New(dgerr.IdempotencyConflict, fmt.Sprintf("trigger %q already recorded with a different payload", trig.TriggerID))
		}
		return safeSummaryFrom(rs), nil
	}

	s, ok, err := e.store.GetSpec(ctx, mustDigest(rs.SpecHash))
	if err != nil {
		return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "load spec", err)
	}
	if !ok {
		return SafeSummary{}, dgerr.New(dgerr.NotFound, fmt.Sprintf("spec %s not registered", rs.SpecHash))
	}

	work := rs.Clone()
	work.Triggers = append(work.Triggers, trig)

	if work.Status != runstate.Active {
		work.Version++
		if err := e.store.PutRun(ctx, work); err != nil {
			return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "persist run", err)
		}
		return safeSummaryFrom(work), nil
	}

	stage, ok := s.StageByID()[work.CurrentStageID]
	if !ok {
		return SafeSummary{}, dgerr.New(dgerr.Internal, fmt.Sprintf("run %q points at unknown stage %q", runID, work.CurrentStageID))
	}

	timeoutFlag := false
	if trig.Kind == runstate.TriggerTick && stageTimedOut(stage, work.StageEnteredAt, trig.Time) {
		decided, handled, err := e.applyTimeout(work, stage, trig.Time)
		if err != nil {
			return SafeSummary{}, err
		}
		if handled {
			work.Decisions = append(work.Decisions, decided)
			if decided.Outcome.Kind == runstate.DecisionAdvance {
				work.CurrentStageID = decided.Outcome.To
				work.StageEnteredAt = trig.Time
			}
			work.RecomputeStatus()
			work.Version++
			if err := e.store.PutRun(ctx, work); err != nil {
				return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "persist run", err)
			}
			return safeSummaryFrom(work), nil
		}
		timeoutFlag = true
	}

	outcomes, err := e.evaluateConditions(ctx, s, stage, trig, dctx)
	if err != nil {
		return SafeSummary{}, err
	}

	states := make(map[tristate.ConditionID]tristate.State, len(outcomes))
	for cid, o := range outcomes {
		states[tristate.ConditionID(cid)] = o.TriState
	}

	gateResults := make(map[spec.GateID]tristate.State, len(stage.Gates))
	for _, g := range stage.Gates {
		result := tristate.Evaluate(g.Requirement, states)
		gateResults[g.GateID] = result

		record := runstate.GateEvalRecord{
			GateID:      g.GateID,
			Outcome:     result,
			EvaluatedAt: trig.Time,
		}
		for _, cid := range sortedConditionIDs(g.Requirement.ReferencedConditions()) {
			if o, ok := outcomes[spec.ConditionID(cid)]; ok {
				record.ConditionOutcomes = append(record.ConditionOutcomes, o)
			}
		}
		work.GateEvals = append(work.GateEvals, record)
	}

	decision := decideAdvance(s, stage, gateResults, trig.Time, timeoutFlag)
	work.Decisions = append(work.Decisions, decision)
	switch decision.Outcome.Kind {
	case runstate.DecisionAdvance:
		work.CurrentStageID = decision.Outcome.To
		work.StageEnteredAt = trig.Time
	case runstate.DecisionTerminal:
		work.CurrentStageID = spec.TerminalStageID
		work.StageEnteredAt = trig.Time
	}
	work.RecomputeStatus()
	work.Version++

	if err := e.store.PutRun(ctx, work); err != nil {
		return SafeSummary{}, dgerr.Wrap(dgerr.Internal, "persist run", err)
	}
	return safeSummaryFrom(work), nil
}

// evaluateConditions dispatches every condition referenced by stage's
// gates (deterministic lexicographic ConditionId order, §4.4.6), applies
// trust-lane resolution, then the comparator.
//
// The triggering event's own payload (a Tick's asserted time, a
// Submit's asserted fields) is merged underneath each condition's
// spec-static query params before dispatch, so a provider like the
// built-in "time" check can read the trigger's own asserted value
// without the scenario spec having to hardcode it; an explicit
// spec-level param always wins over a same-named payload field.
func (e *Engine) evaluateConditions(ctx context.Context, s *spec.ScenarioSpec, stage *spec.StageSpec, trig runstate.TriggerEvent, dctx evidence.Context) (map[spec.ConditionID]runstate.ConditionOutcome, error) {
	refSet := map[tristate.ConditionID]bool{}
	for _, g := range stage.Gates {
		for _, cid := range g.Requirement.ReferencedConditions() {
			refSet[cid] = true
		}
	}
	var ids []tristate.ConditionID
	for cid := range refSet {
		ids = append(ids, cid)
	}
	ids = sortedConditionIDs(ids)

	conditions := s.ConditionByID()
	outcomes := make(map[spec.ConditionID]runstate.ConditionOutcome, len(ids))

	globalTrust := s.Trust
	for _, cid := range ids {
		cond, ok := conditions[spec.ConditionID(cid)]
		if !ok {
			continue
		}
		var gateTrust *spec.TrustRequirement
		for _, g := range stage.Gates {
			for _, ref := range g.Requirement.ReferencedConditions() {
				if ref == cid {
					gateTrust = g.Trust
				}
			}
		}
		minLane := evidence.EffectiveMinLane(globalTrust, nil, gateTrust, cond.Trust)

		result := e.registry.Dispatch(ctx, cond.Query.ProviderID, cond.Query.CheckID, mergeParams(cond.Query.Params, trig.Payload), dctx)
		resolved, ok := evidence.ResolveTrust(result, minLane)

		outcome := runstate.ConditionOutcome{
			ConditionID: spec.ConditionID(cid),
			Lane:        resolved.Lane,
		}
		if !ok {
			outcome.TriState = tristate.Unknown
			if resolved.Error != nil {
				outcome.Error = &runstate.StructuredErrorView{Code: string(resolved.Error.Code), Message: resolved.Error.Message}
			}
			outcomes[spec.ConditionID(cid)] = outcome
			continue
		}

		state, cmpErr := comparator.Compare(cond.Comparator, resolved.Value, cond.Expected)
		outcome.TriState = state
		if cmpErr != nil {
			outcome.Error = &runstate.StructuredErrorView{Code: string(cmpErr.Code), Message: cmpErr.Message}
		}
		if resolved.Value != nil {
			if digest, err := canon.Hash(resolved.Value); err == nil {
				outcome.ValueHash = &digest
			}
		}
		outcome.Signature = resolved.Signature
		outcomes[spec.ConditionID(cid)] = outcome
	}
	return outcomes, nil
}

// mergeParams layers a condition's spec-static params over the
// triggering event's own payload fields, so a param explicitly set in
// the spec always takes precedence over a same-named payload field.
func mergeParams(specParams map[string]any, payload map[string]any) map[string]any {
	if len(specParams) == 0 && len(payload) == 0 {
		return nil
	}
	merged := make(map[string]any, len(specParams)+len(payload))
	for k, v := range payload {
		merged[k] = v
	}
	for k, v := range specParams {
		merged[k] = v
	}
	return merged
}

func sortedConditionIDs(ids []tristate.ConditionID) []tristate.ConditionID {
	out := append([]tristate.ConditionID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// decideAdvance applies §4.4.3 step 6's AdvanceRule semantics.
func decideAdvance(s *spec.ScenarioSpec, stage *spec.StageSpec, gateResults map[spec.GateID]tristate.State, now runstate.Timestamp, timeoutFlag bool) runstate.DecisionRecord {
	allTrue, anyFalse := summarizeGates(stage, gateResults)

	base := runstate.DecisionRecord{DecidedAt: now, TimeoutFlag: timeoutFlag}

	switch stage.AdvanceTo.Kind {
	case spec.AdvanceTerminal:
		if allTrue {
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionTerminal}
		} else if anyFalse {
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "gate failed"}
		} else {
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionHold, RetryHint: "awaiting evidence"}
		}
		return base

	case spec.AdvanceLinear:
		switch {
		case allTrue:
			base.Outcome = advanceOutcome(nextStageID(s, stage.StageID))
		case anyFalse:
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "gate failed"}
		default:
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionHold, RetryHint: "awaiting evidence"}
		}
		return base

	case spec.AdvanceFixed:
		switch {
		case allTrue:
			base.Outcome = advanceOutcome(stage.AdvanceTo.Target)
		case anyFalse:
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "gate failed"}
		default:
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionHold, RetryHint: "awaiting evidence"}
		}
		return base

	case spec.AdvanceBranch:
		allFalse := true
		for _, arm := range stage.AdvanceTo.Arms {
			if gateResults[arm.GateID] == tristate.True {
				base.Outcome = advanceOutcome(arm.Target)
				return base
			}
			if gateResults[arm.GateID] != tristate.False {
				allFalse = false
			}
		}
		if allFalse {
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "all branch gates failed"}
		} else {
			base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionHold, RetryHint: "awaiting evidence"}
		}
		return base

	default:
		base.Outcome = runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "unknown advance rule"}
		return base
	}
}

// advanceOutcome reports reaching target as a Terminal decision when
// target is the terminal sentinel, or an ordinary Advance otherwise —
// both "Linear reaches the last stage" and "Branch arm targets terminal"
// collapse to the same completion marker as an explicit Terminal advance
// rule.
func advanceOutcome(target spec.StageID) runstate.DecisionOutcome {
	if target == spec.TerminalStageID {
		return runstate.DecisionOutcome{Kind: runstate.DecisionTerminal}
	}
	return runstate.DecisionOutcome{Kind: runstate.DecisionAdvance, To: target}
}

// nextStageID returns the stage following stageID in spec order, or the
// terminal sentinel if stageID is the last stage.
func nextStageID(s *spec.ScenarioSpec, stageID spec.StageID) spec.StageID {
	for i, st := range s.Stages {
		if st.StageID == stageID {
			if i+1 < len(s.Stages) {
				return s.Stages[i+1].StageID
			}
			return spec.TerminalStageID
		}
	}
	return spec.TerminalStageID
}

func summarizeGates(stage *spec.StageSpec, results map[spec.GateID]tristate.State) (allTrue, anyFalse bool) {
	allTrue = true
	for _, g := range stage.Gates {
		switch results[g.GateID] {
		case tristate.False:
			anyFalse = true
			allTrue = false
		case tristate.Unknown:
			allTrue = false
		}
	}
	return allTrue, anyFalse
}

func mustDigest(s string) canon.Digest {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return canon.Digest{Algorithm: s[:i], Value: s[i+1:]}
		}
	}
	return canon.NewDigest(s)
}
