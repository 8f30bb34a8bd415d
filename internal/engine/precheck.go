/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine

import (
	"context"
	"fmt"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/comparator"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// SchemaValidator validates a payload against a registered JSON Schema
// (2020-12). It is supplied by the tool surface's schema registry so the
// engine package stays free of a schema-validation dependency.
type SchemaValidator interface {
	Validate(schemaRef string, payload map[string]any) error
}

// PrecheckResult is the read-only prediction returned by Precheck, built
// the same way a real trigger's decision would be, but never touching
// run state or emitting anything but a hash-only audit record.
type PrecheckResult struct {
	PredictedOutcome runstate.DecisionOutcome       `json:"predicted_outcome"`
	GateResults      map[spec.GateID]tristate.State `json:"gate_results"`
	RequestHash      canon.Digest                   `json:"request_hash"`
	ResponseHash     canon.Digest                   `json:"response_hash"`
}

// Precheck evaluates a scenario's current stage gates against an
// asserted-lane payload without persisting anything (§4.4.5). Gates
// requiring Verified evidence always resolve Unknown here, since
// asserted-only evidence can never satisfy a Verified trust requirement.
func (e *Engine) Precheck(ctx context.Context, s *spec.ScenarioSpec, stageID spec.StageID, payload map[string]any, schemaRef string, validator SchemaValidator) (PrecheckResult, error) {
	reqBytes, err := canon.Hash(payload)
	if err != nil {
		return PrecheckResult{}, dgerr.Wrap(dgerr.InvalidRequest, "canonicalize payload", err)
	}

	if schemaRef != "" && validator != nil {
		if err := validator.Validate(schemaRef, payload); err != nil {
			resp, _ := canon.Hash(map[string]any{"error": err.Error()})
			return PrecheckResult{RequestHash: reqBytes, ResponseHash: resp}, dgerr.Wrap(dgerr.SchemaValidationFailed, "payload failed schema validation", err)
		}
	}

	stage, ok := s.StageByID()[stageID]
	if !ok {
		return PrecheckResult{}, dgerr.New(dgerr.NotFound, fmt.Sprintf("stage %q not found", stageID))
	}

	conditions := s.ConditionByID()
	states := make(map[tristate.ConditionID]tristate.State)
	for _, g := range stage.Gates {
		for _, cid := range g.Requirement.ReferencedConditions() {
			if _, done := states[cid]; done {
				continue
			}
			cond, ok := conditions[spec.ConditionID(cid)]
			if !ok {
				states[cid] = tristate.Unknown
				continue
			}
			minLane := evidence.EffectiveMinLane(s.Trust, nil, g.Trust, cond.Trust)
			if minLane.Rank() > spec.Asserted.Rank() {
				states[cid] = tristate.Unknown // fail-closed: asserted evidence can never satisfy Verified
				continue
			}
			raw, present := payload[string(cid)]
			if !present {
				states[cid] = tristate.Unknown
				continue
			}
			state, _ := comparator.Compare(cond.Comparator, raw, cond.Expected)
			states[cid] = state
		}
	}

	gateResults := make(map[spec.GateID]tristate.State, len(stage.Gates))
	for _, g := range stage.Gates {
		gateResults[g.GateID] = tristate.Evaluate(g.Requirement, states)
	}

	decision := decideAdvance(s, stage, gateResults, runstate.Timestamp{}, false)

	respBytes, err := canon.Hash(decision.Outcome)
	if err != nil {
		return PrecheckResult{}, dgerr.Wrap(dgerr.Internal, "hash predicted outcome", err)
	}

	return PrecheckResult{
		PredictedOutcome: decision.Outcome,
		GateResults:      gateResults,
		RequestHash:      reqBytes,
		ResponseHash:     respBytes,
	}, nil
}
