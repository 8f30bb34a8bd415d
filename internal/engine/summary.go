/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine

import (
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// SafeSummary is the projection of RunState returned from scenario_status
// (§4.4.4). It never carries raw evidence, raw expected values, or
// provider responses — only condition IDs, hashes, and classification.
type SafeSummary struct {
	Status              runstate.Status    `json:"status"`
	CurrentStageID       spec.StageID       `json:"current_stage_id"`
	LastDecisionOutcome *runstate.DecisionOutcome `json:"last_decision_outcome,omitempty"`
	UnmetConditions      []spec.ConditionID `json:"unmet_conditions,omitempty"`
	RetryHint            string             `json:"retry_hint,omitempty"`
	PolicyTags           []string           `json:"policy_tags,omitempty"`
}

// Summarize exposes safeSummaryFrom for callers outside the package
// (scenario_status) that need the same hash-only projection without
// going through a Trigger call.
func Summarize(rs *runstate.RunState) SafeSummary {
	return safeSummaryFrom(rs)
}

// safeSummaryFrom derives a SafeSummary from the tail of the decision
// and gate-eval logs, never copying anything from TriggerEvent.Payload
// or ConditionOutcome.ValueHash's underlying value (there is none — only
// the hash is ever retained on the record itself).
func safeSummaryFrom(rs *runstate.RunState) SafeSummary {
	out := SafeSummary{
		Status:         rs.Status,
		CurrentStageID: rs.CurrentStageID,
	}

	last, ok := rs.LastDecision()
	if !ok {
		return out
	}
	out.LastDecisionOutcome = &last.Outcome
	out.RetryHint = last.Outcome.RetryHint

	if last.Outcome.Kind != runstate.DecisionHold || len(rs.GateEvals) == 0 {
		return out
	}

	tail := rs.GateEvals[len(rs.GateEvals)-1]
	for _, g := range rs.GateEvals {
		if g.EvaluatedAt != tail.EvaluatedAt {
			continue
		}
		for _, co := range g.ConditionOutcomes {
			if co.TriState != tristate.True {
				out.UnmetConditions = append(out.UnmetConditions, co.ConditionID)
			}
		}
	}
	return out
}
