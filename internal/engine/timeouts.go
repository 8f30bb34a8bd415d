/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine

import (
	"fmt"

	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// stageTimedOut reports whether stage's configured timeout has elapsed
// as of now, measured against when the run entered the stage. Only
// logical/caller-supplied time ever drives this check (§4.4.3 step 3:
// timeouts are evaluated on a Tick trigger, never by a background wall
// clock the engine reads itself).
func stageTimedOut(stage *spec.StageSpec, enteredAt, now runstate.Timestamp) bool {
	if stage.Timeout == nil {
		return false
	}
	elapsed := now.Value - enteredAt.Value
	return elapsed > stage.Timeout.TimeoutMS
}

// applyTimeout handles Fail and AlternateBranch timeout policies, which
// conclude the trigger outright without running gate evaluation.
// AdvanceWithFlag returns handled=false so the caller proceeds to
// ordinary gate evaluation with the timeout flag set.
func (e *Engine) applyTimeout(work *runstate.RunState, stage *spec.StageSpec, now runstate.Timestamp) (runstate.DecisionRecord, bool, error) {
	policy := stage.OnTimeout
	if policy == nil {
		return runstate.DecisionRecord{}, false, nil
	}
	switch policy.Kind {
	case spec.TimeoutFail:
		return runstate.DecisionRecord{
			Outcome:   runstate.DecisionOutcome{Kind: runstate.DecisionFail, Reason: "timeout"},
			Reason:    "stage timeout exceeded",
			DecidedAt: now,
		}, true, nil
	case spec.TimeoutAlternateBranch:
		return runstate.DecisionRecord{
			Outcome:     runstate.DecisionOutcome{Kind: runstate.DecisionAdvance, To: policy.Target},
			Reason:      "stage timeout: alternate branch",
			TimeoutFlag: true,
			DecidedAt:   now,
		}, true, nil
	case spec.TimeoutAdvanceWithFlag:
		return runstate.DecisionRecord{}, false, nil
	default:
		return runstate.DecisionRecord{}, false, fmt.Errorf("engine: unknown timeout policy %q", policy.Kind)
	}
}
