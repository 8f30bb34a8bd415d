/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package spec

import (
	"testing"

	"github.com/decisiongate/decisiongate/internal/comparator"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

func simpleSpec() *ScenarioSpec {
	return &ScenarioSpec{
		ScenarioID:  "s1",
		NamespaceID: "ns1",
		SpecVersion: "1.0.0",
		Conditions: []ConditionSpec{
			{
				ConditionID: "after_2024",
				Query:       EvidenceQuery{ProviderID: "time", CheckID: "now"},
				Comparator:  comparator.Gte,
				Expected:    "2024-01-01T00:00:00Z",
			},
		},
		Stages: []StageSpec{
			{
				StageID: "stage1",
				Gates: []GateSpec{
					{GateID: "after_2024", Requirement: tristate.CondOf("after_2024")},
				},
				AdvanceTo: AdvanceRule{Kind: AdvanceTerminal},
			},
		},
	}
}

func TestValidateAcceptsSimpleSpec(t *testing.T) {
	if err := simpleSpec().Validate(); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
}

func TestValidateRejectsUnknownConditionReference(t *testing.T) {
	s := simpleSpec()
	s.Stages[0].Gates[0].Requirement = tristate.CondOf("does_not_exist")
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for unknown condition reference")
	}
}

func TestValidateRejectsDuplicateStageID(t *testing.T) {
	s := simpleSpec()
	s.Stages = append(s.Stages, s.Stages[0])
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for duplicate stage id")
	}
}

func TestValidateRejectsBranchArmOutsideStage(t *testing.T) {
	s := simpleSpec()
	s.Stages[0].AdvanceTo = AdvanceRule{
		Kind: AdvanceBranch,
		Arms: []BranchArm{{GateID: "not_a_gate", Target: TerminalStageID}},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for branch arm referencing unknown gate")
	}
}

func TestValidateRejectsUnreachableStage(t *testing.T) {
	s := simpleSpec()
	s.Stages = append(s.Stages, StageSpec{
		StageID:   "orphan",
		Gates:     []GateSpec{{GateID: "g", Requirement: tristate.CondOf("after_2024")}},
		AdvanceTo: AdvanceRule{Kind: AdvanceTerminal},
	})
	// stage1 goes straight to terminal, so "orphan" is unreachable.
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for unreachable stage")
	}
}

func TestSpecHashStableAcrossCalls(t *testing.T) {
	s1 := simpleSpec()
	h1, err := s1.SpecHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s1.SpecHash()
	if err != nil {
		t.Fatal(err)
	}
	if !h1.Equal(h2) {
		t.Fatalf("expected stable hash: %s != %s", h1, h2)
	}
}
