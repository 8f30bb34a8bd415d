/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package spec defines the immutable, hashable scenario specification
// types (§3.2) and their validation rules (unique IDs, branch-target
// reachability, no cycles outside the absorbing terminal state).
package spec

import (
	"fmt"
	"sort"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/comparator"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// TerminalStageID is the sentinel target meaning "scenario complete".
const TerminalStageID = "terminal"

type (
	ScenarioID  = string
	NamespaceID = string
	StageID     = string
	GateID      = string
	ConditionID = tristate.ConditionID
	PacketID    = string
)

// TrustLane is the totally ordered evidence trust classification.
type TrustLane string

const (
	Asserted TrustLane = "Asserted"
	Verified TrustLane = "Verified"
)

// Rank returns the lane's position in the total order (higher is more
// trusted). self.rank() >= required.rank() is the acceptance test.
func (l TrustLane) Rank() int {
	if l == Verified {
		return 1
	}
	return 0
}

// TrustRequirement pins the minimum acceptable trust lane.
type TrustRequirement struct {
	MinLane TrustLane `json:"min_lane"`
}

// EvidenceQuery names the provider/check/params triple a condition
// dispatches to C3.
type EvidenceQuery struct {
	ProviderID string         `json:"provider_id"`
	CheckID    string         `json:"check_id"`
	Params     map[string]any `json:"params,omitempty"`
}

// ConditionSpec is a single check invocation plus comparator plus
// expected value.
type ConditionSpec struct {
	ConditionID ConditionID          `json:"condition_id"`
	Query       EvidenceQuery        `json:"query"`
	Comparator  comparator.Comparator `json:"comparator"`
	Expected    any                  `json:"expected,omitempty"`
	PolicyTags  []string             `json:"policy_tags,omitempty"`
	Trust       *TrustRequirement    `json:"trust,omitempty"`
}

// GateSpec is a named boolean expression over conditions.
type GateSpec struct {
	GateID      GateID            `json:"gate_id"`
	Requirement *tristate.ReqTree `json:"requirement"`
	Trust       *TrustRequirement `json:"trust,omitempty"`
}

// AdvanceKind tags which AdvanceRule variant applies.
type AdvanceKind string

const (
	AdvanceLinear   AdvanceKind = "linear"
	AdvanceFixed    AdvanceKind = "fixed"
	AdvanceBranch   AdvanceKind = "branch"
	AdvanceTerminal AdvanceKind = "terminal"
)

// BranchArm is one (gate_id, target_stage) pair in a Branch rule.
// Evaluation order matters: the first arm whose gate is True wins.
type BranchArm struct {
	GateID GateID  `json:"gate_id"`
	Target StageID `json:"target"`
}

// AdvanceRule: Linear | Fixed(StageId) | Branch([(GateId, StageId)]) | Terminal.
type AdvanceRule struct {
	Kind   AdvanceKind `json:"kind"`
	Target StageID     `json:"target,omitempty"`   // Fixed
	Arms   []BranchArm `json:"arms,omitempty"`     // Branch
}

// TimeoutPolicyKind tags the on_timeout variant.
type TimeoutPolicyKind string

const (
	TimeoutFail            TimeoutPolicyKind = "fail"
	TimeoutAdvanceWithFlag TimeoutPolicyKind = "advance_with_flag"
	TimeoutAlternateBranch TimeoutPolicyKind = "alternate_branch"
)

// TimeoutPolicy: Fail | AdvanceWithFlag | AlternateBranch(StageId).
type TimeoutPolicy struct {
	Kind   TimeoutPolicyKind `json:"kind"`
	Target StageID           `json:"target,omitempty"` // AlternateBranch
}

// TimeoutSpec carries the duration (in milliseconds, logical or wall per
// the run's timestamp kind) after which on_timeout applies.
type TimeoutSpec struct {
	TimeoutMS int64 `json:"timeout_ms"`
}

// PacketSpec describes a disclosure packet issued on stage entry.
type PacketSpec struct {
	PacketID PacketID       `json:"packet_id"`
	Kind     string         `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// StageSpec is one stage of the scenario's state machine.
type StageSpec struct {
	StageID      StageID        `json:"stage_id"`
	EntryPackets []PacketSpec   `json:"entry_packets,omitempty"`
	Gates        []GateSpec     `json:"gates"`
	AdvanceTo    AdvanceRule    `json:"advance_to"`
	Timeout      *TimeoutSpec   `json:"timeout,omitempty"`
	OnTimeout    *TimeoutPolicy `json:"on_timeout,omitempty"`
}

// ScenarioSpec is the full immutable, hashable scenario definition.
type ScenarioSpec struct {
	ScenarioID  ScenarioID      `json:"scenario_id"`
	NamespaceID NamespaceID     `json:"namespace_id"`
	SpecVersion string          `json:"spec_version"`
	Stages      []StageSpec     `json:"stages"`
	Conditions  []ConditionSpec `json:"conditions"`
	PolicyRefs  []string        `json:"policy_refs,omitempty"`
	SchemaRefs  []string        `json:"schema_refs,omitempty"`
	Trust       *TrustRequirement `json:"trust,omitempty"`
}

// SpecHash computes spec_hash = SHA-256(canonical_json(spec)); it is
// always derived, never stored alongside the spec.
func (s *ScenarioSpec) SpecHash() (canon.Digest, error) {
	return canon.Hash(s)
}

// ConditionByID indexes conditions for fast lookup during evaluation and
// validation.
func (s *ScenarioSpec) ConditionByID() map[ConditionID]*ConditionSpec {
	idx := make(map[ConditionID]*ConditionSpec, len(s.Conditions))
	for i := range s.Conditions {
		idx[s.Conditions[i].ConditionID] = &s.Conditions[i]
	}
	return idx
}

// StageByID indexes stages for fast lookup.
func (s *ScenarioSpec) StageByID() map[StageID]*StageSpec {
	idx := make(map[StageID]*StageSpec, len(s.Stages))
	for i := range s.Stages {
		idx[s.Stages[i].StageID] = &s.Stages[i]
	}
	return idx
}

// Validate enforces the §3.2 invariants: unique IDs in scope, every
// referenced ConditionId exists, every Branch arm references a gate in
// its own stage and a target that exists or is terminal, and the branch
// graph is a DAG with terminal as the only absorbing sink (no cycles,
// no unreachable stages from the first stage).
func (s *ScenarioSpec) Validate() error {
	if len(s.Stages) == 0 {
		return fmt.Errorf("spec: scenario must have at least one stage")
	}

	stageIDs := map[StageID]bool{}
	for _, st := range s.Stages {
		if st.StageID == "" {
			return fmt.Errorf("spec: stage id must be non-empty")
		}
		if stageIDs[st.StageID] {
			return fmt.Errorf("spec: duplicate stage id %q", st.StageID)
		}
		stageIDs[st.StageID] = true
	}

	conditionIDs := map[ConditionID]bool{}
	for _, c := range s.Conditions {
		if c.ConditionID == "" {
			return fmt.Errorf("spec: condition id must be non-empty")
		}
		if conditionIDs[c.ConditionID] {
			return fmt.Errorf("spec: duplicate condition id %q", c.ConditionID)
		}
		conditionIDs[c.ConditionID] = true
	}

	for _, st := range s.Stages {
		gateIDs := map[GateID]bool{}
		for _, g := range st.Gates {
			if g.GateID == "" {
				return fmt.Errorf("spec: stage %q: gate id must be non-empty", st.StageID)
			}
			if gateIDs[g.GateID] {
				return fmt.Errorf("spec: stage %q: duplicate gate id %q", st.StageID, g.GateID)
			}
			gateIDs[g.GateID] = true
			if err := g.Requirement.Validate(); err != nil {
				return fmt.Errorf("spec: stage %q gate %q: %w", st.StageID, g.GateID, err)
			}
			for _, cid := range g.Requirement.ReferencedConditions() {
				if !conditionIDs[cid] {
					return fmt.Errorf("spec: stage %q gate %q references unknown condition %q", st.StageID, g.GateID, cid)
				}
			}
		}
		packetIDs := map[PacketID]bool{}
		for _, p := range st.EntryPackets {
			if packetIDs[p.PacketID] {
				return fmt.Errorf("spec: stage %q: duplicate packet id %q", st.StageID, p.PacketID)
			}
			packetIDs[p.PacketID] = true
		}

		switch st.AdvanceTo.Kind {
		case AdvanceFixed:
			if st.AdvanceTo.Target != TerminalStageID && !stageIDs[st.AdvanceTo.Target] {
				return fmt.Errorf("spec: stage %q: fixed advance target %q does not exist", st.StageID, st.AdvanceTo.Target)
			}
		case AdvanceBranch:
			if len(st.AdvanceTo.Arms) == 0 {
				return fmt.Errorf("spec: stage %q: branch advance rule requires at least one arm", st.StageID)
			}
			for _, arm := range st.AdvanceTo.Arms {
				if !gateIDs[arm.GateID] {
					return fmt.Errorf("spec: stage %q: branch arm references gate %q not in this stage", st.StageID, arm.GateID)
				}
				if arm.Target != TerminalStageID && !stageIDs[arm.Target] {
					return fmt.Errorf("spec: stage %q: branch arm target %q does not exist", st.StageID, arm.Target)
				}
			}
		case AdvanceLinear, AdvanceTerminal:
			// no target to validate
		default:
			return fmt.Errorf("spec: stage %q: unknown advance rule kind %q", st.StageID, st.AdvanceTo.Kind)
		}

		if st.OnTimeout != nil && st.OnTimeout.Kind == TimeoutAlternateBranch {
			if st.OnTimeout.Target != TerminalStageID && !stageIDs[st.OnTimeout.Target] {
				return fmt.Errorf("spec: stage %q: timeout alternate branch target %q does not exist", st.StageID, st.OnTimeout.Target)
			}
		}
	}

	return s.validateReachability()
}

// validateReachability rejects stages unreachable from the first stage
// and confirms terminal is the DAG's only absorbing sink (no cycles
// among the non-terminal stages).
func (s *ScenarioSpec) validateReachability() error {
	adjacency := map[StageID][]StageID{}
	for i, st := range s.Stages {
		var next []StageID
		switch st.AdvanceTo.Kind {
		case AdvanceFixed:
			if st.AdvanceTo.Target != TerminalStageID {
				next = append(next, st.AdvanceTo.Target)
			}
		case AdvanceBranch:
			for _, arm := range st.AdvanceTo.Arms {
				if arm.Target != TerminalStageID {
					next = append(next, arm.Target)
				}
			}
		case AdvanceLinear:
			if i+1 < len(s.Stages) {
				next = append(next, s.Stages[i+1].StageID)
			}
		}
		if st.OnTimeout != nil && st.OnTimeout.Kind == TimeoutAlternateBranch && st.OnTimeout.Target != TerminalStageID {
			next = append(next, st.OnTimeout.Target)
		}
		adjacency[st.StageID] = next
	}

	reachable := map[StageID]bool{}
	var visit func(id StageID, stack map[StageID]bool) error
	visit = func(id StageID, stack map[StageID]bool) error {
		if stack[id] {
			return fmt.Errorf("spec: cycle detected involving stage %q", id)
		}
		if reachable[id] {
			return nil
		}
		reachable[id] = true
		stack[id] = true
		for _, next := range adjacency[id] {
			if err := visit(next, stack); err != nil {
				return err
			}
		}
		delete(stack, id)
		return nil
	}

	if err := visit(s.Stages[0].StageID, map[StageID]bool{}); err != nil {
		return err
	}

	var unreachable []StageID
	for _, st := range s.Stages {
		if !reachable[st.StageID] {
			unreachable = append(unreachable, st.StageID)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return fmt.Errorf("spec: unreachable stages: %v", unreachable)
	}
	return nil
}
