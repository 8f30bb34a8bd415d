/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/engine"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/evidence/builtin"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

func TestEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Engine Suite")
}

func newTestEngine() (*engine.Engine, *engine.SQLiteStore) {
	store, err := engine.NewSQLiteStore(":memory:")
	Expect(err).NotTo(HaveOccurred())
	registry := evidence.NewRegistry()
	Expect(builtin.RegisterAll(registry)).To(Succeed())
	registry.Freeze()
	return engine.New(store, registry), store
}

// timeGateSpec builds the §8 scenario-1 spec: one stage, one gate
// `after_2024` over condition `after_2024` against builtin time/now,
// Gte "2024-01-01T00:00:00Z", advancing to terminal.
func timeGateSpec() *spec.ScenarioSpec {
	return &spec.ScenarioSpec{
		ScenarioID:  "time-gate",
		NamespaceID: "ns-1",
		SpecVersion: "1.0.0",
		Conditions: []spec.ConditionSpec{
			{
				ConditionID: "after_2024",
				Query:       spec.EvidenceQuery{ProviderID: "time", CheckID: "now"},
				Comparator:  "Gte",
				Expected:    "2024-01-01T00:00:00Z",
			},
		},
		Stages: []spec.StageSpec{
			{
				StageID: "only",
				Gates: []spec.GateSpec{
					{GateID: "after_2024", Requirement: tristate.CondOf("after_2024")},
				},
				AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceTerminal},
			},
		},
	}
}

func logicalTrigger(triggerID string, logical int64, timeParam any) runstate.TriggerEvent {
	payload := map[string]any{"time": timeParam}
	hash, err := canon.Hash(payload)
	Expect(err).NotTo(HaveOccurred())
	return runstate.TriggerEvent{
		TriggerID: triggerID,
		Kind:      runstate.TriggerEvaluate,
		Time:      runstate.Timestamp{Kind: runstate.Logical, Value: logical},
		Payload:   payload,
		PayloadHash: hash,
	}
}

func dispatchContextFor(trig runstate.TriggerEvent) evidence.Context {
	return evidence.Context{RunID: "r1", ScenarioID: "time-gate", StageID: "only", TriggerID: trig.TriggerID}
}

var _ = Describe("trigger evaluation (§8 end-to-end scenarios)", func() {
	var (
		ctx context.Context
		e   *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		e, _ = newTestEngine()
	})

	It("advances to terminal when the time gate is satisfied (scenario 1)", func() {
		s := timeGateSpec()
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Start(ctx, "run-1", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		trig := logicalTrigger("trig-1", 1, "2024-06-01T00:00:00Z")
		summary, err := e.Trigger(ctx, "run-1", trig, dispatchContextFor(trig))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(runstate.Completed))
		Expect(summary.LastDecisionOutcome.Kind).To(Equal(runstate.DecisionTerminal))
	})

	It("holds with the unmet condition when evidence is unknown (scenario 2)", func() {
		s := timeGateSpec()
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Start(ctx, "run-2", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		trig := logicalTrigger("trig-1", 1, nil)
		summary, err := e.Trigger(ctx, "run-2", trig, dispatchContextFor(trig))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(runstate.Active))
		Expect(summary.LastDecisionOutcome.Kind).To(Equal(runstate.DecisionHold))
		Expect(summary.UnmetConditions).To(ConsistOf(spec.ConditionID("after_2024")))
	})

	It("fails on timeout when configured Fail (scenario 3)", func() {
		s := timeGateSpec()
		s.Stages[0].Timeout = &spec.TimeoutSpec{TimeoutMS: 1000}
		s.Stages[0].OnTimeout = &spec.TimeoutPolicy{Kind: spec.TimeoutFail}
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Start(ctx, "run-3", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		tick := runstate.TriggerEvent{
			TriggerID: "tick-1",
			Kind:      runstate.TriggerTick,
			Time:      runstate.Timestamp{Kind: runstate.Logical, Value: 2000},
		}
		hash2, err := canon.Hash(tick.Payload)
		Expect(err).NotTo(HaveOccurred())
		tick.PayloadHash = hash2

		summary, err := e.Trigger(ctx, "run-3", tick, dispatchContextFor(tick))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(runstate.Failed))
		Expect(summary.LastDecisionOutcome.Kind).To(Equal(runstate.DecisionFail))
		Expect(summary.LastDecisionOutcome.Reason).To(Equal("timeout"))
	})

	It("branches to the first gate in spec order that resolves True (scenario 4)", func() {
		s := &spec.ScenarioSpec{
			ScenarioID:  "branch-scenario",
			NamespaceID: "ns-1",
			SpecVersion: "1.0.0",
			Conditions: []spec.ConditionSpec{
				{ConditionID: "ca", Query: spec.EvidenceQuery{ProviderID: "time", CheckID: "now", Params: map[string]any{"time": "2024-06-01T00:00:00Z"}}, Comparator: "Exists"},
				{ConditionID: "cb", Query: spec.EvidenceQuery{ProviderID: "time", CheckID: "now", Params: map[string]any{"time": "2024-07-01T00:00:00Z"}}, Comparator: "Exists"},
			},
			Stages: []spec.StageSpec{
				{
					StageID: "start",
					Gates: []spec.GateSpec{
						{GateID: "gate_a", Requirement: tristate.CondOf("ca")},
						{GateID: "gate_b", Requirement: tristate.CondOf("cb")},
					},
					AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceBranch, Arms: []spec.BranchArm{
						{GateID: "gate_a", Target: "stage_b"},
						{GateID: "gate_b", Target: "stage_c"},
					}},
				},
				{StageID: "stage_b", Gates: []spec.GateSpec{}, AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceTerminal}},
				{StageID: "stage_c", Gates: []spec.GateSpec{}, AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceTerminal}},
			},
		}
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Start(ctx, "run-4", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		trig := runstate.TriggerEvent{TriggerID: "trig-1", Kind: runstate.TriggerEvaluate, Time: runstate.Timestamp{Kind: runstate.Logical, Value: 1}}
		h, err := canon.Hash(trig.Payload)
		Expect(err).NotTo(HaveOccurred())
		trig.PayloadHash = h

		summary, err := e.Trigger(ctx, "run-4", trig, dispatchContextFor(trig))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.LastDecisionOutcome.Kind).To(Equal(runstate.DecisionAdvance))
		Expect(summary.LastDecisionOutcome.To).To(Equal(spec.StageID("stage_b")))
	})

	It("is idempotent for repeated triggers with identical payloads (scenario 5)", func() {
		s := timeGateSpec()
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Start(ctx, "run-5", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		trig := logicalTrigger("trig-1", 1, "2024-06-01T00:00:00Z")
		first, err := e.Trigger(ctx, "run-5", trig, dispatchContextFor(trig))
		Expect(err).NotTo(HaveOccurred())

		second, err := e.Trigger(ctx, "run-5", trig, dispatchContextFor(trig))
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("rejects a conflicting payload for a reused trigger id", func() {
		s := timeGateSpec()
		hash, err := e.Define(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Start(ctx, "run-6", hash, "ns-1", "tenant-1", runstate.Timestamp{Kind: runstate.Logical, Value: 0})
		Expect(err).NotTo(HaveOccurred())

		trig1 := logicalTrigger("trig-1", 1, "2024-06-01T00:00:00Z")
		_, err = e.Trigger(ctx, "run-6", trig1, dispatchContextFor(trig1))
		Expect(err).NotTo(HaveOccurred())

		trig2 := logicalTrigger("trig-1", 1, "2025-06-01T00:00:00Z")
		_, err = e.Trigger(ctx, "run-6", trig2, dispatchContextFor(trig2))
		Expect(err).To(HaveOccurred())
	})
})
