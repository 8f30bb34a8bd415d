/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package runstate defines the mutable, versioned run-state types (§3.3):
// a RunState's append-only log vectors and the decision/outcome shapes
// they carry. Types here are pure data — the engine (internal/engine)
// owns the algorithm that produces and persists them.
package runstate

import (
	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// Status is the run's overall lifecycle status.
type Status string

const (
	Active    Status = "Active"
	Completed Status = "Completed"
	Failed    Status = "Failed"
)

// TimestampKind tags which Timestamp variant is populated.
type TimestampKind string

const (
	UnixMillis TimestampKind = "unix_millis"
	Logical    TimestampKind = "logical"
)

// Timestamp is the tagged union { unix_millis(i64) | logical(u64) }.
type Timestamp struct {
	Kind  TimestampKind `json:"kind"`
	Value int64         `json:"value"`
}

// Before reports whether t happens strictly before other. Comparing
// across different Kinds is a source-monotonicity violation the caller
// is responsible for detecting (§3.1); Before still defines a total
// order over the raw value for bookkeeping purposes.
func (t Timestamp) Before(other Timestamp) bool {
	return t.Value < other.Value
}

// TriggerKind is one of Evaluate, Tick, Submit.
type TriggerKind string

const (
	TriggerEvaluate TriggerKind = "Evaluate"
	TriggerTick     TriggerKind = "Tick"
	TriggerSubmit   TriggerKind = "Submit"
)

// TriggerEvent is one entry in the append-only trigger log.
type TriggerEvent struct {
	TriggerID     string         `json:"trigger_id"`
	Kind          TriggerKind    `json:"kind"`
	Time          Timestamp      `json:"time"`
	CorrelationID string         `json:"correlation_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	PayloadHash   canon.Digest   `json:"payload_hash"`
}

// ConditionOutcome is the per-condition result recorded from one gate
// evaluation. Raw evidence values are never retained — only a hash.
type ConditionOutcome struct {
	ConditionID spec.ConditionID        `json:"condition_id"`
	TriState    tristate.State          `json:"tri_state"`
	Lane        spec.TrustLane          `json:"lane"`
	ValueHash   *canon.Digest           `json:"value_hash,omitempty"`
	Signature   *canon.Signature        `json:"signature,omitempty"`
	Error       *StructuredErrorView    `json:"error,omitempty"`
}

// StructuredErrorView is the persisted form of a dgerr.StructuredError
// (kept local to runstate to avoid a dependency cycle back to dgerr's
// richer Error type, and because only code+message are ever retained).
type StructuredErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GateEvalRecord is one entry in the append-only gate-eval log.
type GateEvalRecord struct {
	GateID            spec.GateID        `json:"gate_id"`
	Outcome           tristate.State     `json:"outcome"`
	ConditionOutcomes []ConditionOutcome `json:"condition_outcomes"`
	EvaluatedAt       Timestamp          `json:"evaluated_at"`
}

// DecisionKind tags which DecisionOutcome variant is populated.
type DecisionKind string

const (
	DecisionAdvance  DecisionKind = "Advance"
	DecisionHold     DecisionKind = "Hold"
	DecisionFail     DecisionKind = "Fail"
	DecisionTerminal DecisionKind = "Terminal"
)

// DecisionOutcome: Advance{to} | Hold{retry_hint} | Fail{reason} | Terminal.
type DecisionOutcome struct {
	Kind      DecisionKind `json:"kind"`
	To        spec.StageID `json:"to,omitempty"`        // Advance
	RetryHint string       `json:"retry_hint,omitempty"` // Hold
	Reason    string       `json:"reason,omitempty"`     // Fail
}

// DecisionRecord is one entry in the append-only decision log.
type DecisionRecord struct {
	DecisionID      string           `json:"decision_id"`
	Outcome         DecisionOutcome  `json:"outcome"`
	Reason          string           `json:"reason,omitempty"`
	IssuedPacketIDs []spec.PacketID  `json:"issued_packet_ids,omitempty"`
	TimeoutFlag     bool             `json:"timeout_flag"`
	DecidedAt       Timestamp        `json:"decided_at"`
}

// PacketRecord is one entry in the append-only packet log.
type PacketRecord struct {
	PacketID  spec.PacketID  `json:"packet_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	IssuedAt  Timestamp      `json:"issued_at"`
}

// SubmissionRecord is one entry in the append-only submission log.
type SubmissionRecord struct {
	SubmissionID string       `json:"submission_id"`
	ContentType  string       `json:"content_type"`
	BodyHash     canon.Digest `json:"body_hash"`
	RecordedAt   Timestamp    `json:"recorded_at"`
}

// ToolCallRecord is one entry in the append-only tool-call audit log.
type ToolCallRecord struct {
	CorrelationID string       `json:"correlation_id"`
	Tool          string       `json:"tool"`
	Principal     string       `json:"principal"`
	Allowed       bool         `json:"allowed"`
	Reason        string       `json:"reason,omitempty"`
	RequestHash   canon.Digest `json:"request_hash"`
	ResponseHash  canon.Digest `json:"response_hash"`
	RecordedAt    Timestamp    `json:"recorded_at"`
}

// RunState is the full mutable, versioned per-run record (§3.3).
type RunState struct {
	RunID           string            `json:"run_id"`
	ScenarioID      spec.ScenarioID   `json:"scenario_id"`
	NamespaceID     spec.NamespaceID  `json:"namespace_id"`
	TenantID        string            `json:"tenant_id"`
	SpecHash        string            `json:"spec_hash"`
	Status          Status            `json:"status"`
	CurrentStageID  spec.StageID      `json:"current_stage_id"`
	StageEnteredAt  Timestamp         `json:"stage_entered_at"`
	Version         uint64            `json:"version"`

	Triggers    []TriggerEvent     `json:"triggers"`
	GateEvals   []GateEvalRecord   `json:"gate_evals"`
	Decisions   []DecisionRecord   `json:"decisions"`
	Packets     []PacketRecord     `json:"packets"`
	Submissions []SubmissionRecord `json:"submissions"`
	ToolCalls   []ToolCallRecord   `json:"tool_calls"`
}

// Clone deep-copies the run state (used so the engine can mutate a
// working copy and only commit it to the store once the whole decision
// is ready — the all-or-nothing atomic commit of §4.4.6).
func (r *RunState) Clone() *RunState {
	c := *r
	c.Triggers = append([]TriggerEvent(nil), r.Triggers...)
	c.GateEvals = append([]GateEvalRecord(nil), r.GateEvals...)
	c.Decisions = append([]DecisionRecord(nil), r.Decisions...)
	c.Packets = append([]PacketRecord(nil), r.Packets...)
	c.Submissions = append([]SubmissionRecord(nil), r.Submissions...)
	c.ToolCalls = append([]ToolCallRecord(nil), r.ToolCalls...)
	return &c
}

// LastDecision returns the most recently appended decision, if any.
func (r *RunState) LastDecision() (DecisionRecord, bool) {
	if len(r.Decisions) == 0 {
		return DecisionRecord{}, false
	}
	return r.Decisions[len(r.Decisions)-1], true
}

// FindTrigger looks up a previously-recorded trigger by id (idempotency
// check, §3.3 invariants).
func (r *RunState) FindTrigger(triggerID string) (TriggerEvent, bool) {
	for _, t := range r.Triggers {
		if t.TriggerID == triggerID {
			return t, true
		}
	}
	return TriggerEvent{}, false
}

// FindSubmission looks up a previously-recorded submission by id.
func (r *RunState) FindSubmission(submissionID string) (SubmissionRecord, bool) {
	for _, s := range r.Submissions {
		if s.SubmissionID == submissionID {
			return s, true
		}
	}
	return SubmissionRecord{}, false
}

// RecomputeStatus derives status from the decision log per the §3.3
// invariant: Completed iff a Terminal decision exists; Failed iff any
// Fail decision exists; else Active.
func (r *RunState) RecomputeStatus() {
	status := Active
	for _, d := range r.Decisions {
		switch d.Outcome.Kind {
		case DecisionTerminal:
			status = Completed
		case DecisionFail:
			status = Failed
		}
	}
	r.Status = status
}
