/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package evidence implements the C3 evidence federation layer: a
// process-wide provider registry (built-in + external MCP), the dispatch
// contract, trust-lane resolution, and the SSRF defense HTTP-based
// external providers require. Stdio message framing is left to the MCP
// SDK transports; this package adds no framing limits of its own.
package evidence

import (
	"context"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// Context carries the per-dispatch metadata a provider may need (§4.3.2).
type Context struct {
	TenantID      string
	NamespaceID   string
	RunID         string
	ScenarioID    string
	StageID       string
	TriggerID     string
	TriggerTime   int64
	CorrelationID string
}

// ContentRef is an opaque, hashed pointer to payload bytes held outside
// run state.
type ContentRef struct {
	URI  string       `json:"uri"`
	Hash canon.Digest `json:"hash"`
}

// Result is the EvidenceResult shape (§3.4).
type Result struct {
	Value       any                      `json:"value,omitempty"`
	Lane        spec.TrustLane           `json:"lane"`
	Error       *dgerr.StructuredError   `json:"error,omitempty"`
	EvidenceHash *canon.Digest           `json:"evidence_hash,omitempty"`
	EvidenceRef *ContentRef              `json:"evidence_ref,omitempty"`
	Signature   *canon.Signature         `json:"signature,omitempty"`
	Anchors     map[string]any           `json:"anchors,omitempty"`
}

// TrustPolicy governs how an external MCP provider's (un)signed
// responses map to a trust lane.
type TrustPolicy string

const (
	TrustPolicyAudit             TrustPolicy = "audit"
	TrustPolicyRequireSignature  TrustPolicy = "require_signature"
)

// CheckContract describes one named operation a provider exposes.
type CheckContract struct {
	CheckID            string   `json:"check_id" yaml:"check_id"`
	ParamsSchema       any      `json:"params_schema,omitempty" yaml:"params_schema,omitempty"`
	ResultSchema       any      `json:"result_schema,omitempty" yaml:"result_schema,omitempty"`
	AllowedComparators []string `json:"allowed_comparators" yaml:"allowed_comparators"`
}

// Contract is the capability contract a provider handle carries.
type Contract struct {
	ProviderID  string          `json:"provider_id" yaml:"provider_id"`
	Checks      []CheckContract `json:"checks" yaml:"checks"`
	TrustPolicy TrustPolicy     `json:"trust_policy" yaml:"trust_policy"`

	// AllowRawDisclosure is the provider's own opt-in half of §4.6.4's
	// disclosure policy: evidence_query only returns a raw value when
	// this is true AND the caller/config side also allows it. A
	// provider that can return sensitive or unbounded remote content
	// (e.g. http) should leave this false even when the deployment's
	// global allow_raw_values is set.
	AllowRawDisclosure bool `json:"allow_raw_disclosure" yaml:"allow_raw_disclosure"`
}

// CheckByID looks up a single check contract.
func (c Contract) CheckByID(id string) (CheckContract, bool) {
	for _, ch := range c.Checks {
		if ch.CheckID == id {
			return ch, true
		}
	}
	return CheckContract{}, false
}

// Provider is the dispatch surface every provider handle (built-in or
// external MCP) implements.
type Provider interface {
	Contract() Contract
	Query(ctx context.Context, checkID string, params map[string]any, dctx Context) (Result, error)
}
