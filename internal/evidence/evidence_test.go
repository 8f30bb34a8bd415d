/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package evidence_test

import (
	"context"
	"testing"

	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/evidence/builtin"
	"github.com/decisiongate/decisiongate/internal/spec"
)

func TestRegistryDispatchRoutesToRegisteredProvider(t *testing.T) {
	reg := evidence.NewRegistry()
	if err := builtin.RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	res := reg.Dispatch(context.Background(), "time", "now", map[string]any{"time": "2024-06-01T00:00:00Z"}, evidence.Context{})
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if res.Value != "2024-06-01T00:00:00Z" {
		t.Fatalf("got value %v, want 2024-06-01T00:00:00Z", res.Value)
	}
	if res.Lane != spec.Verified {
		t.Fatalf("got lane %v, want Verified", res.Lane)
	}
}

func TestRegistryDispatchUnknownProviderIsStructuredNotFound(t *testing.T) {
	reg := evidence.NewRegistry()
	res := reg.Dispatch(context.Background(), "no-such-provider", "now", nil, evidence.Context{})
	if res.Error == nil {
		t.Fatalf("expected a structured error for an unregistered provider")
	}
	if res.Error.Code != dgerr.ProviderNotFound {
		t.Fatalf("got code %v, want ProviderNotFound", res.Error.Code)
	}
}

func TestRegistryDispatchUnknownCheckIsStructuredNotFound(t *testing.T) {
	reg := evidence.NewRegistry()
	if err := builtin.RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	res := reg.Dispatch(context.Background(), "time", "no-such-check", nil, evidence.Context{})
	if res.Error == nil {
		t.Fatalf("expected a structured error for an unknown check")
	}
	if res.Error.Code != dgerr.CheckNotFound {
		t.Fatalf("got code %v, want CheckNotFound", res.Error.Code)
	}
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	reg := evidence.NewRegistry()
	reg.Freeze()
	if err := reg.Register(&builtin.TimeProvider{}); err == nil {
		t.Fatalf("expected Register to fail after Freeze")
	}
}

func TestRegisterDuplicateProviderIDFails(t *testing.T) {
	reg := evidence.NewRegistry()
	if err := reg.Register(&builtin.TimeProvider{}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register(&builtin.TimeProvider{}); err == nil {
		t.Fatalf("expected duplicate Register to fail")
	}
}

// TestEffectiveMinLaneIsStrictestAcrossLevels exercises invariant 5
// (trust-lane monotonicity): the effective floor is the highest-ranked
// requirement across global/scenario/gate/condition, never a lower one.
func TestEffectiveMinLaneIsStrictestAcrossLevels(t *testing.T) {
	verified := &spec.TrustRequirement{MinLane: spec.Verified}

	cases := []struct {
		name                          string
		global, scenario, gate, cond *spec.TrustRequirement
		want                          spec.TrustLane
	}{
		{"all nil defaults to Asserted", nil, nil, nil, nil, spec.Asserted},
		{"condition alone requires Verified", nil, nil, nil, verified, spec.Verified},
		{"global alone requires Verified", verified, nil, nil, nil, spec.Verified},
		{"gate alone requires Verified", nil, nil, verified, nil, spec.Verified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := evidence.EffectiveMinLane(tc.global, tc.scenario, tc.gate, tc.cond)
			if got != tc.want {
				t.Errorf("EffectiveMinLane() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveTrustDowngradesInsufficientLaneToUnknown(t *testing.T) {
	result := evidence.Result{Value: "x", Lane: spec.Asserted}
	resolved, ok := evidence.ResolveTrust(result, spec.Verified)
	if ok {
		t.Fatalf("expected ok=false when the result's lane ranks below the requirement")
	}
	if resolved.Error == nil || resolved.Error.Code != dgerr.LaneInsufficient {
		t.Fatalf("expected LaneInsufficient, got %+v", resolved.Error)
	}
}

func TestResolveTrustAcceptsSufficientLane(t *testing.T) {
	result := evidence.Result{Value: "x", Lane: spec.Verified}
	resolved, ok := evidence.ResolveTrust(result, spec.Asserted)
	if !ok {
		t.Fatalf("expected ok=true when the result's lane meets the requirement")
	}
	if resolved.Value != "x" {
		t.Fatalf("ResolveTrust must not mutate the value")
	}
}

func TestResolveTrustPassesThroughExistingError(t *testing.T) {
	result := evidence.Result{Error: dgerr.NewStructured(dgerr.TransportError, "boom")}
	_, ok := evidence.ResolveTrust(result, spec.Asserted)
	if ok {
		t.Fatalf("expected ok=false when the result already carries an error")
	}
}
