/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package toolsurface_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/decisiongate/decisiongate/internal/engine"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/evidence/builtin"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/toolsurface"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

func TestLocalOnlyAuthenticatorRejectsNonLoopback(t *testing.T) {
	auth := toolsurface.LocalOnlyAuthenticator{}
	if _, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{RemoteAddr: "203.0.113.5:1234"}); err == nil {
		t.Fatalf("expected LocalOnlyAuthenticator to reject a non-loopback remote addr")
	}
	p, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{RemoteAddr: "127.0.0.1:1234"})
	if err != nil {
		t.Fatalf("expected loopback caller to authenticate, got %v", err)
	}
	if p.Role != toolsurface.RoleAdmin {
		t.Fatalf("expected RoleAdmin for a local caller, got %v", p.Role)
	}
}

func TestBearerAuthenticatorRejectsUnknownToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	auth := toolsurface.BearerAuthenticator{Hashes: map[string]string{"alice": string(hash)}}

	if _, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{BearerToken: "wrong"}); err == nil {
		t.Fatalf("expected an unmatched bearer token to fail authentication")
	}
	p, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{BearerToken: "s3cret"})
	if err != nil {
		t.Fatalf("expected the correct bearer token to authenticate, got %v", err)
	}
	if p.Name != "alice" {
		t.Fatalf("got principal %q, want alice", p.Name)
	}
}

func TestMtlsAuthenticatorRejectsUnknownSubject(t *testing.T) {
	auth := toolsurface.MtlsAuthenticator{AllowedSubjects: map[string]toolsurface.Role{"CN=ops": toolsurface.RoleOperator}}
	if _, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{MtlsSubject: "CN=intruder"}); err == nil {
		t.Fatalf("expected an unrecognized mTLS subject to be rejected")
	}
	if _, err := auth.Authenticate(context.Background(), toolsurface.TransportRequest{}); err == nil {
		t.Fatalf("expected a missing client certificate to be rejected")
	}
}

func TestNewAuthenticatorRejectsLocalOnlyOnNonLoopbackBind(t *testing.T) {
	cfg := toolsurface.DefaultCoreConfig()
	cfg.Bind = "0.0.0.0:8085"
	if _, err := toolsurface.NewAuthenticator(cfg); err == nil {
		t.Fatalf("expected NewAuthenticator to refuse local_only auth on a non-loopback bind")
	}
}

func TestACLDeniesByDefaultForUnknownRole(t *testing.T) {
	acl := toolsurface.NewACL(false)
	if acl.Allowed(toolsurface.Role("nonexistent"), toolsurface.PermScenarioRead) {
		t.Fatalf("expected an unrecognized role to be denied every permission")
	}
}

func TestACLViewerCannotWrite(t *testing.T) {
	acl := toolsurface.NewACL(false)
	if acl.Allowed(toolsurface.RoleViewer, toolsurface.PermScenarioWrite) {
		t.Fatalf("expected RoleViewer to be denied scenario:write")
	}
	if !acl.Allowed(toolsurface.RoleViewer, toolsurface.PermScenarioRead) {
		t.Fatalf("expected RoleViewer to be granted scenario:read")
	}
}

func TestACLOperatorLacksProviderAdmin(t *testing.T) {
	acl := toolsurface.NewACL(false)
	if acl.Allowed(toolsurface.RoleOperator, toolsurface.PermProviderAdmin) {
		t.Fatalf("expected RoleOperator to be denied provider:admin")
	}
	if !acl.Allowed(toolsurface.RoleAdmin, toolsurface.PermProviderAdmin) {
		t.Fatalf("expected RoleAdmin to be granted provider:admin")
	}
}

func TestRateLimiterEnforcesWindowBudget(t *testing.T) {
	rl := toolsurface.NewRateLimiter(2, time.Minute)
	if !rl.Allow("p1") {
		t.Fatalf("expected first request to be allowed")
	}
	if !rl.Allow("p1") {
		t.Fatalf("expected second request to be allowed")
	}
	if rl.Allow("p1") {
		t.Fatalf("expected third request within the window to be rejected")
	}
	if !rl.Allow("p2") {
		t.Fatalf("expected a distinct principal's budget to be independent")
	}
}

func TestRateLimiterZeroLimitDisablesThrottling(t *testing.T) {
	rl := toolsurface.NewRateLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		if !rl.Allow("p1") {
			t.Fatalf("expected a zero limit to mean unthrottled, failed at request %d", i)
		}
	}
}

func TestInflightLimiterBoundsConcurrency(t *testing.T) {
	lim := toolsurface.NewInflightLimiter(1)
	_, ok := lim.Acquire()
	if !ok {
		t.Fatalf("expected the first acquire to succeed")
	}
	if _, ok := lim.Acquire(); ok {
		t.Fatalf("expected a second acquire to fail while the limiter is at capacity")
	}
}

func TestInflightLimiterReleaseFreesASlot(t *testing.T) {
	lim := toolsurface.NewInflightLimiter(1)
	release, ok := lim.Acquire()
	if !ok {
		t.Fatalf("expected the first acquire to succeed")
	}
	release()
	if _, ok := lim.Acquire(); !ok {
		t.Fatalf("expected an acquire after release to succeed")
	}
}

func TestNoneAuthorityRejectsEmptyNamespace(t *testing.T) {
	auth := toolsurface.NoneAuthority{}
	if _, err := auth.Resolve(context.Background(), ""); err == nil {
		t.Fatalf("expected NoneAuthority to reject an empty namespace_id")
	}
}

func TestNoneAuthorityConsultsLookupWhenConfigured(t *testing.T) {
	auth := toolsurface.NoneAuthority{Lookup: func(ctx context.Context, namespaceID string) (bool, error) {
		return namespaceID == "known-ns", nil
	}}
	ok, err := auth.Resolve(context.Background(), "known-ns")
	if err != nil || !ok {
		t.Fatalf("expected known-ns to resolve true, got ok=%v err=%v", ok, err)
	}
	ok, err = auth.Resolve(context.Background(), "unknown-ns")
	if err != nil || ok {
		t.Fatalf("expected unknown-ns to resolve false, got ok=%v err=%v", ok, err)
	}
}

// TestPrecheckNeverPersistsOrTouchesVerifiedLaneEvidence exercises
// invariant 7: Precheck predicts a decision from an asserted-lane
// payload alone and never mutates run state — repeating the same
// precheck must be side-effect free, and a gate requiring Verified
// evidence must always stay Unknown no matter what the payload claims.
func TestPrecheckNeverPersistsOrTouchesVerifiedLaneEvidence(t *testing.T) {
	ctx := context.Background()
	store, err := engine.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	registry := evidence.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	registry.Freeze()
	eng := engine.New(store, registry)

	verified := &spec.TrustRequirement{MinLane: spec.Verified}
	s := &spec.ScenarioSpec{
		ScenarioID:  "precheck-demo",
		NamespaceID: "ns-1",
		SpecVersion: "1.0.0",
		Conditions: []spec.ConditionSpec{
			{ConditionID: "needs_verified", Query: spec.EvidenceQuery{ProviderID: "time", CheckID: "now"}, Comparator: "Exists", Trust: verified},
		},
		Stages: []spec.StageSpec{
			{
				StageID: "only",
				Gates: []spec.GateSpec{
					{GateID: "g1", Requirement: tristate.CondOf("needs_verified")},
				},
				AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceTerminal},
			},
		},
	}

	payload := map[string]any{"needs_verified": "anything"}
	first, err := eng.Precheck(ctx, s, "only", payload, "", nil)
	if err != nil {
		t.Fatalf("Precheck: %v", err)
	}
	if first.GateResults["g1"] != tristate.Unknown {
		t.Fatalf("expected a Verified-trust gate to stay Unknown under asserted-only payload, got %v", first.GateResults["g1"])
	}

	second, err := eng.Precheck(ctx, s, "only", payload, "", nil)
	if err != nil {
		t.Fatalf("Precheck (repeat): %v", err)
	}
	if second.RequestHash != first.RequestHash || second.ResponseHash != first.ResponseHash {
		t.Fatalf("expected repeated precheck of identical input to be side-effect free and hash-stable")
	}

	if _, ok, err := store.GetRun(ctx, "only"); err == nil && ok {
		t.Fatalf("Precheck must never create run state")
	}
}
