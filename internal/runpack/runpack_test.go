/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runpack_test

import (
	"context"
	"testing"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runpack"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

func testBuildRequest() runpack.BuildRequest {
	return runpack.BuildRequest{
		TenantID:    "tenant-1",
		NamespaceID: "ns-1",
		ScenarioID:  "time-gate",
		RunID:       "run-1",
		SpecHash:    canon.Digest{Algorithm: "sha-256", Value: "deadbeef"},
		ScenarioSpec: &spec.ScenarioSpec{
			ScenarioID:  "time-gate",
			NamespaceID: "ns-1",
			SpecVersion: "1.0.0",
			Stages: []spec.StageSpec{
				{StageID: "only", AdvanceTo: spec.AdvanceRule{Kind: spec.AdvanceTerminal}},
			},
		},
		RunState: &runstate.RunState{
			RunID:          "run-1",
			ScenarioID:     "time-gate",
			NamespaceID:    "ns-1",
			TenantID:       "tenant-1",
			Status:         runstate.Completed,
			CurrentStageID: spec.TerminalStageID,
		},
	}
}

func TestBuildThenVerifyRoundTrips(t *testing.T) {
	ctx := context.Background()
	sink, err := runpack.NewFSSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}

	req := testBuildRequest()
	result, err := runpack.Build(ctx, sink, req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Files) == 0 {
		t.Fatalf("Build produced no files")
	}

	report, err := runpack.Verify(ctx, sink, runpack.VerifyRequest{
		KeyPrefix:        result.KeyPrefix,
		ExpectedRootHash: &result.RootHash,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("Verify reported not OK: %+v", report)
	}
	if !report.RootHashMatch {
		t.Fatalf("Verify reported root hash mismatch: %+v", report)
	}
	for _, pf := range report.PerFileResults {
		if !pf.OK {
			t.Errorf("file %s failed verification: %s", pf.RelativePath, pf.Error)
		}
	}
}

// TestVerifyDetectsSingleByteTamper exercises invariant 6: flipping one
// byte of a single artifact must be detectable without reference to
// anything but the manifest already written alongside it.
func TestVerifyDetectsSingleByteTamper(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink, err := runpack.NewFSSink(dir)
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}

	req := testBuildRequest()
	result, err := runpack.Build(ctx, sink, req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	body, err := sink.Get(ctx, result.KeyPrefix+runpack.FileDecisions)
	if err != nil {
		t.Fatalf("Get decisions.json: %v", err)
	}
	if len(body) == 0 {
		t.Fatalf("decisions.json is empty, cannot tamper")
	}
	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0xFF
	if err := sink.Put(ctx, result.KeyPrefix+runpack.FileDecisions, tampered); err != nil {
		t.Fatalf("Put tampered decisions.json: %v", err)
	}

	report, err := runpack.Verify(ctx, sink, runpack.VerifyRequest{KeyPrefix: result.KeyPrefix})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.OK {
		t.Fatalf("Verify did not detect single-byte tamper: %+v", report)
	}

	var sawMismatch bool
	for _, pf := range report.PerFileResults {
		if pf.RelativePath == runpack.FileDecisions && !pf.OK {
			sawMismatch = true
		}
	}
	if !sawMismatch {
		t.Fatalf("expected decisions.json to fail per-file verification, got %+v", report.PerFileResults)
	}
}

func TestVerifyRejectsTamperedManifestRootHash(t *testing.T) {
	ctx := context.Background()
	sink, err := runpack.NewFSSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}

	req := testBuildRequest()
	result, err := runpack.Build(ctx, sink, req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	manifestBody, err := sink.Get(ctx, result.KeyPrefix+runpack.FileManifest)
	if err != nil {
		t.Fatalf("Get manifest.json: %v", err)
	}
	tampered := append([]byte(nil), manifestBody...)
	tampered[len(tampered)-2] ^= 0xFF
	if err := sink.Put(ctx, result.KeyPrefix+runpack.FileManifest, tampered); err != nil {
		t.Fatalf("Put tampered manifest: %v", err)
	}

	// A corrupted manifest.json either fails to parse or yields a root
	// hash mismatch; both are acceptable tamper-detection outcomes.
	report, err := runpack.Verify(ctx, sink, runpack.VerifyRequest{KeyPrefix: result.KeyPrefix})
	if err != nil {
		return
	}
	if report.OK {
		t.Fatalf("Verify did not detect manifest tamper: %+v", report)
	}
}
