/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runpack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/decisiongate/decisiongate/internal/canon"
)

// PerFileResult is the verification outcome for one manifest entry.
type PerFileResult struct {
	RelativePath string `json:"relative_path"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
}

// SignatureSummary reports the outcome of the optional Ed25519
// signature pass over gate_evals.json (§4.5.4 step 4).
type SignatureSummary struct {
	Checked int      `json:"checked"`
	Valid   int      `json:"valid"`
	Invalid int      `json:"invalid"`
	Errors  []string `json:"errors,omitempty"`
}

// Report is the output of Verify (§4.5.4 step 5).
type Report struct {
	OK              bool              `json:"ok"`
	RootHashMatch   bool              `json:"root_hash_match"`
	PerFileResults  []PerFileResult   `json:"per_file_results"`
	SignatureSummary SignatureSummary `json:"signature_summary"`
	Errors          []string          `json:"errors,omitempty"`
}

// VerifyRequest configures an offline verification pass; it never
// issues any provider query.
type VerifyRequest struct {
	KeyPrefix        string
	ExpectedRootHash *canon.Digest
	MaxArtifactBytes int64
	TrustedKeys      canon.TrustedKeys
	RequireSignatures bool
}

// signedConditionOutcome is the subset of runstate.ConditionOutcome
// Verify needs: a declared value hash plus an optional signature over
// it, mirroring the shape gate_evals.json entries carry on the wire.
type signedConditionOutcome struct {
	ConditionID string          `json:"condition_id"`
	ValueHash   *canon.Digest   `json:"value_hash,omitempty"`
	Signature   *canon.Signature `json:"signature,omitempty"`
}

type signedGateEvalRecord struct {
	ConditionOutcomes []signedConditionOutcome `json:"condition_outcomes"`
}

// Verify reads manifest.json from sink, recomputes every listed
// file's content hash and the root hash, and optionally checks
// Ed25519 signatures carried in gate_evals.json. It never contacts an
// evidence provider.
func Verify(ctx context.Context, sink Sink, req VerifyRequest) (Report, error) {
	maxBytes := req.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = MaxArtifactBytes
	}

	manifestBody, err := sink.Get(ctx, req.KeyPrefix+FileManifest)
	if err != nil {
		return Report{}, fmt.Errorf("runpack: read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBody, &manifest); err != nil {
		return Report{}, fmt.Errorf("runpack: unmarshal manifest: %w", err)
	}
	if manifest.ManifestVersion != ManifestVersion {
		return Report{}, fmt.Errorf("runpack: unsupported manifest_version %q", manifest.ManifestVersion)
	}

	report := Report{OK: true, PerFileResults: make([]PerFileResult, 0, len(manifest.Files))}

	var gateEvalsBody []byte
	for _, f := range manifest.Files {
		body, err := sink.Get(ctx, req.KeyPrefix+f.RelativePath)
		if err != nil {
			report.OK = false
			report.PerFileResults = append(report.PerFileResults, PerFileResult{RelativePath: f.RelativePath, OK: false, Error: err.Error()})
			continue
		}
		if int64(len(body)) > maxBytes {
			report.OK = false
			report.PerFileResults = append(report.PerFileResults, PerFileResult{RelativePath: f.RelativePath, OK: false,
				Error: fmt.Sprintf("artifact is %d bytes, exceeds max %d", len(body), maxBytes)})
			continue
		}
		if f.RelativePath == FileGateEvals {
			gateEvalsBody = body
		}
		actual := canon.HashBytes(body)
		if !actual.Equal(f.ContentHash) {
			report.OK = false
			report.PerFileResults = append(report.PerFileResults, PerFileResult{RelativePath: f.RelativePath, OK: false,
				Error: fmt.Sprintf("content hash mismatch: manifest says %s, computed %s", f.ContentHash, actual)})
			continue
		}
		report.PerFileResults = append(report.PerFileResults, PerFileResult{RelativePath: f.RelativePath, OK: true})
	}

	recomputedRoot, err := computeRootHash(manifest.Files)
	if err != nil {
		return Report{}, fmt.Errorf("runpack: recompute root hash: %w", err)
	}
	report.RootHashMatch = recomputedRoot.Equal(manifest.RootHash)
	if !report.RootHashMatch {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf("root hash mismatch: manifest says %s, recomputed %s", manifest.RootHash, recomputedRoot))
	}
	if req.ExpectedRootHash != nil && !recomputedRoot.Equal(*req.ExpectedRootHash) {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf("root hash does not match caller-supplied expectation %s", req.ExpectedRootHash))
	}

	report.SignatureSummary = verifySignatures(gateEvalsBody, req)
	if req.RequireSignatures && (report.SignatureSummary.Checked == 0 || report.SignatureSummary.Invalid > 0) {
		report.OK = false
	}

	return report, nil
}

func verifySignatures(gateEvalsBody []byte, req VerifyRequest) SignatureSummary {
	summary := SignatureSummary{}
	if len(gateEvalsBody) == 0 {
		return summary
	}

	var records []signedGateEvalRecord
	if err := json.Unmarshal(gateEvalsBody, &records); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("unmarshal gate_evals.json: %v", err))
		return summary
	}

	for _, rec := range records {
		for _, co := range rec.ConditionOutcomes {
			if co.Signature == nil {
				continue
			}
			summary.Checked++
			if co.ValueHash == nil {
				summary.Invalid++
				summary.Errors = append(summary.Errors, fmt.Sprintf("condition %s: signature present with no value_hash to verify", co.ConditionID))
				continue
			}
			if err := canon.Verify(req.TrustedKeys, *co.ValueHash, *co.Signature); err != nil {
				summary.Invalid++
				summary.Errors = append(summary.Errors, fmt.Sprintf("condition %s: %v", co.ConditionID, err))
				continue
			}
			summary.Valid++
		}
	}
	return summary
}
