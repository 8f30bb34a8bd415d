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
	"fmt"
	"sort"
	"time"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// BuildRequest names the run being exported and the sink coordinates
// its key derivation depends on.
type BuildRequest struct {
	TenantID   string
	NamespaceID spec.NamespaceID
	ScenarioID spec.ScenarioID
	RunID      string
	SpecHash   canon.Digest

	ScenarioSpec *spec.ScenarioSpec
	RunState     *runstate.RunState

	SecurityContext SecurityContext
	MaxArtifactBytes int64 // 0 means MaxArtifactBytes
	Now             func() time.Time
}

// BuildResult is returned once the manifest has landed.
type BuildResult struct {
	RootHash canon.Digest
	KeyPrefix string
	Files    []FileEntry
}

// Build serializes rs's log vectors and the originating spec, writes
// artifacts first then the manifest last (§4.5.3 step 5 — a runpack
// without a manifest is incomplete, so a reader can always tell a
// partially-written runpack apart from a committed one), and returns
// the root hash.
func Build(ctx context.Context, sink Sink, req BuildRequest) (BuildResult, error) {
	maxBytes := req.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = MaxArtifactBytes
	}
	now := req.Now
	if now == nil {
		now = time.Now
	}

	type artifact struct {
		path  string
		value any
	}
	artifacts := []artifact{
		{FileScenarioSpec, req.ScenarioSpec},
		{FileTriggers, req.RunState.Triggers},
		{FileGateEvals, req.RunState.GateEvals},
		{FileDecisions, req.RunState.Decisions},
		{FilePackets, req.RunState.Packets},
		{FileSubmissions, req.RunState.Submissions},
		{FileToolCalls, req.RunState.ToolCalls},
	}

	prefix := keyPrefix(req)

	entries := make([]FileEntry, 0, len(artifacts))
	for _, a := range artifacts {
		if err := validateRelativePath(a.path); err != nil {
			return BuildResult{}, err
		}
		body, err := canon.Marshal(a.value)
		if err != nil {
			return BuildResult{}, fmt.Errorf("runpack: canonicalize %s: %w", a.path, err)
		}
		if int64(len(body)) > maxBytes {
			return BuildResult{}, fmt.Errorf("runpack: artifact %s is %d bytes, exceeds max %d", a.path, len(body), maxBytes)
		}
		if err := sink.Put(ctx, prefix+a.path, body); err != nil {
			return BuildResult{}, fmt.Errorf("runpack: write %s: %w", a.path, err)
		}
		entries = append(entries, FileEntry{
			RelativePath: a.path,
			SizeBytes:    int64(len(body)),
			ContentHash:  canon.HashBytes(body),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })

	rootHash, err := computeRootHash(entries)
	if err != nil {
		return BuildResult{}, err
	}

	manifest := Manifest{
		ManifestVersion: ManifestVersion,
		RootHash:        rootHash,
		Files:           entries,
		GeneratedAt:     now().UTC().Format(time.RFC3339),
		SecurityContext: req.SecurityContext,
	}
	manifestBody, err := canon.Marshal(manifest)
	if err != nil {
		return BuildResult{}, fmt.Errorf("runpack: canonicalize manifest: %w", err)
	}
	if err := sink.Put(ctx, prefix+FileManifest, manifestBody); err != nil {
		return BuildResult{}, fmt.Errorf("runpack: write manifest: %w", err)
	}

	return BuildResult{RootHash: rootHash, KeyPrefix: prefix, Files: entries}, nil
}

// computeRootHash hashes the canonical JSON of [{path, content_hash}, …]
// sorted by path (§4.5.2); the manifest itself is excluded.
func computeRootHash(entries []FileEntry) (canon.Digest, error) {
	type pathHash struct {
		Path        string       `json:"path"`
		ContentHash canon.Digest `json:"content_hash"`
	}
	rows := make([]pathHash, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, pathHash{Path: e.RelativePath, ContentHash: e.ContentHash})
	}
	return canon.Hash(rows)
}

// keyPrefix derives the deterministic object-key/OCI-tag prefix
// (§4.5.3): caller-supplied keys are never accepted.
func keyPrefix(req BuildRequest) string {
	return fmt.Sprintf("tenant/%s/namespace/%s/scenario/%s/run/%s/%s/",
		req.TenantID, req.NamespaceID, req.ScenarioID, req.RunID, req.SpecHash.Value)
}
