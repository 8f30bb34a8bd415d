/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package runpack builds and verifies the tamper-evident audit bundle
// (§3.6, §4.5): a manifest plus a fixed set of canonical-JSON artifact
// files, sunk to a filesystem or OCI registry (or any caller-supplied
// Sink; no object-store sink ships), and checkable offline without any
// provider access.
package runpack

import (
	"context"
	"fmt"

	"github.com/decisiongate/decisiongate/internal/canon"
)

// MaxArtifactBytes is the default per-artifact size cap (§4.5.3 step 3).
const MaxArtifactBytes = 8 * 1024 * 1024

// MaxRelativePathComponentBytes and MaxRelativePathBytes bound a
// runpack file's relative path (§4.5.3 step 4).
const (
	MaxRelativePathComponentBytes = 255
	MaxRelativePathBytes          = 4096
)

// ManifestVersion is the only manifest_version this build understands.
const ManifestVersion = "v1"

// Fixed artifact filenames (§3.6).
const (
	FileScenarioSpec    = "artifacts/scenario_spec.json"
	FileTriggers        = "triggers.json"
	FileGateEvals       = "gate_evals.json"
	FileDecisions       = "decisions.json"
	FilePackets         = "packets.json"
	FileSubmissions     = "submissions.json"
	FileToolCalls       = "tool_calls.json"
	FileVerifierReport  = "verifier_report.json"
	FileManifest        = "manifest.json"
)

// FileEntry is one row of the manifest (§4.5.2).
type FileEntry struct {
	RelativePath string       `json:"relative_path"`
	SizeBytes    int64        `json:"size_bytes"`
	ContentHash  canon.Digest `json:"content_hash"`
}

// SecurityContext is carried in the manifest for auditor context; it
// never gates build or verify, it only documents the conditions the
// runpack was produced under.
type SecurityContext struct {
	DevPermissive      bool   `json:"dev_permissive"`
	NamespaceAuthority string `json:"namespace_authority"`
}

// Manifest is the root-hash-bearing index file (§3.6, §4.5.2). It is
// never included in its own root hash.
type Manifest struct {
	ManifestVersion string           `json:"manifest_version"`
	RootHash        canon.Digest     `json:"root_hash"`
	Files           []FileEntry      `json:"files"`
	GeneratedAt     string           `json:"generated_at"`
	SecurityContext SecurityContext  `json:"security_context"`
}

// Sink is where a runpack's bytes land. Concrete sinks never expose
// object-key construction to the caller: keys are always derived from
// the BuildRequest coordinates (§4.5.3), never caller-supplied.
type Sink interface {
	// Put writes the content addressed at key. Put must be safe to call
	// concurrently for distinct keys.
	Put(ctx context.Context, key string, content []byte) error
	// Get reads back previously-written content, used by Verify.
	Get(ctx context.Context, key string) ([]byte, error)
	// List enumerates keys under prefix. Verify does not call it; it
	// discovers a runpack's files from the manifest read through Get.
	List(ctx context.Context, prefix string) ([]string, error)
}

func validateRelativePath(p string) error {
	if len(p) == 0 {
		return fmt.Errorf("runpack: empty relative path")
	}
	if len(p) > MaxRelativePathBytes {
		return fmt.Errorf("runpack: relative path %q exceeds %d bytes", p, MaxRelativePathBytes)
	}
	if p[0] == '/' {
		return fmt.Errorf("runpack: relative path %q must not be absolute", p)
	}
	comp := ""
	for _, r := range p + "/" {
		if r == '/' {
			if comp == ".." {
				return fmt.Errorf("runpack: relative path %q contains a .. component", p)
			}
			if len(comp) > MaxRelativePathComponentBytes {
				return fmt.Errorf("runpack: relative path %q has a component longer than %d bytes", p, MaxRelativePathComponentBytes)
			}
			comp = ""
			continue
		}
		comp += string(r)
	}
	return nil
}
