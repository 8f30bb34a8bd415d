/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package toolsurface implements C6: the JSON-RPC/MCP tool surface over
// the evaluation engine, evidence registry, schema registry, and
// runpack builder — the closed tool set of §4.6.2, the fail-closed
// authorization pipeline of §4.6.3, and the evidence disclosure policy
// of §4.6.4.
package toolsurface

import (
	"time"

	"github.com/decisiongate/decisiongate/internal/spec"
)

// TransportKind is one of the three wire transports a Server can be
// mounted on (§4.6.1). All three share one dispatcher.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
	TransportSSE   TransportKind = "sse"
)

// AuthMode is one of the three transport-auth modes checked at pipeline
// step 1 (§4.6.3).
type AuthMode string

const (
	AuthLocalOnly    AuthMode = "local_only"
	AuthBearerToken  AuthMode = "bearer_token"
	AuthMtls         AuthMode = "mtls"
)

// NamespaceAuthorityKind selects how namespace_id is authorized at
// pipeline step 3 (§4.6.3).
type NamespaceAuthorityKind string

const (
	NamespaceAuthorityNone     NamespaceAuthorityKind = "none"
	NamespaceAuthorityExternal NamespaceAuthorityKind = "external_catalog"
)

// AuthConfig configures pipeline step 1.
type AuthConfig struct {
	Mode AuthMode

	// BearerHashes maps a principal name to its bcrypt-hashed bearer
	// secret (§4.6.3 step 1). Populated by an external collaborator;
	// CoreConfig never carries plaintext secrets.
	BearerHashes map[string]string

	// MtlsAllowedSubjects is the closed set of subject header values
	// accepted under AuthMtls.
	MtlsAllowedSubjects []string

	// AllowLocalOnlyOnNonLoopback permits LocalOnly on a non-loopback
	// bind; false (the default) rejects that configuration outright
	// (§4.6.3 step 1: "LocalOnly is rejected on non-loopback binds
	// unless explicitly permitted").
	AllowLocalOnlyOnNonLoopback bool
}

// TrustConfig carries the global minimum trust lane (§4.3.3).
type TrustConfig struct {
	MinLane spec.TrustLane
}

// EvidenceConfig governs the disclosure policy of §4.6.4.
type EvidenceConfig struct {
	AllowRawValues       bool
	RequireProviderOptIn bool
}

// SchemaRegistryConfig configures pipeline step 4 and the registry's
// own storage limits.
type SchemaRegistryConfig struct {
	Backend        string
	MaxEntries     int
	MaxEntryBytes  int64
	RequireSigning bool
}

// RunpackStorageConfig names which Sink backend runpack_export targets.
type RunpackStorageConfig struct {
	Backend string // "fs" | "oci"; the daemon rejects any other backend, "s3" included
	Key     string // sink-specific coordinates (dir or registry/path)
}

// NamespaceConfig configures pipeline step 3.
type NamespaceConfig struct {
	Authority  NamespaceAuthorityKind
	CatalogURL string
	CacheTTL   time.Duration
}

// RateLimitConfig bounds pipeline step 5.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// CoreConfig is the validated configuration boundary the tool surface
// consumes (§6.5). It is never parsed from flags/env/files by the core
// itself; cmd/decisiongated/main.go constructs one by hand.
type CoreConfig struct {
	Transport TransportKind
	Bind      string

	Auth           AuthConfig
	Trust          TrustConfig
	Evidence       EvidenceConfig
	SchemaRegistry SchemaRegistryConfig
	RunpackStorage RunpackStorageConfig
	Namespace      NamespaceConfig
	RateLimit      RateLimitConfig

	// MaxInflight bounds pipeline step 6's global semaphore.
	MaxInflight int
	// ToolDeadline bounds every tool call's context (§5).
	ToolDeadline time.Duration
}

// DefaultCoreConfig returns safe defaults for a runnable demo
// deployment, mirroring cmd/control-plane/main.go's intentionally
// minimal loadConfig().
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		Transport: TransportHTTP,
		Bind:      "127.0.0.1:8085",
		Auth: AuthConfig{
			Mode: AuthLocalOnly,
		},
		Trust: TrustConfig{MinLane: spec.Asserted},
		Evidence: EvidenceConfig{
			AllowRawValues:       false,
			RequireProviderOptIn: true,
		},
		SchemaRegistry: SchemaRegistryConfig{
			Backend:       "sqlite",
			MaxEntries:    1000,
			MaxEntryBytes: 1 << 20,
		},
		RunpackStorage: RunpackStorageConfig{Backend: "fs", Key: "./runpacks"},
		Namespace:      NamespaceConfig{Authority: NamespaceAuthorityNone},
		RateLimit:      RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute},
		MaxInflight:    64,
		ToolDeadline:   30 * time.Second,
	}
}
