/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Namespace authority resolution: pipeline step 3 (§4.6.3). Grounded on
// internal/controlplane/auth/federation_scope.go's scope-grant
// resolution shape, narrowed from that file's tenant/org/scope wildcard
// matching to a single namespace_id authority check, since Decision
// Gate's namespace boundary is the unit federation_scope.go calls a
// "scope".
package toolsurface

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NamespaceAuthority answers whether namespaceID may be used by the
// current call. It is the sole collaborator pipeline step 3 consults.
type NamespaceAuthority interface {
	Resolve(ctx context.Context, namespaceID string) (bool, error)
}

// KnownNamespaceLookup reports whether namespaceID has at least one
// registered scenario spec. Supplied by the engine's Store.
type KnownNamespaceLookup func(ctx context.Context, namespaceID string) (bool, error)

// NoneAuthority is NamespaceAuthorityKind "none": any namespace with at
// least one registered scenario is accepted, with no external check.
type NoneAuthority struct {
	Lookup KnownNamespaceLookup
}

func (n NoneAuthority) Resolve(ctx context.Context, namespaceID string) (bool, error) {
	if namespaceID == "" {
		return false, fmt.Errorf("toolsurface: empty namespace_id")
	}
	if n.Lookup == nil {
		return true, nil
	}
	return n.Lookup(ctx, namespaceID)
}

// CatalogClient looks namespaceID up against an external namespace
// catalog (e.g. a tenancy service). Decision Gate ships no concrete
// implementation; operators supply one matching their catalog's API.
type CatalogClient interface {
	Lookup(ctx context.Context, namespaceID string) (bool, error)
}

type catalogEntry struct {
	ok        bool
	expiresAt time.Time
}

// ExternalCatalogAuthority resolves namespace_id against a
// CatalogClient, caching results for CacheTTL to bound external calls
// per the common case of one run issuing many triggers against the
// same namespace.
type ExternalCatalogAuthority struct {
	Client   CatalogClient
	CacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]catalogEntry
}

func NewExternalCatalogAuthority(client CatalogClient, ttl time.Duration) *ExternalCatalogAuthority {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ExternalCatalogAuthority{Client: client, CacheTTL: ttl, cache: make(map[string]catalogEntry)}
}

func (a *ExternalCatalogAuthority) Resolve(ctx context.Context, namespaceID string) (bool, error) {
	a.mu.Lock()
	entry, ok := a.cache[namespaceID]
	a.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.ok, nil
	}

	result, err := a.Client.Lookup(ctx, namespaceID)
	if err != nil {
		return false, fmt.Errorf("toolsurface: namespace catalog lookup for %q: %w", namespaceID, err)
	}

	a.mu.Lock()
	a.cache[namespaceID] = catalogEntry{ok: result, expiresAt: time.Now().Add(a.CacheTTL)}
	a.mu.Unlock()
	return result, nil
}

// namespaceCarrier is implemented by any tool input struct whose
// request is scoped to a single namespace_id, so the generic
// dispatcher wrapper can run pipeline step 3 without a per-tool switch.
type namespaceCarrier interface {
	GetNamespaceID() string
}
