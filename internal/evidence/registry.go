/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/decisiongate/decisiongate/internal/dgerr"
)

// Registry is the process-wide provider map. It is built during startup
// and frozen: after Freeze is called, Register returns an error. This
// mirrors §9's "provider registry... process-wide singleton created at
// startup and frozen; no registry mutation after startup."
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]Provider
	frozen   bool
}

// NewRegistry constructs an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Provider)}
}

// Register adds a provider handle under its contract's provider_id.
// Duplicate provider IDs fail closed per §4.3.1.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("evidence: registry is frozen, cannot register provider %q", p.Contract().ProviderID)
	}
	id := p.Contract().ProviderID
	if _, exists := r.handles[id]; exists {
		return fmt.Errorf("evidence: duplicate provider id %q", id)
	}
	r.handles[id] = p
	return nil
}

// Freeze permanently forbids further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get looks up a provider handle by id.
func (r *Registry) Get(providerID string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.handles[providerID]
	return p, ok
}

// List returns every registered provider's contract in no particular
// order (caller is responsible for sorting if a deterministic order
// matters; providers_list sorts explicitly).
func (r *Registry) List() []Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contract, 0, len(r.handles))
	for _, p := range r.handles {
		out = append(out, p.Contract())
	}
	return out
}

// Dispatch implements the query(EvidenceQuery, EvidenceContext) ->
// EvidenceResult contract (§4.3.2), reporting ProviderNotFound /
// CheckNotFound, and any Go error from the provider's Query as
// TransportError, as a StructuredError on Result rather than a Go error,
// since those are evidence-dispatch errors, not tool call failures.
func (r *Registry) Dispatch(ctx context.Context, providerID, checkID string, params map[string]any, dctx Context) Result {
	p, ok := r.Get(providerID)
	if !ok {
		return Result{Error: dgerr.NewStructured(dgerr.ProviderNotFound, fmt.Sprintf("provider %q not registered", providerID))}
	}
	contract := p.Contract()
	check, ok := contract.CheckByID(checkID)
	if !ok {
		return Result{Error: dgerr.NewStructured(dgerr.CheckNotFound, fmt.Sprintf("provider %q has no check %q", providerID, checkID))}
	}
	_ = check

	result, err := p.Query(ctx, checkID, params, dctx)
	if err != nil {
		return Result{Error: dgerr.NewStructured(dgerr.TransportError, err.Error())}
	}
	return result
}
