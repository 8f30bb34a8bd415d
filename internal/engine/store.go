/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine

import (
	"context"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// Store is the store-agnostic persistence interface the engine depends
// on (§4.4.6: "the interface is store-agnostic"). Concrete backends
// (sqlitestore, pgstore, mysqlstore, crdstore) all implement this same
// surface so the engine never branches on backend kind.
type Store interface {
	// PutSpec registers an immutable spec under its own hash; writing the
	// same hash twice is a no-op (specs are content-addressed).
	PutSpec(ctx context.Context, hash canon.Digest, s *spec.ScenarioSpec) error
	GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error)

	CreateRun(ctx context.Context, rs *runstate.RunState) error
	GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error)
	// PutRun persists a run state snapshot. Implementations must reject a
	// write whose Version does not strictly increase over the currently
	// stored version, so a stale working copy can never clobber a newer
	// one committed by a concurrent (different-run) writer sharing a
	// backend connection pool.
	PutRun(ctx context.Context, rs *runstate.RunState) error

	// LockRun acquires the single-logical-writer lock for runID and
	// returns a function that releases it. Distinct run IDs never
	// contend with each other.
	LockRun(ctx context.Context, runID string) (unlock func(), err error)

	// ListRuns enumerates run IDs for a given scenario, used by
	// scenarios_list.
	ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error)

	Close() error
}
