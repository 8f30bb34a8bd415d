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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	gatev1alpha1 "github.com/decisiongate/decisiongate/api/v1alpha1"
	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// CRDStore is the optional Kubernetes-native Store backend: specs are
// DecisionScenario objects named after their content hash, and runs are
// DecisionRun objects whose status carries the canonical RunState
// blob, modeled on the AgentState manager's getOrCreate/updateStatus
// pattern.
type CRDStore struct {
	client    client.Client
	namespace string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewCRDStore wraps an already-configured controller-runtime client,
// scoping all objects to namespace.
func NewCRDStore(c client.Client, namespace string) *CRDStore {
	return &CRDStore{client: c, namespace: namespace, locks: make(map[string]*sync.Mutex)}
}

func (s *CRDStore) PutSpec(ctx context.Context, hash canon.Digest, sp *spec.ScenarioSpec) error {
	body, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("engine: marshal spec: %w", err)
	}
	obj := &gatev1alpha1.DecisionScenario{
		ObjectMeta: metav1.ObjectMeta{
			Name:      specObjectName(hash),
			Namespace: s.namespace,
		},
		Spec: gatev1alpha1.DecisionScenarioSpec{
			SpecHash:     hash.String(),
			ScenarioJSON: string(body),
		},
	}
	if err := s.client.Create(ctx, obj); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("engine: create DecisionScenario: %w", err)
	}
	return nil
}

func (s *CRDStore) GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error) {
	obj := &gatev1alpha1.DecisionScenario{}
	err := s.client.Get(ctx, client.ObjectKey{Name: specObjectName(hash), Namespace: s.namespace}, obj)
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get DecisionScenario: %w", err)
	}
	var sp spec.ScenarioSpec
	if err := json.Unmarshal([]byte(obj.Spec.ScenarioJSON), &sp); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal spec: %w", err)
	}
	return &sp, true, nil
}

func (s *CRDStore) CreateRun(ctx context.Context, rs *runstate.RunState) error {
	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	obj := &gatev1alpha1.DecisionRun{
		ObjectMeta: metav1.ObjectMeta{
			Name:      runObjectName(rs.RunID),
			Namespace: s.namespace,
			Labels: map[string]string{
				"decisiongate.io/scenario-id": string(rs.ScenarioID),
			},
		},
		Spec: gatev1alpha1.DecisionRunSpec{
			ScenarioID:  string(rs.ScenarioID),
			NamespaceID: string(rs.NamespaceID),
			TenantID:    rs.TenantID,
			SpecHash:    rs.SpecHash,
		},
	}
	if err := s.client.Create(ctx, obj); err != nil {
		return fmt.Errorf("engine: create DecisionRun %q: %w", rs.RunID, err)
	}

	obj.Status = gatev1alpha1.DecisionRunStatus{
		Status:         string(rs.Status),
		CurrentStageID: string(rs.CurrentStageID),
		Version:        int64(rs.Version),
		RunStateJSON:   string(body),
	}
	if err := s.client.Status().Update(ctx, obj); err != nil {
		return fmt.Errorf("engine: set initial DecisionRun %q status: %w", rs.RunID, err)
	}
	return nil
}

func (s *CRDStore) GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error) {
	obj := &gatev1alpha1.DecisionRun{}
	err := s.client.Get(ctx, client.ObjectKey{Name: runObjectName(runID), Namespace: s.namespace}, obj)
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get DecisionRun: %w", err)
	}
	if obj.Status.RunStateJSON == "" {
		return nil, false, nil
	}
	var rs runstate.RunState
	if err := json.Unmarshal([]byte(obj.Status.RunStateJSON), &rs); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal run: %w", err)
	}
	return &rs, true, nil
}

// PutRun re-reads the object immediately before updating status so the
// version guard observes the latest resourceVersion; a conflicting
// concurrent writer's update either lost the race for resourceVersion
// (surfaced by the API server as a conflict) or already advanced
// Version past rs.Version (rejected here explicitly).
func (s *CRDStore) PutRun(ctx context.Context, rs *runstate.RunState) error {
	obj := &gatev1alpha1.DecisionRun{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: runObjectName(rs.RunID), Namespace: s.namespace}, obj); err != nil {
		return fmt.Errorf("engine: get DecisionRun %q for update: %w", rs.RunID, err)
	}
	if obj.Status.Version >= int64(rs.Version) {
		return fmt.Errorf("engine: put run %q: stale version %d (stored version is %d)", rs.RunID, rs.Version, obj.Status.Version)
	}

	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	obj.Status.Status = string(rs.Status)
	obj.Status.CurrentStageID = string(rs.CurrentStageID)
	obj.Status.Version = int64(rs.Version)
	obj.Status.RunStateJSON = string(body)
	obj.Status.LastTransitionTime = metav1.NewTime(time.Now())

	if err := s.client.Status().Update(ctx, obj); err != nil {
		return fmt.Errorf("engine: update DecisionRun %q status: %w", rs.RunID, err)
	}
	return nil
}

// LockRun serializes writers for one run id within this process; the
// CRD backend relies on a single active controller/engine instance per
// namespace (leader election upstream), matching the single-writer
// assumption the other backends also make.
func (s *CRDStore) LockRun(ctx context.Context, runID string) (func(), error) {
	s.locksMu.Lock()
	l, ok := s.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

func (s *CRDStore) ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error) {
	list := &gatev1alpha1.DecisionRunList{}
	if err := s.client.List(ctx, list,
		client.InNamespace(s.namespace),
		client.MatchingLabels{"decisiongate.io/scenario-id": string(scenarioID)},
	); err != nil {
		return nil, fmt.Errorf("engine: list DecisionRuns: %w", err)
	}
	ids := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, runIDFromObjectName(item.Name))
	}
	return ids, nil
}

func (s *CRDStore) Close() error { return nil }

func specObjectName(hash canon.Digest) string {
	return "spec-" + hash.Value
}

const runObjectPrefix = "run-"

func runObjectName(runID string) string {
	return runObjectPrefix + runID
}

func runIDFromObjectName(name string) string {
	return strings.TrimPrefix(name, runObjectPrefix)
}
