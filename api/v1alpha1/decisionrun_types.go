/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DecisionRunSpec identifies which immutable scenario a run belongs to.
// It never changes after creation.
type DecisionRunSpec struct {
	// scenarioId is the scenario this run evaluates.
	ScenarioID string `json:"scenarioId"`

	// namespaceId is the decision-gate namespace authority this run was
	// admitted under.
	NamespaceID string `json:"namespaceId"`

	// tenantId scopes the run within namespaceId.
	// +optional
	TenantID string `json:"tenantId,omitempty"`

	// specHash pins the exact content-addressed scenario spec version.
	SpecHash string `json:"specHash"`
}

// DecisionRunStatus mirrors runstate.RunState. The append-only
// trigger/gate-eval/decision/packet/submission/tool-call logs are
// carried verbatim as a canonical JSON blob rather than individually
// typed subresources — a run's log vectors grow unboundedly and have
// no natural CRD-shaped schema, whereas the summary fields below are
// kept structured so kubectl printcolumns and watches stay useful.
type DecisionRunStatus struct {
	// status is the run's lifecycle status (Active, Completed, Failed).
	// +optional
	Status string `json:"status,omitempty"`

	// currentStageId is the stage the run is currently parked at.
	// +optional
	CurrentStageID string `json:"currentStageId,omitempty"`

	// stageEnteredAt is a string field for a runstate.Timestamp-shaped
	// {kind, value} pair serialized to JSON. The crdstore backend does
	// not populate it; the stage entry time is carried in runStateJson.
	// +optional
	StageEnteredAt string `json:"stageEnteredAt,omitempty"`

	// version is the optimistic-concurrency counter; a write is only
	// accepted if its version strictly increases over this value.
	// +optional
	Version int64 `json:"version,omitempty"`

	// runStateJSON is the canonical JSON encoding of the full
	// runstate.RunState, the source of truth the engine reads back.
	// +optional
	RunStateJSON string `json:"runStateJson,omitempty"`

	// lastTransitionTime is the last time status was written.
	// +optional
	LastTransitionTime metav1.Time `json:"lastTransitionTime,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=drun
// +kubebuilder:printcolumn:name="Scenario",type="string",JSONPath=".spec.scenarioId"
// +kubebuilder:printcolumn:name="Status",type="string",JSONPath=".status.status"
// +kubebuilder:printcolumn:name="Stage",type="string",JSONPath=".status.currentStageId"
// +kubebuilder:printcolumn:name="Version",type="integer",JSONPath=".status.version"

// DecisionRun is the Schema for the decisionruns API: one run of one
// scenario, persisted as a Kubernetes object when the crdstore backend
// is selected.
type DecisionRun struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DecisionRunSpec   `json:"spec,omitempty"`
	Status DecisionRunStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// DecisionRunList contains a list of DecisionRun.
type DecisionRunList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DecisionRun `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DecisionRun{}, &DecisionRunList{})
}
