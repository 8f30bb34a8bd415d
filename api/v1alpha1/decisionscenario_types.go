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

// DecisionScenarioSpec holds one content-addressed, immutable scenario
// definition. The object name is always the spec hash, so creating the
// same spec twice is a no-op at the Kubernetes API level (AlreadyExists
// is treated as success by the crdstore).
type DecisionScenarioSpec struct {
	// specHash is the sha-256 content hash this object is named after.
	SpecHash string `json:"specHash"`

	// scenarioJSON is the canonical JSON encoding of the scenario spec.
	ScenarioJSON string `json:"scenarioJson"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:shortName=dscn

// DecisionScenario is the Schema for the decisionscenarios API.
type DecisionScenario struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec DecisionScenarioSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// DecisionScenarioList contains a list of DecisionScenario.
type DecisionScenarioList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DecisionScenario `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DecisionScenario{}, &DecisionScenarioList{})
}
