/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package builtin provides the four canonical built-in evidence
// providers named by §4.3.1 (time, env, json, http). Per spec these are
// "specified only by their contracts... implementation is external"; the
// implementations here are minimal, clearly-scoped reference
// implementations that give providers_list/provider_contract_get and the
// end-to-end tests (§8) something concrete to exercise, not a
// production-grade evidence source.
package builtin

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/decisiongate/decisiongate/internal/evidence"
)

//go:embed contracts/*.yaml
var contractFS embed.FS

// LoadContract reads and parses one bundled YAML capability contract
// fixture (§4.3.1: "contracts are loaded at startup and validated").
func LoadContract(name string) (evidence.Contract, error) {
	raw, err := contractFS.ReadFile("contracts/" + name + ".yaml")
	if err != nil {
		return evidence.Contract{}, fmt.Errorf("builtin: read contract %q: %w", name, err)
	}
	var c evidence.Contract
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return evidence.Contract{}, fmt.Errorf("builtin: parse contract %q: %w", name, err)
	}
	if c.ProviderID != name {
		return evidence.Contract{}, fmt.Errorf("builtin: contract file %q declares provider_id %q", name, c.ProviderID)
	}
	return c, nil
}

// RegisterAll loads and registers the four canonical built-ins against
// reg, failing closed on any contract parse error or duplicate id.
func RegisterAll(reg *evidence.Registry) error {
	providers := []evidence.Provider{
		&TimeProvider{},
		&EnvProvider{},
		&JSONProvider{},
		&HTTPProvider{},
	}
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
