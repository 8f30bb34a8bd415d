/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package builtin

import (
	"context"
	"fmt"
	"os"

	"github.com/decisiongate/decisiongate/internal/evidence"
)

// EnvProvider exposes a single "lookup" check reading a process
// environment variable named by params.name.
type EnvProvider struct{}

func (p *EnvProvider) Contract() evidence.Contract {
	c, err := LoadContract("env")
	if err != nil {
		panic(err)
	}
	return c
}

func (p *EnvProvider) Query(ctx context.Context, checkID string, params map[string]any, dctx evidence.Context) (evidence.Result, error) {
	if checkID != "lookup" {
		return evidence.Result{}, fmt.Errorf("builtin/env: unknown check %q", checkID)
	}
	name, _ := params["name"].(string)
	if name == "" {
		return evidence.Result{}, fmt.Errorf("builtin/env: params.name is required")
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		return evidence.Result{Value: nil, Lane: "Verified"}, nil
	}
	return evidence.Result{Value: val, Lane: "Verified"}, nil
}
