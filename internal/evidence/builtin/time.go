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

	"github.com/decisiongate/decisiongate/internal/evidence"
)

// TimeProvider exposes a single "now" check whose value is the trigger's
// own asserted time — it never reads the wall clock, so tick-driven
// evaluation stays reproducible from caller-supplied time (§5).
type TimeProvider struct{}

func (p *TimeProvider) Contract() evidence.Contract {
	c, err := LoadContract("time")
	if err != nil {
		panic(err) // bundled fixture, must always parse
	}
	return c
}

func (p *TimeProvider) Query(ctx context.Context, checkID string, params map[string]any, dctx evidence.Context) (evidence.Result, error) {
	if checkID != "now" {
		return evidence.Result{}, fmt.Errorf("builtin/time: unknown check %q", checkID)
	}
	if t, ok := params["time"]; ok {
		return evidence.Result{Value: t, Lane: "Verified"}, nil
	}
	return evidence.Result{Value: nil, Lane: "Verified"}, nil
}
