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
	"strings"

	"github.com/decisiongate/decisiongate/internal/evidence"
)

// JSONProvider exposes a single "path" check that walks a dotted path
// (e.g. "a.b.c") through params.document, a fixed in-request JSON value —
// useful for prechecking asserted payloads and for tests.
type JSONProvider struct{}

func (p *JSONProvider) Contract() evidence.Contract {
	c, err := LoadContract("json")
	if err != nil {
		panic(err)
	}
	return c
}

func (p *JSONProvider) Query(ctx context.Context, checkID string, params map[string]any, dctx evidence.Context) (evidence.Result, error) {
	if checkID != "path" {
		return evidence.Result{}, fmt.Errorf("builtin/json: unknown check %q", checkID)
	}
	doc, _ := params["document"].(map[string]any)
	path, _ := params["path"].(string)
	if path == "" {
		return evidence.Result{}, fmt.Errorf("builtin/json: params.path is required")
	}
	v := walk(doc, strings.Split(path, "."))
	return evidence.Result{Value: v, Lane: "Verified"}, nil
}

func walk(doc map[string]any, parts []string) any {
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}
