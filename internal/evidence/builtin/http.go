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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/decisiongate/decisiongate/internal/evidence"
)

// HTTPProvider exposes a single "get" check performing a GET request
// against params.url and returning the decoded JSON body (or the raw
// text, if the response isn't JSON) as the evidence value. SSRF defenses
// (§4.3.2) run before any connection is attempted.
type HTTPProvider struct {
	Policy evidence.HostPolicy
	Client *http.Client
}

func (p *HTTPProvider) Contract() evidence.Contract {
	c, err := LoadContract("http")
	if err != nil {
		panic(err)
	}
	return c
}

func (p *HTTPProvider) Query(ctx context.Context, checkID string, params map[string]any, dctx evidence.Context) (evidence.Result, error) {
	if checkID != "get" {
		return evidence.Result{}, fmt.Errorf("builtin/http: unknown check %q", checkID)
	}
	raw, _ := params["url"].(string)
	if raw == "" {
		return evidence.Result{}, fmt.Errorf("builtin/http: params.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return evidence.Result{}, fmt.Errorf("builtin/http: invalid url: %w", err)
	}

	policy := p.Policy
	if policy.Resolver == nil {
		policy = evidence.DefaultHostPolicy()
	}
	if err := policy.CheckHost(ctx, u.Hostname()); err != nil {
		return evidence.Result{}, err
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return evidence.Result{}, fmt.Errorf("builtin/http: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return evidence.Result{}, fmt.Errorf("builtin/http: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return evidence.Result{}, fmt.Errorf("builtin/http: read body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		decoded = string(body)
	}
	return evidence.Result{Value: decoded, Lane: "Verified"}, nil
}
