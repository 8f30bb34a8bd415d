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
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/dgerr"
)

// MCPTransportKind selects how an external provider is reached (§4.3.2:
// "a JSON-RPC client (stdio or HTTP)").
type MCPTransportKind string

const (
	MCPTransportStdio MCPTransportKind = "stdio"
	MCPTransportHTTP  MCPTransportKind = "http"
)

// MCPProviderConfig describes one external MCP provider binding.
type MCPProviderConfig struct {
	ProviderID  string
	Transport   MCPTransportKind
	Endpoint    string   // HTTP: URL. stdio: command path.
	Args        []string // stdio only
	Timeout     time.Duration
	MaxBody     int
	TrustPolicy TrustPolicy
	TrustedKeys canon.TrustedKeys // required when TrustPolicy == RequireSignature
}

// MCPProvider dispatches evidence queries to an external MCP server,
// mapping each provider_id.check_id onto a single MCP tool call named
// check_id, mirroring the "mcp.<server>.<tool>" bridging pattern used
// elsewhere for MCP tool discovery, but scoped to the evidence contract
// rather than a general tool registry.
type MCPProvider struct {
	cfg      MCPProviderConfig
	contract Contract

	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewMCPProvider connects to the configured server and validates its
// declared tools against contract (the capability contract is always
// supplied out of band, never trusted sight-unseen from the server).
func NewMCPProvider(ctx context.Context, cfg MCPProviderConfig, contract Contract) (*MCPProvider, error) {
	if contract.ProviderID != cfg.ProviderID {
		return nil, fmt.Errorf("evidence: contract provider_id %q does not match config %q", contract.ProviderID, cfg.ProviderID)
	}
	if cfg.TrustPolicy == TrustPolicyRequireSignature && len(cfg.TrustedKeys) == 0 {
		return nil, fmt.Errorf("evidence: provider %q requires signatures but no trusted keys configured", cfg.ProviderID)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "decisiongate", Version: "0.1.0"}, nil)

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case MCPTransportHTTP:
		transport = &mcpsdk.StreamableClientTransport{
			Endpoint:             cfg.Endpoint,
			HTTPClient:           &http.Client{Timeout: cfg.Timeout},
			DisableStandaloneSSE: true,
		}
	case MCPTransportStdio:
		transport = &mcpsdk.CommandTransport{Command: exec.Command(cfg.Endpoint, cfg.Args...)}
	default:
		return nil, fmt.Errorf("evidence: unknown mcp transport %q", cfg.Transport)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("evidence: connect provider %q: %w", cfg.ProviderID, err)
	}

	return &MCPProvider{cfg: cfg, contract: contract, client: client, session: session}, nil
}

func (p *MCPProvider) Contract() Contract { return p.contract }

// Query calls checkID as an MCP tool named checkID on the bound session,
// enforcing the per-provider timeout and max-body, then resolves the
// trust lane per the provider's TrustPolicy (§4.3.2's lane-population
// rule). A response's signature, if present, is checked against
// cfg.TrustedKeys before being accepted as Verified; the evidence hash is
// computed locally from the value. A response that is not a JSON envelope
// is treated as an unsigned raw value.
func (p *MCPProvider) Query(ctx context.Context, checkID string, params map[string]any, dctx Context) (Result, error) {
	if _, ok := p.contract.CheckByID(checkID); !ok {
		return Result{Error: dgerr.NewStructured(dgerr.CheckNotFound, fmt.Sprintf("provider %q has no check %q", p.cfg.ProviderID, checkID))}, nil
	}

	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.session.CallTool(callCtx, &mcpsdk.CallToolParams{Name: checkID, Arguments: params})
	if err != nil {
		if callCtx.Err() != nil {
			return Result{Error: dgerr.NewStructured(dgerr.EvidenceTimeout, err.Error())}, nil
		}
		return Result{Error: dgerr.NewStructured(dgerr.TransportError, err.Error())}, nil
	}
	if out.IsError {
		return Result{Error: dgerr.NewStructured(dgerr.ProtocolError, extractText(out))}, nil
	}

	raw := extractText(out)
	maxBody := p.cfg.MaxBody
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if len(raw) > maxBody {
		return Result{Error: dgerr.NewStructured(dgerr.ResponseTooLarge, fmt.Sprintf("response %d bytes exceeds max %d", len(raw), maxBody))}, nil
	}

	var payload mcpEvidencePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return p.resolveLane(mcpEvidencePayload{Value: raw})
	}

	return p.resolveLane(payload)
}

// mcpEvidencePayload is the envelope an external MCP evidence tool is
// expected to return: the raw value plus an optional signature the
// provider makes over the canonical JSON bytes of value.
type mcpEvidencePayload struct {
	Value     any             `json:"value"`
	Signature *canon.Signature `json:"signature,omitempty"`
}

func (p *MCPProvider) resolveLane(payload mcpEvidencePayload) (Result, error) {
	if payload.Signature != nil {
		digest, err := canon.Hash(payload.Value)
		if err != nil {
			return Result{Error: dgerr.NewStructured(dgerr.MalformedResponse, err.Error())}, nil
		}
		if err := canon.Verify(p.cfg.TrustedKeys, payload.Value, *payload.Signature); err != nil {
			return Result{Error: dgerr.NewStructured(dgerr.SignatureInvalidE, err.Error())}, nil
		}
		return Result{Value: payload.Value, Lane: "Verified", EvidenceHash: &digest, Signature: payload.Signature}, nil
	}

	switch p.cfg.TrustPolicy {
	case TrustPolicyRequireSignature:
		return Result{Error: dgerr.NewStructured(dgerr.MissingSignature, fmt.Sprintf("provider %q requires a signed response", p.cfg.ProviderID))}, nil
	default: // TrustPolicyAudit
		return Result{Value: payload.Value, Lane: "Verified"}, nil
	}
}

func extractText(result *mcpsdk.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// Close releases the underlying MCP session.
func (p *MCPProvider) Close() error {
	if p.session == nil {
		return nil
	}
	return p.session.Close()
}
