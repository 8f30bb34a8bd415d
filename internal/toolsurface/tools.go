/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/metrics"
	"github.com/decisiongate/decisiongate/internal/runpack"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/schemaregistry"
	"github.com/decisiongate/decisiongate/internal/spec"
	"github.com/decisiongate/decisiongate/internal/telemetry"
)

// jsonToolResult and textToolResult mirror
// internal/controlplane/mcpserver/tools.go's own pair: every handler's
// output goes out as JSON text content, never the typed Out slot, so a
// caller on any transport decodes the same way.
func jsonToolResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return textToolResult(string(data)), nil, nil
}

func textToolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ---- input structs -------------------------------------------------

type scenarioDefineInput struct {
	Scenario spec.ScenarioSpec `json:"scenario" jsonschema:"the scenario specification to register"`
}

func (i scenarioDefineInput) GetNamespaceID() string { return i.Scenario.NamespaceID }

type scenarioStartInput struct {
	RunID       string `json:"run_id" jsonschema:"caller-assigned run identifier"`
	SpecHash    string `json:"spec_hash" jsonschema:"hash returned by scenario_define"`
	NamespaceID string `json:"namespace_id" jsonschema:"namespace the run belongs to"`
	TenantID    string `json:"tenant_id" jsonschema:"tenant the run belongs to"`
	Now         runstate.Timestamp `json:"now" jsonschema:"the run's starting timestamp"`
}

func (i scenarioStartInput) GetNamespaceID() string { return i.NamespaceID }

type scenarioStatusInput struct {
	RunID string `json:"run_id" jsonschema:"run identifier"`
}

type scenarioNextInput struct {
	RunID string `json:"run_id" jsonschema:"run identifier"`
}

type scenarioSubmitInput struct {
	RunID         string         `json:"run_id" jsonschema:"run identifier"`
	CorrelationID string         `json:"correlation_id" jsonschema:"idempotency correlation id for this submission"`
	Payload       map[string]any `json:"payload" jsonschema:"asserted-lane evidence payload"`
	Now           runstate.Timestamp `json:"now" jsonschema:"submission timestamp"`
}

type scenarioTriggerInput struct {
	RunID         string             `json:"run_id" jsonschema:"run identifier"`
	Kind          runstate.TriggerKind `json:"kind" jsonschema:"Evaluate, Tick, or Submit"`
	CorrelationID string             `json:"correlation_id" jsonschema:"idempotency correlation id"`
	Now           runstate.Timestamp `json:"now" jsonschema:"trigger timestamp"`
	Payload       map[string]any     `json:"payload,omitempty" jsonschema:"optional payload (Submit triggers)"`
}

type scenariosListInput struct {
	ScenarioID spec.ScenarioID `json:"scenario_id" jsonschema:"scenario identifier to list runs for"`
}

type evidenceQueryInput struct {
	ProviderID     string         `json:"provider_id" jsonschema:"provider to dispatch to"`
	CheckID        string         `json:"check_id" jsonschema:"named check on the provider's contract"`
	Params         map[string]any `json:"params,omitempty" jsonschema:"check parameters"`
	RunID          string         `json:"run_id,omitempty" jsonschema:"optional run id for dispatch context"`
	ScenarioID     string         `json:"scenario_id,omitempty" jsonschema:"optional scenario id for dispatch context"`
	NamespaceID    string         `json:"namespace_id,omitempty" jsonschema:"optional namespace id for dispatch context"`
	TenantID       string         `json:"tenant_id,omitempty" jsonschema:"optional tenant id for dispatch context"`
	AllowRawValues bool           `json:"allow_raw_values,omitempty" jsonschema:"caller opt-in to receive the raw evidence value (§4.6.4)"`
}

func (i evidenceQueryInput) GetNamespaceID() string { return i.NamespaceID }

type providersListInput struct{}

type providerContractGetInput struct {
	ProviderID string `json:"provider_id" jsonschema:"provider identifier"`
}

type providerSchemaGetInput struct {
	ProviderID string `json:"provider_id" jsonschema:"provider identifier"`
	CheckID    string `json:"check_id" jsonschema:"check identifier"`
}

type schemasRegisterInput struct {
	SchemaID           string          `json:"schema_id" jsonschema:"schema name; versions are monotonic per id"`
	TenantID           string          `json:"tenant_id" jsonschema:"owning tenant"`
	NamespaceID        string          `json:"namespace_id" jsonschema:"owning namespace"`
	JSONSchema         json.RawMessage `json:"json_schema" jsonschema:"the JSON Schema (2020-12) document"`
	AllowedComparators []string        `json:"allowed_comparators,omitempty" jsonschema:"comparators this schema's fields may be checked with"`
	SigningKeyID       string          `json:"signing_key_id,omitempty" jsonschema:"key id used to sign this schema, if any"`
	Signature          *canon.Signature `json:"signature,omitempty" jsonschema:"Ed25519 signature over the canonicalized schema"`
}

func (i schemasRegisterInput) GetNamespaceID() string { return i.NamespaceID }

type schemasListInput struct {
	TenantID    string `json:"tenant_id" jsonschema:"tenant to list schemas for"`
	NamespaceID string `json:"namespace_id" jsonschema:"namespace to list schemas for"`
}

func (i schemasListInput) GetNamespaceID() string { return i.NamespaceID }

type schemasGetInput struct {
	SchemaRef string `json:"schema_ref" jsonschema:"\"schema_id\" or \"schema_id@version\""`
}

type runpackExportInput struct {
	RunID           string             `json:"run_id" jsonschema:"run to export"`
	TenantID        string             `json:"tenant_id" jsonschema:"owning tenant"`
	NamespaceID     string             `json:"namespace_id" jsonschema:"owning namespace"`
	ScenarioID      spec.ScenarioID    `json:"scenario_id" jsonschema:"scenario id"`
	SpecHash        string             `json:"spec_hash" jsonschema:"hash of the scenario spec the run was started under"`
	SecurityContext runpack.SecurityContext `json:"security_context,omitempty" jsonschema:"auditor-facing context recorded in the manifest"`
}

func (i runpackExportInput) GetNamespaceID() string { return i.NamespaceID }

type runpackVerifyInput struct {
	KeyPrefix         string `json:"key_prefix" jsonschema:"key prefix returned by runpack_export"`
	ExpectedRootHash  string `json:"expected_root_hash,omitempty" jsonschema:"optional caller-pinned root hash"`
	RequireSignatures bool   `json:"require_signatures,omitempty" jsonschema:"fail verification if no condition outcome carries a signature or any signature is invalid"`
}

type precheckInput struct {
	ScenarioID spec.ScenarioID    `json:"scenario_id" jsonschema:"scenario to evaluate against"`
	SpecHash   string             `json:"spec_hash" jsonschema:"hash of the scenario spec"`
	StageID    spec.StageID       `json:"stage_id" jsonschema:"stage whose gates to predict"`
	Payload    map[string]any     `json:"payload" jsonschema:"candidate asserted-lane payload"`
	SchemaRef  string             `json:"schema_ref,omitempty" jsonschema:"optional schema to validate payload against first"`
}

// ---- registration ----------------------------------------------------

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_define",
		Description: "Register an immutable scenario specification and return its content hash",
	}, s.handleScenarioDefine)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_start",
		Description: "Start a new run of a previously defined scenario",
	}, s.handleScenarioStart)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_status",
		Description: "Get the hash-only safe summary of a run's current state",
	}, s.handleScenarioStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_next",
		Description: "Re-evaluate a run's current stage without a new trigger event",
	}, s.handleScenarioNext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_submit",
		Description: "Submit an asserted-lane payload for a run and trigger evaluation",
	}, s.handleScenarioSubmit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenario_trigger",
		Description: "Fire an idempotent trigger event (Evaluate, Tick, or Submit) against a run",
	}, s.handleScenarioTrigger)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scenarios_list",
		Description: "List run ids for a given scenario id",
	}, s.handleScenariosList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "evidence_query",
		Description: "Dispatch a one-off evidence query to a registered provider",
	}, s.handleEvidenceQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "providers_list",
		Description: "List every registered evidence provider's contract",
	}, s.handleProvidersList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "provider_contract_get",
		Description: "Get one provider's full capability contract",
	}, s.handleProviderContractGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "provider_schema_get",
		Description: "Get one provider check's params/result schema",
	}, s.handleProviderSchemaGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "schemas_register",
		Description: "Register a new monotonic version of a named JSON Schema",
	}, s.handleSchemasRegister)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "schemas_list",
		Description: "List the latest version of every schema registered for a tenant/namespace",
	}, s.handleSchemasList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "schemas_get",
		Description: "Get one registered schema by id or id@version",
	}, s.handleSchemasGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "runpack_export",
		Description: "Build a tamper-evident runpack bundle for a completed or in-progress run",
	}, s.handleRunpackExport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "runpack_verify",
		Description: "Offline-verify a previously exported runpack's content and root hash",
	}, s.handleRunpackVerify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "precheck",
		Description: "Predict a stage's gate outcomes for a candidate payload without persisting anything",
	}, s.handlePrecheck)
}

// ---- handlers ----------------------------------------------------

func (s *Server) handleScenarioDefine(ctx context.Context, _ *mcp.CallToolRequest, input scenarioDefineInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_define", PermScenarioWrite, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	hash, err := s.engine.Define(ctx, &input.Scenario)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(map[string]any{"spec_hash": hash.Value})
}

func (s *Server) handleScenarioStart(ctx context.Context, _ *mcp.CallToolRequest, input scenarioStartInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_start", PermScenarioWrite, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	rs, err := s.engine.Start(ctx, input.RunID, canon.NewDigest(input.SpecHash), input.NamespaceID, input.TenantID, input.Now)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(map[string]any{"run_id": rs.RunID, "status": rs.Status, "current_stage_id": rs.CurrentStageID})
}

func (s *Server) handleScenarioStatus(ctx context.Context, _ *mcp.CallToolRequest, input scenarioStatusInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_status", PermScenarioRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	summary, err := s.loadSummary(ctx, input.RunID)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(summary)
}

func (s *Server) handleScenarioNext(ctx context.Context, _ *mcp.CallToolRequest, input scenarioNextInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_next", PermScenarioWrite, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	summary, err := s.triggerRun(ctx, input.RunID, runstate.TriggerEvaluate, "", runstate.Timestamp{}, nil)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(summary)
}

func (s *Server) handleScenarioSubmit(ctx context.Context, _ *mcp.CallToolRequest, input scenarioSubmitInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_submit", PermScenarioWrite, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	summary, err := s.triggerRun(ctx, input.RunID, runstate.TriggerSubmit, input.CorrelationID, input.Now, input.Payload)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(summary)
}

func (s *Server) handleScenarioTrigger(ctx context.Context, _ *mcp.CallToolRequest, input scenarioTriggerInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenario_trigger", PermScenarioWrite, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	summary, err := s.triggerRun(ctx, input.RunID, input.Kind, input.CorrelationID, input.Now, input.Payload)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(summary)
}

func (s *Server) handleScenariosList(ctx context.Context, _ *mcp.CallToolRequest, input scenariosListInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "scenarios_list", PermScenarioRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	runIDs, err := s.engine.ListRuns(ctx, input.ScenarioID)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(map[string]any{"run_ids": runIDs})
}

func (s *Server) handleEvidenceQuery(ctx context.Context, _ *mcp.CallToolRequest, input evidenceQueryInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "evidence_query", PermEvidenceRead, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}

	dctx := evidence.Context{
		TenantID:    input.TenantID,
		NamespaceID: input.NamespaceID,
		RunID:       input.RunID,
		ScenarioID:  input.ScenarioID,
	}
	spanCtx, span := telemetry.StartEvidenceQuerySpan(ctx, input.ProviderID, input.CheckID)
	result := s.evidence.Dispatch(spanCtx, input.ProviderID, input.CheckID, input.Params, dctx)
	errCode := ""
	if result.Error != nil {
		errCode = string(result.Error.Code)
	}
	telemetry.EndEvidenceQuerySpan(span, string(result.Lane), errCode)
	metrics.RecordProviderDispatch(input.ProviderID, dispatchOutcome(result))

	var contract evidence.Contract
	if provider, ok := s.evidence.Get(input.ProviderID); ok {
		contract = provider.Contract()
	}
	finish(nil)

	disclosed := disclose(result, input.AllowRawValues, contract, s.cfg.Evidence)
	return jsonToolResult(disclosed)
}

func (s *Server) handleProvidersList(ctx context.Context, _ *mcp.CallToolRequest, input providersListInput) (*mcp.CallToolResult, any, error) {
	_, finish, err := s.call(ctx, "providers_list", PermEvidenceRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	contracts := s.evidence.List()
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ProviderID < contracts[j].ProviderID })
	finish(nil)
	return jsonToolResult(map[string]any{"providers": contracts})
}

func (s *Server) handleProviderContractGet(ctx context.Context, _ *mcp.CallToolRequest, input providerContractGetInput) (*mcp.CallToolResult, any, error) {
	_, finish, err := s.call(ctx, "provider_contract_get", PermEvidenceRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	provider, ok := s.evidence.Get(input.ProviderID)
	if !ok {
		err := dgerr.New(dgerr.NotFound, fmt.Sprintf("provider %q not registered", input.ProviderID))
		finish(err)
		return nil, nil, err
	}
	finish(nil)
	return jsonToolResult(provider.Contract())
}

func (s *Server) handleProviderSchemaGet(ctx context.Context, _ *mcp.CallToolRequest, input providerSchemaGetInput) (*mcp.CallToolResult, any, error) {
	_, finish, err := s.call(ctx, "provider_schema_get", PermEvidenceRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	provider, ok := s.evidence.Get(input.ProviderID)
	if !ok {
		err := dgerr.New(dgerr.NotFound, fmt.Sprintf("provider %q not registered", input.ProviderID))
		finish(err)
		return nil, nil, err
	}
	check, ok := provider.Contract().CheckByID(input.CheckID)
	if !ok {
		err := dgerr.New(dgerr.NotFound, fmt.Sprintf("provider %q has no check %q", input.ProviderID, input.CheckID))
		finish(err)
		return nil, nil, err
	}
	finish(nil)
	return jsonToolResult(check)
}

func (s *Server) handleSchemasRegister(ctx context.Context, _ *mcp.CallToolRequest, input schemasRegisterInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "schemas_register", PermSchemaWrite, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	if s.acl.RequireSigning() && input.Signature == nil {
		err := dgerr.New(dgerr.SignatureRequired, "schema registry requires a signature on schemas_register")
		finish(err)
		return nil, nil, err
	}
	entry, err := s.schemas.Register(ctx, schemaregistry.Entry{
		SchemaID:           input.SchemaID,
		TenantID:           input.TenantID,
		NamespaceID:        input.NamespaceID,
		JSONSchema:         input.JSONSchema,
		AllowedComparators: input.AllowedComparators,
		SigningKeyID:       input.SigningKeyID,
		Signature:          input.Signature,
	})
	finish(err)
	if err != nil {
		return nil, nil, dgerr.Wrap(dgerr.InvalidRequest, "register schema", err)
	}
	return jsonToolResult(entry)
}

func (s *Server) handleSchemasList(ctx context.Context, _ *mcp.CallToolRequest, input schemasListInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "schemas_list", PermSchemaRead, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	entries, err := s.schemas.List(ctx, input.TenantID, input.NamespaceID)
	finish(err)
	if err != nil {
		return nil, nil, dgerr.Wrap(dgerr.Internal, "list schemas", err)
	}
	return jsonToolResult(map[string]any{"schemas": entries})
}

func (s *Server) handleSchemasGet(ctx context.Context, _ *mcp.CallToolRequest, input schemasGetInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "schemas_get", PermSchemaRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	ref := schemaregistry.ParseRef(input.SchemaRef)
	entry, ok, err := s.schemas.Get(ctx, ref)
	if err != nil {
		finish(err)
		return nil, nil, dgerr.Wrap(dgerr.Internal, "get schema", err)
	}
	if !ok {
		err := dgerr.New(dgerr.NotFound, fmt.Sprintf("schema %s not registered", ref))
		finish(err)
		return nil, nil, err
	}
	finish(nil)
	return jsonToolResult(entry)
}

func (s *Server) handleRunpackExport(ctx context.Context, _ *mcp.CallToolRequest, input runpackExportInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "runpack_export", PermRunpackWrite, input.GetNamespaceID(), input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}

	specHash := canon.NewDigest(input.SpecHash)
	scenario, ok, err := s.engine.GetSpec(ctx, specHash)
	if err == nil && !ok {
		err = dgerr.New(dgerr.NotFound, fmt.Sprintf("spec %s not registered", specHash))
	}
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	rs, ok, err := s.engine.GetRun(ctx, input.RunID)
	if err == nil && !ok {
		err = dgerr.New(dgerr.NotFound, fmt.Sprintf("run %q not found", input.RunID))
	}
	if err != nil {
		finish(err)
		return nil, nil, err
	}

	result, err := runpack.Build(ctx, s.sink, runpack.BuildRequest{
		TenantID:        input.TenantID,
		NamespaceID:     input.NamespaceID,
		ScenarioID:      input.ScenarioID,
		RunID:           input.RunID,
		SpecHash:        specHash,
		ScenarioSpec:    scenario,
		RunState:        rs,
		SecurityContext: input.SecurityContext,
	})
	metrics.RecordRunpackBuild(buildOutcome(err))
	finish(err)
	if err != nil {
		return nil, nil, dgerr.Wrap(dgerr.Internal, "build runpack", err)
	}
	return jsonToolResult(result)
}

func (s *Server) handleRunpackVerify(ctx context.Context, _ *mcp.CallToolRequest, input runpackVerifyInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "runpack_verify", PermRunpackRead, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	var expected *canon.Digest
	if input.ExpectedRootHash != "" {
		d := canon.NewDigest(input.ExpectedRootHash)
		expected = &d
	}
	report, err := runpack.Verify(ctx, s.sink, runpack.VerifyRequest{
		KeyPrefix:         input.KeyPrefix,
		ExpectedRootHash:  expected,
		TrustedKeys:       s.trustedKeys,
		RequireSignatures: input.RequireSignatures,
	})
	finish(err)
	if err != nil {
		return nil, nil, dgerr.Wrap(dgerr.Internal, "verify runpack", err)
	}
	return jsonToolResult(report)
}

func (s *Server) handlePrecheck(ctx context.Context, _ *mcp.CallToolRequest, input precheckInput) (*mcp.CallToolResult, any, error) {
	ctx, finish, err := s.call(ctx, "precheck", PermPrecheck, "", input)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	specHash := canon.NewDigest(input.SpecHash)
	scenario, ok, err := s.engine.GetSpec(ctx, specHash)
	if err == nil && !ok {
		err = dgerr.New(dgerr.NotFound, fmt.Sprintf("spec %s not registered", specHash))
	}
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	result, err := s.engine.Precheck(ctx, scenario, input.StageID, input.Payload, input.SchemaRef, s.schemas)
	finish(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(result)
}
