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
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/engine"
	"github.com/decisiongate/decisiongate/internal/evidence"
	"github.com/decisiongate/decisiongate/internal/metrics"
	"github.com/decisiongate/decisiongate/internal/runpack"
	"github.com/decisiongate/decisiongate/internal/schemaregistry"
	"github.com/decisiongate/decisiongate/internal/telemetry"
)

// Version is injected from the decisiongated build metadata.
var Version = "dev"

// Server exposes the evaluation engine, evidence registry, schema
// registry, and runpack builder as a closed set of MCP tools (§4.6).
type Server struct {
	server  *mcp.Server
	handler http.Handler

	engine      *engine.Engine
	evidence    *evidence.Registry
	schemas     *schemaregistry.Store
	sink        runpack.Sink
	trustedKeys canon.TrustedKeys

	auth        Authenticator
	acl         *ACL
	rateLimiter *RateLimiter
	inflight    *InflightLimiter
	namespaces  NamespaceAuthority
	audit       *AuditLog

	cfg    CoreConfig
	logger *zap.Logger
}

// Option customizes Server wiring.
type Option func(*Server)

// WithTrustedKeys wires the Ed25519 public keys runpack_verify checks
// condition-outcome signatures against.
func WithTrustedKeys(keys canon.TrustedKeys) Option {
	return func(s *Server) {
		if s != nil {
			s.trustedKeys = keys
		}
	}
}

// WithNamespaceAuthority overrides the authority built from
// cfg.Namespace, for tests or a custom catalog client.
func WithNamespaceAuthority(authority NamespaceAuthority) Option {
	return func(s *Server) {
		if s != nil {
			s.namespaces = authority
		}
	}
}

// New creates and wires the tool surface for Decision Gate.
func New(
	eng *engine.Engine,
	registry *evidence.Registry,
	schemas *schemaregistry.Store,
	sink runpack.Sink,
	cfg CoreConfig,
	logger *zap.Logger,
	opts ...Option,
) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	authenticator, err := NewAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	implVersion := Version
	if implVersion == "" {
		implVersion = "dev"
	}
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "decisiongate",
		Version: implVersion,
	}, nil)

	s := &Server{
		server:      srv,
		engine:      eng,
		evidence:    registry,
		schemas:     schemas,
		sink:        sink,
		auth:        authenticator,
		acl:         NewACL(cfg.SchemaRegistry.RequireSigning),
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window),
		inflight:    NewInflightLimiter(cfg.MaxInflight),
		namespaces:  NoneAuthority{},
		audit:       NewAuditLog(logger, 4096),
		cfg:         cfg,
		logger:      logger.Named("toolsurface"),
	}

	if cfg.Namespace.Authority == NamespaceAuthorityExternal && cfg.Namespace.CatalogURL != "" {
		s.namespaces = NewExternalCatalogAuthority(httpCatalogClient{baseURL: cfg.Namespace.CatalogURL}, cfg.Namespace.CacheTTL)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.registerTools()
	s.handler = mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	return s, nil
}

// Handler returns the HTTP SSE transport handler, mirroring
// mcpserver.MCPServer.Handler.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// MCPServer returns the underlying *mcp.Server for stdio transport
// mounting (see transport.go).
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// call is the shared fail-closed pipeline for every tool handler,
// covering §4.6.3 steps 3-6 (step 1, transport auth, already ran when
// the TransportRequest was resolved to a Principal; step 2, the tool
// allowlist, is structural since only registerTools' closed set is
// ever mcp.AddTool'd). finish must be deferred by the caller and
// invoked with the handler's own error.
func (s *Server) call(ctx context.Context, tool string, perm Permission, namespaceID string, input any) (authedCtx context.Context, finish func(err error), toolErr error) {
	start := time.Now()
	principal := PrincipalFromContext(ctx)
	correlationID := uuid.NewString()
	ctx, span := telemetry.StartToolCallSpan(ctx, tool, principal.Name)

	reqHash, _ := canon.Hash(input)
	finish = func(err error) {
		outcome := "ok"
		code := ""
		if err != nil {
			outcome = "error"
			if de, ok := err.(*dgerr.Error); ok {
				code = string(de.Code)
			}
		}
		metrics.RecordToolCall(tool, outcome, time.Since(start))
		telemetry.EndToolCallSpan(span, err == nil, code)
		respHash := canon.Digest{}
		s.audit.Append(AuditEvent{
			CorrelationID: correlationID,
			Tool:          tool,
			Principal:     principal.Name,
			Allowed:       err == nil,
			Reason:        errReason(err),
			RequestHash:   reqHash,
			ResponseHash:  respHash,
			RecordedAt:    time.Now(),
		})
	}

	if namespaceID != "" {
		ok, err := s.namespaces.Resolve(ctx, namespaceID)
		if err != nil {
			toolErr = dgerr.Wrap(dgerr.Internal, "namespace authority lookup failed", err)
			return ctx, finish, toolErr
		}
		if !ok {
			toolErr = dgerr.New(dgerr.NamespaceMismatch, fmt.Sprintf("namespace %q is not authorized", namespaceID))
			return ctx, finish, toolErr
		}
	}

	if !s.acl.Allowed(principal.Role, perm) {
		toolErr = dgerr.New(dgerr.Forbidden, fmt.Sprintf("principal %q lacks permission %q for %s", principal.Name, perm, tool))
		return ctx, finish, toolErr
	}

	if !s.rateLimiter.Allow(principal.Name) {
		toolErr = dgerr.New(dgerr.RateLimited, fmt.Sprintf("rate limit exceeded for principal %q", principal.Name))
		return ctx, finish, toolErr
	}

	release, ok := s.inflight.Acquire()
	if !ok {
		toolErr = dgerr.New(dgerr.Overloaded, "tool surface at inflight capacity")
		return ctx, finish, toolErr
	}
	prevFinish := finish
	finish = func(err error) {
		release()
		prevFinish(err)
	}

	return ctx, finish, nil
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// httpCatalogClient is a minimal CatalogClient calling an external
// namespace catalog's "is namespace_id known" endpoint. Decision Gate
// does not prescribe the catalog's own protocol beyond this one GET;
// operators pointing at a real tenancy service may need to replace it.
type httpCatalogClient struct {
	baseURL string
}

func (c httpCatalogClient) Lookup(ctx context.Context, namespaceID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/namespaces/"+namespaceID, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
