/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Hash-only, append-only tool-call audit log (§4.6.3, §9: "audit
// events never carry raw request/response payloads, only content
// hashes"). Grounded on runstate.ToolCallRecord's field shape, exposed
// here as a process-wide sink rather than a per-run one because
// several tools (schemas_*, providers_list, runpack_verify) are not
// scoped to any single run.
package toolsurface

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/decisiongate/decisiongate/internal/canon"
)

// AuditEvent mirrors runstate.ToolCallRecord's disclosure shape: never
// a raw payload, only its hash.
type AuditEvent struct {
	CorrelationID string
	Tool          string
	Principal     string
	Allowed       bool
	Reason        string
	RequestHash   canon.Digest
	ResponseHash  canon.Digest
	RecordedAt    time.Time
}

// AuditLog is an in-memory, append-only ring of recent tool-call
// audit events, mirrored to the structured logger for durable
// retention by whatever log pipeline the deployment already has.
type AuditLog struct {
	mu     sync.Mutex
	logger *zap.Logger
	events []AuditEvent
	cap    int
}

// NewAuditLog builds an audit log retaining at most capacity recent
// events in memory (0 means unbounded).
func NewAuditLog(logger *zap.Logger, capacity int) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{logger: logger.Named("audit"), cap: capacity}
}

// Append records ev, emitting it as a structured log line and
// retaining it in the in-memory ring.
func (a *AuditLog) Append(ev AuditEvent) {
	a.logger.Info("tool_call",
		zap.String("correlation_id", ev.CorrelationID),
		zap.String("tool", ev.Tool),
		zap.String("principal", ev.Principal),
		zap.Bool("allowed", ev.Allowed),
		zap.String("reason", ev.Reason),
		zap.String("request_hash", ev.RequestHash.String()),
		zap.String("response_hash", ev.ResponseHash.String()),
	)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	if a.cap > 0 && len(a.events) > a.cap {
		a.events = a.events[len(a.events)-a.cap:]
	}
}

// Recent returns a copy of the most recently appended events, oldest
// first.
func (a *AuditLog) Recent() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}
