/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Transport authentication: pipeline step 1 (§4.6.3). Grounded on
// internal/controlplane/auth/keys.go's bcrypt-hashed bearer-secret
// comparison, adapted from a SQLite-backed API-key store to an
// in-memory principal->hash map since the tool surface's auth config
// is supplied whole by CoreConfig rather than administered live.
package toolsurface

import (
	"context"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Principal identifies the authenticated caller of a tool call.
type Principal struct {
	Name string
	Role Role
}

// dgerr-free sentinel used before a Principal has been attached to a
// context; zero value is an unauthenticated/anonymous caller.
var anonymous = Principal{Name: "anonymous"}

type principalKey struct{}

// ContextWithPrincipal attaches p to ctx for downstream handlers.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext recovers the Principal attached by an
// Authenticator, or the anonymous Principal if none was attached.
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return anonymous
}

// Authenticator implements pipeline step 1 for one AuthMode.
type Authenticator interface {
	// Authenticate validates the inbound call and returns the
	// resolved Principal, or a non-nil error if authentication fails.
	Authenticate(ctx context.Context, req TransportRequest) (Principal, error)
}

// TransportRequest carries whatever the transport layer observed about
// one inbound call, regardless of which transport received it.
type TransportRequest struct {
	RemoteAddr  string
	BearerToken string // from "Authorization: Bearer <token>" or stdio handshake
	MtlsSubject string // verified peer certificate subject, if any
	Role        Role   // declared role; ignored by the authenticators, which take the role from their own configuration
}

// LocalOnlyAuthenticator accepts only loopback callers (§4.6.3 step 1).
// Every local caller is granted RoleAdmin: LocalOnly is meant for
// single-operator local tooling, not multi-tenant deployments.
type LocalOnlyAuthenticator struct{}

func (LocalOnlyAuthenticator) Authenticate(_ context.Context, req TransportRequest) (Principal, error) {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return Principal{}, fmt.Errorf("toolsurface: local_only auth rejects non-loopback caller %q", req.RemoteAddr)
	}
	return Principal{Name: "local", Role: RoleAdmin}, nil
}

// BearerAuthenticator checks a bearer token against bcrypt hashes
// keyed by principal name, the same comparison keys.go's
// (*KeyStore).Validate performs against its SQLite-backed key rows.
type BearerAuthenticator struct {
	// Hashes maps a principal name to the bcrypt hash of its bearer
	// token. The token itself is never the map key and is not parsed;
	// every configured principal's hash is compared in turn until one
	// matches.
	Hashes map[string]string
	Roles  map[string]Role
}

func (b BearerAuthenticator) Authenticate(_ context.Context, req TransportRequest) (Principal, error) {
	token := strings.TrimSpace(req.BearerToken)
	if token == "" {
		return Principal{}, fmt.Errorf("toolsurface: bearer_token auth requires a token")
	}
	for principal, hash := range b.Hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			role := b.Roles[principal]
			if !ValidRole(string(role)) {
				role = RoleViewer
			}
			return Principal{Name: principal, Role: role}, nil
		}
	}
	return Principal{}, fmt.Errorf("toolsurface: bearer token does not match any configured principal")
}

// MtlsAuthenticator accepts callers whose verified certificate subject
// is in AllowedSubjects.
type MtlsAuthenticator struct {
	AllowedSubjects map[string]Role
}

func (m MtlsAuthenticator) Authenticate(_ context.Context, req TransportRequest) (Principal, error) {
	if req.MtlsSubject == "" {
		return Principal{}, fmt.Errorf("toolsurface: mtls auth requires a verified client certificate")
	}
	role, ok := m.AllowedSubjects[req.MtlsSubject]
	if !ok {
		return Principal{}, fmt.Errorf("toolsurface: mtls subject %q is not authorized", req.MtlsSubject)
	}
	return Principal{Name: req.MtlsSubject, Role: role}, nil
}

// NewAuthenticator builds the configured Authenticator for cfg,
// rejecting an unsafe LocalOnly-on-non-loopback-bind configuration
// up front unless explicitly permitted (§4.6.3 step 1).
func NewAuthenticator(cfg CoreConfig) (Authenticator, error) {
	switch cfg.Auth.Mode {
	case AuthLocalOnly:
		if !cfg.Auth.AllowLocalOnlyOnNonLoopback {
			host, _, err := net.SplitHostPort(cfg.Bind)
			if err != nil {
				host = cfg.Bind
			}
			if host != "" && host != "127.0.0.1" && host != "localhost" && host != "::1" {
				return nil, fmt.Errorf("toolsurface: local_only auth refuses non-loopback bind %q", cfg.Bind)
			}
		}
		return LocalOnlyAuthenticator{}, nil
	case AuthBearerToken:
		roles := make(map[string]Role, len(cfg.Auth.BearerHashes))
		for principal := range cfg.Auth.BearerHashes {
			roles[principal] = RoleOperator
		}
		return BearerAuthenticator{Hashes: cfg.Auth.BearerHashes, Roles: roles}, nil
	case AuthMtls:
		allowed := make(map[string]Role, len(cfg.Auth.MtlsAllowedSubjects))
		for _, subj := range cfg.Auth.MtlsAllowedSubjects {
			allowed[subj] = RoleOperator
		}
		return MtlsAuthenticator{AllowedSubjects: allowed}, nil
	default:
		return nil, fmt.Errorf("toolsurface: unknown auth mode %q", cfg.Auth.Mode)
	}
}
