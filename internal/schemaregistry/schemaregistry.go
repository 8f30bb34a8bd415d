/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package schemaregistry implements the C6 schema registry (§3.5): an
// append-only, monotonically versioned store of named JSON Schemas used
// to validate precheck payloads before they ever reach the engine;
// scenario_submit payloads are not validated against it. Registration is always additive — an existing
// (schema_id, version) row is never mutated, mirroring the spec's
// "immutable, monotonic version per schema_id" invariant.
package schemaregistry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	_ "modernc.org/sqlite"

	"github.com/decisiongate/decisiongate/internal/canon"
)

// Entry is one immutable, versioned schema registration (§3.5).
type Entry struct {
	SchemaID           string           `json:"schema_id"`
	Version            int              `json:"version"`
	TenantID           string           `json:"tenant_id"`
	NamespaceID        string           `json:"namespace_id"`
	JSONSchema         json.RawMessage  `json:"json_schema"`
	AllowedComparators []string         `json:"allowed_comparators,omitempty"`
	SizeBytes          int64            `json:"size_bytes"`
	CreatedAt          string           `json:"created_at"`
	SigningKeyID       string           `json:"signing_key_id,omitempty"`
	Signature          *canon.Signature `json:"signature,omitempty"`
}

// Ref names one registered schema by ID and an optional pinned version;
// Version == 0 means "latest".
type Ref struct {
	SchemaID string
	Version  int
}

// ParseRef parses the "schema_id" or "schema_id@version" wire form used
// by precheck's schema_ref parameter and schemas_get's request.
func ParseRef(s string) Ref {
	id, verStr, found := strings.Cut(s, "@")
	if !found {
		return Ref{SchemaID: id}
	}
	v, err := strconv.Atoi(verStr)
	if err != nil {
		return Ref{SchemaID: id}
	}
	return Ref{SchemaID: id, Version: v}
}

func (r Ref) String() string {
	if r.Version == 0 {
		return r.SchemaID
	}
	return fmt.Sprintf("%s@%d", r.SchemaID, r.Version)
}

// Store is the SQLite-backed append-only registry (§6.4's `schemas`
// table), mirroring internal/controlplane/audit/store.go's WAL-mode
// bootstrap and single-*sql.DB-with-mutex shape.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	maxEntries    int
	maxEntryBytes int64
}

// NewStore opens (or creates) a SQLite-backed schema registry.
// maxEntries <= 0 and maxEntryBytes <= 0 mean "unbounded", matching
// CoreConfig's schema_registry.max_entries/max_entry_bytes defaults.
func NewStore(dbPath string, maxEntries int, maxEntryBytes int64) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("schemaregistry: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("schemaregistry: enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schemas (
		schema_id           TEXT NOT NULL,
		version             INTEGER NOT NULL,
		tenant_id           TEXT NOT NULL,
		namespace_id        TEXT NOT NULL,
		canonical_json      TEXT NOT NULL,
		schema_size_bytes   INTEGER NOT NULL,
		allowed_comparators TEXT NOT NULL DEFAULT '[]',
		signing_key_id      TEXT,
		signature_key_id    TEXT,
		signature_scheme    TEXT,
		signature_bytes     TEXT,
		created_at          TEXT NOT NULL,
		PRIMARY KEY (schema_id, version)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("schemaregistry: create table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS registry_namespace_counters (
		tenant_id    TEXT NOT NULL,
		namespace_id TEXT NOT NULL,
		entry_count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, namespace_id)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("schemaregistry: create counters table: %w", err)
	}

	return &Store{db: db, maxEntries: maxEntries, maxEntryBytes: maxEntryBytes}, nil
}

// Register inserts a new version for e.SchemaID, monotonically one
// greater than the current max version for that schema_id (1 if none
// exists yet). tenant_id/namespace_id must match every prior version of
// the same schema_id.
func (s *Store) Register(ctx context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntryBytes > 0 && int64(len(e.JSONSchema)) > s.maxEntryBytes {
		return Entry{}, fmt.Errorf("schemaregistry: schema %q is %d bytes, exceeds max %d", e.SchemaID, len(e.JSONSchema), s.maxEntryBytes)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(e.JSONSchema, &schema); err != nil {
		return Entry{}, fmt.Errorf("schemaregistry: schema %q is not a valid JSON Schema: %w", e.SchemaID, err)
	}
	if _, err := schema.Resolve(nil); err != nil {
		return Entry{}, fmt.Errorf("schemaregistry: schema %q does not resolve: %w", e.SchemaID, err)
	}

	var maxVersion sql.NullInt64
	var existingTenant, existingNamespace sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT MAX(version), tenant_id, namespace_id FROM schemas WHERE schema_id = ? GROUP BY schema_id`, e.SchemaID)
	switch err := row.Scan(&maxVersion, &existingTenant, &existingNamespace); err {
	case nil:
		if existingTenant.String != e.TenantID || existingNamespace.String != e.NamespaceID {
			return Entry{}, fmt.Errorf("schemaregistry: schema %q already registered under tenant %q namespace %q", e.SchemaID, existingTenant.String, existingNamespace.String)
		}
	case sql.ErrNoRows:
		if s.maxEntries > 0 {
			var count int64
			if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT schema_id) FROM schemas`).Scan(&count); err != nil {
				return Entry{}, fmt.Errorf("schemaregistry: count schemas: %w", err)
			}
			if count >= int64(s.maxEntries) {
				return Entry{}, fmt.Errorf("schemaregistry: registry is at its %d-entry capacity", s.maxEntries)
			}
		}
	default:
		return Entry{}, fmt.Errorf("schemaregistry: query existing versions: %w", err)
	}

	e.Version = int(maxVersion.Int64) + 1
	e.SizeBytes = int64(len(e.JSONSchema))
	e.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	comparatorsJSON, err := json.Marshal(e.AllowedComparators)
	if err != nil {
		return Entry{}, fmt.Errorf("schemaregistry: marshal allowed_comparators: %w", err)
	}

	var sigKeyID, sigScheme, sigBytes sql.NullString
	if e.Signature != nil {
		sigKeyID = sql.NullString{String: e.Signature.KeyID, Valid: true}
		sigScheme = sql.NullString{String: e.Signature.Scheme, Valid: true}
		sigBytes = sql.NullString{String: e.Signature.Bytes, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO schemas
		(schema_id, version, tenant_id, namespace_id, canonical_json, schema_size_bytes, allowed_comparators, signing_key_id, signature_key_id, signature_scheme, signature_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SchemaID, e.Version, e.TenantID, e.NamespaceID, string(e.JSONSchema), e.SizeBytes, string(comparatorsJSON),
		nullIfEmpty(e.SigningKeyID), sigKeyID, sigScheme, sigBytes, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("schemaregistry: insert schema %q version %d: %w", e.SchemaID, e.Version, err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO registry_namespace_counters (tenant_id, namespace_id, entry_count)
		VALUES (?, ?, 1)
		ON CONFLICT(tenant_id, namespace_id) DO UPDATE SET entry_count = entry_count + 1`,
		e.TenantID, e.NamespaceID); err != nil {
		return Entry{}, fmt.Errorf("schemaregistry: update namespace counter: %w", err)
	}

	return e, nil
}

// Get looks up one schema version, or the latest if ref.Version == 0.
func (s *Store) Get(ctx context.Context, ref Ref) (Entry, bool, error) {
	var query string
	var args []any
	if ref.Version == 0 {
		query = `SELECT schema_id, version, tenant_id, namespace_id, canonical_json, schema_size_bytes, allowed_comparators, signing_key_id, signature_key_id, signature_scheme, signature_bytes, created_at
			FROM schemas WHERE schema_id = ? ORDER BY version DESC LIMIT 1`
		args = []any{ref.SchemaID}
	} else {
		query = `SELECT schema_id, version, tenant_id, namespace_id, canonical_json, schema_size_bytes, allowed_comparators, signing_key_id, signature_key_id, signature_scheme, signature_bytes, created_at
			FROM schemas WHERE schema_id = ? AND version = ?`
		args = []any{ref.SchemaID, ref.Version}
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("schemaregistry: get %s: %w", ref, err)
	}
	return e, true, nil
}

// List enumerates the latest version of every schema registered for a
// tenant/namespace pair.
func (s *Store) List(ctx context.Context, tenantID, namespaceID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT schema_id, MAX(version), tenant_id, namespace_id, canonical_json, schema_size_bytes, allowed_comparators, signing_key_id, signature_key_id, signature_scheme, signature_bytes, created_at
		FROM schemas WHERE tenant_id = ? AND namespace_id = ? GROUP BY schema_id ORDER BY schema_id`, tenantID, namespaceID)
	if err != nil {
		return nil, fmt.Errorf("schemaregistry: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("schemaregistry: scan list row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (Entry, error) {
	var (
		e                                   Entry
		canonicalJSON, comparatorsJSON       string
		signingKeyID, sigKeyID, sigScheme, sigBytes sql.NullString
	)
	if err := row.Scan(&e.SchemaID, &e.Version, &e.TenantID, &e.NamespaceID, &canonicalJSON, &e.SizeBytes,
		&comparatorsJSON, &signingKeyID, &sigKeyID, &sigScheme, &sigBytes, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.JSONSchema = json.RawMessage(canonicalJSON)
	if signingKeyID.Valid {
		e.SigningKeyID = signingKeyID.String
	}
	_ = json.Unmarshal([]byte(comparatorsJSON), &e.AllowedComparators)
	if sigKeyID.Valid {
		e.Signature = &canon.Signature{KeyID: sigKeyID.String, Scheme: sigScheme.String, Bytes: sigBytes.String}
	}
	return e, nil
}

// Validate implements engine.SchemaValidator (internal/engine/precheck.go):
// schemaRef is a "schema_id" or "schema_id@version" reference, and
// payload is validated against the registered JSON Schema (2020-12)
// using google/jsonschema-go — the schema library the MCP SDK this tool
// surface is built on already depends on, so validation reuses it
// instead of a hand-rolled schema walker.
func (s *Store) Validate(schemaRef string, payload map[string]any) error {
	ref := ParseRef(schemaRef)
	entry, ok, err := s.Get(context.Background(), ref)
	if err != nil {
		return fmt.Errorf("schemaregistry: load %s: %w", ref, err)
	}
	if !ok {
		return fmt.Errorf("schemaregistry: schema %s not registered", ref)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(entry.JSONSchema, &schema); err != nil {
		return fmt.Errorf("schemaregistry: %s: stored schema is corrupt: %w", ref, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("schemaregistry: %s: resolve schema: %w", ref, err)
	}
	if err := resolved.Validate(payload); err != nil {
		return fmt.Errorf("schemaregistry: %s: payload failed validation: %w", ref, err)
	}
	return nil
}

// Close shuts down the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
