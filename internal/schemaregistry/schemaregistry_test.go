/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package schemaregistry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/decisiongate/decisiongate/internal/schemaregistry"
)

const boolSchema = `{"type":"object","properties":{"ok":{"type":"boolean"}},"required":["ok"]}`

func newTestStore(t *testing.T, maxEntries int, maxEntryBytes int64) *schemaregistry.Store {
	t.Helper()
	store, err := schemaregistry.NewStore(":memory:", maxEntries, maxEntryBytes)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRegisterAssignsMonotonicVersions(t *testing.T) {
	store := newTestStore(t, 0, 0)
	ctx := context.Background()

	first, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	})
	if err != nil {
		t.Fatalf("Register (v1): %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("got version %d, want 1", first.Version)
	}

	second, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	})
	if err != nil {
		t.Fatalf("Register (v2): %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("got version %d, want 2", second.Version)
	}
}

func TestRegisterRejectsNamespaceChangeForExistingSchemaID(t *testing.T) {
	store := newTestStore(t, 0, 0)
	ctx := context.Background()

	if _, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	}); err != nil {
		t.Fatalf("Register (v1): %v", err)
	}

	_, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns2", JSONSchema: json.RawMessage(boolSchema),
	})
	if err == nil {
		t.Fatalf("expected Register to reject a namespace change for an existing schema_id")
	}
}

func TestGetDefaultsToLatestVersion(t *testing.T) {
	store := newTestStore(t, 0, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Register(ctx, schemaregistry.Entry{
			SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
		}); err != nil {
			t.Fatalf("Register (iteration %d): %v", i, err)
		}
	}

	latest, ok, err := store.Get(ctx, schemaregistry.Ref{SchemaID: "packet.disclosure"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected schema to be found")
	}
	if latest.Version != 3 {
		t.Fatalf("got latest version %d, want 3", latest.Version)
	}

	pinned, ok, err := store.Get(ctx, schemaregistry.Ref{SchemaID: "packet.disclosure", Version: 1})
	if err != nil {
		t.Fatalf("Get pinned: %v", err)
	}
	if !ok || pinned.Version != 1 {
		t.Fatalf("expected to retrieve pinned version 1, got %+v ok=%v", pinned, ok)
	}
}

func TestRegisterEnforcesMaxEntryBytes(t *testing.T) {
	store := newTestStore(t, 0, 4)
	_, err := store.Register(context.Background(), schemaregistry.Entry{
		SchemaID: "too-big", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	})
	if err == nil {
		t.Fatalf("expected Register to reject a schema exceeding maxEntryBytes")
	}
}

func TestRegisterEnforcesMaxEntries(t *testing.T) {
	store := newTestStore(t, 1, 0)
	ctx := context.Background()

	if _, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "schema-a", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	}); err != nil {
		t.Fatalf("Register schema-a: %v", err)
	}

	_, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "schema-b", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	})
	if err == nil {
		t.Fatalf("expected Register to reject a new schema_id once at capacity")
	}
}

func TestValidateAcceptsConformingPayloadAndRejectsNonconforming(t *testing.T) {
	store := newTestStore(t, 0, 0)
	ctx := context.Background()
	if _, err := store.Register(ctx, schemaregistry.Entry{
		SchemaID: "packet.disclosure", TenantID: "t1", NamespaceID: "ns1", JSONSchema: json.RawMessage(boolSchema),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := store.Validate("packet.disclosure", map[string]any{"ok": true}); err != nil {
		t.Errorf("Validate rejected a conforming payload: %v", err)
	}
	if err := store.Validate("packet.disclosure", map[string]any{"ok": "not-a-bool"}); err == nil {
		t.Errorf("Validate accepted a nonconforming payload")
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want schemaregistry.Ref
	}{
		{"packet.disclosure", schemaregistry.Ref{SchemaID: "packet.disclosure"}},
		{"packet.disclosure@2", schemaregistry.Ref{SchemaID: "packet.disclosure", Version: 2}},
		{"packet.disclosure@notanumber", schemaregistry.Ref{SchemaID: "packet.disclosure"}},
	}
	for _, tc := range cases {
		if got := schemaregistry.ParseRef(tc.in); got != tc.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
