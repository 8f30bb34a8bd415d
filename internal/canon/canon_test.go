/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package canon

import (
	"crypto/ed25519"
	"testing"
)

func TestMarshalSortsKeysAndDropsWhitespace(t *testing.T) {
	in := map[string]any{"b": 1, "a": "x", "c": []any{1, 2, 3}}
	got, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":"x","b":1,"c":[1,2,3]}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestEncodeNumberForms(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`0`, `0`},
		{`-0`, `0`},
		{`007`, ``}, // invalid JSON, expect error
		{`1.50`, `1.5`},
		{`1.0`, `1`},
		{`-1.250`, `-1.25`},
		{`1e2`, `100`},
		{`1.5e2`, `150`},
		{`1.23e-2`, `0.0123`},
		{`100`, `100`},
		{`-0.0`, `0`},
	}
	for _, c := range cases {
		got, err := CanonicalizeBytes([]byte(c.in))
		if c.want == "" {
			if err == nil {
				t.Errorf("input %q: expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", c.in, err)
			continue
		}
		if string(got) != c.want {
			t.Errorf("input %q: got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []any{
		nil, true, false, "hello\nworld", 42, -17.5,
		[]any{1, "two", 3.0},
		map[string]any{"z": 1, "a": 2},
	}
	for _, v := range values {
		b1, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		b2, err := CanonicalizeBytes(b1)
		if err != nil {
			t.Fatalf("CanonicalizeBytes: %v", err)
		}
		if string(b1) != string(b2) {
			t.Fatalf("not idempotent: %s != %s", b1, b2)
		}
	}
}

func TestKeyOrderingUTF16(t *testing.T) {
	in := map[string]any{"￿": 1, "a": 2}
	got, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"￿":1}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestHashStable(t *testing.T) {
	v1 := map[string]any{"a": 1, "b": 2}
	v2 := map[string]any{"b": 2, "a": 1}
	d1, err := Hash(v1)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Hash(v2)
	if err != nil {
		t.Fatal(err)
	}
	if !d1.Equal(d2) {
		t.Fatalf("expected equal hashes regardless of key order: %s != %s", d1, d2)
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := NewSigner("k1", priv)
	if err != nil {
		t.Fatal(err)
	}
	payload := map[string]any{"condition_id": "c1", "tri_state": "True"}
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatal(err)
	}
	keys := TrustedKeys{"k1": pub}
	if err := Verify(keys, payload, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tampered := map[string]any{"condition_id": "c1", "tri_state": "False"}
	if err := Verify(keys, tampered, sig); err == nil {
		t.Fatal("expected verification failure on tampered payload")
	}

	if err := Verify(TrustedKeys{}, payload, sig); err == nil {
		t.Fatal("expected verification failure for unknown key id")
	}
}

func TestEqual(t *testing.T) {
	a := []byte(`{"a":1,"b":2}`)
	b := []byte(`{"b":2,"a":1}`)
	eq, err := Equal(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Fatal("expected structural equality regardless of key order")
	}
}
