/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package comparator

import (
	"encoding/json"
	"testing"

	"github.com/decisiongate/decisiongate/internal/tristate"
)

func num(s string) json.Number { return json.Number(s) }

func TestEqualsDecimalNotBinaryFloat(t *testing.T) {
	got, err := Compare(Equals, num("0.1"), num("0.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tristate.True {
		t.Fatalf("got %s, want True", got)
	}
}

func TestGteRFC3339(t *testing.T) {
	got, err := Compare(Gte, "2024-06-01T00:00:00Z", "2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tristate.True {
		t.Fatalf("got %s, want True", got)
	}
}

func TestAbsentValueIsUnknownExceptNotExists(t *testing.T) {
	got, err := Compare(Gte, nil, "2024-01-01T00:00:00Z")
	if got != tristate.Unknown || err == nil {
		t.Fatalf("expected Unknown+error for absent value, got %s, %v", got, err)
	}

	got2, err2 := Compare(NotExists, nil, nil)
	if err2 != nil || got2 != tristate.True {
		t.Fatalf("NotExists on nil should be True with no error, got %s, %v", got2, err2)
	}

	got3, err3 := Compare(Exists, nil, nil)
	if err3 == nil || got3 != tristate.Unknown {
		t.Fatalf("Exists on nil should be Unknown+error, got %s, %v", got3, err3)
	}
}

func TestComparatorTypeMismatchYieldsUnknown(t *testing.T) {
	got, err := Compare(Gt, "not-a-date", num("1"))
	if got != tristate.Unknown || err == nil {
		t.Fatalf("expected Unknown + ComparatorTypeMismatch, got %s, %v", got, err)
	}
}

func TestInSet(t *testing.T) {
	set := []any{num("1"), num("2"), num("3")}
	got, err := Compare(InSet, num("2"), set)
	if err != nil || got != tristate.True {
		t.Fatalf("got %s, %v, want True", got, err)
	}
	got2, _ := Compare(InSet, num("9"), set)
	if got2 != tristate.False {
		t.Fatalf("got %s, want False", got2)
	}
}

func TestContainsStringAndArray(t *testing.T) {
	got, _ := Compare(Contains, "hello world", "wor")
	if got != tristate.True {
		t.Fatalf("substring Contains failed: %s", got)
	}
	got2, _ := Compare(Contains, []any{"a", "b", "c"}, []any{"a", "c"})
	if got2 != tristate.True {
		t.Fatalf("array subset Contains failed: %s", got2)
	}
	got3, _ := Compare(Contains, []any{"a", "b"}, []any{"z"})
	if got3 != tristate.False {
		t.Fatalf("array subset Contains should be False: %s", got3)
	}
}

func TestDeepEquals(t *testing.T) {
	value := map[string]any{"a": num("1"), "b": []any{num("1"), num("2")}}
	expected := map[string]any{"b": []any{num("1"), num("2")}, "a": num("1")}
	got, err := Compare(DeepEquals, value, expected)
	if err != nil || got != tristate.True {
		t.Fatalf("got %s, %v, want True", got, err)
	}
}

func TestLexicalOptIn(t *testing.T) {
	if !LexGt.OptIn() {
		t.Fatal("LexGt should be opt-in")
	}
	if Equals.OptIn() {
		t.Fatal("Equals should not be opt-in")
	}
	got, err := Compare(LexGt, "banana", "apple")
	if err != nil || got != tristate.True {
		t.Fatalf("got %s, %v, want True", got, err)
	}
}
