/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package tristate

import "testing"

func TestAndTruthTable(t *testing.T) {
	cases := []struct{ l, r, want State }{
		{True, True, True},
		{True, Unknown, Unknown},
		{True, False, False},
		{False, True, False},
		{False, False, False},
		{False, Unknown, False},
		{Unknown, Unknown, Unknown},
		{Unknown, True, Unknown},
	}
	for _, c := range cases {
		if got := And(c.l, c.r); got != c.want {
			t.Errorf("And(%s,%s) = %s, want %s", c.l, c.r, got, c.want)
		}
	}
}

func TestOrTruthTable(t *testing.T) {
	cases := []struct{ l, r, want State }{
		{True, True, True},
		{True, False, True},
		{True, Unknown, True},
		{False, False, False},
		{False, Unknown, Unknown},
		{Unknown, Unknown, Unknown},
	}
	for _, c := range cases {
		if got := Or(c.l, c.r); got != c.want {
			t.Errorf("Or(%s,%s) = %s, want %s", c.l, c.r, got, c.want)
		}
	}
}

func TestNot(t *testing.T) {
	if Not(True) != False {
		t.Error("Not(True) != False")
	}
	if Not(False) != True {
		t.Error("Not(False) != True")
	}
	if Not(Unknown) != Unknown {
		t.Error("Not(Unknown) != Unknown")
	}
}

func TestEvaluateMissingConditionIsUnknown(t *testing.T) {
	tree := CondOf("c1")
	got := Evaluate(tree, map[ConditionID]State{})
	if got != Unknown {
		t.Fatalf("expected Unknown for missing condition, got %s", got)
	}
}

func TestEvaluateAndReferencesAllChildrenAndFoldsToFalse(t *testing.T) {
	visited := map[ConditionID]bool{}
	outcomes := map[ConditionID]State{"a": False, "b": True, "c": Unknown}
	tree := AndOf(CondOf("a"), CondOf("b"), CondOf("c"))
	for _, id := range tree.ReferencedConditions() {
		visited[id] = true
	}
	if len(visited) != 3 {
		t.Fatalf("expected all 3 conditions referenced regardless of short-circuit, got %d", len(visited))
	}
	got := Evaluate(tree, outcomes)
	if got != False {
		t.Fatalf("And(F,T,U) = %s, want False", got)
	}
}

func TestEvaluateBranchExample(t *testing.T) {
	tree := OrOf(NotOf(CondOf("x")), CondOf("y"))
	outcomes := map[ConditionID]State{"x": False, "y": False}
	if got := Evaluate(tree, outcomes); got != True {
		t.Fatalf("Or(Not(F),F) = %s, want True", got)
	}
}

func TestValidateRejectsEmptyAnd(t *testing.T) {
	tree := &ReqTree{Kind: KindAnd}
	if err := tree.Validate(); err == nil {
		t.Fatal("expected validation error for empty And node")
	}
}

func TestReferencedConditionsSortedDeduplicated(t *testing.T) {
	tree := AndOf(CondOf("z"), OrOf(CondOf("a"), CondOf("z")))
	got := tree.ReferencedConditions()
	want := []ConditionID{"a", "z"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
