/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package comparator implements the closed comparator matrix (§4.4.2):
// type-constrained comparisons between an evidence value and an expected
// value, producing a tri-state outcome. Numbers compare as
// arbitrary-precision decimals (never binary float equality); date/time
// values compare as RFC 3339 instants normalized to UTC; strings compare
// byte-wise.
package comparator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/tristate"
)

// Comparator is one member of the closed comparator enum.
type Comparator string

const (
	Equals        Comparator = "Equals"
	NotEquals     Comparator = "NotEquals"
	Gt            Comparator = "Gt"
	Gte           Comparator = "Gte"
	Lt            Comparator = "Lt"
	Lte           Comparator = "Lte"
	LexGt         Comparator = "LexGt"
	LexGte        Comparator = "LexGte"
	LexLt         Comparator = "LexLt"
	LexLte        Comparator = "LexLte"
	Contains      Comparator = "Contains"
	InSet         Comparator = "InSet"
	Exists        Comparator = "Exists"
	NotExists     Comparator = "NotExists"
	DeepEquals    Comparator = "DeepEquals"
	DeepNotEquals Comparator = "DeepNotEquals"
)

// OptIn reports whether c is one of the comparators that a check
// contract must explicitly list in allowed_comparators before it can be
// used (Lex* and Deep* variants); the rest are always available subject
// to the contract's own allowed_comparators list.
func (c Comparator) OptIn() bool {
	switch c {
	case LexGt, LexGte, LexLt, LexLte, DeepEquals, DeepNotEquals:
		return true
	default:
		return false
	}
}

// Compare evaluates comparator c between value (evidence, possibly nil
// for absent) and expected, returning the resulting tri-state and, when
// the result is Unknown because of a type or absence problem, the
// structured error describing why.
func Compare(c Comparator, value, expected any) (tristate.State, *dgerr.StructuredError) {
	// §4.4.2: absent evidence resolves every comparator except NotExists
	// to Unknown, Exists included — "does this exist" is only answerable
	// once a provider has actually reported back.
	if value == nil && c != NotExists {
		return tristate.Unknown, dgerr.NewStructured(dgerr.InvalidParams, "evidence value absent")
	}

	switch c {
	case Exists:
		return tristate.True, nil
	case NotExists:
		if value == nil {
			return tristate.True, nil
		}
		return tristate.False, nil
	case Equals, NotEquals:
		return compareEquals(c, value, expected)
	case Gt, Gte, Lt, Lte:
		return compareOrdered(c, value, expected)
	case LexGt, LexGte, LexLt, LexLte:
		return compareLexical(c, value, expected)
	case Contains:
		return compareContains(value, expected)
	case InSet:
		return compareInSet(value, expected)
	case DeepEquals, DeepNotEquals:
		return compareDeep(c, value, expected)
	default:
		return tristate.Unknown, dgerr.NewStructured(dgerr.ComparatorMismatch, fmt.Sprintf("unknown comparator %q", c))
	}
}

func mismatch(msg string) *dgerr.StructuredError {
	return dgerr.NewStructured(dgerr.ComparatorMismatch, msg)
}

func compareEquals(c Comparator, value, expected any) (tristate.State, *dgerr.StructuredError) {
	eq, err := scalarEqual(value, expected)
	if err != nil {
		return tristate.Unknown, err
	}
	if c == NotEquals {
		eq = !eq
	}
	if eq {
		return tristate.True, nil
	}
	return tristate.False, nil
}

func scalarEqual(value, expected any) (bool, *dgerr.StructuredError) {
	switch v := value.(type) {
	case bool:
		e, ok := expected.(bool)
		if !ok {
			return false, mismatch("Equals: expected bool to match bool evidence")
		}
		return v == e, nil
	case string:
		e, ok := expected.(string)
		if !ok {
			return false, mismatch("Equals: expected string to match string evidence")
		}
		return v == e, nil
	case json.Number:
		r1, err := decimalOf(v)
		if err != nil {
			return false, err
		}
		r2, err := decimalOfAny(expected)
		if err != nil {
			return false, err
		}
		return r1.Cmp(r2) == 0, nil
	default:
		return false, mismatch(fmt.Sprintf("Equals: unsupported evidence type %T", value))
	}
}

func compareOrdered(c Comparator, value, expected any) (tristate.State, *dgerr.StructuredError) {
	var cmp int
	switch v := value.(type) {
	case json.Number:
		r1, err := decimalOf(v)
		if err != nil {
			return tristate.Unknown, err
		}
		r2, err := decimalOfAny(expected)
		if err != nil {
			return tristate.Unknown, err
		}
		cmp = r1.Cmp(r2)
	case string:
		t1, err := parseRFC3339(v)
		if err != nil {
			return tristate.Unknown, mismatch("ordered comparator requires numeric or RFC3339 date/date-time evidence")
		}
		es, ok := expected.(string)
		if !ok {
			return tristate.Unknown, mismatch("ordered comparator expects RFC3339 string to compare against date evidence")
		}
		t2, err := parseRFC3339(es)
		if err != nil {
			return tristate.Unknown, mismatch("ordered comparator expected value is not RFC3339")
		}
		switch {
		case t1.Before(t2):
			cmp = -1
		case t1.After(t2):
			cmp = 1
		default:
			cmp = 0
		}
	default:
		return tristate.Unknown, mismatch(fmt.Sprintf("ordered comparator unsupported evidence type %T", value))
	}

	var result bool
	switch c {
	case Gt:
		result = cmp > 0
	case Gte:
		result = cmp >= 0
	case Lt:
		result = cmp < 0
	case Lte:
		result = cmp <= 0
	}
	if result {
		return tristate.True, nil
	}
	return tristate.False, nil
}

func compareLexical(c Comparator, value, expected any) (tristate.State, *dgerr.StructuredError) {
	v, ok := value.(string)
	if !ok {
		return tristate.Unknown, mismatch("lexical comparator requires string evidence")
	}
	e, ok := expected.(string)
	if !ok {
		return tristate.Unknown, mismatch("lexical comparator requires string expected value")
	}
	cmp := strings.Compare(v, e)
	var result bool
	switch c {
	case LexGt:
		result = cmp > 0
	case LexGte:
		result = cmp >= 0
	case LexLt:
		result = cmp < 0
	case LexLte:
		result = cmp <= 0
	}
	if result {
		return tristate.True, nil
	}
	return tristate.False, nil
}

func compareContains(value, expected any) (tristate.State, *dgerr.StructuredError) {
	switch v := value.(type) {
	case string:
		e, ok := expected.(string)
		if !ok {
			return tristate.Unknown, mismatch("Contains on string evidence requires string expected substring")
		}
		if strings.Contains(v, e) {
			return tristate.True, nil
		}
		return tristate.False, nil
	case []any:
		needles, scalar := asScalarSlice(expected)
		if scalar {
			needles = []any{expected}
		}
		for _, n := range needles {
			found := false
			for _, elem := range v {
				if eq, err := scalarEqual(elem, n); err == nil && eq {
					found = true
					break
				}
			}
			if !found {
				return tristate.False, nil
			}
		}
		return tristate.True, nil
	default:
		return tristate.Unknown, mismatch(fmt.Sprintf("Contains unsupported evidence type %T", value))
	}
}

func asScalarSlice(expected any) ([]any, bool) {
	if arr, ok := expected.([]any); ok {
		return arr, false
	}
	return nil, true
}

func compareInSet(value, expected any) (tristate.State, *dgerr.StructuredError) {
	set, ok := expected.([]any)
	if !ok {
		return tristate.Unknown, mismatch("InSet requires an array expected value")
	}
	for _, elem := range set {
		if eq, err := scalarEqual(value, elem); err == nil && eq {
			return tristate.True, nil
		}
	}
	return tristate.False, nil
}

func compareDeep(c Comparator, value, expected any) (tristate.State, *dgerr.StructuredError) {
	switch value.(type) {
	case map[string]any, []any:
	default:
		return tristate.Unknown, mismatch(fmt.Sprintf("Deep comparator requires object/array evidence, got %T", value))
	}
	b1, err := json.Marshal(value)
	if err != nil {
		return tristate.Unknown, mismatch("DeepEquals: cannot serialize evidence value")
	}
	b2, err := json.Marshal(expected)
	if err != nil {
		return tristate.Unknown, mismatch("DeepEquals: cannot serialize expected value")
	}
	eq := jsonBytesStructurallyEqual(b1, b2)
	if c == DeepNotEquals {
		eq = !eq
	}
	if eq {
		return tristate.True, nil
	}
	return tristate.False, nil
}

// jsonBytesStructurallyEqual compares two JSON byte strings for
// structural equality independent of key order, by decoding both with
// UseNumber and comparing recursively.
func jsonBytesStructurallyEqual(a, b []byte) bool {
	var va, vb any
	da := json.NewDecoder(bytes.NewReader(a))
	da.UseNumber()
	if err := da.Decode(&va); err != nil {
		return false
	}
	db := json.NewDecoder(bytes.NewReader(b))
	db.UseNumber()
	if err := db.Decode(&vb); err != nil {
		return false
	}
	return deepEqualValue(va, vb)
}

func deepEqualValue(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqualValue(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case json.Number:
		bv, ok := b.(json.Number)
		if !ok {
			return false
		}
		ra, err1 := decimalOf(av)
		rb, err2 := decimalOf(bv)
		if err1 != nil || err2 != nil {
			return false
		}
		return ra.Cmp(rb) == 0
	default:
		return a == b
	}
}

func decimalOf(n json.Number) (*big.Rat, *dgerr.StructuredError) {
	r, ok := new(big.Rat).SetString(n.String())
	if !ok {
		return nil, mismatch(fmt.Sprintf("not a finite decimal number: %q", n.String()))
	}
	return r, nil
}

func decimalOfAny(v any) (*big.Rat, *dgerr.StructuredError) {
	switch n := v.(type) {
	case json.Number:
		return decimalOf(n)
	case float64:
		r, ok := new(big.Rat).SetString(fmt.Sprintf("%v", n))
		if !ok {
			return nil, mismatch("not a finite decimal number")
		}
		return r, nil
	case int:
		return new(big.Rat).SetInt64(int64(n)), nil
	default:
		return nil, mismatch(fmt.Sprintf("expected value is not numeric: %T", v))
	}
}

// parseRFC3339 requires an explicit timezone offset (time.RFC3339 always
// does) and normalizes to UTC for ordering.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}
