package alerting

import (
	"reflect"
	"strings"
)

// matchesOperator evaluates one condition clause operator against the diff's
// new value. A value whose type does not fit the operator fails the clause
// quietly; a bad clause must never take down the evaluation.
func matchesOperator(operator string, newValue, clauseValue any) bool {
	switch operator {
	case "equal_to":
		return looselyEqual(newValue, clauseValue)
	case "shares_at_least_one_element_with":
		return len(intersection(asList(newValue), asList(clauseValue))) > 0
	case "shares_no_elements_with":
		if newValue == nil {
			return false
		}
		return len(intersection(asList(newValue), asList(clauseValue))) == 0
	case "contains":
		return containsValue(newValue, clauseValue)
	case "greater_than":
		a, okA := asNumber(newValue)
		b, okB := asNumber(clauseValue)
		return okA && okB && a > b
	case "less_than":
		a, okA := asNumber(newValue)
		b, okB := asNumber(clauseValue)
		return okA && okB && a < b
	case "non_empty":
		return nonEmpty(newValue)
	default:
		// Unknown operator: the clause's name already matched the diff,
		// which is the primary trigger condition.
		return true
	}
}

// looselyEqual compares values after numeric normalization, so a condition
// value of int 300 matches a JSON-decoded 300.0.
func looselyEqual(a, b any) bool {
	if na, ok := asNumber(a); ok {
		if nb, ok := asNumber(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// asNumber normalizes the numeric types JSON decoding and condition
// authoring produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asList returns the value as a list. A scalar becomes a one-element list,
// so shares_* operators work against plain diff values like a priority.
func asList(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		return l
	case []string:
		converted := make([]any, len(l))
		for i, s := range l {
			converted[i] = s
		}
		return converted
	}
	return []any{v}
}

func intersection(a, b []any) []any {
	var shared []any
	for _, av := range a {
		for _, bv := range b {
			if looselyEqual(av, bv) {
				shared = append(shared, av)
				break
			}
		}
	}
	return shared
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	default:
		for _, v := range asList(haystack) {
			if looselyEqual(v, needle) {
				return true
			}
		}
	}
	return false
}

func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
