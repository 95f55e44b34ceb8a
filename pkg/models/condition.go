// Condition evaluation for the execution engine. The client never calls
// into this; it relays conditions verbatim.

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported condition operators.
const (
	OperatorEquals    = "equals"
	OperatorNotEquals = "not_equals"
	OperatorGreater   = "greater_than"
	OperatorLess      = "less_than"
	OperatorContains  = "contains"
)

// Match evaluates the condition against an event parameter document. A
// parameter absent from the document never matches.
func (c Condition) Match(params map[string]any) (bool, error) {
	actual, ok := params[c.Parameter]
	if !ok {
		return false, nil
	}

	switch c.Operator {
	case OperatorEquals:
		return looselyEqual(actual, c.Value), nil
	case OperatorNotEquals:
		return !looselyEqual(actual, c.Value), nil
	case OperatorGreater, OperatorLess:
		left, err := toFloat(actual)
		if err != nil {
			return false, fmt.Errorf("condition on %q: %w", c.Parameter, err)
		}

		right, err := toFloat(c.Value)
		if err != nil {
			return false, fmt.Errorf("condition on %q: %w", c.Parameter, err)
		}

		if c.Operator == OperatorGreater {
			return left > right, nil
		}

		return left < right, nil
	case OperatorContains:
		return strings.Contains(toString(actual), toString(c.Value)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// MatchAll reports whether every condition matches. An empty list matches.
func MatchAll(conditions []Condition, params map[string]any) (bool, error) {
	for _, c := range conditions {
		ok, err := c.Match(params)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func looselyEqual(a, b any) bool {
	if fa, errA := toFloat(a); errA == nil {
		if fb, errB := toFloat(b); errB == nil {
			return fa == fb
		}
	}

	return toString(a) == toString(b)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number: %w", n, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
