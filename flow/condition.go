package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LogicOperator combines rule results within a condition group.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// ConditionRule compares one variable from user data against a value.
// When ValueType is "variable", Value names another user-data variable and
// the comparison is against that variable's current value.
type ConditionRule struct {
	ID            string        `json:"id"`
	Variable      string        `json:"variable"`
	Operator      string        `json:"operator"`
	Value         string        `json:"value"`
	ValueType     string        `json:"valueType,omitempty"` // "static" (default) or "variable"
	LogicOperator LogicOperator `json:"logicOperator,omitempty"`
}

// ConditionGroup is an ordered set of rules combined with one logic
// operator. A condition node owns an ordered list of groups; the first
// group that evaluates true selects the edge whose sourceHandle equals the
// group id.
type ConditionGroup struct {
	ID                 string          `json:"id"`
	Conditions         []ConditionRule `json:"conditions"`
	GroupLogicOperator LogicOperator   `json:"groupLogicOperator,omitempty"`
}

// EvaluateGroups evaluates groups in declaration order against user data
// and returns the id of the first matching group. ok is false when no
// group matched. Evaluation is deterministic: same data, same result.
func EvaluateGroups(groups []ConditionGroup, userData map[string]any) (handle string, ok bool) {
	for _, g := range groups {
		if evaluateGroup(g, userData) {
			return g.ID, true
		}
	}
	return "", false
}

func evaluateGroup(g ConditionGroup, userData map[string]any) bool {
	if len(g.Conditions) == 0 {
		return false
	}
	op := g.GroupLogicOperator
	if op == "" {
		op = LogicAnd
	}

	result := evaluateRule(g.Conditions[0], userData)
	for _, rule := range g.Conditions[1:] {
		// Short-circuit once the combined result is settled.
		if op == LogicAnd && !result {
			return false
		}
		if op == LogicOr && result {
			return true
		}
		r := evaluateRule(rule, userData)
		if op == LogicOr {
			result = result || r
		} else {
			result = result && r
		}
	}
	return result
}

func evaluateRule(rule ConditionRule, userData map[string]any) bool {
	left, leftOK := userData[rule.Variable]

	right := any(rule.Value)
	if rule.ValueType == "variable" {
		right = userData[rule.Value]
	}

	switch rule.Operator {
	case "is_empty":
		return !leftOK || stringify(left) == ""
	case "is_not_empty":
		return leftOK && stringify(left) != ""
	}

	if !leftOK {
		// A missing variable only matches not_equals / not_contains / not_in.
		return strings.HasPrefix(rule.Operator, "not_")
	}

	switch rule.Operator {
	case "equals":
		return compareEqual(left, right)
	case "not_equals":
		return !compareEqual(left, right)
	case "contains":
		return strings.Contains(stringify(left), stringify(right))
	case "not_contains":
		return !strings.Contains(stringify(left), stringify(right))
	case "starts_with":
		return strings.HasPrefix(stringify(left), stringify(right))
	case "ends_with":
		return strings.HasSuffix(stringify(left), stringify(right))
	case "greater_than":
		return compareOrder(left, right) > 0
	case "greater_or_equal":
		return compareOrder(left, right) >= 0
	case "less_than":
		return compareOrder(left, right) < 0
	case "less_or_equal":
		return compareOrder(left, right) <= 0
	case "in":
		return containsMember(right, left)
	case "not_in":
		return !containsMember(right, left)
	default:
		return false
	}
}

// compareEqual is numeric-aware: when both operands parse as numbers the
// comparison is numeric, so "18" equals 18. Otherwise it falls back to
// string equality.
func compareEqual(left, right any) bool {
	if lf, lok := toNumber(left); lok {
		if rf, rok := toNumber(right); rok {
			return lf == rf
		}
	}
	return stringify(left) == stringify(right)
}

// compareOrder orders two operands. Both parsing as numbers gives a numeric
// comparison; otherwise the comparison is lexicographic on their string
// forms. This coercion rule is fixed and covered by tests; authors who need
// numeric ordering must supply values that parse as numbers.
func compareOrder(left, right any) int {
	if lf, lok := toNumber(left); lok {
		if rf, rok := toNumber(right); rok {
			switch {
			case lf < rf:
				return -1
			case lf > rf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(stringify(left), stringify(right))
}

// containsMember reports whether member is one of the elements of set. A
// slice value is checked element-wise; a string is treated as a
// comma-separated list.
func containsMember(set, member any) bool {
	m := stringify(member)
	switch s := set.(type) {
	case []any:
		for _, v := range s {
			if compareEqual(v, member) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range s {
			if v == m {
				return true
			}
		}
		return false
	default:
		for _, part := range strings.Split(stringify(set), ",") {
			if strings.TrimSpace(part) == m {
				return true
			}
		}
		return false
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
