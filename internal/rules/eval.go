package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EvalContext is the slot/request context a condition tree is evaluated
// against. Keys are dotted field paths, e.g. "slot.doctor_id" or
// "patient.visit_count_30d".
type EvalContext map[string]any

// Lookup resolves a dotted field path. Returns (nil, false) if any
// intermediate segment is missing.
func (c EvalContext) Lookup(field string) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = map[string]any(c)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Evaluate returns whether a condition tree is satisfied against ctx.
func Evaluate(cond Condition, ctx EvalContext) (bool, error) {
	if !cond.IsLeaf() {
		switch cond.Combinator {
		case CombinatorAll:
			for _, child := range cond.Children {
				ok, err := Evaluate(child, ctx)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		case CombinatorAny:
			for _, child := range cond.Children {
				ok, err := Evaluate(child, ctx)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		case CombinatorNone:
			for _, child := range cond.Children {
				ok, err := Evaluate(child, ctx)
				if err != nil {
					return false, err
				}
				if ok {
					return false, nil
				}
			}
			return true, nil
		case CombinatorNot:
			if len(cond.Children) != 1 {
				return false, fmt.Errorf("rules: not combinator requires exactly one child, got %d", len(cond.Children))
			}
			ok, err := Evaluate(cond.Children[0], ctx)
			if err != nil {
				return false, err
			}
			return !ok, nil
		default:
			return false, fmt.Errorf("rules: unknown combinator %q", cond.Combinator)
		}
	}
	return evalLeaf(cond, ctx)
}

func evalLeaf(leaf Condition, ctx EvalContext) (bool, error) {
	value, present := ctx.Lookup(leaf.Field)

	switch leaf.Operator {
	case OpIsNull:
		return !present || value == nil, nil
	case OpIsNotNull:
		return present && value != nil, nil
	}

	if !present || value == nil {
		// Any comparison against a missing field fails the leaf, except the
		// null checks handled above.
		return false, nil
	}

	switch leaf.Operator {
	case OpEquals:
		return compareEqual(value, leaf.Value, leaf.CaseSensitive), nil
	case OpNotEquals:
		return !compareEqual(value, leaf.Value, leaf.CaseSensitive), nil
	case OpGreaterThan:
		return compareNumeric(value, leaf.Value, func(a, b float64) bool { return a > b })
	case OpGreaterOrEqual:
		return compareNumeric(value, leaf.Value, func(a, b float64) bool { return a >= b })
	case OpLessThan:
		return compareNumeric(value, leaf.Value, func(a, b float64) bool { return a < b })
	case OpLessOrEqual:
		return compareNumeric(value, leaf.Value, func(a, b float64) bool { return a <= b })
	case OpContains:
		return stringContains(value, leaf.Value, leaf.CaseSensitive), nil
	case OpNotContains:
		return !stringContains(value, leaf.Value, leaf.CaseSensitive), nil
	case OpStartsWith:
		return stringPrefix(value, leaf.Value, leaf.CaseSensitive, true), nil
	case OpEndsWith:
		return stringPrefix(value, leaf.Value, leaf.CaseSensitive, false), nil
	case OpIn:
		return membership(value, leaf.Value, leaf.CaseSensitive, true), nil
	case OpNotIn:
		return !membership(value, leaf.Value, leaf.CaseSensitive, true), nil
	case OpBetween:
		return between(value, leaf.Value)
	case OpRegex:
		return matchRegex(value, leaf.Value, leaf.CaseSensitive)
	default:
		return false, fmt.Errorf("rules: unknown operator %q", leaf.Operator)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func compareEqual(a, b any, caseSensitive bool) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if caseSensitive {
			return as == bs
		}
		return strings.EqualFold(as, bs)
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(a, b any, cmp func(x, y float64) bool) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("rules: numeric comparison needs numeric operands, got %T and %T", a, b)
	}
	return cmp(af, bf), nil
}

func stringContains(a, b any, caseSensitive bool) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	if !caseSensitive {
		as, bs = strings.ToLower(as), strings.ToLower(bs)
	}
	return strings.Contains(as, bs)
}

func stringPrefix(a, b any, caseSensitive, prefix bool) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	if !caseSensitive {
		as, bs = strings.ToLower(as), strings.ToLower(bs)
	}
	if prefix {
		return strings.HasPrefix(as, bs)
	}
	return strings.HasSuffix(as, bs)
}

func membership(value, list any, caseSensitive, shouldBeIn bool) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEqual(value, item, caseSensitive) {
			return shouldBeIn
		}
	}
	return !shouldBeIn
}

func between(value, bounds any) (bool, error) {
	items, ok := bounds.([]any)
	if !ok || len(items) != 2 {
		return false, fmt.Errorf("rules: between operator requires a 2-element array bound")
	}
	v, ok := toFloat(value)
	if !ok {
		return false, fmt.Errorf("rules: between operator requires a numeric field value")
	}
	lo, lok := toFloat(items[0])
	hi, hok := toFloat(items[1])
	if !lok || !hok {
		return false, fmt.Errorf("rules: between operator requires numeric bounds")
	}
	return v >= lo && v <= hi, nil
}

func matchRegex(value, pattern any, caseSensitive bool) (bool, error) {
	vs, ok := value.(string)
	if !ok {
		return false, nil
	}
	ps, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("rules: regex operator requires a string pattern")
	}
	if !caseSensitive {
		ps = "(?i)" + ps
	}
	re, err := regexp.Compile(ps)
	if err != nil {
		return false, fmt.Errorf("rules: invalid regex %q: %w", ps, err)
	}
	return re.MatchString(vs), nil
}
