package filter

import (
	"encoding/json"
	"strings"
)

// Condition is the decoded form of a stored filter condition: either a
// leaf {field, op, value} or a composite AND/OR over child conditions.
// Decoding happens once per filter row; evaluation never re-parses JSON.
type Condition struct {
	And []Condition
	Or  []Condition

	Field string
	Op    string
	Value any
}

type rawCondition struct {
	And   []rawCondition  `json:"AND"`
	Or    []rawCondition  `json:"OR"`
	Field string          `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
}

// ParseCondition decodes a stored condition JSON document.
func ParseCondition(raw string) (*Condition, error) {
	var rc rawCondition
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return nil, err
	}
	c := fromRaw(rc)
	return &c, nil
}

func fromRaw(rc rawCondition) Condition {
	c := Condition{Field: rc.Field, Op: rc.Op}
	for _, sub := range rc.And {
		c.And = append(c.And, fromRaw(sub))
	}
	for _, sub := range rc.Or {
		c.Or = append(c.Or, fromRaw(sub))
	}
	if len(rc.Value) > 0 {
		var v any
		if err := json.Unmarshal(rc.Value, &v); err == nil {
			c.Value = v
		}
	}
	return c
}

// Evaluate applies the condition to the tender's flat attribute map.
// Missing fields, type mismatches, and unknown operators all evaluate to
// false rather than erroring.
func Evaluate(c *Condition, tender map[string]any) bool {
	if len(c.And) > 0 {
		for i := range c.And {
			if !Evaluate(&c.And[i], tender) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for i := range c.Or {
			if Evaluate(&c.Or[i], tender) {
				return true
			}
		}
		return false
	}

	if c.Field == "" || c.Op == "" || c.Value == nil {
		return false
	}

	actual := lookup(tender, c.Field)
	if actual == nil {
		return false
	}

	switch c.Op {
	case "=":
		return equal(actual, c.Value)
	case "!=":
		return !equal(actual, c.Value)
	case ">", "<", ">=", "<=":
		return compare(actual, c.Value, c.Op)
	case "contains":
		as, aok := actual.(string)
		vs, vok := c.Value.(string)
		if !aok || !vok {
			return false
		}
		return strings.Contains(strings.ToLower(as), strings.ToLower(vs))
	default:
		return false
	}
}

// lookup resolves a dotted path (e.g. "organizer.inn") in the flat map.
func lookup(data map[string]any, field string) any {
	keys := strings.Split(field, ".")
	var value any = data
	for _, key := range keys {
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value, ok = m[key]
		if !ok {
			return nil
		}
	}
	return value
}

func equal(a, b any) bool {
	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			return an == bn
		}
		return false
	}
	return a == b
}

func compare(a, b any, op string) bool {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		switch op {
		case ">":
			return an > bn
		case "<":
			return an < bn
		case ">=":
			return an >= bn
		case "<=":
			return an <= bn
		}
		return false
	}

	as, aok2 := a.(string)
	bs, bok2 := b.(string)
	if aok2 && bok2 {
		switch op {
		case ">":
			return as > bs
		case "<":
			return as < bs
		case ">=":
			return as >= bs
		case "<=":
			return as <= bs
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
