package accessguard

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ============================================================================
// QUERY-DOMAIN MINI-LANGUAGE
// ============================================================================
//
// Record filters use the host platform's prefix tuple syntax, stored as a
// JSON array: logical tokens "&", "|", "!" followed by their operands,
// and leaf triples [field, operator, value]. Example:
//
//	["|", ["state", "=", "draft"], ["user_id", "in", [1, 2]]]

// Logical connective tokens.
const (
	tokenAnd = "&"
	tokenOr  = "|"
	tokenNot = "!"
)

// Term is one element of a prefix-notation domain: a logical connective
// (Logic set, leaf fields empty) or a leaf condition.
type Term struct {
	Logic string `json:"logic,omitempty"`
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
}

func logic(tok string) Term { return Term{Logic: tok} }

// Cond builds a leaf condition term.
func Cond(field, op string, value any) Term {
	return Term{Field: field, Op: op, Value: value}
}

// Domain is a record filter in prefix notation.
type Domain []Term

// termOperators is the closed grammar of supported leaf operators and
// their negations. Operators that cannot be negated locally (hierarchy
// walks) map to the empty string and keep an explicit "!" prefix.
var termOperators = map[string]string{
	"=":         "!=",
	"!=":        "=",
	"<":         ">=",
	">":         "<=",
	"<=":        ">",
	">=":        "<",
	"in":        "not in",
	"not in":    "in",
	"like":      "not like",
	"not like":  "like",
	"ilike":     "not ilike",
	"not ilike": "ilike",
	"=like":     "not like",
	"=ilike":    "not ilike",
	"child_of":  "",
	"parent_of": "",
}

// infixOperators maps leaf operators to their infix boolean spelling.
// A missing entry means the operator has no expression form.
var infixOperators = map[string]string{
	"=":         "==",
	"!=":        "!=",
	"<":         "<",
	">":         ">",
	"<=":        "<=",
	">=":        ">=",
	"in":        "in",
	"not in":    "not in",
	"like":      "like",
	"ilike":     "ilike",
	"not like":  "not like",
	"not ilike": "not ilike",
	"=like":     "like",
	"=ilike":    "ilike",
}

// ParseDomain decodes a JSON-encoded domain string into a Domain. An
// empty or blank input yields a nil domain (no restriction). Unknown
// operators and malformed elements are rejected.
func ParseDomain(s string) (Domain, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid domain syntax: %w", err)
	}
	d := make(Domain, 0, len(raw))
	for _, el := range raw {
		switch v := el.(type) {
		case string:
			if v != tokenAnd && v != tokenOr && v != tokenNot {
				return nil, fmt.Errorf("invalid domain token %q", v)
			}
			d = append(d, logic(v))
		case []any:
			if len(v) != 3 {
				return nil, fmt.Errorf("invalid domain leaf: expected 3 elements, got %d", len(v))
			}
			field, ok := v[0].(string)
			if !ok || field == "" {
				return nil, fmt.Errorf("invalid domain leaf field %v", v[0])
			}
			op, ok := v[1].(string)
			if !ok {
				return nil, fmt.Errorf("invalid domain leaf operator %v", v[1])
			}
			if _, known := termOperators[op]; !known {
				return nil, fmt.Errorf("unknown domain operator %q", op)
			}
			d = append(d, Cond(field, op, v[2]))
		default:
			return nil, fmt.Errorf("invalid domain element %v", el)
		}
	}
	if _, err := Normalize(d); err != nil {
		return nil, err
	}
	return d, nil
}

// MarshalJSON renders the domain back into the host tuple-list form.
func (d Domain) MarshalJSON() ([]byte, error) {
	raw := make([]any, 0, len(d))
	for _, t := range d {
		if t.Logic != "" {
			raw = append(raw, t.Logic)
		} else {
			raw = append(raw, []any{t.Field, t.Op, t.Value})
		}
	}
	return json.Marshal(raw)
}

// String returns the JSON tuple-list form.
func (d Domain) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Normalize makes every conjunction explicit: the result consumes
// exactly one top-level expression. Malformed domains (dangling
// operators, missing operands) are rejected.
func Normalize(d Domain) (Domain, error) {
	if len(d) == 0 {
		return nil, nil
	}
	result := make(Domain, 0, len(d))
	expected := 1
	for _, t := range d {
		if expected == 0 {
			// an operand follows a complete expression: AND them
			result = append(Domain{logic(tokenAnd)}, result...)
			expected = 1
		}
		switch t.Logic {
		case tokenAnd, tokenOr:
			expected++
		case tokenNot:
			// unary, arity unchanged
		default:
			expected--
		}
		result = append(result, t)
	}
	if expected != 0 {
		return nil, fmt.Errorf("malformed domain: missing %d operand(s)", expected)
	}
	return result, nil
}

// AND combines domains so a record must satisfy all of them. Nil/empty
// domains contribute nothing.
func AND(domains ...Domain) Domain { return combine(tokenAnd, domains) }

// OR combines domains so a record may satisfy any of them. Nil/empty
// domains contribute nothing.
func OR(domains ...Domain) Domain { return combine(tokenOr, domains) }

func combine(tok string, domains []Domain) Domain {
	parts := make([]Domain, 0, len(domains))
	for _, d := range domains {
		nd, err := Normalize(d)
		if err != nil || len(nd) == 0 {
			continue
		}
		parts = append(parts, nd)
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	out := make(Domain, 0, len(parts)+1)
	for i := 0; i < len(parts)-1; i++ {
		out = append(out, logic(tok))
	}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DistributeNot negates the domain, pushing the negation down through
// connectives so the result stays a valid flat prefix domain that can
// be AND-ed with other filters. Leaves whose operator has no negation
// keep an explicit "!" prefix.
func DistributeNot(d Domain) (Domain, error) {
	nd, err := Normalize(d)
	if err != nil {
		return nil, err
	}
	if len(nd) == 0 {
		return nil, nil
	}
	out, rest := distributeNot(nd, true)
	if len(rest) != 0 {
		return nil, fmt.Errorf("malformed domain: %d trailing term(s)", len(rest))
	}
	return out, nil
}

func distributeNot(d Domain, negate bool) (Domain, Domain) {
	head, rest := d[0], d[1:]
	switch head.Logic {
	case tokenAnd, tokenOr:
		left, rest1 := distributeNot(rest, negate)
		right, rest2 := distributeNot(rest1, negate)
		tok := head.Logic
		if negate {
			if tok == tokenAnd {
				tok = tokenOr
			} else {
				tok = tokenAnd
			}
		}
		out := make(Domain, 0, 1+len(left)+len(right))
		out = append(out, logic(tok))
		out = append(out, left...)
		out = append(out, right...)
		return out, rest2
	case tokenNot:
		return distributeNot(rest, !negate)
	default:
		if !negate {
			return Domain{head}, rest
		}
		if neg := termOperators[head.Op]; neg != "" {
			return Domain{Cond(head.Field, neg, head.Value)}, rest
		}
		return Domain{logic(tokenNot), head}, rest
	}
}

// ToExpression compiles the domain into an infix boolean expression the
// presentation layer evaluates against record values. Unsupported
// operators (hierarchy walks) are rendered as an explicit marker rather
// than silently dropped.
func (d Domain) ToExpression() (string, error) {
	nd, err := Normalize(d)
	if err != nil {
		return "", err
	}
	if len(nd) == 0 {
		return "", nil
	}
	expr, rest := compileExpr(nd)
	if len(rest) != 0 {
		return "", fmt.Errorf("malformed domain: %d trailing term(s)", len(rest))
	}
	return expr, nil
}

func compileExpr(d Domain) (string, Domain) {
	head, rest := d[0], d[1:]
	switch head.Logic {
	case tokenAnd, tokenOr:
		word := "and"
		if head.Logic == tokenOr {
			word = "or"
		}
		left, rest1 := compileExpr(rest)
		right, rest2 := compileExpr(rest1)
		return fmt.Sprintf("(%s) %s (%s)", left, word, right), rest2
	case tokenNot:
		inner, rest1 := compileExpr(rest)
		return fmt.Sprintf("not (%s)", inner), rest1
	default:
		op, ok := infixOperators[head.Op]
		if !ok {
			return fmt.Sprintf("/* unsupported operator: %s */", head.Op), rest
		}
		return fmt.Sprintf("%s %s %s", head.Field, op, exprLiteral(head.Value)), rest
	}
}

// exprLiteral renders a leaf value the way the host expression language
// expects it.
func exprLiteral(v any) string {
	switch vv := v.(type) {
	case nil:
		return "None"
	case string:
		return "'" + strings.ReplaceAll(vv, "'", "\\'") + "'"
	case bool:
		if vv {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, 0, len(vv))
		for _, item := range vv {
			parts = append(parts, exprLiteral(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		if vv == float64(int64(vv)) {
			return fmt.Sprintf("%d", int64(vv))
		}
		return fmt.Sprintf("%v", vv)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

// CombineExpressions AND-joins two infix expressions, either possibly
// empty.
func CombineExpressions(prev, next string) string {
	switch {
	case prev == "":
		return next
	case next == "":
		return prev
	default:
		return fmt.Sprintf("(%s) and (%s)", prev, next)
	}
}

// Matches evaluates the domain against one record. Dotted field paths
// traverse nested map values. An empty domain matches everything.
// Operators without an in-memory semantics (hierarchy walks) are
// rejected, never miscompiled.
func (d Domain) Matches(record map[string]any) (bool, error) {
	nd, err := Normalize(d)
	if err != nil {
		return false, err
	}
	if len(nd) == 0 {
		return true, nil
	}
	ok, rest, err := evalDomain(nd, record)
	if err != nil {
		return false, err
	}
	if len(rest) != 0 {
		return false, fmt.Errorf("malformed domain: %d trailing term(s)", len(rest))
	}
	return ok, nil
}

func evalDomain(d Domain, record map[string]any) (bool, Domain, error) {
	head, rest := d[0], d[1:]
	switch head.Logic {
	case tokenAnd, tokenOr:
		left, rest1, err := evalDomain(rest, record)
		if err != nil {
			return false, nil, err
		}
		right, rest2, err := evalDomain(rest1, record)
		if err != nil {
			return false, nil, err
		}
		if head.Logic == tokenAnd {
			return left && right, rest2, nil
		}
		return left || right, rest2, nil
	case tokenNot:
		inner, rest1, err := evalDomain(rest, record)
		if err != nil {
			return false, nil, err
		}
		return !inner, rest1, nil
	default:
		ok, err := evalLeaf(head, record)
		if err != nil {
			return false, nil, err
		}
		return ok, rest, nil
	}
}

func evalLeaf(t Term, record map[string]any) (bool, error) {
	val := lookupField(record, t.Field)
	switch t.Op {
	case "=":
		return compareValues(val, t.Value) == 0, nil
	case "!=":
		return compareValues(val, t.Value) != 0, nil
	case "<":
		return compareValues(val, t.Value) < 0, nil
	case ">":
		return compareValues(val, t.Value) > 0, nil
	case "<=":
		return compareValues(val, t.Value) <= 0, nil
	case ">=":
		return compareValues(val, t.Value) >= 0, nil
	case "in":
		return valueIn(val, t.Value), nil
	case "not in":
		return !valueIn(val, t.Value), nil
	case "like", "=like":
		return matchLike(val, t.Value, false), nil
	case "not like":
		return !matchLike(val, t.Value, false), nil
	case "ilike", "=ilike":
		return matchLike(val, t.Value, true), nil
	case "not ilike":
		return !matchLike(val, t.Value, true), nil
	default:
		return false, fmt.Errorf("operator %q cannot be evaluated in memory", t.Op)
	}
}

func lookupField(record map[string]any, path string) any {
	cur := any(record)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// compareValues orders two leaf values; unequal incomparable values
// return -1, matching the engine's conservative deny-by-mismatch.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af == bf:
			return 0
		case af < bf:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			return -1
		}
	case nil:
		if b == nil {
			return 0
		}
	}
	return -1
}

func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	}
	return 0, false
}

func valueIn(val, set any) bool {
	items, ok := set.([]any)
	if !ok {
		return compareValues(val, set) == 0
	}
	for _, item := range items {
		if compareValues(val, item) == 0 {
			return true
		}
	}
	return false
}

// matchLike implements the SQL-ish pattern operators: a pattern without
// wildcards is a substring match, otherwise % and _ expand as usual.
func matchLike(val, pattern any, insensitive bool) bool {
	vs, ok := val.(string)
	if !ok {
		return false
	}
	ps, ok := pattern.(string)
	if !ok {
		return false
	}
	if insensitive {
		vs = strings.ToLower(vs)
		ps = strings.ToLower(ps)
	}
	if !strings.ContainsAny(ps, "%_") {
		return strings.Contains(vs, ps)
	}
	var sb strings.Builder
	for _, ch := range ps {
		switch ch {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	re, err := regexp.Compile("^" + sb.String() + "$")
	if err != nil {
		return false
	}
	return re.MatchString(vs)
}
