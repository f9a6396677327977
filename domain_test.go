package accessguard

import (
	"strings"
	"testing"
)

func TestParseDomainRejectsUnknownOperator(t *testing.T) {
	if _, err := ParseDomain(`[["state", "resembles", "draft"]]`); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
	if _, err := ParseDomain(`["&", ["state", "=", "draft"]]`); err == nil {
		t.Fatalf("expected error for dangling connective")
	}
	if _, err := ParseDomain(`not json`); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestParseDomainEmptyIsNil(t *testing.T) {
	d, err := ParseDomain("   ")
	if err != nil {
		t.Fatalf("parse blank: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil domain, got %v", d)
	}
}

func TestNormalizeInsertsImplicitAnd(t *testing.T) {
	d := Domain{
		Cond("state", "=", "draft"),
		Cond("active", "=", true),
	}
	nd, err := Normalize(d)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(nd) != 3 || nd[0].Logic != "&" {
		t.Fatalf("expected leading & connective, got %v", nd)
	}
}

func TestANDDropsEmptyOperands(t *testing.T) {
	a := Domain{Cond("state", "=", "draft")}
	combined := AND(nil, a, Domain{})
	if len(combined) != 1 || combined[0].Field != "state" {
		t.Fatalf("expected single leaf, got %v", combined)
	}
	both := AND(a, Domain{Cond("active", "=", true)})
	if len(both) != 3 || both[0].Logic != "&" {
		t.Fatalf("expected prefixed conjunction, got %v", both)
	}
}

func TestDistributeNotFlipsOperatorsAndConnectives(t *testing.T) {
	d := Domain{
		logic("|"),
		Cond("state", "=", "draft"),
		Cond("amount", ">", 100),
	}
	neg, err := DistributeNot(d)
	if err != nil {
		t.Fatalf("distribute not: %v", err)
	}
	if neg[0].Logic != "&" {
		t.Fatalf("expected | to flip to &, got %v", neg[0])
	}
	if neg[1].Op != "!=" || neg[2].Op != "<=" {
		t.Fatalf("expected flipped leaf operators, got %v %v", neg[1], neg[2])
	}
}

func TestDistributeNotKeepsHierarchyOperatorExplicit(t *testing.T) {
	d := Domain{Cond("category_id", "child_of", 7)}
	neg, err := DistributeNot(d)
	if err != nil {
		t.Fatalf("distribute not: %v", err)
	}
	if len(neg) != 2 || neg[0].Logic != "!" || neg[1].Op != "child_of" {
		t.Fatalf("expected explicit ! prefix, got %v", neg)
	}
}

func TestDistributeNotDoubleNegation(t *testing.T) {
	d := Domain{logic("!"), Cond("state", "=", "draft")}
	neg, err := DistributeNot(d)
	if err != nil {
		t.Fatalf("distribute not: %v", err)
	}
	if len(neg) != 1 || neg[0].Op != "=" {
		t.Fatalf("expected double negation to cancel, got %v", neg)
	}
}

func TestToExpression(t *testing.T) {
	d := Domain{
		logic("|"),
		Cond("state", "=", "draft"),
		Cond("user_id", "in", []any{float64(1), float64(2)}),
	}
	expr, err := d.ToExpression()
	if err != nil {
		t.Fatalf("to expression: %v", err)
	}
	want := "(state == 'draft') or (user_id in [1, 2])"
	if expr != want {
		t.Fatalf("expected %q, got %q", want, expr)
	}
}

func TestToExpressionLiterals(t *testing.T) {
	d := Domain{logic("&"), Cond("active", "=", true), Cond("parent_id", "=", nil)}
	expr, err := d.ToExpression()
	if err != nil {
		t.Fatalf("to expression: %v", err)
	}
	if !strings.Contains(expr, "True") || !strings.Contains(expr, "None") {
		t.Fatalf("expected python-style literals, got %q", expr)
	}
}

func TestToExpressionMarksUnsupportedOperator(t *testing.T) {
	d := Domain{Cond("category_id", "child_of", 7)}
	expr, err := d.ToExpression()
	if err != nil {
		t.Fatalf("to expression: %v", err)
	}
	if !strings.Contains(expr, "unsupported operator: child_of") {
		t.Fatalf("expected unsupported marker, got %q", expr)
	}
}

func TestCombineExpressions(t *testing.T) {
	if got := CombineExpressions("", "a == 1"); got != "a == 1" {
		t.Fatalf("empty prev: got %q", got)
	}
	if got := CombineExpressions("a == 1", ""); got != "a == 1" {
		t.Fatalf("empty next: got %q", got)
	}
	if got := CombineExpressions("a == 1", "b == 2"); got != "(a == 1) and (b == 2)" {
		t.Fatalf("conjunction: got %q", got)
	}
}

func TestMatches(t *testing.T) {
	record := map[string]any{
		"state":  "draft",
		"amount": 150,
		"partner": map[string]any{
			"name": "Acme Industries",
		},
	}
	cases := []struct {
		domain Domain
		want   bool
	}{
		{Domain{Cond("state", "=", "draft")}, true},
		{Domain{Cond("state", "!=", "draft")}, false},
		{Domain{Cond("amount", ">", 100)}, true},
		{Domain{Cond("amount", "<=", 100)}, false},
		{Domain{Cond("state", "in", []any{"draft", "done"})}, true},
		{Domain{Cond("partner.name", "ilike", "acme")}, true},
		{Domain{Cond("partner.name", "like", "Acme%")}, true},
		{Domain{Cond("partner.name", "=like", "Acme%")}, true},
		{Domain{logic("|"), Cond("state", "=", "done"), Cond("amount", ">", 100)}, true},
		{Domain{logic("!"), Cond("state", "=", "draft")}, false},
		{nil, true},
	}
	for i, tc := range cases {
		got, err := tc.domain.Matches(record)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestMatchesRejectsHierarchyOperators(t *testing.T) {
	d := Domain{Cond("category_id", "child_of", 7)}
	if _, err := d.Matches(map[string]any{"category_id": 7}); err == nil {
		t.Fatalf("expected error for hierarchy operator")
	}
}

func TestDomainJSONRoundtrip(t *testing.T) {
	src := `["|",["state","=","draft"],["user_id","in",[1,2]]]`
	d, err := ParseDomain(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := d.String()
	d2, err := ParseDomain(out)
	if err != nil {
		t.Fatalf("reparse %q: %v", out, err)
	}
	if len(d2) != len(d) {
		t.Fatalf("roundtrip changed arity: %d != %d", len(d2), len(d))
	}
}
