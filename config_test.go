package accessguard_test

import (
	"context"
	"strings"
	"testing"

	"github.com/oarkflow/accessguard"
)

const seedConfigYAML = `
version: 1
groups:
  - id: g-sales
    name: Sales Team
    user_ids: [u1, u2]
view_types:
  - techname: kanban
    name: Kanban
rule_sets:
  - id: rs-main
    name: Sales restrictions
    active: true
    apply_without_companies: true
    apply_by_groups: true
    group_ids: [g-sales]
model_access:
  - rule_set_id: rs-main
    model: sale.order
    hide_create: true
field_access:
  - rule_set_id: rs-main
    model: sale.order
    fields: [amount]
    invisible: true
domain_access:
  - rule_set_id: rs-main
    model: sale.order
    domain: '[["state", "=", "done"]]'
    restrict_write: true
engine:
  ristretto_num_counter: 1000
  ristretto_max_cost: 100
  ristretto_buffer: 64
`

func TestLoadAndApplyConfig(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	cfg, err := accessguard.NewConfigLoader().LoadYAML([]byte(seedConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("validate: %v", errs)
	}
	if err := env.engine.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// the rule set targets the group, membership carries it to u1
	dec, err := env.engine.ModelRules(ctx, accessguard.Identity{UserID: "u1"}, "sale.order")
	if err != nil {
		t.Fatalf("model rules: %v", err)
	}
	if !dec.HideCreate {
		t.Fatalf("seeded model access did not apply")
	}
	fields, err := env.engine.FieldRules(ctx, accessguard.Identity{UserID: "u2"}, "sale.order")
	if err != nil {
		t.Fatalf("field rules: %v", err)
	}
	if !fields.Fields["amount"].Invisible {
		t.Fatalf("seeded field access did not apply")
	}
	// a user outside the group stays unrestricted
	outside, err := env.engine.ModelRules(ctx, accessguard.Identity{UserID: "u9"}, "sale.order")
	if err != nil {
		t.Fatalf("model rules: %v", err)
	}
	if outside.HideCreate {
		t.Fatalf("rule set leaked outside the group")
	}
}

func TestApplyConfigIsIdempotentForKeyedRecords(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	cfg, err := accessguard.NewConfigLoader().LoadYAML([]byte(seedConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := env.engine.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// keyed records (groups, rule sets) update in place on re-apply
	cfg2, err := accessguard.NewConfigLoader().LoadYAML([]byte(seedConfigYAML))
	if err != nil {
		t.Fatalf("reload yaml: %v", err)
	}
	cfg2.ModelAccess = nil
	cfg2.FieldAccess = nil
	cfg2.DomainAccess = nil
	cfg2.ViewTypes = nil
	cfg2.RuleSets[0].Name = "Sales restrictions v2"
	if err := env.engine.ApplyConfig(ctx, cfg2); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	rs, err := env.engine.GetRuleSet(ctx, "rs-main")
	if err != nil {
		t.Fatalf("get rule set: %v", err)
	}
	if rs.Name != "Sales restrictions v2" {
		t.Fatalf("rule set was not updated in place: %q", rs.Name)
	}
}

func TestConfigValidateCatchesDanglingReferences(t *testing.T) {
	cfg := &accessguard.Config{
		RuleSets: []*accessguard.RuleSet{{ID: "rs-1"}},
		Groups: []*accessguard.UserGroup{
			{Name: "dup"}, {Name: "dup"}, {},
		},
		ModelAccess: []*accessguard.ModelAccess{
			{RuleSetID: "rs-ghost", Model: "sale.order"},
			{Model: "sale.order"},
		},
		FieldAccess: []*accessguard.FieldAccess{
			{RuleSetID: "rs-1", Model: "sale.order"},
		},
		FieldConditions: []*accessguard.FieldConditionalAccess{
			{RuleSetID: "rs-1", ApplyAttrs: true, AttrsDomain: `[["state", "bogus", 1]]`},
		},
		DomainAccess: []*accessguard.DomainAccess{
			{RuleSetID: "rs-1", Model: "sale.order", Domain: "not a domain"},
		},
	}
	errs := cfg.Validate()
	wanted := []string{
		"name is required",          // rule set and empty group
		"duplicate name dup",        // group names
		"unknown rule set rs-ghost", // dangling owner
		"rule_set_id is required",   // ownerless model access
		"at least one field",        // empty field list
		"field_conditions[0]",       // bad attrs domain
		"domain_access[0]",          // unparsable domain
	}
	joined := ""
	for _, err := range errs {
		joined += err.Error() + "\n"
	}
	for _, want := range wanted {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in:\n%s", want, joined)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	loader := accessguard.NewConfigLoader()
	cfg, err := loader.LoadYAML([]byte(seedConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	yamlOut, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	back, err := loader.LoadYAML(yamlOut)
	if err != nil {
		t.Fatalf("reload yaml: %v", err)
	}
	if len(back.RuleSets) != 1 || back.RuleSets[0].ID != "rs-main" || !back.RuleSets[0].ApplyByGroups {
		t.Fatalf("yaml round trip lost rule set data: %+v", back.RuleSets)
	}
	if back.Engine.RistrettoNumCounter != 1000 {
		t.Fatalf("yaml round trip lost engine knobs: %+v", back.Engine)
	}

	jsonOut, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	back, err = loader.LoadJSON(jsonOut)
	if err != nil {
		t.Fatalf("reload json: %v", err)
	}
	if len(back.DomainAccess) != 1 || !back.DomainAccess[0].RestrictWrite {
		t.Fatalf("json round trip lost domain access: %+v", back.DomainAccess)
	}

	if _, err := loader.LoadJSON([]byte("{nope")); err == nil {
		t.Fatalf("malformed json must fail to load")
	}
}
