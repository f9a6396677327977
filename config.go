package accessguard

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config represents a complete declarative rule configuration: rule
// sets, their sub-rules, groups and view types, applied in one pass so
// deployments can be seeded from a file.
type Config struct {
	Version uint16 `json:"version" yaml:"version"`

	Groups    []*UserGroup `json:"groups" yaml:"groups"`
	ViewTypes []*ViewType  `json:"view_types" yaml:"view_types"`
	RuleSets  []*RuleSet   `json:"rule_sets" yaml:"rule_sets"`

	ModelAccess     []*ModelAccess            `json:"model_access" yaml:"model_access"`
	FieldAccess     []*FieldAccess            `json:"field_access" yaml:"field_access"`
	FieldConditions []*FieldConditionalAccess `json:"field_conditions" yaml:"field_conditions"`
	DomainAccess    []*DomainAccess           `json:"domain_access" yaml:"domain_access"`
	HideButtonsTabs []*HideButtonsTabs        `json:"hide_buttons_tabs" yaml:"hide_buttons_tabs"`
	SearchPanel     []*SearchPanelAccess      `json:"search_panel" yaml:"search_panel"`
	Chatter         []*ChatterAccess          `json:"chatter" yaml:"chatter"`

	Engine EngineConfig `json:"engine" yaml:"engine"`
}

// EngineConfig carries the runtime tuning knobs.
type EngineConfig struct {
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks the configuration statically, without touching an
// engine: required names, domain syntax, dangling rule-set references.
func (c *Config) Validate() []error {
	var errs []error
	ruleSetIDs := make(map[string]bool, len(c.RuleSets))
	for i, rs := range c.RuleSets {
		if rs.Name == "" {
			errs = append(errs, fmt.Errorf("rule_sets[%d]: name is required", i))
		}
		if rs.ID != "" {
			ruleSetIDs[rs.ID] = true
		}
	}
	groupNames := make(map[string]bool)
	for i, g := range c.Groups {
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("groups[%d]: name is required", i))
			continue
		}
		if groupNames[g.Name] {
			errs = append(errs, fmt.Errorf("groups[%d]: duplicate name %s", i, g.Name))
		}
		groupNames[g.Name] = true
	}
	checkOwner := func(kind string, i int, ruleSetID string) {
		if ruleSetID == "" {
			errs = append(errs, fmt.Errorf("%s[%d]: rule_set_id is required", kind, i))
		} else if !ruleSetIDs[ruleSetID] {
			errs = append(errs, fmt.Errorf("%s[%d]: unknown rule set %s", kind, i, ruleSetID))
		}
	}
	for i, r := range c.ModelAccess {
		checkOwner("model_access", i, r.RuleSetID)
	}
	for i, r := range c.FieldAccess {
		checkOwner("field_access", i, r.RuleSetID)
		if len(r.Fields) == 0 {
			errs = append(errs, fmt.Errorf("field_access[%d]: at least one field is required", i))
		}
	}
	for i, r := range c.FieldConditions {
		checkOwner("field_conditions", i, r.RuleSetID)
		if r.ApplyAttrs {
			if _, err := ParseDomain(r.AttrsDomain); err != nil {
				errs = append(errs, fmt.Errorf("field_conditions[%d]: %w", i, err))
			}
		}
		if r.ApplyFieldDomain {
			if _, err := ParseDomain(r.FieldDomain); err != nil {
				errs = append(errs, fmt.Errorf("field_conditions[%d]: %w", i, err))
			}
		}
	}
	for i, r := range c.DomainAccess {
		checkOwner("domain_access", i, r.RuleSetID)
		if _, err := ParseDomain(r.Domain); err != nil {
			errs = append(errs, fmt.Errorf("domain_access[%d]: %w", i, err))
		}
	}
	for i, r := range c.HideButtonsTabs {
		checkOwner("hide_buttons_tabs", i, r.RuleSetID)
	}
	for i, r := range c.SearchPanel {
		checkOwner("search_panel", i, r.RuleSetID)
	}
	for i, r := range c.Chatter {
		checkOwner("chatter", i, r.RuleSetID)
	}
	return errs
}

// ApplyConfig seeds the engine's stores from a configuration. Rule sets
// already present (by id) are updated, everything else is created.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg.Engine.RistrettoNumCounter > 0 {
		if err := e.ConfigureCache(cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer); err != nil {
			return fmt.Errorf("configure cache: %w", err)
		}
	}
	for _, vt := range cfg.ViewTypes {
		if err := e.CreateViewType(ctx, vt); err != nil {
			return fmt.Errorf("create view type %s: %w", vt.TechName, err)
		}
	}
	for _, g := range cfg.Groups {
		if g.ID != "" {
			if _, err := e.groups.GetGroup(ctx, g.ID); err == nil {
				if err := e.UpdateGroup(ctx, g); err != nil {
					return fmt.Errorf("update group %s: %w", g.Name, err)
				}
				continue
			}
		}
		if err := e.CreateGroup(ctx, g); err != nil {
			return fmt.Errorf("create group %s: %w", g.Name, err)
		}
	}
	for _, rs := range cfg.RuleSets {
		if rs.ID != "" {
			if _, err := e.ruleSets.GetRuleSet(ctx, rs.ID); err == nil {
				if err := e.UpdateRuleSet(ctx, rs); err != nil {
					return fmt.Errorf("update rule set %s: %w", rs.Name, err)
				}
				continue
			}
		}
		if err := e.CreateRuleSet(ctx, rs); err != nil {
			return fmt.Errorf("create rule set %s: %w", rs.Name, err)
		}
	}
	for _, r := range cfg.ModelAccess {
		if err := e.CreateModelAccess(ctx, r); err != nil {
			return fmt.Errorf("create model access for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.FieldAccess {
		if err := e.CreateFieldAccess(ctx, r); err != nil {
			return fmt.Errorf("create field access for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.FieldConditions {
		if err := e.CreateFieldCondition(ctx, r); err != nil {
			return fmt.Errorf("create field condition for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.DomainAccess {
		if err := e.CreateDomainAccess(ctx, r); err != nil {
			return fmt.Errorf("create domain access for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.HideButtonsTabs {
		if err := e.CreateHideButtonsTabs(ctx, r); err != nil {
			return fmt.Errorf("create button/tab rule for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.SearchPanel {
		if err := e.CreateSearchPanelAccess(ctx, r); err != nil {
			return fmt.Errorf("create search panel rule for %s: %w", r.Model, err)
		}
	}
	for _, r := range cfg.Chatter {
		if err := e.CreateChatterAccess(ctx, r); err != nil {
			return fmt.Errorf("create chatter rule for %s: %w", r.Model, err)
		}
	}
	return nil
}

// ConfigureCache replaces the decision cache with one sized from the
// given knobs. The old cache is discarded, so all memoized decisions
// are lost, which is the safe direction.
func (e *Engine) ConfigureCache(numCounters, maxCost, buffer int64) error {
	cache, err := NewDecisionCache(numCounters, maxCost, buffer)
	if err != nil {
		return err
	}
	old := e.cache
	e.cache = cache
	if old != nil {
		old.Close()
	}
	return nil
}
