package accessguard

// Builders provide a fluent API for assembling configurations, rule
// sets and sub-rules. The condition side needs no builder: Cond, AND
// and OR compose Domain values directly.

// ConfigBuilder builds a Config
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:   1,
			Groups:    []*UserGroup{},
			ViewTypes: []*ViewType{},
			RuleSets:  []*RuleSet{},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddGroup(id, name string, userIDs ...string) *ConfigBuilder {
	b.cfg.Groups = append(b.cfg.Groups, &UserGroup{ID: id, Name: name, UserIDs: userIDs})
	return b
}

func (b *ConfigBuilder) AddViewType(name, techName string) *ConfigBuilder {
	b.cfg.ViewTypes = append(b.cfg.ViewTypes, &ViewType{Name: name, TechName: techName})
	return b
}

func (b *ConfigBuilder) AddRuleSet(rs *RuleSet) *ConfigBuilder {
	b.cfg.RuleSets = append(b.cfg.RuleSets, rs)
	return b
}

func (b *ConfigBuilder) AddModelAccess(r *ModelAccess) *ConfigBuilder {
	b.cfg.ModelAccess = append(b.cfg.ModelAccess, r)
	return b
}

func (b *ConfigBuilder) AddFieldAccess(r *FieldAccess) *ConfigBuilder {
	b.cfg.FieldAccess = append(b.cfg.FieldAccess, r)
	return b
}

func (b *ConfigBuilder) AddFieldCondition(r *FieldConditionalAccess) *ConfigBuilder {
	b.cfg.FieldConditions = append(b.cfg.FieldConditions, r)
	return b
}

func (b *ConfigBuilder) AddDomainAccess(r *DomainAccess) *ConfigBuilder {
	b.cfg.DomainAccess = append(b.cfg.DomainAccess, r)
	return b
}

func (b *ConfigBuilder) AddHideButtonsTabs(r *HideButtonsTabs) *ConfigBuilder {
	b.cfg.HideButtonsTabs = append(b.cfg.HideButtonsTabs, r)
	return b
}

func (b *ConfigBuilder) AddSearchPanel(r *SearchPanelAccess) *ConfigBuilder {
	b.cfg.SearchPanel = append(b.cfg.SearchPanel, r)
	return b
}

func (b *ConfigBuilder) AddChatter(r *ChatterAccess) *ConfigBuilder {
	b.cfg.Chatter = append(b.cfg.Chatter, r)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

// RuleSetBuilder builds a RuleSet
type RuleSetBuilder struct {
	rs *RuleSet
}

func NewRuleSetBuilder(name string) *RuleSetBuilder {
	return &RuleSetBuilder{rs: &RuleSet{Name: name, Active: true}}
}

func (b *RuleSetBuilder) ID(id string) *RuleSetBuilder       { b.rs.ID = id; return b }
func (b *RuleSetBuilder) Active(active bool) *RuleSetBuilder { b.rs.Active = active; return b }
func (b *RuleSetBuilder) Users(ids ...string) *RuleSetBuilder {
	b.rs.UserIDs = append(b.rs.UserIDs, ids...)
	return b
}
func (b *RuleSetBuilder) Groups(ids ...string) *RuleSetBuilder {
	b.rs.ApplyByGroups = true
	b.rs.GroupIDs = append(b.rs.GroupIDs, ids...)
	return b
}
func (b *RuleSetBuilder) Companies(ids ...string) *RuleSetBuilder {
	b.rs.CompanyIDs = append(b.rs.CompanyIDs, ids...)
	return b
}
func (b *RuleSetBuilder) AllCompanies() *RuleSetBuilder {
	b.rs.ApplyWithoutCompanies = true
	return b
}
func (b *RuleSetBuilder) DefaultInternal() *RuleSetBuilder { b.rs.DefaultInternalUser = true; return b }
func (b *RuleSetBuilder) DefaultPortal() *RuleSetBuilder   { b.rs.DefaultPortalUser = true; return b }
func (b *RuleSetBuilder) Readonly() *RuleSetBuilder        { b.rs.Readonly = true; return b }
func (b *RuleSetBuilder) DisableLogin() *RuleSetBuilder    { b.rs.DisableLogin = true; return b }
func (b *RuleSetBuilder) DisableDebug() *RuleSetBuilder    { b.rs.DisableDebug = true; return b }
func (b *RuleSetBuilder) HideMenus(ids ...string) *RuleSetBuilder {
	b.rs.HideMenuIDs = append(b.rs.HideMenuIDs, ids...)
	return b
}
func (b *RuleSetBuilder) HideCreate() *RuleSetBuilder { b.rs.HideCreate = true; return b }
func (b *RuleSetBuilder) HideEdit() *RuleSetBuilder   { b.rs.HideEdit = true; return b }
func (b *RuleSetBuilder) HideUnlink() *RuleSetBuilder { b.rs.HideUnlink = true; return b }
func (b *RuleSetBuilder) HideExport() *RuleSetBuilder { b.rs.HideExport = true; return b }
func (b *RuleSetBuilder) Build() *RuleSet             { return b.rs }

// FieldAccessBuilder builds a FieldAccess
type FieldAccessBuilder struct {
	r *FieldAccess
}

func NewFieldAccessBuilder(ruleSetID, model string) *FieldAccessBuilder {
	return &FieldAccessBuilder{r: &FieldAccess{RuleSetID: ruleSetID, Model: model}}
}

func (b *FieldAccessBuilder) Fields(names ...string) *FieldAccessBuilder {
	b.r.Fields = append(b.r.Fields, names...)
	return b
}
func (b *FieldAccessBuilder) Invisible() *FieldAccessBuilder { b.r.Invisible = true; return b }
func (b *FieldAccessBuilder) Readonly() *FieldAccessBuilder  { b.r.Readonly = true; return b }
func (b *FieldAccessBuilder) Required() *FieldAccessBuilder  { b.r.Required = true; return b }
func (b *FieldAccessBuilder) RemoveCreateOption() *FieldAccessBuilder {
	b.r.RemoveCreateOption = true
	return b
}
func (b *FieldAccessBuilder) RemoveEditOption() *FieldAccessBuilder {
	b.r.RemoveEditOption = true
	return b
}
func (b *FieldAccessBuilder) RemoveInternalLink() *FieldAccessBuilder {
	b.r.RemoveInternalLink = true
	return b
}
func (b *FieldAccessBuilder) Build() *FieldAccess { return b.r }

// DomainAccessBuilder builds a DomainAccess
type DomainAccessBuilder struct {
	r *DomainAccess
}

func NewDomainAccessBuilder(ruleSetID, model string, d Domain) *DomainAccessBuilder {
	return &DomainAccessBuilder{r: &DomainAccess{RuleSetID: ruleSetID, Model: model, Domain: d.String()}}
}

func (b *DomainAccessBuilder) Soft() *DomainAccessBuilder { b.r.SoftRestrict = true; return b }

// Restrict marks the operations the domain excludes records from.
func (b *DomainAccessBuilder) Restrict(ops ...string) *DomainAccessBuilder {
	for _, op := range ops {
		switch op {
		case OpRead:
			b.r.RestrictRead = true
		case OpWrite:
			b.r.RestrictWrite = true
		case OpCreate:
			b.r.RestrictCreate = true
		case OpUnlink:
			b.r.RestrictUnlink = true
		}
	}
	return b
}
func (b *DomainAccessBuilder) Build() *DomainAccess { return b.r }
