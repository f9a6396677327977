package accessguard

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/accessguard/logger"
)

// ============================================================================
// ENGINE
// ============================================================================

// Engine ties the stores, the decision cache and the host collaborators
// together. All administrative writes go through it so the cache
// invalidation contract holds: any rule mutation flushes every memoized
// decision before the write returns.
type Engine struct {
	ruleSets RuleSetStore
	subRules SubRuleStore
	groups   GroupStore
	nodes    ViewNodeStore
	refs     ReferenceStore

	cache *DecisionCache
	log   logger.Logger

	registry ModelRegistry
	views    ViewProvider
	host     HostPolicy

	// privileged identities rule sets may never target and the gate
	// never restricts
	protected map[string]bool

	dist *SnapshotDistributor

	cacheNumCounters int64
	cacheMaxCost     int64
	cacheBuffer      int64
}

// EngineOption configures an Engine during construction.
type EngineOption func(*Engine) error

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithModelRegistry installs the host entity metadata registry.
func WithModelRegistry(r ModelRegistry) EngineOption {
	return func(e *Engine) error {
		e.registry = r
		return nil
	}
}

// WithViewProvider installs the host combined-view source used by node
// discovery.
func WithViewProvider(v ViewProvider) EngineOption {
	return func(e *Engine) error {
		e.views = v
		return nil
	}
}

// WithHostPolicy installs the host permission layer the gate narrows.
func WithHostPolicy(h HostPolicy) EngineOption {
	return func(e *Engine) error {
		e.host = h
		return nil
	}
}

// WithProtectedUsers marks privileged identities (root administrator,
// automation user). Rule sets may not target them and access checks
// skip straight to the host policy.
func WithProtectedUsers(userIDs ...string) EngineOption {
	return func(e *Engine) error {
		for _, id := range userIDs {
			e.protected[id] = true
		}
		return nil
	}
}

// WithCacheSize overrides the decision cache sizing knobs.
func WithCacheSize(numCounters, maxCost, buffer int64) EngineOption {
	return func(e *Engine) error {
		e.cacheNumCounters = numCounters
		e.cacheMaxCost = maxCost
		e.cacheBuffer = buffer
		return nil
	}
}

// NewEngine builds an Engine over the given stores.
func NewEngine(
	ruleSets RuleSetStore,
	subRules SubRuleStore,
	groups GroupStore,
	nodes ViewNodeStore,
	refs ReferenceStore,
	opts ...EngineOption,
) (*Engine, error) {
	e := &Engine{
		ruleSets:  ruleSets,
		subRules:  subRules,
		groups:    groups,
		nodes:     nodes,
		refs:      refs,
		log:       logger.NewPhusluLogger(),
		protected: make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	cache, err := NewDecisionCache(e.cacheNumCounters, e.cacheMaxCost, e.cacheBuffer)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	return e, nil
}

// Cache exposes the decision cache, mainly so callers can Wait for
// pending admissions in tests.
func (e *Engine) Cache() *DecisionCache { return e.cache }

// InvalidateCache drops every memoized decision.
func (e *Engine) InvalidateCache() { e.cache.InvalidateAll() }

// SetSnapshotDistributor attaches a distributor so rule mutations
// trigger signed snapshot exports. Call during setup, before the
// engine handles traffic.
func (e *Engine) SetSnapshotDistributor(d *SnapshotDistributor) { e.dist = d }

// flushRules runs after every rule mutation: it drops memoized
// decisions and, when a distributor is attached, schedules a fresh
// snapshot export.
func (e *Engine) flushRules() {
	e.cache.InvalidateAll()
	if e.dist != nil {
		e.dist.NotifyChange(ScopeAll)
	}
}

// Close releases engine resources.
func (e *Engine) Close() { e.cache.Close() }

func newID() string { return uuid.NewString() }

// ============================================================================
// RULE SET ADMINISTRATION
// ============================================================================

func (e *Engine) validateRuleSet(rs *RuleSet) error {
	if rs.Name == "" {
		return validationErrorf("name", "rule set name is required")
	}
	for _, userID := range rs.UserIDs {
		if e.protected[userID] {
			return validationErrorf("user_ids", "rule set cannot target protected user %s", userID)
		}
	}
	return nil
}

// CreateRuleSet validates and stores a rule set, then flushes the
// decision cache.
func (e *Engine) CreateRuleSet(ctx context.Context, rs *RuleSet) error {
	if err := e.validateRuleSet(rs); err != nil {
		return err
	}
	if rs.ID == "" {
		rs.ID = newID()
	}
	now := time.Now()
	rs.CreatedAt = now
	rs.UpdatedAt = now
	if err := e.ruleSets.CreateRuleSet(ctx, rs); err != nil {
		return err
	}
	e.flushRules()
	e.log.Info("rule set created", "id", rs.ID, "name", rs.Name)
	return nil
}

func (e *Engine) UpdateRuleSet(ctx context.Context, rs *RuleSet) error {
	if err := e.validateRuleSet(rs); err != nil {
		return err
	}
	rs.UpdatedAt = time.Now()
	if err := e.ruleSets.UpdateRuleSet(ctx, rs); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

// DeleteRuleSet removes a rule set; the store cascades to its sub-rules.
func (e *Engine) DeleteRuleSet(ctx context.Context, id string) error {
	if err := e.ruleSets.DeleteRuleSet(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	e.log.Info("rule set deleted", "id", id)
	return nil
}

func (e *Engine) GetRuleSet(ctx context.Context, id string) (*RuleSet, error) {
	return e.ruleSets.GetRuleSet(ctx, id)
}

func (e *Engine) ListRuleSets(ctx context.Context) ([]*RuleSet, error) {
	return e.ruleSets.ListRuleSets(ctx)
}

// LinkDefaultRuleSets assigns a newly created user to every rule set
// flagged as a default for its user kind.
func (e *Engine) LinkDefaultRuleSets(ctx context.Context, userID string, portal bool) error {
	if e.protected[userID] {
		return nil
	}
	all, err := e.ruleSets.ListRuleSets(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, rs := range all {
		if portal && !rs.DefaultPortalUser {
			continue
		}
		if !portal && !rs.DefaultInternalUser {
			continue
		}
		if containsString(rs.UserIDs, userID) {
			continue
		}
		rs.UserIDs = append(rs.UserIDs, userID)
		rs.UpdatedAt = time.Now()
		if err := e.ruleSets.UpdateRuleSet(ctx, rs); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		e.flushRules()
	}
	return nil
}

// ============================================================================
// SUB-RULE ADMINISTRATION
// ============================================================================

// checkModel rejects entity names the registry does not know. With no
// registry, or while it is warming up, any name passes.
func (e *Engine) checkModel(model string) error {
	if model == "" {
		return validationErrorf("model", "target entity is required")
	}
	if e.registry != nil && e.registry.Ready() && !e.registry.HasModel(model) {
		return validationErrorf("model", "unknown entity %s", model)
	}
	return nil
}

// checkField rejects fields that do not belong to the entity.
func (e *Engine) checkField(model, field string) error {
	if field == "" {
		return validationErrorf("field", "field name is required")
	}
	if e.registry == nil || !e.registry.Ready() {
		return nil
	}
	if _, ok := e.registry.Fields(model)[field]; !ok {
		return validationErrorf("field", "field %s does not belong to entity %s", field, model)
	}
	return nil
}

func (e *Engine) checkRuleSetExists(ctx context.Context, ruleSetID string) error {
	if ruleSetID == "" {
		return validationErrorf("rule_set_id", "owning rule set is required")
	}
	if _, err := e.ruleSets.GetRuleSet(ctx, ruleSetID); err != nil {
		return validationErrorf("rule_set_id", "unknown rule set %s", ruleSetID)
	}
	return nil
}

func (e *Engine) CreateModelAccess(ctx context.Context, r *ModelAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateModelAccess(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteModelAccess(ctx context.Context, id string) error {
	if err := e.subRules.DeleteModelAccess(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateFieldAccess(ctx context.Context, r *FieldAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if len(r.Fields) == 0 {
		return validationErrorf("fields", "at least one field is required")
	}
	for _, f := range r.Fields {
		if err := e.checkField(r.Model, f); err != nil {
			return err
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateFieldAccess(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteFieldAccess(ctx context.Context, id string) error {
	if err := e.subRules.DeleteFieldAccess(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateFieldCondition(ctx context.Context, r *FieldConditionalAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if !r.ApplyAttrs && !r.ApplyFieldDomain {
		return validationErrorf("apply_attrs", "condition rule must apply an attribute or a field domain")
	}
	if r.ApplyAttrs {
		if err := e.checkField(r.Model, r.AttrsField); err != nil {
			return err
		}
		switch r.AttrsType {
		case AttrRequired, AttrReadonly, AttrInvisible:
		default:
			return validationErrorf("attrs_type", "invalid attribute type %s", r.AttrsType)
		}
		if _, err := ParseDomain(r.AttrsDomain); err != nil {
			return validationErrorf("attrs_domain", "%s", err.Error())
		}
	}
	if r.ApplyFieldDomain {
		if err := e.checkField(r.Model, r.DomainField); err != nil {
			return err
		}
		if e.registry != nil && e.registry.Ready() {
			info := e.registry.Fields(r.Model)[r.DomainField]
			if info.Relation == "" {
				return validationErrorf("domain_field", "field %s is not relational", r.DomainField)
			}
		}
		if _, err := ParseDomain(r.FieldDomain); err != nil {
			return validationErrorf("field_domain", "%s", err.Error())
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateFieldCondition(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteFieldCondition(ctx context.Context, id string) error {
	if err := e.subRules.DeleteFieldCondition(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateDomainAccess(ctx context.Context, r *DomainAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if strings.TrimSpace(r.Domain) == "" {
		return validationErrorf("domain", "filter expression is required")
	}
	if _, err := ParseDomain(r.Domain); err != nil {
		return validationErrorf("domain", "%s", err.Error())
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateDomainAccess(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteDomainAccess(ctx context.Context, id string) error {
	if err := e.subRules.DeleteDomainAccess(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateHideButtonsTabs(ctx context.Context, r *HideButtonsTabs) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateHideButtonsTabs(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteHideButtonsTabs(ctx context.Context, id string) error {
	if err := e.subRules.DeleteHideButtonsTabs(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateSearchPanelAccess(ctx context.Context, r *SearchPanelAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateSearchPanelAccess(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteSearchPanelAccess(ctx context.Context, id string) error {
	if err := e.subRules.DeleteSearchPanelAccess(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) CreateChatterAccess(ctx context.Context, r *ChatterAccess) error {
	if err := e.checkRuleSetExists(ctx, r.RuleSetID); err != nil {
		return err
	}
	if err := e.checkModel(r.Model); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if err := e.subRules.CreateChatterAccess(ctx, r); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteChatterAccess(ctx context.Context, id string) error {
	if err := e.subRules.DeleteChatterAccess(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

// ============================================================================
// GROUP ADMINISTRATION
// ============================================================================

func (e *Engine) validateGroup(ctx context.Context, g *UserGroup) error {
	if g.Name == "" {
		return validationErrorf("name", "group name is required")
	}
	existing, err := e.groups.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == g.ID {
			continue
		}
		if other.Name == g.Name {
			return validationErrorf("name", "group name %s already exists", g.Name)
		}
		for _, u := range g.UserIDs {
			if containsString(other.UserIDs, u) {
				return validationErrorf("user_ids", "user %s already belongs to group %s", u, other.Name)
			}
		}
	}
	return nil
}

func (e *Engine) CreateGroup(ctx context.Context, g *UserGroup) error {
	if g.ID == "" {
		g.ID = newID()
	}
	if err := e.validateGroup(ctx, g); err != nil {
		return err
	}
	if err := e.groups.CreateGroup(ctx, g); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) UpdateGroup(ctx context.Context, g *UserGroup) error {
	if err := e.validateGroup(ctx, g); err != nil {
		return err
	}
	if err := e.groups.UpdateGroup(ctx, g); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

func (e *Engine) DeleteGroup(ctx context.Context, id string) error {
	if err := e.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	e.flushRules()
	return nil
}

// ============================================================================
// REFERENCE MIRRORS
// ============================================================================

// MirrorAction records a host action (or report) so rule configuration
// can reference it. Mirrors are best effort: a failure is logged, never
// surfaced to the host write path that triggered it.
func (e *Engine) MirrorAction(ctx context.Context, actionID, name string, report bool) {
	ref := &ActionRef{ID: newID(), ActionID: actionID, Name: name, Report: report}
	if err := e.refs.CreateActionRef(ctx, ref); err != nil {
		e.log.Error("action mirror failed", "action_id", actionID, "error", err.Error())
	}
}

// DropActionMirror removes the mirrors of a deleted host action.
func (e *Engine) DropActionMirror(ctx context.Context, actionID string) {
	if err := e.refs.DeleteActionRefsByAction(ctx, actionID); err != nil {
		e.log.Error("action mirror removal failed", "action_id", actionID, "error", err.Error())
	}
}

// MirrorMenu records a host menu. Best effort, like MirrorAction.
func (e *Engine) MirrorMenu(ctx context.Context, menuID, name string) {
	ref := &MenuRef{ID: newID(), MenuID: menuID, Name: name}
	if err := e.refs.CreateMenuRef(ctx, ref); err != nil {
		e.log.Error("menu mirror failed", "menu_id", menuID, "error", err.Error())
	}
}

// DropMenuMirror removes the mirrors of a deleted host menu.
func (e *Engine) DropMenuMirror(ctx context.Context, menuID string) {
	if err := e.refs.DeleteMenuRefsByMenu(ctx, menuID); err != nil {
		e.log.Error("menu mirror removal failed", "menu_id", menuID, "error", err.Error())
	}
}

// CreateViewType registers a view kind rule configuration can hide.
// Technical names are lowercase by convention across view definitions.
func (e *Engine) CreateViewType(ctx context.Context, vt *ViewType) error {
	if vt.Name == "" {
		return validationErrorf("name", "view type name is required")
	}
	if vt.TechName == "" || vt.TechName != strings.ToLower(vt.TechName) {
		return validationErrorf("techname", "technical name must be lowercase")
	}
	if vt.ID == "" {
		vt.ID = newID()
	}
	return e.refs.CreateViewType(ctx, vt)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
