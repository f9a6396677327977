package accessguard

import (
	"context"
	"sort"
)

// ============================================================================
// RULE RESOLVER
// ============================================================================
//
// Every entry point resolves one decision kind for (identity, entity),
// memoized in the decision cache. Restrictions fold with OR: any
// applicable rule saying "hide" wins, a second rule can only add.
// An entity with no applicable rules yields an all-false decision.

// applicableRuleSets returns the active rule sets targeting the identity,
// honoring direct user assignment, group assignment and the company
// context.
func (e *Engine) applicableRuleSets(ctx context.Context, id Identity) ([]*RuleSet, error) {
	all, err := e.ruleSets.ListRuleSets(ctx)
	if err != nil {
		return nil, err
	}
	groupIDs, err := e.groups.GroupsForUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]*RuleSet, 0, len(all))
	for _, rs := range all {
		if rs.AppliesTo(id, groupIDs) {
			out = append(out, rs)
		}
	}
	return out, nil
}

// applicableIDSet is the helper form used when filtering sub-rules.
func ruleSetIDSet(ruleSets []*RuleSet) map[string]bool {
	ids := make(map[string]bool, len(ruleSets))
	for _, rs := range ruleSets {
		ids[rs.ID] = true
	}
	return ids
}

// GlobalRules resolves the entity-independent decision for an identity.
func (e *Engine) GlobalRules(ctx context.Context, id Identity) (*GlobalDecision, error) {
	key := decisionKey(KindGlobal, id, "")
	if v, ok := e.cache.get(key); ok {
		return v.(*GlobalDecision), nil
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	dec := e.foldGlobal(ctx, ruleSets)
	e.cache.set(key, dec)
	return dec, nil
}

func (e *Engine) foldGlobal(ctx context.Context, ruleSets []*RuleSet) *GlobalDecision {
	dec := &GlobalDecision{}
	menuRefIDs := make(map[string]bool)
	for _, rs := range ruleSets {
		dec.Readonly = dec.Readonly || rs.Readonly
		dec.DisableDebug = dec.DisableDebug || rs.DisableDebug
		dec.DisableLogin = dec.DisableLogin || rs.DisableLogin

		dec.HideCreate = dec.HideCreate || rs.HideCreate
		dec.HideEdit = dec.HideEdit || rs.HideEdit
		dec.HideUnlink = dec.HideUnlink || rs.HideUnlink
		dec.HideDuplicate = dec.HideDuplicate || rs.HideDuplicate
		dec.HideArchive = dec.HideArchive || rs.HideArchive
		dec.HideUnarchive = dec.HideUnarchive || rs.HideUnarchive
		dec.HideImport = dec.HideImport || rs.HideImport
		dec.HideExport = dec.HideExport || rs.HideExport
		dec.HideAddProperty = dec.HideAddProperty || rs.HideAddProperty

		dec.HideChatter = dec.HideChatter || rs.HideChatter
		dec.HideSendMessage = dec.HideSendMessage || rs.HideSendMessage
		dec.HideLogNotes = dec.HideLogNotes || rs.HideLogNotes
		dec.HideScheduleActivity = dec.HideScheduleActivity || rs.HideScheduleActivity
		dec.HideSearchMessageIcon = dec.HideSearchMessageIcon || rs.HideSearchMessageIcon
		dec.HideAttachmentIcon = dec.HideAttachmentIcon || rs.HideAttachmentIcon
		dec.HideFollowersIcon = dec.HideFollowersIcon || rs.HideFollowersIcon
		dec.HideFollowUnfollow = dec.HideFollowUnfollow || rs.HideFollowUnfollow

		dec.HideSearchPanel = dec.HideSearchPanel || rs.HideSearchPanel
		dec.HideCustomFilter = dec.HideCustomFilter || rs.HideCustomFilter
		dec.HideCustomGroup = dec.HideCustomGroup || rs.HideCustomGroup
		dec.HideUnlinkInFavorites = dec.HideUnlinkInFavorites || rs.HideUnlinkInFavorites

		for _, refID := range rs.HideMenuIDs {
			menuRefIDs[refID] = true
		}
	}

	// readonly mode shuts down all writes
	if dec.Readonly {
		dec.HideCreate = true
		dec.HideEdit = true
		dec.HideUnlink = true
	}
	applyDerivedFlags(&dec.HideDuplicate, &dec.HideArchive, &dec.HideUnarchive, &dec.HideImport,
		dec.HideCreate, dec.HideEdit)

	for refID := range menuRefIDs {
		ref, err := e.refs.GetMenuRef(ctx, refID)
		if err != nil {
			e.log.Error("menu reference lookup failed", "ref_id", refID, "error", err.Error())
			continue
		}
		dec.RestrictedMenuIDs = append(dec.RestrictedMenuIDs, ref.MenuID)
	}
	sortUnique(&dec.RestrictedMenuIDs)
	return dec
}

// applyDerivedFlags applies the affordance implications shared by the
// global and per-entity folds: duplicating needs create, archiving
// needs edit, importing needs create or edit.
func applyDerivedFlags(duplicate, archive, unarchive, importFlag *bool, hideCreate, hideEdit bool) {
	*duplicate = *duplicate || hideCreate
	*archive = *archive || hideEdit
	*unarchive = *unarchive || hideEdit
	*importFlag = *importFlag || hideCreate || hideEdit
}

// ModelRules resolves the per-entity CRUD/affordance decision. Global
// flags always OR in; they cannot be relaxed entity-locally.
func (e *Engine) ModelRules(ctx context.Context, id Identity, model string) (*ModelDecision, error) {
	key := decisionKey(KindModel, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*ModelDecision), nil
	}
	global, err := e.GlobalRules(ctx, id)
	if err != nil {
		return nil, err
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListModelAccess(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := e.foldModel(ctx, global, ruleSetIDSet(ruleSets), rules)
	e.cache.set(key, dec)
	return dec, nil
}

func (e *Engine) foldModel(ctx context.Context, global *GlobalDecision, applicable map[string]bool, rules []*ModelAccess) *ModelDecision {
	dec := &ModelDecision{
		HideCreate:      global.HideCreate,
		HideEdit:        global.HideEdit,
		HideUnlink:      global.HideUnlink,
		HideDuplicate:   global.HideDuplicate,
		HideArchive:     global.HideArchive,
		HideUnarchive:   global.HideUnarchive,
		HideImport:      global.HideImport,
		HideExport:      global.HideExport,
		HideAddProperty: global.HideAddProperty,
	}
	actionRefIDs := make(map[string]bool)
	reportRefIDs := make(map[string]bool)
	viewTypes := make(map[string]bool)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		dec.HideRead = dec.HideRead || r.HideRead
		dec.HideCreate = dec.HideCreate || r.HideCreate
		dec.HideEdit = dec.HideEdit || r.HideEdit
		dec.HideUnlink = dec.HideUnlink || r.HideUnlink
		dec.HideDuplicate = dec.HideDuplicate || r.HideDuplicate
		dec.HideArchive = dec.HideArchive || r.HideArchive
		dec.HideUnarchive = dec.HideUnarchive || r.HideUnarchive
		dec.HideImport = dec.HideImport || r.HideImport
		dec.HideExport = dec.HideExport || r.HideExport
		dec.HideAddProperty = dec.HideAddProperty || r.HideAddProperty
		for _, refID := range r.HideActionIDs {
			actionRefIDs[refID] = true
		}
		for _, refID := range r.HideReportIDs {
			reportRefIDs[refID] = true
		}
		for _, vt := range r.HideViewTypes {
			viewTypes[vt] = true
		}
	}
	applyDerivedFlags(&dec.HideDuplicate, &dec.HideArchive, &dec.HideUnarchive, &dec.HideImport,
		dec.HideCreate, dec.HideEdit)
	dec.HideExport = dec.HideExport || dec.HideRead

	dec.RestrictedActionIDs = e.resolveActionRefs(ctx, actionRefIDs)
	dec.RestrictedReportIDs = e.resolveActionRefs(ctx, reportRefIDs)
	for vt := range viewTypes {
		dec.RestrictedViewTypes = append(dec.RestrictedViewTypes, vt)
	}
	sortUnique(&dec.RestrictedViewTypes)
	return dec
}

func (e *Engine) resolveActionRefs(ctx context.Context, refIDs map[string]bool) []string {
	var out []string
	for refID := range refIDs {
		ref, err := e.refs.GetActionRef(ctx, refID)
		if err != nil {
			e.log.Error("action reference lookup failed", "ref_id", refID, "error", err.Error())
			continue
		}
		out = append(out, ref.ActionID)
	}
	sortUnique(&out)
	return out
}

// FieldRules resolves the static field-flag decision for an entity.
func (e *Engine) FieldRules(ctx context.Context, id Identity, model string) (*FieldDecision, error) {
	key := decisionKey(KindField, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*FieldDecision), nil
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListFieldAccess(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &FieldDecision{Fields: make(map[string]FieldFlags)}
	applicable := ruleSetIDSet(ruleSets)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		flags := FieldFlags{
			Invisible:          r.Invisible,
			Readonly:           r.Readonly,
			Required:           r.Required,
			RemoveCreateOption: r.RemoveCreateOption,
			RemoveEditOption:   r.RemoveEditOption,
			RemoveInternalLink: r.RemoveInternalLink,
		}
		for _, field := range r.Fields {
			merged := dec.Fields[field]
			merged.merge(flags)
			dec.Fields[field] = merged
		}
	}
	e.cache.set(key, dec)
	return dec, nil
}

// FieldConditionRules resolves the conditional field decision: attribute
// conditions AND-combine per attribute type, relational domains use the
// first applicable rule per field.
func (e *Engine) FieldConditionRules(ctx context.Context, id Identity, model string) (*FieldCondDecision, error) {
	key := decisionKey(KindFieldCond, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*FieldCondDecision), nil
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListFieldConditions(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &FieldCondDecision{Fields: make(map[string]*FieldCondition)}
	applicable := ruleSetIDSet(ruleSets)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		if r.ApplyAttrs && r.AttrsField != "" {
			d, err := ParseDomain(r.AttrsDomain)
			if err != nil {
				e.log.Error("skipping malformed attribute condition", "rule_id", r.ID, "model", model, "error", err.Error())
			} else {
				expr, err := d.ToExpression()
				if err != nil {
					e.log.Error("skipping uncompilable attribute condition", "rule_id", r.ID, "model", model, "error", err.Error())
				} else if expr != "" {
					cond := dec.field(r.AttrsField)
					cond.Attrs[r.AttrsType] = CombineExpressions(cond.Attrs[r.AttrsType], expr)
				}
			}
		}
		if r.ApplyFieldDomain && r.DomainField != "" {
			cond := dec.field(r.DomainField)
			if cond.Domain == "" {
				cond.Domain = r.FieldDomain
			}
		}
	}
	e.cache.set(key, dec)
	return dec, nil
}

func (d *FieldCondDecision) field(name string) *FieldCondition {
	cond, ok := d.Fields[name]
	if !ok {
		cond = &FieldCondition{Attrs: make(map[string]string)}
		d.Fields[name] = cond
	}
	return cond
}

// DomainRules resolves the deny-expressions per operation: hard
// restriction domains OR-union, soft ones are reported separately and
// never harden.
func (e *Engine) DomainRules(ctx context.Context, id Identity, model string) (*DomainDecision, error) {
	key := decisionKey(KindDomain, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*DomainDecision), nil
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListDomainAccess(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &DomainDecision{
		Deny:     make(map[string]Domain),
		SoftDeny: make(map[string][]Domain),
	}
	applicable := ruleSetIDSet(ruleSets)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		d, err := ParseDomain(r.Domain)
		if err != nil {
			e.log.Error("skipping malformed restriction domain", "rule_id", r.ID, "model", model, "error", err.Error())
			continue
		}
		if len(d) == 0 {
			continue
		}
		for _, op := range []string{OpRead, OpWrite, OpCreate, OpUnlink} {
			if !r.restricts(op) {
				continue
			}
			if r.SoftRestrict {
				dec.SoftDeny[op] = append(dec.SoftDeny[op], d)
			} else {
				dec.Deny[op] = OR(dec.Deny[op], d)
			}
		}
	}
	e.cache.set(key, dec)
	return dec, nil
}

// HiddenNodeRules resolves the hidden button and tab sets per view
// bucket for an entity.
func (e *Engine) HiddenNodeRules(ctx context.Context, id Identity, model string) (*HiddenNodeDecision, error) {
	key := decisionKey(KindHiddenNodes, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*HiddenNodeDecision), nil
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListHideButtonsTabs(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &HiddenNodeDecision{
		FormButtons:       newButtonSet(),
		FormTabs:          make(map[string]bool),
		ListHeaderButtons: newButtonSet(),
		ListRowButtons:    newButtonSet(),
	}
	applicable := ruleSetIDSet(ruleSets)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		for _, nodeID := range r.HiddenButtonIDs {
			node, err := e.nodes.GetViewNode(ctx, nodeID)
			if err != nil {
				e.log.Error("hidden button lookup failed", "node_id", nodeID, "error", err.Error())
				continue
			}
			dec.hideButton(node)
		}
		for _, nodeID := range r.HiddenTabIDs {
			node, err := e.nodes.GetViewNode(ctx, nodeID)
			if err != nil {
				e.log.Error("hidden tab lookup failed", "node_id", nodeID, "error", err.Error())
				continue
			}
			if node.Name != "" {
				dec.FormTabs[node.Name] = true
			}
			if node.Label != "" {
				dec.FormTabs[node.Label] = true
			}
		}
	}
	e.cache.set(key, dec)
	return dec, nil
}

func (d *HiddenNodeDecision) hideButton(node *ViewNode) {
	var set *ButtonSet
	switch node.ViewBucket {
	case BucketForm, BucketFormSmart:
		set = &d.FormButtons
	case BucketListHeader:
		set = &d.ListHeaderButtons
	case BucketListRow:
		set = &d.ListRowButtons
	default:
		return
	}
	switch node.ButtonType {
	case ButtonObject:
		set.Object[node.Name] = true
	case ButtonAction:
		set.Action[node.Name] = true
	}
}

// SearchPanelRules resolves the search panel decision for an entity.
func (e *Engine) SearchPanelRules(ctx context.Context, id Identity, model string) (*SearchPanelDecision, error) {
	key := decisionKey(KindSearchPanel, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*SearchPanelDecision), nil
	}
	global, err := e.GlobalRules(ctx, id)
	if err != nil {
		return nil, err
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListSearchPanelAccess(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &SearchPanelDecision{
		HideSearchPanel:       global.HideSearchPanel,
		HideCustomFilter:      global.HideCustomFilter,
		HideCustomGroup:       global.HideCustomGroup,
		HideUnlinkInFavorites: global.HideUnlinkInFavorites,
	}
	applicable := ruleSetIDSet(ruleSets)
	filters := make(map[string]bool)
	groupbys := make(map[string]bool)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		dec.HideSearchPanel = dec.HideSearchPanel || r.HideSearchPanel
		dec.HideCustomFilter = dec.HideCustomFilter || r.HideCustomFilter
		dec.HideCustomGroup = dec.HideCustomGroup || r.HideCustomGroup
		dec.HideUnlinkInFavorites = dec.HideUnlinkInFavorites || r.HideUnlinkInFavorites
		e.collectNodeNames(ctx, r.HiddenFilterIDs, filters)
		e.collectNodeNames(ctx, r.HiddenGroupByIDs, groupbys)
	}
	for name := range filters {
		dec.HiddenFilters = append(dec.HiddenFilters, name)
	}
	for name := range groupbys {
		dec.HiddenGroupBys = append(dec.HiddenGroupBys, name)
	}
	sortUnique(&dec.HiddenFilters)
	sortUnique(&dec.HiddenGroupBys)
	e.cache.set(key, dec)
	return dec, nil
}

func (e *Engine) collectNodeNames(ctx context.Context, nodeIDs []string, into map[string]bool) {
	for _, nodeID := range nodeIDs {
		node, err := e.nodes.GetViewNode(ctx, nodeID)
		if err != nil {
			e.log.Error("hidden search node lookup failed", "node_id", nodeID, "error", err.Error())
			continue
		}
		if node.Name != "" {
			into[node.Name] = true
		}
	}
}

// ChatterRules resolves the chatter decision for an entity.
func (e *Engine) ChatterRules(ctx context.Context, id Identity, model string) (*ChatterDecision, error) {
	key := decisionKey(KindChatter, id, model)
	if v, ok := e.cache.get(key); ok {
		return v.(*ChatterDecision), nil
	}
	global, err := e.GlobalRules(ctx, id)
	if err != nil {
		return nil, err
	}
	ruleSets, err := e.applicableRuleSets(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := e.subRules.ListChatterAccess(ctx, model)
	if err != nil {
		return nil, err
	}
	dec := &ChatterDecision{
		HideChatter:           global.HideChatter,
		HideSendMessage:       global.HideSendMessage,
		HideLogNotes:          global.HideLogNotes,
		HideScheduleActivity:  global.HideScheduleActivity,
		HideSearchMessageIcon: global.HideSearchMessageIcon,
		HideAttachmentIcon:    global.HideAttachmentIcon,
		HideFollowersIcon:     global.HideFollowersIcon,
		HideFollowUnfollow:    global.HideFollowUnfollow,
	}
	applicable := ruleSetIDSet(ruleSets)
	for _, r := range rules {
		if !applicable[r.RuleSetID] {
			continue
		}
		dec.HideChatter = dec.HideChatter || r.HideChatter
		dec.HideSendMessage = dec.HideSendMessage || r.HideSendMessage
		dec.HideLogNotes = dec.HideLogNotes || r.HideLogNotes
		dec.HideScheduleActivity = dec.HideScheduleActivity || r.HideScheduleActivity
		dec.HideSearchMessageIcon = dec.HideSearchMessageIcon || r.HideSearchMessageIcon
		dec.HideAttachmentIcon = dec.HideAttachmentIcon || r.HideAttachmentIcon
		dec.HideFollowersIcon = dec.HideFollowersIcon || r.HideFollowersIcon
		dec.HideFollowUnfollow = dec.HideFollowUnfollow || r.HideFollowUnfollow
	}
	e.cache.set(key, dec)
	return dec, nil
}

func sortUnique(s *[]string) {
	if len(*s) < 2 {
		return
	}
	sort.Strings(*s)
	out := (*s)[:1]
	for _, v := range (*s)[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	*s = out
}
