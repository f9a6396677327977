package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/accessguard"
)

// MemorySubRuleStore keeps the entity-scoped sub-rules in memory,
// enforcing the same per-(rule set, entity) uniqueness the SQL schema
// does. Listings come back id-ordered so rule application is stable.
type MemorySubRuleStore struct {
	mu          sync.RWMutex
	modelAccess map[string]*accessguard.ModelAccess
	fieldAccess map[string]*accessguard.FieldAccess
	fieldConds  map[string]*accessguard.FieldConditionalAccess
	domains     map[string]*accessguard.DomainAccess
	buttonsTabs map[string]*accessguard.HideButtonsTabs
	searchPanel map[string]*accessguard.SearchPanelAccess
	chatter     map[string]*accessguard.ChatterAccess
}

func NewMemorySubRuleStore() *MemorySubRuleStore {
	return &MemorySubRuleStore{
		modelAccess: make(map[string]*accessguard.ModelAccess),
		fieldAccess: make(map[string]*accessguard.FieldAccess),
		fieldConds:  make(map[string]*accessguard.FieldConditionalAccess),
		domains:     make(map[string]*accessguard.DomainAccess),
		buttonsTabs: make(map[string]*accessguard.HideButtonsTabs),
		searchPanel: make(map[string]*accessguard.SearchPanelAccess),
		chatter:     make(map[string]*accessguard.ChatterAccess),
	}
}

func duplicateSubRule(model string) error {
	return &accessguard.ValidationError{Field: "model", Reason: fmt.Sprintf("a rule of this kind already targets entity %s", model)}
}

func (s *MemorySubRuleStore) CreateModelAccess(ctx context.Context, r *accessguard.ModelAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.modelAccess {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model {
			return duplicateSubRule(r.Model)
		}
	}
	s.modelAccess[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteModelAccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modelAccess, id)
	return nil
}

func (s *MemorySubRuleStore) ListModelAccess(ctx context.Context, model string) ([]*accessguard.ModelAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.ModelAccess, 0)
	for _, r := range s.modelAccess {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateFieldAccess(ctx context.Context, r *accessguard.FieldAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.fieldAccess {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model {
			return duplicateSubRule(r.Model)
		}
	}
	s.fieldAccess[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteFieldAccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fieldAccess, id)
	return nil
}

func (s *MemorySubRuleStore) ListFieldAccess(ctx context.Context, model string) ([]*accessguard.FieldAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.FieldAccess, 0)
	for _, r := range s.fieldAccess {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateFieldCondition(ctx context.Context, r *accessguard.FieldConditionalAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldConds[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteFieldCondition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fieldConds, id)
	return nil
}

func (s *MemorySubRuleStore) ListFieldConditions(ctx context.Context, model string) ([]*accessguard.FieldConditionalAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.FieldConditionalAccess, 0)
	for _, r := range s.fieldConds {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateDomainAccess(ctx context.Context, r *accessguard.DomainAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.domains {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model && other.Domain == r.Domain {
			return &accessguard.ValidationError{Field: "domain", Reason: fmt.Sprintf("an identical filter already targets entity %s", r.Model)}
		}
	}
	s.domains[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteDomainAccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.domains, id)
	return nil
}

func (s *MemorySubRuleStore) ListDomainAccess(ctx context.Context, model string) ([]*accessguard.DomainAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.DomainAccess, 0)
	for _, r := range s.domains {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateHideButtonsTabs(ctx context.Context, r *accessguard.HideButtonsTabs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.buttonsTabs {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model {
			return duplicateSubRule(r.Model)
		}
	}
	s.buttonsTabs[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteHideButtonsTabs(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buttonsTabs, id)
	return nil
}

func (s *MemorySubRuleStore) ListHideButtonsTabs(ctx context.Context, model string) ([]*accessguard.HideButtonsTabs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.HideButtonsTabs, 0)
	for _, r := range s.buttonsTabs {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateSearchPanelAccess(ctx context.Context, r *accessguard.SearchPanelAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.searchPanel {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model {
			return duplicateSubRule(r.Model)
		}
	}
	s.searchPanel[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteSearchPanelAccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.searchPanel, id)
	return nil
}

func (s *MemorySubRuleStore) ListSearchPanelAccess(ctx context.Context, model string) ([]*accessguard.SearchPanelAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.SearchPanelAccess, 0)
	for _, r := range s.searchPanel {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubRuleStore) CreateChatterAccess(ctx context.Context, r *accessguard.ChatterAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.chatter {
		if other.RuleSetID == r.RuleSetID && other.Model == r.Model {
			return duplicateSubRule(r.Model)
		}
	}
	s.chatter[r.ID] = r
	return nil
}

func (s *MemorySubRuleStore) DeleteChatterAccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chatter, id)
	return nil
}

func (s *MemorySubRuleStore) ListChatterAccess(ctx context.Context, model string) ([]*accessguard.ChatterAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.ChatterAccess, 0)
	for _, r := range s.chatter {
		if model == "" || r.Model == model {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// deleteByRuleSet removes every sub-rule owned by a rule set; used by
// the rule-set store's cascade.
func (s *MemorySubRuleStore) deleteByRuleSet(ruleSetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.modelAccess {
		if r.RuleSetID == ruleSetID {
			delete(s.modelAccess, id)
		}
	}
	for id, r := range s.fieldAccess {
		if r.RuleSetID == ruleSetID {
			delete(s.fieldAccess, id)
		}
	}
	for id, r := range s.fieldConds {
		if r.RuleSetID == ruleSetID {
			delete(s.fieldConds, id)
		}
	}
	for id, r := range s.domains {
		if r.RuleSetID == ruleSetID {
			delete(s.domains, id)
		}
	}
	for id, r := range s.buttonsTabs {
		if r.RuleSetID == ruleSetID {
			delete(s.buttonsTabs, id)
		}
	}
	for id, r := range s.searchPanel {
		if r.RuleSetID == ruleSetID {
			delete(s.searchPanel, id)
		}
	}
	for id, r := range s.chatter {
		if r.RuleSetID == ruleSetID {
			delete(s.chatter, id)
		}
	}
}

// MemoryRuleSetStore keeps rule sets in memory. Deleting a rule set
// cascades into the paired sub-rule store.
type MemoryRuleSetStore struct {
	mu       sync.RWMutex
	ruleSets map[string]*accessguard.RuleSet
	subRules *MemorySubRuleStore
}

func NewMemoryRuleSetStore(subRules *MemorySubRuleStore) *MemoryRuleSetStore {
	return &MemoryRuleSetStore{ruleSets: make(map[string]*accessguard.RuleSet), subRules: subRules}
}

func (s *MemoryRuleSetStore) CreateRuleSet(ctx context.Context, rs *accessguard.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.ruleSets {
		if other.Name == rs.Name {
			return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("rule set name %s already exists", rs.Name)}
		}
	}
	s.ruleSets[rs.ID] = rs
	return nil
}

func (s *MemoryRuleSetStore) UpdateRuleSet(ctx context.Context, rs *accessguard.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ruleSets[rs.ID]; !ok {
		return fmt.Errorf("rule set not found: %s", rs.ID)
	}
	for _, other := range s.ruleSets {
		if other.ID != rs.ID && other.Name == rs.Name {
			return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("rule set name %s already exists", rs.Name)}
		}
	}
	rs.UpdatedAt = time.Now()
	s.ruleSets[rs.ID] = rs
	return nil
}

func (s *MemoryRuleSetStore) DeleteRuleSet(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.ruleSets, id)
	s.mu.Unlock()
	if s.subRules != nil {
		s.subRules.deleteByRuleSet(id)
	}
	return nil
}

func (s *MemoryRuleSetStore) GetRuleSet(ctx context.Context, id string) (*accessguard.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.ruleSets[id]
	if !ok {
		return nil, fmt.Errorf("rule set not found: %s", id)
	}
	return rs, nil
}

func (s *MemoryRuleSetStore) ListRuleSets(ctx context.Context) ([]*accessguard.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.RuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryGroupStore keeps user groups in memory.
type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*accessguard.UserGroup
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]*accessguard.UserGroup)}
}

func (s *MemoryGroupStore) CreateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.groups {
		if other.Name == g.Name {
			return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("group name %s already exists", g.Name)}
		}
	}
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) UpdateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return fmt.Errorf("group not found: %s", g.ID)
	}
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	return nil
}

func (s *MemoryGroupStore) GetGroup(ctx context.Context, id string) (*accessguard.UserGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	return g, nil
}

func (s *MemoryGroupStore) ListGroups(ctx context.Context) ([]*accessguard.UserGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.UserGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryGroupStore) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, g := range s.groups {
		for _, u := range g.UserIDs {
			if u == userID {
				out = append(out, g.ID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemoryViewNodeStore keeps discovered view nodes in memory,
// deduplicated by the natural key.
type MemoryViewNodeStore struct {
	mu    sync.RWMutex
	nodes map[string]*accessguard.ViewNode
	keys  map[string]string // natural key -> id
}

func NewMemoryViewNodeStore() *MemoryViewNodeStore {
	return &MemoryViewNodeStore{
		nodes: make(map[string]*accessguard.ViewNode),
		keys:  make(map[string]string),
	}
}

func nodeNaturalKey(n *accessguard.ViewNode) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%v\x00%s",
		n.Model, n.Option, n.Name, n.Label, n.ButtonType, n.SmartButton, n.ViewBucket)
}

func (s *MemoryViewNodeStore) FindOrCreate(ctx context.Context, n *accessguard.ViewNode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nodeNaturalKey(n)
	if existing, ok := s.keys[key]; ok {
		n.ID = existing
		return false, nil
	}
	s.nodes[n.ID] = n
	s.keys[key] = n.ID
	return true, nil
}

func (s *MemoryViewNodeStore) GetViewNode(ctx context.Context, id string) (*accessguard.ViewNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("view node not found: %s", id)
	}
	return n, nil
}

func (s *MemoryViewNodeStore) ListViewNodes(ctx context.Context, model, option string) ([]*accessguard.ViewNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.ViewNode, 0)
	for _, n := range s.nodes {
		if model != "" && n.Model != model {
			continue
		}
		if option != "" && n.Option != option {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryReferenceStore keeps action/menu mirrors and view types in
// memory.
type MemoryReferenceStore struct {
	mu        sync.RWMutex
	actions   map[string]*accessguard.ActionRef
	menus     map[string]*accessguard.MenuRef
	viewTypes map[string]*accessguard.ViewType
}

func NewMemoryReferenceStore() *MemoryReferenceStore {
	return &MemoryReferenceStore{
		actions:   make(map[string]*accessguard.ActionRef),
		menus:     make(map[string]*accessguard.MenuRef),
		viewTypes: make(map[string]*accessguard.ViewType),
	}
}

func (s *MemoryReferenceStore) CreateActionRef(ctx context.Context, ref *accessguard.ActionRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[ref.ID] = ref
	return nil
}

func (s *MemoryReferenceStore) DeleteActionRefsByAction(ctx context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ref := range s.actions {
		if ref.ActionID == actionID {
			delete(s.actions, id)
		}
	}
	return nil
}

func (s *MemoryReferenceStore) GetActionRef(ctx context.Context, id string) (*accessguard.ActionRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("action reference not found: %s", id)
	}
	return ref, nil
}

func (s *MemoryReferenceStore) ListActionRefs(ctx context.Context) ([]*accessguard.ActionRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.ActionRef, 0, len(s.actions))
	for _, ref := range s.actions {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryReferenceStore) CreateMenuRef(ctx context.Context, ref *accessguard.MenuRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus[ref.ID] = ref
	return nil
}

func (s *MemoryReferenceStore) DeleteMenuRefsByMenu(ctx context.Context, menuID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ref := range s.menus {
		if ref.MenuID == menuID {
			delete(s.menus, id)
		}
	}
	return nil
}

func (s *MemoryReferenceStore) GetMenuRef(ctx context.Context, id string) (*accessguard.MenuRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.menus[id]
	if !ok {
		return nil, fmt.Errorf("menu reference not found: %s", id)
	}
	return ref, nil
}

func (s *MemoryReferenceStore) ListMenuRefs(ctx context.Context) ([]*accessguard.MenuRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.MenuRef, 0, len(s.menus))
	for _, ref := range s.menus {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryReferenceStore) CreateViewType(ctx context.Context, vt *accessguard.ViewType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.viewTypes {
		if other.TechName == vt.TechName {
			return &accessguard.ValidationError{Field: "techname", Reason: fmt.Sprintf("view type %s already exists", vt.TechName)}
		}
	}
	s.viewTypes[vt.ID] = vt
	return nil
}

func (s *MemoryReferenceStore) ListViewTypes(ctx context.Context) ([]*accessguard.ViewType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessguard.ViewType, 0, len(s.viewTypes))
	for _, vt := range s.viewTypes {
		out = append(out, vt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
