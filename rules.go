package accessguard

import (
	"context"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Identity represents who is requesting access: a user acting in an
// optional company context. An empty CompanyID means "no company".
type Identity struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
}

// RuleSet is a top-level restriction bundle. It names the users (directly
// or through user groups) and companies it applies to, and carries the
// entity-independent restriction flags. Entity-scoped sub-rules reference
// it through RuleSetID.
type RuleSet struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Active bool   `json:"active" yaml:"active"`

	// Applicability
	ApplyByGroups         bool     `json:"apply_by_groups" yaml:"apply_by_groups"`
	GroupIDs              []string `json:"group_ids" yaml:"group_ids"`
	UserIDs               []string `json:"user_ids" yaml:"user_ids"`
	ApplyWithoutCompanies bool     `json:"apply_without_companies" yaml:"apply_without_companies"`
	CompanyIDs            []string `json:"company_ids" yaml:"company_ids"`
	DefaultInternalUser   bool     `json:"default_internal_user" yaml:"default_internal_user"`
	DefaultPortalUser     bool     `json:"default_portal_user" yaml:"default_portal_user"`

	// System-level controls
	Readonly     bool `json:"readonly" yaml:"readonly"`
	DisableDebug bool `json:"disable_debug" yaml:"disable_debug"`
	DisableLogin bool `json:"disable_login" yaml:"disable_login"`

	// Menu restrictions (menu reference ids)
	HideMenuIDs []string `json:"hide_menu_ids" yaml:"hide_menu_ids"`

	// Global record-operation controls
	HideCreate      bool `json:"hide_create" yaml:"hide_create"`
	HideEdit        bool `json:"hide_edit" yaml:"hide_edit"`
	HideUnlink      bool `json:"hide_unlink" yaml:"hide_unlink"`
	HideDuplicate   bool `json:"hide_duplicate" yaml:"hide_duplicate"`
	HideArchive     bool `json:"hide_archive" yaml:"hide_archive"`
	HideUnarchive   bool `json:"hide_unarchive" yaml:"hide_unarchive"`
	HideImport      bool `json:"hide_import" yaml:"hide_import"`
	HideExport      bool `json:"hide_export" yaml:"hide_export"`
	HideAddProperty bool `json:"hide_add_property" yaml:"hide_add_property"`

	// Global chatter controls
	HideChatter           bool `json:"hide_chatter" yaml:"hide_chatter"`
	HideSendMessage       bool `json:"hide_send_message" yaml:"hide_send_message"`
	HideLogNotes          bool `json:"hide_log_notes" yaml:"hide_log_notes"`
	HideScheduleActivity  bool `json:"hide_schedule_activity" yaml:"hide_schedule_activity"`
	HideSearchMessageIcon bool `json:"hide_search_message_icon" yaml:"hide_search_message_icon"`
	HideAttachmentIcon    bool `json:"hide_attachment_icon" yaml:"hide_attachment_icon"`
	HideFollowersIcon     bool `json:"hide_followers_icon" yaml:"hide_followers_icon"`
	HideFollowUnfollow    bool `json:"hide_follow_unfollow" yaml:"hide_follow_unfollow"`

	// Global search panel controls
	HideSearchPanel       bool `json:"hide_search_panel" yaml:"hide_search_panel"`
	HideCustomFilter      bool `json:"hide_custom_filter" yaml:"hide_custom_filter"`
	HideCustomGroup       bool `json:"hide_custom_group" yaml:"hide_custom_group"`
	HideUnlinkInFavorites bool `json:"hide_unlink_in_favorites" yaml:"hide_unlink_in_favorites"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// AppliesTo reports whether the rule set targets the given identity:
// the user must be assigned (directly or via one of the given group ids)
// and the company context must match. groupIDs are the groups the user
// belongs to.
func (rs *RuleSet) AppliesTo(id Identity, groupIDs []string) bool {
	if !rs.Active {
		return false
	}
	if !rs.appliesToUser(id.UserID, groupIDs) {
		return false
	}
	return rs.appliesToCompany(id.CompanyID)
}

func (rs *RuleSet) appliesToUser(userID string, groupIDs []string) bool {
	for _, u := range rs.UserIDs {
		if u == userID {
			return true
		}
	}
	if rs.ApplyByGroups {
		for _, g := range rs.GroupIDs {
			for _, mine := range groupIDs {
				if g == mine {
					return true
				}
			}
		}
	}
	return false
}

func (rs *RuleSet) appliesToCompany(companyID string) bool {
	if rs.ApplyWithoutCompanies {
		return true
	}
	for _, c := range rs.CompanyIDs {
		if c == companyID {
			return true
		}
	}
	return false
}

// ModelAccess is the per-entity CRUD and affordance hiding sub-rule.
// Unique per (Model, RuleSetID).
type ModelAccess struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	HideRead        bool `json:"hide_read" yaml:"hide_read"`
	HideCreate      bool `json:"hide_create" yaml:"hide_create"`
	HideEdit        bool `json:"hide_edit" yaml:"hide_edit"`
	HideUnlink      bool `json:"hide_unlink" yaml:"hide_unlink"`
	HideDuplicate   bool `json:"hide_duplicate" yaml:"hide_duplicate"`
	HideArchive     bool `json:"hide_archive" yaml:"hide_archive"`
	HideUnarchive   bool `json:"hide_unarchive" yaml:"hide_unarchive"`
	HideImport      bool `json:"hide_import" yaml:"hide_import"`
	HideExport      bool `json:"hide_export" yaml:"hide_export"`
	HideAddProperty bool `json:"hide_add_property" yaml:"hide_add_property"`

	// Action reference ids (resolved to host action ids during folding)
	HideActionIDs []string `json:"hide_action_ids" yaml:"hide_action_ids"`
	HideReportIDs []string `json:"hide_report_ids" yaml:"hide_report_ids"`
	// Technical view-type names to hide (list, form, kanban, ...)
	HideViewTypes []string `json:"hide_view_types" yaml:"hide_view_types"`
}

// FieldAccess applies static flags to a set of fields of one entity.
// Unique per (Model, RuleSetID).
type FieldAccess struct {
	ID        string   `json:"id" yaml:"id"`
	RuleSetID string   `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string   `json:"model" yaml:"model"`
	Fields    []string `json:"fields" yaml:"fields"`

	Invisible bool `json:"invisible" yaml:"invisible"`
	Readonly  bool `json:"readonly" yaml:"readonly"`
	Required  bool `json:"required" yaml:"required"`

	// Relation-capability removals (many2one fields)
	RemoveCreateOption bool `json:"remove_create_option" yaml:"remove_create_option"`
	RemoveEditOption   bool `json:"remove_edit_option" yaml:"remove_edit_option"`
	RemoveInternalLink bool `json:"remove_internal_link" yaml:"remove_internal_link"`
}

// Attribute condition types for FieldConditionalAccess.
const (
	AttrRequired  = "required"
	AttrReadonly  = "readonly"
	AttrInvisible = "invisible"
)

// FieldConditionalAccess restricts one field under a boolean condition
// (attribute expression) or narrows a relational field with a domain.
type FieldConditionalAccess struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	ApplyAttrs  bool   `json:"apply_attrs" yaml:"apply_attrs"`
	AttrsField  string `json:"attrs_field" yaml:"attrs_field"`
	AttrsType   string `json:"attrs_type" yaml:"attrs_type"` // required|readonly|invisible
	AttrsDomain string `json:"attrs_domain" yaml:"attrs_domain"`

	ApplyFieldDomain bool   `json:"apply_field_domain" yaml:"apply_field_domain"`
	DomainField      string `json:"domain_field" yaml:"domain_field"`
	FieldDomain      string `json:"field_domain" yaml:"field_domain"`
}

// DomainAccess excludes records matching a filter expression from one or
// more operations. Unique per (Model, RuleSetID, Domain).
type DomainAccess struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	Domain       string `json:"domain" yaml:"domain"`
	SoftRestrict bool   `json:"soft_restrict" yaml:"soft_restrict"`

	RestrictRead   bool `json:"restrict_read" yaml:"restrict_read"`
	RestrictWrite  bool `json:"restrict_write" yaml:"restrict_write"`
	RestrictCreate bool `json:"restrict_create" yaml:"restrict_create"`
	RestrictUnlink bool `json:"restrict_unlink" yaml:"restrict_unlink"`
}

// restricts reports whether the rule targets the given operation.
func (da *DomainAccess) restricts(op string) bool {
	switch op {
	case OpRead:
		return da.RestrictRead
	case OpWrite:
		return da.RestrictWrite
	case OpCreate:
		return da.RestrictCreate
	case OpUnlink:
		return da.RestrictUnlink
	}
	return false
}

// HideButtonsTabs hides discovered buttons and tabs of one entity's views.
// Unique per (Model, RuleSetID). The id lists reference ViewNode records.
type HideButtonsTabs struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	HiddenButtonIDs []string `json:"hidden_button_ids" yaml:"hidden_button_ids"`
	HiddenTabIDs    []string `json:"hidden_tab_ids" yaml:"hidden_tab_ids"`
}

// SearchPanelAccess hides search panel affordances of one entity.
// Unique per (Model, RuleSetID). Hidden id lists reference ViewNode records.
type SearchPanelAccess struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	HideSearchPanel       bool     `json:"hide_search_panel" yaml:"hide_search_panel"`
	HideCustomFilter      bool     `json:"hide_custom_filter" yaml:"hide_custom_filter"`
	HideCustomGroup       bool     `json:"hide_custom_group" yaml:"hide_custom_group"`
	HideUnlinkInFavorites bool     `json:"hide_unlink_in_favorites" yaml:"hide_unlink_in_favorites"`
	HiddenFilterIDs       []string `json:"hidden_filter_ids" yaml:"hidden_filter_ids"`
	HiddenGroupByIDs      []string `json:"hidden_groupby_ids" yaml:"hidden_groupby_ids"`
}

// ChatterAccess hides chatter affordances of one entity.
// Unique per (Model, RuleSetID).
type ChatterAccess struct {
	ID        string `json:"id" yaml:"id"`
	RuleSetID string `json:"rule_set_id" yaml:"rule_set_id"`
	Model     string `json:"model" yaml:"model"`

	HideChatter           bool `json:"hide_chatter" yaml:"hide_chatter"`
	HideSendMessage       bool `json:"hide_send_message" yaml:"hide_send_message"`
	HideLogNotes          bool `json:"hide_log_notes" yaml:"hide_log_notes"`
	HideScheduleActivity  bool `json:"hide_schedule_activity" yaml:"hide_schedule_activity"`
	HideSearchMessageIcon bool `json:"hide_search_message_icon" yaml:"hide_search_message_icon"`
	HideAttachmentIcon    bool `json:"hide_attachment_icon" yaml:"hide_attachment_icon"`
	HideFollowersIcon     bool `json:"hide_followers_icon" yaml:"hide_followers_icon"`
	HideFollowUnfollow    bool `json:"hide_follow_unfollow" yaml:"hide_follow_unfollow"`
}

// UserGroup is a custom user grouping used to assign rule sets to many
// users at once. A user belongs to at most one group; names are unique.
type UserGroup struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	UserIDs []string `json:"user_ids" yaml:"user_ids"`
}

// View node kinds.
const (
	NodeButton  = "button"
	NodePage    = "page"
	NodeFilter  = "filter"
	NodeGroupBy = "groupby"
)

// Button kinds: a button either calls an object method or navigates to
// an action.
const (
	ButtonObject = "object"
	ButtonAction = "action"
)

// View buckets a discovered node can belong to.
const (
	BucketForm       = "form"
	BucketFormSmart  = "form smart"
	BucketListHeader = "list header"
	BucketListRow    = "list row"
	BucketSearch     = "search"
)

// ViewNode is one discovered interactive view element eligible for
// hiding. Deduplicated by its natural key (Model, Option, Name, Label,
// ButtonType, SmartButton, ViewBucket); never auto-deleted.
type ViewNode struct {
	ID          string `json:"id" yaml:"id"`
	Model       string `json:"model" yaml:"model"`
	Option      string `json:"option" yaml:"option"` // button|page|filter|groupby
	Name        string `json:"name" yaml:"name"`     // technical attribute name
	Label       string `json:"label" yaml:"label"`   // display string
	ButtonType  string `json:"button_type" yaml:"button_type"`
	SmartButton bool   `json:"smart_button" yaml:"smart_button"`
	ViewBucket  string `json:"view_bucket" yaml:"view_bucket"`
}

// ActionRef mirrors one host action/report record so rule configuration
// can reference it without touching the host's action tables.
type ActionRef struct {
	ID       string `json:"id" yaml:"id"`
	ActionID string `json:"action_id" yaml:"action_id"`
	Name     string `json:"name" yaml:"name"`
	Report   bool   `json:"report" yaml:"report"`
}

// MenuRef mirrors one host menu record.
type MenuRef struct {
	ID     string `json:"id" yaml:"id"`
	MenuID string `json:"menu_id" yaml:"menu_id"`
	Name   string `json:"name" yaml:"name"`
}

// ViewType is a named view kind (form, list, kanban...) referenced by
// ModelAccess hide-view lists. The technical name must be lowercase.
type ViewType struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	TechName string `json:"techname" yaml:"techname"`
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// RuleSetStore manages rule-set persistence. Deleting a rule set
// cascades to its sub-rules.
type RuleSetStore interface {
	CreateRuleSet(ctx context.Context, rs *RuleSet) error
	UpdateRuleSet(ctx context.Context, rs *RuleSet) error
	DeleteRuleSet(ctx context.Context, id string) error
	GetRuleSet(ctx context.Context, id string) (*RuleSet, error)
	ListRuleSets(ctx context.Context) ([]*RuleSet, error)
}

// SubRuleStore manages the entity-scoped sub-rules. List methods filter
// by target entity name; an empty model lists everything.
type SubRuleStore interface {
	CreateModelAccess(ctx context.Context, r *ModelAccess) error
	DeleteModelAccess(ctx context.Context, id string) error
	ListModelAccess(ctx context.Context, model string) ([]*ModelAccess, error)

	CreateFieldAccess(ctx context.Context, r *FieldAccess) error
	DeleteFieldAccess(ctx context.Context, id string) error
	ListFieldAccess(ctx context.Context, model string) ([]*FieldAccess, error)

	CreateFieldCondition(ctx context.Context, r *FieldConditionalAccess) error
	DeleteFieldCondition(ctx context.Context, id string) error
	ListFieldConditions(ctx context.Context, model string) ([]*FieldConditionalAccess, error)

	CreateDomainAccess(ctx context.Context, r *DomainAccess) error
	DeleteDomainAccess(ctx context.Context, id string) error
	ListDomainAccess(ctx context.Context, model string) ([]*DomainAccess, error)

	CreateHideButtonsTabs(ctx context.Context, r *HideButtonsTabs) error
	DeleteHideButtonsTabs(ctx context.Context, id string) error
	ListHideButtonsTabs(ctx context.Context, model string) ([]*HideButtonsTabs, error)

	CreateSearchPanelAccess(ctx context.Context, r *SearchPanelAccess) error
	DeleteSearchPanelAccess(ctx context.Context, id string) error
	ListSearchPanelAccess(ctx context.Context, model string) ([]*SearchPanelAccess, error)

	CreateChatterAccess(ctx context.Context, r *ChatterAccess) error
	DeleteChatterAccess(ctx context.Context, id string) error
	ListChatterAccess(ctx context.Context, model string) ([]*ChatterAccess, error)
}

// GroupStore manages user groups.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *UserGroup) error
	UpdateGroup(ctx context.Context, g *UserGroup) error
	DeleteGroup(ctx context.Context, id string) error
	GetGroup(ctx context.Context, id string) (*UserGroup, error)
	ListGroups(ctx context.Context) ([]*UserGroup, error)
	// GroupsForUser returns the ids of the groups the user belongs to.
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}

// ViewNodeStore persists discovered view nodes.
type ViewNodeStore interface {
	// FindOrCreate inserts the node unless one with the same natural key
	// exists; it reports whether a new record was created.
	FindOrCreate(ctx context.Context, n *ViewNode) (bool, error)
	GetViewNode(ctx context.Context, id string) (*ViewNode, error)
	ListViewNodes(ctx context.Context, model, option string) ([]*ViewNode, error)
}

// ReferenceStore persists action/menu mirrors and view types.
type ReferenceStore interface {
	CreateActionRef(ctx context.Context, ref *ActionRef) error
	DeleteActionRefsByAction(ctx context.Context, actionID string) error
	GetActionRef(ctx context.Context, id string) (*ActionRef, error)
	ListActionRefs(ctx context.Context) ([]*ActionRef, error)

	CreateMenuRef(ctx context.Context, ref *MenuRef) error
	DeleteMenuRefsByMenu(ctx context.Context, menuID string) error
	GetMenuRef(ctx context.Context, id string) (*MenuRef, error)
	ListMenuRefs(ctx context.Context) ([]*MenuRef, error)

	CreateViewType(ctx context.Context, vt *ViewType) error
	ListViewTypes(ctx context.Context) ([]*ViewType, error)
}

// ============================================================================
// HOST COLLABORATORS
// ============================================================================

// FieldInfo describes one field of a host entity.
type FieldInfo struct {
	Type     string // char, many2one, one2many, ...
	Relation string // co-model for relational fields
}

// ModelRegistry is the host platform's entity metadata registry.
type ModelRegistry interface {
	Ready() bool
	HasModel(name string) bool
	Fields(model string) map[string]FieldInfo
}

// ViewProvider returns combined view definitions (inheritance already
// resolved) for one entity and view type, as XML documents.
type ViewProvider interface {
	CombinedViews(ctx context.Context, model, viewType string) ([]string, error)
}

// HostPolicy is the host platform's own permission check and
// record-visibility filter; the gate only ever narrows it.
type HostPolicy interface {
	CheckAccess(ctx context.Context, id Identity, model, op string) error
	RecordDomain(ctx context.Context, id Identity, model, op string) (Domain, error)
}
