package accessguard

// Operations intercepted by the authorization gate.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpCreate = "create"
	OpUnlink = "unlink"
)

// DecisionKind identifies one decision domain. The set is closed and
// exhaustively matched wherever decisions are folded or cached.
type DecisionKind string

const (
	KindGlobal      DecisionKind = "global"
	KindModel       DecisionKind = "model"
	KindField       DecisionKind = "field"
	KindFieldCond   DecisionKind = "fieldcond"
	KindDomain      DecisionKind = "domain"
	KindHiddenNodes DecisionKind = "nodes"
	KindSearchPanel DecisionKind = "searchpanel"
	KindChatter     DecisionKind = "chatter"
)

// GlobalDecision is the fold of all applicable rule sets' entity-independent
// flags, after the readonly meta-flag and the derived-flag implications.
type GlobalDecision struct {
	Readonly     bool `json:"readonly"`
	DisableDebug bool `json:"disable_debug"`
	DisableLogin bool `json:"disable_login"`

	HideCreate      bool `json:"hide_create"`
	HideEdit        bool `json:"hide_edit"`
	HideUnlink      bool `json:"hide_unlink"`
	HideDuplicate   bool `json:"hide_duplicate"`
	HideArchive     bool `json:"hide_archive"`
	HideUnarchive   bool `json:"hide_unarchive"`
	HideImport      bool `json:"hide_import"`
	HideExport      bool `json:"hide_export"`
	HideAddProperty bool `json:"hide_add_property"`

	HideChatter           bool `json:"hide_chatter"`
	HideSendMessage       bool `json:"hide_send_message"`
	HideLogNotes          bool `json:"hide_log_notes"`
	HideScheduleActivity  bool `json:"hide_schedule_activity"`
	HideSearchMessageIcon bool `json:"hide_search_message_icon"`
	HideAttachmentIcon    bool `json:"hide_attachment_icon"`
	HideFollowersIcon     bool `json:"hide_followers_icon"`
	HideFollowUnfollow    bool `json:"hide_follow_unfollow"`

	HideSearchPanel       bool `json:"hide_search_panel"`
	HideCustomFilter      bool `json:"hide_custom_filter"`
	HideCustomGroup       bool `json:"hide_custom_group"`
	HideUnlinkInFavorites bool `json:"hide_unlink_in_favorites"`

	// Host menu ids stripped from the visible-menu computation.
	RestrictedMenuIDs []string `json:"restricted_menu_ids"`
}

// ModelDecision is the per-entity CRUD/affordance fold (global flags
// OR-ed in, derived flags applied).
type ModelDecision struct {
	HideRead        bool `json:"hide_read"`
	HideCreate      bool `json:"hide_create"`
	HideEdit        bool `json:"hide_edit"`
	HideUnlink      bool `json:"hide_unlink"`
	HideDuplicate   bool `json:"hide_duplicate"`
	HideArchive     bool `json:"hide_archive"`
	HideUnarchive   bool `json:"hide_unarchive"`
	HideImport      bool `json:"hide_import"`
	HideExport      bool `json:"hide_export"`
	HideAddProperty bool `json:"hide_add_property"`

	RestrictedActionIDs []string `json:"restricted_action_ids"`
	RestrictedReportIDs []string `json:"restricted_report_ids"`
	RestrictedViewTypes []string `json:"restricted_view_types"`
}

// HidesOperation reports whether the decision blocks the given gate
// operation.
func (d *ModelDecision) HidesOperation(op string) bool {
	switch op {
	case OpRead:
		return d.HideRead
	case OpWrite:
		return d.HideEdit
	case OpCreate:
		return d.HideCreate
	case OpUnlink:
		return d.HideUnlink
	}
	return false
}

// FieldFlags is the OR-merge of every FieldAccess rule touching one field.
type FieldFlags struct {
	Invisible          bool `json:"invisible"`
	Readonly           bool `json:"readonly"`
	Required           bool `json:"required"`
	RemoveCreateOption bool `json:"remove_create_option"`
	RemoveEditOption   bool `json:"remove_edit_option"`
	RemoveInternalLink bool `json:"remove_internal_link"`
}

func (f *FieldFlags) merge(other FieldFlags) {
	f.Invisible = f.Invisible || other.Invisible
	f.Readonly = f.Readonly || other.Readonly
	f.Required = f.Required || other.Required
	f.RemoveCreateOption = f.RemoveCreateOption || other.RemoveCreateOption
	f.RemoveEditOption = f.RemoveEditOption || other.RemoveEditOption
	f.RemoveInternalLink = f.RemoveInternalLink || other.RemoveInternalLink
}

// FieldDecision maps field names to their merged static flags.
type FieldDecision struct {
	Fields map[string]FieldFlags `json:"fields"`
}

// FieldCondition carries the resolved conditional restrictions of one
// field: per attribute type an infix boolean expression (multiple rules
// AND-combined), and at most one relational domain (first rule wins).
type FieldCondition struct {
	// Attrs maps required/readonly/invisible to the condition expression.
	Attrs map[string]string `json:"attrs"`
	// Domain narrows the candidates of a relational field.
	Domain string `json:"domain"`
}

// FieldCondDecision maps field names to their conditional restrictions.
type FieldCondDecision struct {
	Fields map[string]*FieldCondition `json:"fields"`
}

// DomainDecision carries one deny-expression per operation (the OR-union
// of all hard restrict domains) plus the soft deny domains, reported
// separately and never folded into the hard expression.
type DomainDecision struct {
	Deny     map[string]Domain   `json:"deny"`      // op -> deny-expression
	SoftDeny map[string][]Domain `json:"soft_deny"` // op -> advisory domains
}

// DenyFor returns the hard deny-expression for an operation, or nil.
func (d *DomainDecision) DenyFor(op string) Domain {
	if d == nil || d.Deny == nil {
		return nil
	}
	return d.Deny[op]
}

// ButtonSet holds hidden button names per button kind.
type ButtonSet struct {
	Object map[string]bool `json:"object"`
	Action map[string]bool `json:"action"`
}

func newButtonSet() ButtonSet {
	return ButtonSet{Object: map[string]bool{}, Action: map[string]bool{}}
}

// Hidden reports whether a button of the given kind and name is hidden.
func (b ButtonSet) Hidden(buttonType, name string) bool {
	switch buttonType {
	case ButtonObject:
		return b.Object[name]
	case ButtonAction:
		return b.Action[name]
	}
	return false
}

// HiddenNodeDecision groups hidden buttons and tabs by view bucket.
type HiddenNodeDecision struct {
	FormButtons       ButtonSet       `json:"form_buttons"`
	FormTabs          map[string]bool `json:"form_tabs"`
	ListHeaderButtons ButtonSet       `json:"list_header_buttons"`
	ListRowButtons    ButtonSet       `json:"list_row_buttons"`
}

// SearchPanelDecision is the fold of search panel restrictions for one
// entity (global flags OR-ed in).
type SearchPanelDecision struct {
	HideSearchPanel       bool     `json:"hide_search_panel"`
	HideCustomFilter      bool     `json:"hide_custom_filter"`
	HideCustomGroup       bool     `json:"hide_custom_group"`
	HideUnlinkInFavorites bool     `json:"hide_unlink_in_favorites"`
	HiddenFilters         []string `json:"hidden_filters"`
	HiddenGroupBys        []string `json:"hidden_groupbys"`
}

// ChatterDecision is the fold of chatter restrictions for one entity
// (global flags OR-ed in).
type ChatterDecision struct {
	HideChatter           bool `json:"hide_chatter"`
	HideSendMessage       bool `json:"hide_send_message"`
	HideLogNotes          bool `json:"hide_log_notes"`
	HideScheduleActivity  bool `json:"hide_schedule_activity"`
	HideSearchMessageIcon bool `json:"hide_search_message_icon"`
	HideAttachmentIcon    bool `json:"hide_attachment_icon"`
	HideFollowersIcon     bool `json:"hide_followers_icon"`
	HideFollowUnfollow    bool `json:"hide_follow_unfollow"`
}
