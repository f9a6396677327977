package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/accessguard"
)

// SQLRuleSetStore persists rule sets via squealx. List columns are
// stored as JSON arrays; booleans as integers.
type SQLRuleSetStore struct {
	db *squealx.DB
}

func NewSQLRuleSetStore(db *squealx.DB) *SQLRuleSetStore {
	return &SQLRuleSetStore{db: db}
}

func ruleSetArgs(rs *accessguard.RuleSet) map[string]any {
	return map[string]any{
		"id":                       rs.ID,
		"name":                     rs.Name,
		"active":                   boolToInt(rs.Active),
		"apply_by_user_groups":     boolToInt(rs.ApplyByGroups),
		"group_ids_json":           jsonList(rs.GroupIDs),
		"user_ids_json":            jsonList(rs.UserIDs),
		"apply_without_companies":  boolToInt(rs.ApplyWithoutCompanies),
		"company_ids_json":         jsonList(rs.CompanyIDs),
		"default_internal_user":    boolToInt(rs.DefaultInternalUser),
		"default_portal_user":      boolToInt(rs.DefaultPortalUser),
		"readonly":                 boolToInt(rs.Readonly),
		"disable_debug":            boolToInt(rs.DisableDebug),
		"disable_login":            boolToInt(rs.DisableLogin),
		"hide_menu_ids_json":       jsonList(rs.HideMenuIDs),
		"hide_create":              boolToInt(rs.HideCreate),
		"hide_edit":                boolToInt(rs.HideEdit),
		"hide_unlink":              boolToInt(rs.HideUnlink),
		"hide_duplicate":           boolToInt(rs.HideDuplicate),
		"hide_archive":             boolToInt(rs.HideArchive),
		"hide_unarchive":           boolToInt(rs.HideUnarchive),
		"hide_import":              boolToInt(rs.HideImport),
		"hide_export":              boolToInt(rs.HideExport),
		"hide_add_property":        boolToInt(rs.HideAddProperty),
		"hide_chatter":             boolToInt(rs.HideChatter),
		"hide_send_message":        boolToInt(rs.HideSendMessage),
		"hide_log_notes":           boolToInt(rs.HideLogNotes),
		"hide_schedule_activity":   boolToInt(rs.HideScheduleActivity),
		"hide_search_message_icon": boolToInt(rs.HideSearchMessageIcon),
		"hide_attachment_icon":     boolToInt(rs.HideAttachmentIcon),
		"hide_followers_icon":      boolToInt(rs.HideFollowersIcon),
		"hide_follow_unfollow":     boolToInt(rs.HideFollowUnfollow),
		"hide_search_panel":        boolToInt(rs.HideSearchPanel),
		"hide_custom_filter":       boolToInt(rs.HideCustomFilter),
		"hide_custom_group":        boolToInt(rs.HideCustomGroup),
		"hide_unlink_in_favorites": boolToInt(rs.HideUnlinkInFavorites),
		"created_at":               rs.CreatedAt,
		"updated_at":               rs.UpdatedAt,
	}
}

const ruleSetColumns = `id, name, active, apply_by_user_groups, group_ids_json, user_ids_json,
	apply_without_companies, company_ids_json, default_internal_user, default_portal_user,
	readonly, disable_debug, disable_login, hide_menu_ids_json,
	hide_create, hide_edit, hide_unlink, hide_duplicate, hide_archive, hide_unarchive,
	hide_import, hide_export, hide_add_property,
	hide_chatter, hide_send_message, hide_log_notes, hide_schedule_activity,
	hide_search_message_icon, hide_attachment_icon, hide_followers_icon, hide_follow_unfollow,
	hide_search_panel, hide_custom_filter, hide_custom_group, hide_unlink_in_favorites,
	created_at, updated_at`

// rowScanner is the slice of the rows API the scan helpers need.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleSet(r rowScanner) (*accessguard.RuleSet, error) {
	var (
		id, name                                    string
		active, byGroups                            int
		groupsJSON, usersJSON                       string
		withoutCompanies                            int
		companiesJSON                               string
		defInternal, defPortal                      int
		readonly, disableDebug, disableLogin        int
		menusJSON                                   string
		hCreate, hEdit, hUnlink, hDuplicate         int
		hArchive, hUnarchive, hImport, hExport      int
		hAddProperty                                int
		hChatter, hSend, hLog, hSchedule            int
		hSearchMsg, hAttach, hFollowers, hFollow    int
		hPanel, hCustomFilter, hCustomGroup, hUnfav int
		createdRaw, updatedRaw                      any
	)
	if err := r.Scan(&id, &name, &active, &byGroups, &groupsJSON, &usersJSON,
		&withoutCompanies, &companiesJSON, &defInternal, &defPortal,
		&readonly, &disableDebug, &disableLogin, &menusJSON,
		&hCreate, &hEdit, &hUnlink, &hDuplicate, &hArchive, &hUnarchive,
		&hImport, &hExport, &hAddProperty,
		&hChatter, &hSend, &hLog, &hSchedule,
		&hSearchMsg, &hAttach, &hFollowers, &hFollow,
		&hPanel, &hCustomFilter, &hCustomGroup, &hUnfav,
		&createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &accessguard.RuleSet{
		ID:                    id,
		Name:                  name,
		Active:                intToBool(active),
		ApplyByGroups:         intToBool(byGroups),
		GroupIDs:              fromJSONList(groupsJSON),
		UserIDs:               fromJSONList(usersJSON),
		ApplyWithoutCompanies: intToBool(withoutCompanies),
		CompanyIDs:            fromJSONList(companiesJSON),
		DefaultInternalUser:   intToBool(defInternal),
		DefaultPortalUser:     intToBool(defPortal),
		Readonly:              intToBool(readonly),
		DisableDebug:          intToBool(disableDebug),
		DisableLogin:          intToBool(disableLogin),
		HideMenuIDs:           fromJSONList(menusJSON),
		HideCreate:            intToBool(hCreate),
		HideEdit:              intToBool(hEdit),
		HideUnlink:            intToBool(hUnlink),
		HideDuplicate:         intToBool(hDuplicate),
		HideArchive:           intToBool(hArchive),
		HideUnarchive:         intToBool(hUnarchive),
		HideImport:            intToBool(hImport),
		HideExport:            intToBool(hExport),
		HideAddProperty:       intToBool(hAddProperty),
		HideChatter:           intToBool(hChatter),
		HideSendMessage:       intToBool(hSend),
		HideLogNotes:          intToBool(hLog),
		HideScheduleActivity:  intToBool(hSchedule),
		HideSearchMessageIcon: intToBool(hSearchMsg),
		HideAttachmentIcon:    intToBool(hAttach),
		HideFollowersIcon:     intToBool(hFollowers),
		HideFollowUnfollow:    intToBool(hFollow),
		HideSearchPanel:       intToBool(hPanel),
		HideCustomFilter:      intToBool(hCustomFilter),
		HideCustomGroup:       intToBool(hCustomGroup),
		HideUnlinkInFavorites: intToBool(hUnfav),
		CreatedAt:             scanTime(createdRaw),
		UpdatedAt:             scanTime(updatedRaw),
	}, nil
}

func (s *SQLRuleSetStore) nameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id FROM rule_sets WHERE name = :name AND id != :id`,
		map[string]any{"name": name, "id": excludeID})
	if err != nil {
		return false, err
	}
	defer r.Close()
	return r.Next(), nil
}

func (s *SQLRuleSetStore) CreateRuleSet(ctx context.Context, rs *accessguard.RuleSet) error {
	taken, err := s.nameTaken(ctx, rs.Name, rs.ID)
	if err != nil {
		return err
	}
	if taken {
		return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("rule set name %s already exists", rs.Name)}
	}
	q := `INSERT INTO rule_sets(` + ruleSetColumns + `) VALUES(
		:id, :name, :active, :apply_by_user_groups, :group_ids_json, :user_ids_json,
		:apply_without_companies, :company_ids_json, :default_internal_user, :default_portal_user,
		:readonly, :disable_debug, :disable_login, :hide_menu_ids_json,
		:hide_create, :hide_edit, :hide_unlink, :hide_duplicate, :hide_archive, :hide_unarchive,
		:hide_import, :hide_export, :hide_add_property,
		:hide_chatter, :hide_send_message, :hide_log_notes, :hide_schedule_activity,
		:hide_search_message_icon, :hide_attachment_icon, :hide_followers_icon, :hide_follow_unfollow,
		:hide_search_panel, :hide_custom_filter, :hide_custom_group, :hide_unlink_in_favorites,
		:created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, ruleSetArgs(rs))
	return err
}

func (s *SQLRuleSetStore) UpdateRuleSet(ctx context.Context, rs *accessguard.RuleSet) error {
	taken, err := s.nameTaken(ctx, rs.Name, rs.ID)
	if err != nil {
		return err
	}
	if taken {
		return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("rule set name %s already exists", rs.Name)}
	}
	q := `UPDATE rule_sets SET name=:name, active=:active,
		apply_by_user_groups=:apply_by_user_groups, group_ids_json=:group_ids_json, user_ids_json=:user_ids_json,
		apply_without_companies=:apply_without_companies, company_ids_json=:company_ids_json,
		default_internal_user=:default_internal_user, default_portal_user=:default_portal_user,
		readonly=:readonly, disable_debug=:disable_debug, disable_login=:disable_login,
		hide_menu_ids_json=:hide_menu_ids_json,
		hide_create=:hide_create, hide_edit=:hide_edit, hide_unlink=:hide_unlink,
		hide_duplicate=:hide_duplicate, hide_archive=:hide_archive, hide_unarchive=:hide_unarchive,
		hide_import=:hide_import, hide_export=:hide_export, hide_add_property=:hide_add_property,
		hide_chatter=:hide_chatter, hide_send_message=:hide_send_message, hide_log_notes=:hide_log_notes,
		hide_schedule_activity=:hide_schedule_activity, hide_search_message_icon=:hide_search_message_icon,
		hide_attachment_icon=:hide_attachment_icon, hide_followers_icon=:hide_followers_icon,
		hide_follow_unfollow=:hide_follow_unfollow,
		hide_search_panel=:hide_search_panel, hide_custom_filter=:hide_custom_filter,
		hide_custom_group=:hide_custom_group, hide_unlink_in_favorites=:hide_unlink_in_favorites,
		updated_at=:updated_at WHERE id=:id`
	_, err = s.db.NamedExecContext(ctx, q, ruleSetArgs(rs))
	return err
}

func (s *SQLRuleSetStore) DeleteRuleSet(ctx context.Context, id string) error {
	// sub-rule rows go with it via ON DELETE CASCADE
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM rule_sets WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRuleSetStore) GetRuleSet(ctx context.Context, id string) (*accessguard.RuleSet, error) {
	q := `SELECT ` + ruleSetColumns + ` FROM rule_sets WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("rule set not found: %s", id)
	}
	return scanRuleSet(r)
}

func (s *SQLRuleSetStore) ListRuleSets(ctx context.Context) ([]*accessguard.RuleSet, error) {
	q := `SELECT ` + ruleSetColumns + ` FROM rule_sets ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.RuleSet, 0)
	for r.Next() {
		rs, err := scanRuleSet(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}
