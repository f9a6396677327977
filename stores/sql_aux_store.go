package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/accessguard"
)

// SQLGroupStore persists user groups via squealx.
type SQLGroupStore struct {
	db *squealx.DB
}

func NewSQLGroupStore(db *squealx.DB) *SQLGroupStore {
	return &SQLGroupStore{db: db}
}

func (s *SQLGroupStore) CreateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id FROM user_groups WHERE name = :name`, map[string]any{"name": g.Name})
	if err != nil {
		return err
	}
	dup := r.Next()
	r.Close()
	if dup {
		return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("group name %s already exists", g.Name)}
	}
	q := `INSERT INTO user_groups(id, name, user_ids_json) VALUES(:id, :name, :user_ids_json)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"id": g.ID, "name": g.Name, "user_ids_json": jsonList(g.UserIDs)})
	return err
}

func (s *SQLGroupStore) UpdateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	q := `UPDATE user_groups SET name = :name, user_ids_json = :user_ids_json WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": g.ID, "name": g.Name, "user_ids_json": jsonList(g.UserIDs)})
	return err
}

func (s *SQLGroupStore) DeleteGroup(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM user_groups WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLGroupStore) GetGroup(ctx context.Context, id string) (*accessguard.UserGroup, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, name, user_ids_json FROM user_groups WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	return scanGroup(r)
}

func scanGroup(r rowScanner) (*accessguard.UserGroup, error) {
	var id, name, usersJSON string
	if err := r.Scan(&id, &name, &usersJSON); err != nil {
		return nil, err
	}
	return &accessguard.UserGroup{ID: id, Name: name, UserIDs: fromJSONList(usersJSON)}, nil
}

func (s *SQLGroupStore) ListGroups(ctx context.Context) ([]*accessguard.UserGroup, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, name, user_ids_json FROM user_groups ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.UserGroup, 0)
	for r.Next() {
		g, err := scanGroup(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *SQLGroupStore) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	// membership lives in a JSON array column, filter in process
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for _, g := range groups {
		for _, u := range g.UserIDs {
			if u == userID {
				out = append(out, g.ID)
				break
			}
		}
	}
	return out, nil
}

// SQLViewNodeStore persists discovered view nodes; the natural-key
// UNIQUE constraint backs FindOrCreate.
type SQLViewNodeStore struct {
	db *squealx.DB
}

func NewSQLViewNodeStore(db *squealx.DB) *SQLViewNodeStore {
	return &SQLViewNodeStore{db: db}
}

func (s *SQLViewNodeStore) FindOrCreate(ctx context.Context, n *accessguard.ViewNode) (bool, error) {
	q := `SELECT id FROM view_nodes WHERE model = :model AND option = :option AND name = :name
		AND label = :label AND button_type = :button_type AND smart_button = :smart_button
		AND view_bucket = :view_bucket`
	args := map[string]any{
		"model": n.Model, "option": n.Option, "name": n.Name, "label": n.Label,
		"button_type": n.ButtonType, "smart_button": boolToInt(n.SmartButton), "view_bucket": n.ViewBucket,
	}
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return false, err
	}
	if r.Next() {
		var id string
		err := r.Scan(&id)
		r.Close()
		if err != nil {
			return false, err
		}
		n.ID = id
		return false, nil
	}
	r.Close()
	args["id"] = n.ID
	q = `INSERT INTO view_nodes(id, model, option, name, label, button_type, smart_button, view_bucket)
		VALUES(:id, :model, :option, :name, :label, :button_type, :smart_button, :view_bucket)`
	if _, err := s.db.NamedExecContext(ctx, q, args); err != nil {
		return false, err
	}
	return true, nil
}

func scanViewNode(r rowScanner) (*accessguard.ViewNode, error) {
	var (
		id, model, option, name, label, buttonType, bucket string
		smart                                              int
	)
	if err := r.Scan(&id, &model, &option, &name, &label, &buttonType, &smart, &bucket); err != nil {
		return nil, err
	}
	return &accessguard.ViewNode{
		ID: id, Model: model, Option: option, Name: name, Label: label,
		ButtonType: buttonType, SmartButton: intToBool(smart), ViewBucket: bucket,
	}, nil
}

func (s *SQLViewNodeStore) GetViewNode(ctx context.Context, id string) (*accessguard.ViewNode, error) {
	q := `SELECT id, model, option, name, label, button_type, smart_button, view_bucket FROM view_nodes WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("view node not found: %s", id)
	}
	return scanViewNode(r)
}

func (s *SQLViewNodeStore) ListViewNodes(ctx context.Context, model, option string) ([]*accessguard.ViewNode, error) {
	q := `SELECT id, model, option, name, label, button_type, smart_button, view_bucket FROM view_nodes
		WHERE (:model = '' OR model = :model) AND (:option = '' OR option = :option) ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"model": model, "option": option})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.ViewNode, 0)
	for r.Next() {
		n, err := scanViewNode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// SQLReferenceStore persists action/menu mirrors and view types.
type SQLReferenceStore struct {
	db *squealx.DB
}

func NewSQLReferenceStore(db *squealx.DB) *SQLReferenceStore {
	return &SQLReferenceStore{db: db}
}

func (s *SQLReferenceStore) CreateActionRef(ctx context.Context, ref *accessguard.ActionRef) error {
	q := `INSERT INTO action_refs(id, action_id, name, report) VALUES(:id, :action_id, :name, :report)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id": ref.ID, "action_id": ref.ActionID, "name": ref.Name, "report": boolToInt(ref.Report),
	})
	return err
}

func (s *SQLReferenceStore) DeleteActionRefsByAction(ctx context.Context, actionID string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM action_refs WHERE action_id = :action_id`, map[string]any{"action_id": actionID})
	return err
}

func (s *SQLReferenceStore) GetActionRef(ctx context.Context, id string) (*accessguard.ActionRef, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, action_id, name, report FROM action_refs WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("action reference not found: %s", id)
	}
	var idv, actionID, name string
	var report int
	if err := r.Scan(&idv, &actionID, &name, &report); err != nil {
		return nil, err
	}
	return &accessguard.ActionRef{ID: idv, ActionID: actionID, Name: name, Report: intToBool(report)}, nil
}

func (s *SQLReferenceStore) ListActionRefs(ctx context.Context) ([]*accessguard.ActionRef, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, action_id, name, report FROM action_refs ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.ActionRef, 0)
	for r.Next() {
		var id, actionID, name string
		var report int
		if err := r.Scan(&id, &actionID, &name, &report); err != nil {
			return nil, err
		}
		out = append(out, &accessguard.ActionRef{ID: id, ActionID: actionID, Name: name, Report: intToBool(report)})
	}
	return out, nil
}

func (s *SQLReferenceStore) CreateMenuRef(ctx context.Context, ref *accessguard.MenuRef) error {
	q := `INSERT INTO menu_refs(id, menu_id, name) VALUES(:id, :menu_id, :name)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": ref.ID, "menu_id": ref.MenuID, "name": ref.Name})
	return err
}

func (s *SQLReferenceStore) DeleteMenuRefsByMenu(ctx context.Context, menuID string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM menu_refs WHERE menu_id = :menu_id`, map[string]any{"menu_id": menuID})
	return err
}

func (s *SQLReferenceStore) GetMenuRef(ctx context.Context, id string) (*accessguard.MenuRef, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, menu_id, name FROM menu_refs WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("menu reference not found: %s", id)
	}
	var idv, menuID, name string
	if err := r.Scan(&idv, &menuID, &name); err != nil {
		return nil, err
	}
	return &accessguard.MenuRef{ID: idv, MenuID: menuID, Name: name}, nil
}

func (s *SQLReferenceStore) ListMenuRefs(ctx context.Context) ([]*accessguard.MenuRef, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, menu_id, name FROM menu_refs ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.MenuRef, 0)
	for r.Next() {
		var id, menuID, name string
		if err := r.Scan(&id, &menuID, &name); err != nil {
			return nil, err
		}
		out = append(out, &accessguard.MenuRef{ID: id, MenuID: menuID, Name: name})
	}
	return out, nil
}

func (s *SQLReferenceStore) CreateViewType(ctx context.Context, vt *accessguard.ViewType) error {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id FROM view_types WHERE techname = :techname`, map[string]any{"techname": vt.TechName})
	if err != nil {
		return err
	}
	dup := r.Next()
	r.Close()
	if dup {
		return &accessguard.ValidationError{Field: "techname", Reason: fmt.Sprintf("view type %s already exists", vt.TechName)}
	}
	q := `INSERT INTO view_types(id, name, techname) VALUES(:id, :name, :techname)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"id": vt.ID, "name": vt.Name, "techname": vt.TechName})
	return err
}

func (s *SQLReferenceStore) ListViewTypes(ctx context.Context) ([]*accessguard.ViewType, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, name, techname FROM view_types ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessguard.ViewType, 0)
	for r.Next() {
		var id, name, techname string
		if err := r.Scan(&id, &name, &techname); err != nil {
			return nil, err
		}
		out = append(out, &accessguard.ViewType{ID: id, Name: name, TechName: techname})
	}
	return out, nil
}
