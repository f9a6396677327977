package accessguard

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/beevik/etree"
)

// ============================================================================
// VIEW REWRITER
// ============================================================================
//
// The rewriter takes a fully combined view definition (inheritance
// already resolved by the host) and mutates it to reflect the resolved
// decisions before the view reaches the presentation layer. Mutation is
// idempotent: flags merge into the structured modifiers map, the CSS
// class is appended only when absent, so re-applying a decision to an
// already rewritten tree changes nothing.

// View kind names used by the rewrite dispatch. "tree" is the legacy
// alias for list views.
const (
	ViewForm   = "form"
	ViewList   = "list"
	ViewTree   = "tree"
	ViewSearch = "search"
)

// RewriteView applies the identity's decisions to one view document and
// returns the mutated XML. Unknown view kinds pass through untouched.
func (e *Engine) RewriteView(ctx context.Context, id Identity, model, viewType, viewXML string) (string, error) {
	if e.skipsRestrictions(id, model) {
		return viewXML, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(viewXML); err != nil {
		return "", err
	}
	root := doc.Root()
	if root == nil {
		return viewXML, nil
	}
	fields, err := e.FieldRules(ctx, id, model)
	if err != nil {
		return "", err
	}
	conds, err := e.FieldConditionRules(ctx, id, model)
	if err != nil {
		return "", err
	}
	switch viewType {
	case ViewForm:
		nodes, err := e.HiddenNodeRules(ctx, id, model)
		if err != nil {
			return "", err
		}
		chatter, err := e.ChatterRules(ctx, id, model)
		if err != nil {
			return "", err
		}
		e.rewriteForm(root, model, fields, conds, nodes, chatter)
	case ViewList, ViewTree:
		nodes, err := e.HiddenNodeRules(ctx, id, model)
		if err != nil {
			return "", err
		}
		e.rewriteList(root, model, fields, conds, nodes)
	case ViewSearch:
		panel, err := e.SearchPanelRules(ctx, id, model)
		if err != nil {
			return "", err
		}
		rewriteSearch(root, panel)
	default:
		return viewXML, nil
	}
	return doc.WriteToString()
}

func (e *Engine) rewriteForm(root *etree.Element, model string, fields *FieldDecision, conds *FieldCondDecision, nodes *HiddenNodeDecision, chatter *ChatterDecision) {
	hidden := e.rewriteFields(root, model, fields, conds, false)
	mirrorLabels(root, hidden)
	for _, button := range elementsByTag(root, "button") {
		name := button.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		if nodes.FormButtons.Hidden(buttonKind(button), name) {
			forceInvisible(button, false)
		}
	}
	for _, page := range elementsByTag(root, "page") {
		name := page.SelectAttrValue("name", "")
		label := page.SelectAttrValue("string", "")
		if (name != "" && nodes.FormTabs[name]) || (label != "" && nodes.FormTabs[label]) {
			forceInvisible(page, false)
		}
	}
	if chatter.HideChatter {
		for _, el := range elementsByClass(root, "oe_chatter") {
			forceInvisible(el, false)
		}
		for _, el := range elementsByTag(root, "chatter") {
			forceInvisible(el, false)
		}
		for _, el := range elementsByClass(root, "o_attachment_preview") {
			forceInvisible(el, false)
		}
	}
}

func (e *Engine) rewriteList(root *etree.Element, model string, fields *FieldDecision, conds *FieldCondDecision, nodes *HiddenNodeDecision) {
	e.rewriteFields(root, model, fields, conds, true)
	for _, button := range elementsByTag(root, "button") {
		name := button.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		set := nodes.ListRowButtons
		if hasAncestorTag(button, "header") {
			set = nodes.ListHeaderButtons
		}
		if set.Hidden(buttonKind(button), name) {
			forceInvisible(button, false)
		}
	}
}

func rewriteSearch(root *etree.Element, panel *SearchPanelDecision) {
	for _, filter := range elementsByTag(root, "filter") {
		name := filter.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		hidden := false
		if isGroupByFilter(filter) {
			hidden = containsString(panel.HiddenGroupBys, name)
		} else {
			hidden = containsString(panel.HiddenFilters, name)
		}
		if hidden {
			forceInvisible(filter, false)
		}
	}
	if panel.HideSearchPanel {
		for _, el := range elementsByTag(root, "searchpanel") {
			forceInvisible(el, false)
		}
	}
}

// rewriteFields applies static flags and conditional restrictions to
// every named field node; it returns the set of statically hidden field
// names so labels can mirror them.
func (e *Engine) rewriteFields(root *etree.Element, model string, fields *FieldDecision, conds *FieldCondDecision, listView bool) map[string]bool {
	hidden := make(map[string]bool)
	var fieldInfos map[string]FieldInfo
	if e.registry != nil && e.registry.Ready() {
		fieldInfos = e.registry.Fields(model)
	}
	for _, node := range elementsByTag(root, "field") {
		name := node.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		if flags, ok := fields.Fields[name]; ok {
			if flags.Invisible {
				forceInvisible(node, listView)
				hidden[name] = true
			}
			if flags.Readonly {
				setModifierFlag(node, AttrReadonly)
				node.CreateAttr("readonly", "1")
			}
			if flags.Required {
				setModifierFlag(node, AttrRequired)
				node.CreateAttr("required", "1")
			}
			if fieldInfos != nil {
				if info, ok := fieldInfos[name]; ok && info.Type == "many2one" {
					mergeRelationOptions(node, flags)
				}
			}
		}
		if cond, ok := conds.Fields[name]; ok {
			for attrType, expr := range cond.Attrs {
				setModifierExpr(node, attrType, expr)
			}
			if cond.Domain != "" {
				node.CreateAttr("domain", cond.Domain)
			}
		}
	}
	return hidden
}

// mirrorLabels hides label nodes bound to a hidden field.
func mirrorLabels(root *etree.Element, hidden map[string]bool) {
	if len(hidden) == 0 {
		return
	}
	for _, label := range elementsByTag(root, "label") {
		if hidden[label.SelectAttrValue("for", "")] {
			forceInvisible(label, false)
		}
	}
}

// ============================================================================
// NODE MUTATION HELPERS
// ============================================================================

func readModifiers(el *etree.Element) map[string]any {
	raw := el.SelectAttrValue("modifiers", "")
	m := make(map[string]any)
	if raw != "" {
		// a broken modifiers blob is replaced rather than propagated
		_ = json.Unmarshal([]byte(raw), &m)
	}
	return m
}

func writeModifiers(el *etree.Element, m map[string]any) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	el.CreateAttr("modifiers", string(b))
}

// setModifierFlag forces a boolean modifier on. An existing true is
// never cleared.
func setModifierFlag(el *etree.Element, name string) {
	m := readModifiers(el)
	m[name] = true
	writeModifiers(el, m)
}

// setModifierExpr installs a conditional modifier expression. An
// existing unconditional true wins over any condition; an existing
// different condition narrows via conjunction.
func setModifierExpr(el *etree.Element, name, expr string) {
	m := readModifiers(el)
	switch existing := m[name].(type) {
	case bool:
		if existing {
			return
		}
		m[name] = expr
	case string:
		if existing == expr {
			return
		}
		m[name] = CombineExpressions(existing, expr)
	default:
		m[name] = expr
	}
	writeModifiers(el, m)
}

// forceInvisible hides a node: modifier, plain attribute, the d-none
// class, and the column form of the attribute inside list views.
func forceInvisible(el *etree.Element, listView bool) {
	setModifierFlag(el, AttrInvisible)
	el.CreateAttr("invisible", "1")
	if listView {
		el.CreateAttr("column_invisible", "1")
		m := readModifiers(el)
		m["column_invisible"] = true
		writeModifiers(el, m)
	}
	addClass(el, "d-none")
}

// addClass appends a CSS class unless already present.
func addClass(el *etree.Element, class string) {
	existing := el.SelectAttrValue("class", "")
	for _, c := range strings.Fields(existing) {
		if c == class {
			return
		}
	}
	if existing == "" {
		el.CreateAttr("class", class)
		return
	}
	el.CreateAttr("class", existing+" "+class)
}

// mergeRelationOptions disables relation affordances on a many2one
// field node via its UI options map.
func mergeRelationOptions(el *etree.Element, flags FieldFlags) {
	if !flags.RemoveCreateOption && !flags.RemoveEditOption && !flags.RemoveInternalLink {
		return
	}
	raw := el.SelectAttrValue("options", "")
	opts := make(map[string]any)
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &opts)
	}
	if flags.RemoveCreateOption {
		opts["no_create"] = true
		opts["no_quick_create"] = true
		opts["no_create_edit"] = true
	}
	if flags.RemoveEditOption {
		opts["no_edit"] = true
	}
	if flags.RemoveInternalLink {
		opts["no_open"] = true
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return
	}
	el.CreateAttr("options", string(b))
}

// ============================================================================
// TREE TRAVERSAL HELPERS
// ============================================================================

// elementsByTag walks the tree depth-first collecting elements with the
// given tag, the root included.
func elementsByTag(root *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if el.Tag == tag {
			out = append(out, el)
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

// elementsByClass collects elements whose class attribute contains the
// given class name.
func elementsByClass(root *etree.Element, class string) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range strings.Fields(el.SelectAttrValue("class", "")) {
			if c == class {
				out = append(out, el)
				break
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

func hasAncestorTag(el *etree.Element, tag string) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p.Tag == tag {
			return true
		}
	}
	return false
}

func hasAncestorClass(el *etree.Element, class string) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, c := range strings.Fields(p.SelectAttrValue("class", "")) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// buttonKind returns the button call kind, object calls being the
// default when the attribute is absent.
func buttonKind(el *etree.Element) string {
	t := el.SelectAttrValue("type", "")
	if t == "" {
		return ButtonObject
	}
	return t
}

// isGroupByFilter reports whether a search filter node is a group-by
// option rather than a plain filter.
func isGroupByFilter(el *etree.Element) bool {
	return strings.Contains(el.SelectAttrValue("context", ""), "group_by")
}
