package accessguard

import (
	"context"
	"strings"

	"github.com/beevik/etree"
)

// ============================================================================
// UI NODE DISCOVERY
// ============================================================================
//
// Discovery runs once per entity when an administrator opens the rule
// configuration screen, not on every render. It parses the combined
// form, list and search definitions, extracts the interactive nodes an
// administrator may hide, and persists any node not seen before.
// Discovered records are never auto-deleted; the store deduplicates by
// the node's natural key. Failures are logged and skipped so a single
// broken view never blocks configuration.

// DiscoverViewNodes scans an entity's views and persists newly found
// buttons, tabs, filters and group-by options. It returns the number of
// new records.
func (e *Engine) DiscoverViewNodes(ctx context.Context, model string) (int, error) {
	if e.views == nil {
		return 0, nil
	}
	var candidates []*ViewNode
	for _, viewType := range []string{ViewForm, ViewList, ViewSearch} {
		docs, err := e.views.CombinedViews(ctx, model, viewType)
		if err != nil {
			e.log.Error("view retrieval failed during discovery", "model", model, "view_type", viewType, "error", err.Error())
			continue
		}
		for _, viewXML := range docs {
			doc := etree.NewDocument()
			if err := doc.ReadFromString(viewXML); err != nil {
				e.log.Error("unparsable view skipped during discovery", "model", model, "view_type", viewType, "error", err.Error())
				continue
			}
			root := doc.Root()
			if root == nil {
				continue
			}
			switch viewType {
			case ViewForm:
				candidates = append(candidates, discoverFormNodes(model, root)...)
			case ViewList:
				candidates = append(candidates, discoverListNodes(model, root)...)
			case ViewSearch:
				candidates = append(candidates, discoverSearchNodes(model, root)...)
			}
		}
	}
	created := 0
	for _, node := range candidates {
		node.ID = newID()
		isNew, err := e.nodes.FindOrCreate(ctx, node)
		if err != nil {
			e.log.Error("view node persistence failed", "model", model, "name", node.Name, "error", err.Error())
			continue
		}
		if isNew {
			created++
		}
	}
	if created > 0 {
		e.log.Info("view nodes discovered", "model", model, "created", created)
	}
	return created, nil
}

func discoverFormNodes(model string, root *etree.Element) []*ViewNode {
	var out []*ViewNode
	for _, button := range elementsByTag(root, "button") {
		name := button.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		smart := hasAncestorClass(button, "oe_button_box")
		if !smart && !hasAncestorTag(button, "header") {
			continue
		}
		bucket := BucketForm
		if smart {
			bucket = BucketFormSmart
		}
		out = append(out, &ViewNode{
			Model:       model,
			Option:      NodeButton,
			Name:        name,
			Label:       buttonLabel(button),
			ButtonType:  buttonKind(button),
			SmartButton: smart,
			ViewBucket:  bucket,
		})
	}
	for _, page := range elementsByTag(root, "page") {
		label := page.SelectAttrValue("string", "")
		if label == "" {
			continue
		}
		out = append(out, &ViewNode{
			Model:      model,
			Option:     NodePage,
			Name:       page.SelectAttrValue("name", ""),
			Label:      label,
			ViewBucket: BucketForm,
		})
	}
	return out
}

func discoverListNodes(model string, root *etree.Element) []*ViewNode {
	var out []*ViewNode
	for _, button := range elementsByTag(root, "button") {
		name := button.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		bucket := BucketListRow
		if hasAncestorTag(button, "header") {
			bucket = BucketListHeader
		}
		out = append(out, &ViewNode{
			Model:      model,
			Option:     NodeButton,
			Name:       name,
			Label:      buttonLabel(button),
			ButtonType: buttonKind(button),
			ViewBucket: bucket,
		})
	}
	return out
}

func discoverSearchNodes(model string, root *etree.Element) []*ViewNode {
	var out []*ViewNode
	for _, filter := range elementsByTag(root, "filter") {
		name := filter.SelectAttrValue("name", "")
		label := filter.SelectAttrValue("string", "")
		if name == "" || label == "" {
			continue
		}
		if filter.SelectAttrValue("invisible", "") != "" {
			continue
		}
		context := filter.SelectAttrValue("context", "")
		if isGroupByFilter(filter) {
			// group-by options carry a group_by context and sit inside a
			// grouping section
			if context == "" || !hasAncestorTag(filter, "group") {
				continue
			}
			out = append(out, &ViewNode{
				Model:      model,
				Option:     NodeGroupBy,
				Name:       name,
				Label:      label,
				ViewBucket: BucketSearch,
			})
			continue
		}
		// plain filters carrying extra context behave unpredictably when
		// hidden, leave them alone
		if context != "" {
			continue
		}
		out = append(out, &ViewNode{
			Model:      model,
			Option:     NodeFilter,
			Name:       name,
			Label:      label,
			ViewBucket: BucketSearch,
		})
	}
	return out
}

// buttonLabel extracts a display label: the string attribute, a nested
// label field, any span text, or the button's own text.
func buttonLabel(button *etree.Element) string {
	if s := button.SelectAttrValue("string", ""); s != "" {
		return s
	}
	for _, field := range elementsByTag(button, "field") {
		if name := field.SelectAttrValue("name", ""); name != "" {
			return name
		}
	}
	for _, span := range elementsByTag(button, "span") {
		if text := strings.TrimSpace(span.Text()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(button.Text())
}
