package detect

import (
	"strconv"
	"strings"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// RuleVersion tags trees built by BuildControlsTree.
const RuleVersion = "r1.0.0"

var (
	controlTags  = map[string]bool{"button": true, "input": true, "select": true, "textarea": true, "a": true}
	controlRoles = map[string]bool{"button": true, "link": true, "textbox": true, "checkbox": true, "radio": true, "combobox": true}
)

// IsControl reports whether an element is interactive.
func IsControl(e snapshot.Element) bool {
	switch {
	case e.IsControl,
		controlTags[e.LowerTag()],
		controlRoles[e.LowerRole()],
		e.InteractiveScore >= 0.5,
		strings.Contains(strings.ToLower(e.Class), "btn"):
		return true
	}
	return false
}

// ShapeFromRadius classifies a box by its border radius.
func ShapeFromRadius(bbox snapshot.Rect, radius float64) string {
	w, h := float64(int(bbox.W())), float64(int(bbox.H()))
	if radius <= 0 || w <= 0 || h <= 0 {
		return snapshot.ShapeRect
	}
	m := min(w, h)
	switch {
	case radius >= m*0.45:
		return snapshot.ShapeRound
	case radius >= m*0.25:
		return snapshot.ShapePill
	}
	return snapshot.ShapeRect
}

// NodeID names the tree node for a DOM index.
func NodeID(index int) string { return "d" + strconv.Itoa(index) }

// ParseNodeID returns the DOM index encoded in a "d<index>" node id.
func ParseNodeID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "d")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// BuildControlsTree keeps visible controls and links each to its nearest
// control ancestor. The first element seen for an index wins.
func BuildControlsTree(elements []snapshot.Element) *snapshot.ControlsTree {
	byIdx := make(map[int]snapshot.Element, len(elements))
	var order []int
	controls := make(map[int]bool)
	for _, e := range elements {
		if _, dup := byIdx[e.Index]; dup {
			continue
		}
		byIdx[e.Index] = e
		if !e.IsVisible() || e.BBox.Empty() || !IsControl(e) {
			continue
		}
		controls[e.Index] = true
		order = append(order, e.Index)
	}

	parentOf := make(map[int]int, len(order))
	children := make(map[int][]string)
	for _, idx := range order {
		p := byIdx[idx].ParentIndex
		for p != nil {
			if controls[*p] {
				parentOf[idx] = *p
				children[*p] = append(children[*p], NodeID(idx))
				break
			}
			pe, ok := byIdx[*p]
			if !ok {
				break
			}
			p = pe.ParentIndex
		}
	}

	tree := &snapshot.ControlsTree{
		Nodes: make([]snapshot.Node, 0, len(order)),
		Roots: []string{},
	}
	for _, idx := range order {
		e := byIdx[idx]
		n := snapshot.Node{
			ID:       NodeID(idx),
			Type:     snapshot.NodeControl,
			Action:   locator.InferAction(e.Tag, e.Type, e.Role, e.Href, e.Action),
			Selector: locator.BuildSelector(e),
			Children: children[idx],
			Geom: snapshot.Geom{
				BBox:     e.BBox,
				PageBBox: e.PageBBox,
				Shape:    ShapeFromRadius(e.BBox, e.BorderRadius),
			},
			Role: e.Role,
			Text: locator.NormText(locator.FirstNonEmpty(e.Text, e.InnerText)),
			Name: e.Name,
		}
		if n.Children == nil {
			n.Children = []string{}
		}
		if p, ok := parentOf[idx]; ok {
			pid := NodeID(p)
			n.Parent = &pid
		} else {
			tree.Roots = append(tree.Roots, n.ID)
		}
		tree.Nodes = append(tree.Nodes, n)
	}
	tree.Meta = snapshot.TreeMeta{
		Source:       "dom+ax?",
		RuleVersion:  RuleVersion,
		Count:        len(tree.Nodes),
		ControlCount: len(tree.Nodes),
	}
	return tree
}
