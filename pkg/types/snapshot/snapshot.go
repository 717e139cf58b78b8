// Package snapshot defines the page snapshot types written by detection:
// DOM summary elements, run metadata, the controls tree and main blocks.
package snapshot

import (
	"strconv"
	"strings"
)

// Rect is a box encoded as [x, y, w, h].
type Rect [4]float64

// X returns the left edge
func (r Rect) X() float64 { return r[0] }

// Y returns the top edge
func (r Rect) Y() float64 { return r[1] }

// W returns the width
func (r Rect) W() float64 { return r[2] }

// H returns the height
func (r Rect) H() float64 { return r[3] }

// Area returns w*h
func (r Rect) Area() float64 { return r[2] * r[3] }

// Empty reports whether the box has no positive extent.
func (r Rect) Empty() bool { return r[2] <= 0 || r[3] <= 0 }

// Intersection returns the overlapping area of two boxes.
func (r Rect) Intersection(o Rect) float64 {
	x0, y0 := max(r[0], o[0]), max(r[1], o[1])
	x1, y1 := min(r[0]+r[2], o[0]+o[2]), min(r[1]+r[3], o[1]+o[3])
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0)
}

// Viewport is a browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultViewport is used when a run carries no viewport.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// OrDefault returns v, or DefaultViewport when v has no size.
func (v *Viewport) OrDefault() Viewport {
	if v == nil || v.Width <= 0 || v.Height <= 0 {
		return DefaultViewport
	}
	return *v
}

// Aria holds accessible label and name hints.
type Aria struct {
	Label string `json:"label,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Element is a single entry of a DOM summary.
type Element struct {
	Index            int     `json:"index"`
	ParentIndex      *int    `json:"parent_index,omitempty"`
	Tag              string  `json:"tag"`
	ID               string  `json:"id,omitempty"`
	Class            string  `json:"class,omitempty"`
	Name             string  `json:"name,omitempty"`
	Type             string  `json:"type,omitempty"`
	Role             string  `json:"role,omitempty"`
	Text             string  `json:"text,omitempty"`
	InnerText        string  `json:"innerText,omitempty"`
	Placeholder      string  `json:"placeholder,omitempty"`
	Title            string  `json:"title,omitempty"`
	Href             string  `json:"href,omitempty"`
	Aria             Aria    `json:"aria"`
	BBox             Rect    `json:"bbox"`
	PageBBox         *Rect   `json:"page_bbox,omitempty"`
	Visible          bool    `json:"visible"`
	VisibleAdv       *bool   `json:"visible_adv,omitempty"`
	InViewport       bool    `json:"in_viewport"`
	Occluded         bool    `json:"occluded,omitempty"`
	IsControl        bool    `json:"is_control,omitempty"`
	InteractiveScore float64 `json:"interactive_score,omitempty"`
	Action           string  `json:"action,omitempty"`
	BorderRadius     float64 `json:"border_radius,omitempty"`
}

// IsVisible prefers the occlusion-aware visibility when present.
func (e Element) IsVisible() bool {
	if e.VisibleAdv != nil {
		return *e.VisibleAdv
	}
	return e.Visible
}

// LowerTag returns the lowercased tag name.
func (e Element) LowerTag() string { return strings.ToLower(e.Tag) }

// LowerRole returns the lowercased role.
func (e Element) LowerRole() string { return strings.ToLower(e.Role) }

// Classes splits the class attribute on whitespace.
func (e Element) Classes() []string { return strings.Fields(e.Class) }

// PageRect returns the page-space box, falling back to the viewport box.
func (e Element) PageRect() Rect {
	if e.PageBBox != nil {
		return *e.PageBBox
	}
	return e.BBox
}

// Fingerprint identifies an element across the initial and scrolled summaries.
func (e Element) Fingerprint() string {
	text := e.Text
	if r := []rune(text); len(r) > 80 {
		text = string(r[:80])
	}
	b := e.BBox
	return strings.Join([]string{
		e.Tag, e.ID, e.Class, e.Role, e.Name, text,
		fmtNum(b[0]) + "-" + fmtNum(b[1]) + "-" + fmtNum(b[2]) + "-" + fmtNum(b[3]),
	}, "|")
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// DomSummary is the content of dom_summary.json.
type DomSummary struct {
	Count    int       `json:"count"`
	Viewport Viewport  `json:"viewport"`
	Elements []Element `json:"elements"`
}

// ByIndex maps element index to element.
func (d *DomSummary) ByIndex() map[int]Element {
	out := make(map[int]Element, len(d.Elements))
	for _, e := range d.Elements {
		out[e.Index] = e
	}
	return out
}

// ScrollDiff is the content of dom_scrolled_new.json.
type ScrollDiff struct {
	InitialCount  int       `json:"initial_count"`
	ScrolledCount int       `json:"scrolled_count"`
	NewCount      int       `json:"new_count"`
	NewElements   []Element `json:"new_elements"`
}

// Warning is a non-fatal problem recorded during detection.
type Warning struct {
	Code  string `json:"code"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RunError is the fatal error recorded for a failed run.
type RunError struct {
	Code    string `json:"code"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Meta is the content of meta.json.
type Meta struct {
	Status            string           `json:"status"`
	URL               string           `json:"url"`
	FinalURL          string           `json:"final_url,omitempty"`
	Title             string           `json:"title,omitempty"`
	Domain            string           `json:"domain"`
	DomainSanitized   string           `json:"domain_sanitized"`
	Viewport          Viewport         `json:"viewport"`
	Timestamp         string           `json:"timestamp"`
	DetectSpecVersion string           `json:"detect_spec_version"`
	Warnings          []Warning        `json:"warnings,omitempty"`
	Error             *RunError        `json:"error,omitempty"`
	Counts            map[string]int   `json:"counts,omitempty"`
	Timings           map[string]int64 `json:"timings_ms,omitempty"`
}

// Node types of the controls tree.
const (
	NodeControl = "control"
	NodeContent = "content"
)

// Shapes derived from border radius.
const (
	ShapeRect  = "rect"
	ShapePill  = "pill"
	ShapeRound = "round"
)

// Geom holds a node's geometry.
type Geom struct {
	BBox     Rect   `json:"bbox"`
	PageBBox *Rect  `json:"page_bbox,omitempty"`
	Shape    string `json:"shape,omitempty"`
}

// Node is a controls tree node.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Action   string   `json:"action,omitempty"`
	Selector string   `json:"selector,omitempty"`
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
	Geom     Geom     `json:"geom"`
	Role     string   `json:"role,omitempty"`
	Text     string   `json:"text,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// IsControl reports whether the node is a control.
func (n Node) IsControl() bool { return n.Type == NodeControl }

// ParentID returns the parent id or "".
func (n Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return *n.Parent
}

// TreeMeta is the meta block of controls_tree.json.
type TreeMeta struct {
	Source       string    `json:"source"`
	RuleVersion  string    `json:"rule_version"`
	Count        int       `json:"count"`
	ControlCount int       `json:"control_count"`
	ContentCount int       `json:"content_count"`
	Viewport     *Viewport `json:"viewport,omitempty"`
}

// ControlsTree is the content of controls_tree.json.
type ControlsTree struct {
	Nodes []Node   `json:"nodes"`
	Roots []string `json:"roots"`
	Meta  TreeMeta `json:"meta"`
}

// ByID maps node id to a pointer into Nodes.
func (t *ControlsTree) ByID() map[string]*Node {
	out := make(map[string]*Node, len(t.Nodes))
	for i := range t.Nodes {
		out[t.Nodes[i].ID] = &t.Nodes[i]
	}
	return out
}

// BlockReasons records why a block was kept.
type BlockReasons struct {
	SizeOK        bool `json:"size_ok"`
	HasSubmit     bool `json:"has_submit"`
	InnerKW       bool `json:"inner_kw"`
	ChildrenCount int  `json:"children_count"`
}

// Block is a main control block.
type Block struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Desc     string       `json:"desc,omitempty"`
	Selector string       `json:"selector"`
	BBox     Rect         `json:"bbox"`
	Reasons  BlockReasons `json:"reasons"`
}

// Blocks is the content of blocks.json.
type Blocks struct {
	Rules  string  `json:"rules"`
	Blocks []Block `json:"blocks"`
}
