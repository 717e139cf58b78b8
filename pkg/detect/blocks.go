package detect

import (
	"strings"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// RulesStrict names the only block segmentation rule set.
const RulesStrict = "strict"

// containerKeywords mark classes of inner wrappers, lists and navigation.
var containerKeywords = []string{
	"inner", "inner-wrap", "innerwrap", "list", "items", "nav", "wrap", "container", "panel", "footer",
}

// Size veto reasons.
const (
	VetoZeroSize     = "zero_size"
	VetoTooSmall     = "too_small"
	VetoTooLarge     = "too_large"
	VetoExtremeRatio = "extreme_ratio"
)

// BlockOptions tune SegmentBlocks.
type BlockOptions struct {
	MaxBlocks int `mapstructure:"max_blocks"`
}

// DefaultBlockOptions keeps up to eight blocks.
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{MaxBlocks: 8}
}

// SizeVeto returns why a box cannot be a block, or "".
func SizeVeto(bbox snapshot.Rect, vp snapshot.Viewport) string {
	w, h := int(bbox.W()), int(bbox.H())
	if w <= 0 || h <= 0 {
		return VetoZeroSize
	}
	if w < 96 || h < 80 {
		return VetoTooSmall
	}
	vw, vh := vp.Width, vp.Height
	if (w >= int(0.85*float64(vw)) && h >= int(0.5*float64(vh))) || w*h >= int(0.6*float64(vw*vh)) {
		return VetoTooLarge
	}
	ratio := float64(w) / float64(h)
	if ratio > 10 || 1/ratio > 10 {
		return VetoExtremeRatio
	}
	return ""
}

func chainEnd(id string, byID map[string]*snapshot.Node) string {
	seen := map[string]bool{}
	for !seen[id] {
		seen[id] = true
		n, ok := byID[id]
		if !ok || len(n.Children) != 1 {
			break
		}
		id = n.Children[0]
	}
	return id
}

func hasSubmit(root string, byID map[string]*snapshot.Node) bool {
	queue := []string{root}
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		n, ok := byID[id]
		if !ok {
			continue
		}
		sel := strings.ToLower(n.Selector)
		if strings.EqualFold(n.Action, "submit") || strings.Contains(sel, "search") || strings.Contains(sel, "submit") {
			return true
		}
		queue = append(queue, n.Children...)
	}
	return false
}

func hasContainerKeyword(class string) bool {
	class = strings.ToLower(class)
	for _, kw := range containerKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}

// SegmentBlocks picks main control blocks: branching nodes of a sensible size
// that contain a submit control or carry a container class.
func SegmentBlocks(tree *snapshot.ControlsTree, elements []snapshot.Element, vp snapshot.Viewport, opts BlockOptions) *snapshot.Blocks {
	if opts.MaxBlocks <= 0 {
		opts.MaxBlocks = 1
	}
	byID := tree.ByID()
	classOf := make(map[int]string, len(elements))
	for _, e := range elements {
		if _, ok := classOf[e.Index]; !ok {
			classOf[e.Index] = e.Class
		}
	}

	out := &snapshot.Blocks{Rules: RulesStrict, Blocks: []snapshot.Block{}}
	seen := make(map[string]bool)
	for _, n := range tree.Nodes {
		id := chainEnd(n.ID, byID)
		if seen[id] {
			continue
		}
		seen[id] = true
		node, ok := byID[id]
		if !ok || len(node.Children) < 2 {
			continue
		}
		if SizeVeto(node.Geom.BBox, vp) != "" {
			continue
		}
		submit := hasSubmit(id, byID)
		inner := false
		if idx, ok := ParseNodeID(id); ok {
			inner = hasContainerKeyword(classOf[idx])
		}
		if !submit && !inner {
			continue
		}
		sel := strings.TrimSpace(node.Selector)
		if !strings.ContainsAny(sel, "#.[") {
			continue
		}
		out.Blocks = append(out.Blocks, snapshot.Block{
			ID:       id,
			Name:     node.Text,
			Desc:     sel,
			Selector: sel,
			BBox:     node.Geom.BBox,
			Reasons: snapshot.BlockReasons{
				SizeOK:        true,
				HasSubmit:     submit,
				InnerKW:       inner,
				ChildrenCount: len(node.Children),
			},
		})
		if len(out.Blocks) >= opts.MaxBlocks {
			break
		}
	}
	return out
}

// SegmentRun segments the run's controls tree and writes blocks.json.
// Element classes come from the scrolled summary when present.
func SegmentRun(dir rundir.Dir, opts BlockOptions) (*snapshot.Blocks, error) {
	var tree snapshot.ControlsTree
	if err := rundir.ReadJSON(dir.Path(rundir.ControlsTreeFile), &tree); err != nil {
		return nil, err
	}
	meta, err := dir.Meta()
	if err != nil {
		return nil, err
	}
	var elements []snapshot.Element
	if s, err := dir.ScrolledSummary(); err == nil && s != nil {
		elements = s.Elements
	} else if s, err := dir.DomSummary(); err == nil {
		elements = s.Elements
	}
	blocks := SegmentBlocks(&tree, elements, meta.Viewport.OrDefault(), opts)
	return blocks, rundir.WriteJSON(dir.Path(rundir.BlocksFile), blocks)
}
