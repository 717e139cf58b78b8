package detect

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// FilterOptions tune FilterTree.
type FilterOptions struct {
	MinW              int     `mapstructure:"min_w"`
	MinH              int     `mapstructure:"min_h"`
	MinArea           int     `mapstructure:"min_area"`
	MaxAreaRatio      float64 `mapstructure:"max_area_ratio"`
	CapSmallPerParent int     `mapstructure:"cap_small_per_parent"`
	KeepImportant     bool    `mapstructure:"keep_important"`
	InPlace           bool    `mapstructure:"in_place"`
}

// DefaultFilterOptions returns the standard size gate.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		MinW:              96,
		MinH:              80,
		MinArea:           20000,
		MaxAreaRatio:      0.6,
		CapSmallPerParent: 12,
		KeepImportant:     true,
	}
}

// DecodeFilterOptions overlays raw settings (e.g. a viper sub-tree) on the
// defaults. String values such as "96" are accepted.
func DecodeFilterOptions(raw map[string]any) (FilterOptions, error) {
	opts := DefaultFilterOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return opts, errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return opts, errors.Wrap(err, "invalid filter options")
	}
	return opts, nil
}

// isImportant marks nodes exempt from the size gate: submit actions and
// every control node.
func isImportant(n snapshot.Node) bool {
	return strings.ToLower(n.Action) == "submit" || n.Type == snapshot.NodeControl
}

func intBox(n snapshot.Node) (w, h, area int) {
	w, h = int(n.Geom.BBox.W()), int(n.Geom.BBox.H())
	return w, h, w * h
}

func passesSize(n snapshot.Node, vp snapshot.Viewport, opts FilterOptions) bool {
	if opts.KeepImportant && isImportant(n) {
		return true
	}
	w, h, area := intBox(n)
	if w <= 0 || h <= 0 || w < opts.MinW || h < opts.MinH || area < opts.MinArea {
		return false
	}
	maxArea := max(1, int(float64(vp.Width*vp.Height)*opts.MaxAreaRatio))
	if area >= maxArea {
		return false
	}
	ratio := float64(w) / float64(h)
	return ratio <= 10 && 1/ratio <= 10
}

// capSmallChildren keeps every large node and at most cap small nodes per
// parent, controls first then larger area.
func capSmallChildren(nodes []snapshot.Node, cap, smallArea int) []snapshot.Node {
	byParent := make(map[string][]int)
	var parents []string
	for i, n := range nodes {
		pid := n.ParentID()
		if _, ok := byParent[pid]; !ok {
			parents = append(parents, pid)
		}
		byParent[pid] = append(byParent[pid], i)
	}

	keep := make(map[int]bool, len(nodes))
	for _, pid := range parents {
		var small []int
		for _, i := range byParent[pid] {
			if _, _, area := intBox(nodes[i]); area < smallArea {
				small = append(small, i)
			} else {
				keep[i] = true
			}
		}
		sort.SliceStable(small, func(a, b int) bool {
			na, nb := nodes[small[a]], nodes[small[b]]
			if na.IsControl() != nb.IsControl() {
				return na.IsControl()
			}
			_, _, aa := intBox(na)
			_, _, ab := intBox(nb)
			return aa > ab
		})
		for _, i := range small[:min(len(small), max(0, cap))] {
			keep[i] = true
		}
	}

	out := make([]snapshot.Node, 0, len(keep))
	for i, n := range nodes {
		if keep[i] {
			out = append(out, n)
		}
	}
	return out
}

// rebuild drops references to removed nodes and recomputes roots and counts.
func rebuild(tree *snapshot.ControlsTree, kept []snapshot.Node) *snapshot.ControlsTree {
	ids := make(map[string]bool, len(kept))
	for _, n := range kept {
		ids[n.ID] = true
	}
	out := &snapshot.ControlsTree{Nodes: make([]snapshot.Node, 0, len(kept)), Roots: []string{}, Meta: tree.Meta}
	for _, n := range kept {
		children := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if ids[c] {
				children = append(children, c)
			}
		}
		n.Children = children
		if n.Parent != nil && !ids[*n.Parent] {
			n.Parent = nil
		}
		if n.Parent == nil {
			out.Roots = append(out.Roots, n.ID)
		}
		out.Nodes = append(out.Nodes, n)
	}
	out.Meta.Count = len(out.Nodes)
	out.Meta.ControlCount, out.Meta.ContentCount = 0, 0
	for _, n := range out.Nodes {
		switch n.Type {
		case snapshot.NodeControl:
			out.Meta.ControlCount++
		case snapshot.NodeContent:
			out.Meta.ContentCount++
		}
	}
	return out
}

// FilterTree removes oversized, undersized and excess small nodes.
func FilterTree(tree *snapshot.ControlsTree, vp snapshot.Viewport, opts FilterOptions) *snapshot.ControlsTree {
	var sized []snapshot.Node
	for _, n := range tree.Nodes {
		if passesSize(n, vp, opts) {
			sized = append(sized, n)
		}
	}
	return rebuild(tree, capSmallChildren(sized, opts.CapSmallPerParent, opts.MinArea))
}

// FilterRun filters the run's controls_tree.json and returns the written path.
// In place, the original is first backed up to controls_tree.json.bak.
func FilterRun(dir rundir.Dir, opts FilterOptions) (string, error) {
	treePath := dir.Path(rundir.ControlsTreeFile)
	var tree snapshot.ControlsTree
	if err := rundir.ReadJSON(treePath, &tree); err != nil {
		return "", err
	}
	if len(tree.Nodes) == 0 {
		return "", errors.Errorf("%s has no nodes", treePath)
	}
	meta, err := dir.Meta()
	if err != nil {
		return "", err
	}
	vp := meta.Viewport.OrDefault()
	filtered := FilterTree(&tree, vp, opts)

	if !opts.InPlace {
		out := dir.Path(rundir.FilteredTreeFile)
		return out, rundir.WriteJSON(out, filtered)
	}
	if bak := treePath + ".bak"; !rundir.Exists(bak) {
		if err := rundir.WriteJSON(bak, &tree); err != nil {
			return "", err
		}
	}
	return treePath, rundir.WriteJSON(treePath, filtered)
}
