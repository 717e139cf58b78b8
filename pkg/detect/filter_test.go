package detect

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func node(id string, parent string, bbox snapshot.Rect, children ...string) snapshot.Node {
	n := snapshot.Node{ID: id, Type: snapshot.NodeControl, Children: children, Geom: snapshot.Geom{BBox: bbox}}
	if children == nil {
		n.Children = []string{}
	}
	if parent != "" {
		p := parent
		n.Parent = &p
	}
	return n
}

func nodeIDs(nodes []snapshot.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestDecodeFilterOptions(t *testing.T) {
	opts, err := DecodeFilterOptions(map[string]any{"min_w": "120", "keep_important": "false", "max_area_ratio": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 120, opts.MinW)
	assert.False(t, opts.KeepImportant)
	assert.Equal(t, 0.5, opts.MaxAreaRatio)
	assert.Equal(t, 80, opts.MinH, "unset keys keep defaults")

	_, err = DecodeFilterOptions(map[string]any{"min_w": "wide"})
	assert.Error(t, err)
}

func content(id string, parent string, bbox snapshot.Rect, children ...string) snapshot.Node {
	n := node(id, parent, bbox, children...)
	n.Type = snapshot.NodeContent
	return n
}

func TestFilterTree_SizeGate(t *testing.T) {
	vp := snapshot.Viewport{Width: 1000, Height: 1000}
	submit := content("d3", "d1", snapshot.Rect{0, 0, 50, 20})
	submit.Action = "submit"
	click := node("d7", "d1", snapshot.Rect{0, 0, 60, 30})
	click.Action = "click"
	tree := &snapshot.ControlsTree{Nodes: []snapshot.Node{
		content("d1", "", snapshot.Rect{0, 0, 400, 300}, "d2", "d3", "d4", "d5", "d6", "d7"),
		content("d2", "d1", snapshot.Rect{0, 0, 50, 50}),
		submit,
		content("d4", "d1", snapshot.Rect{0, 0, 900, 900}),
		content("d5", "d1", snapshot.Rect{0, 0, 1500, 100}),
		content("d6", "d1", snapshot.Rect{0, 0, 200, 150}),
		click,
	}}

	out := FilterTree(tree, vp, DefaultFilterOptions())

	assert.Equal(t, []string{"d1", "d3", "d6", "d7"}, nodeIDs(out.Nodes))
	assert.Equal(t, []string{"d3", "d6", "d7"}, out.ByID()["d1"].Children)
	assert.Equal(t, []string{"d1"}, out.Roots)
	assert.Equal(t, 4, out.Meta.Count)
	assert.Equal(t, 1, out.Meta.ControlCount)
	assert.Equal(t, 3, out.Meta.ContentCount)

	opts := DefaultFilterOptions()
	opts.KeepImportant = false
	out = FilterTree(tree, vp, opts)
	assert.Equal(t, []string{"d1", "d6"}, nodeIDs(out.Nodes))
}

func TestFilterTree_KeepsSmallControls(t *testing.T) {
	btn := node("d1", "", snapshot.Rect{0, 0, 60, 30})
	btn.Action = "click"
	tree := &snapshot.ControlsTree{Nodes: []snapshot.Node{btn}}

	out := FilterTree(tree, snapshot.DefaultViewport, DefaultFilterOptions())

	assert.Equal(t, []string{"d1"}, nodeIDs(out.Nodes))
	assert.Equal(t, 1, out.Meta.ControlCount)
}

func TestFilterTree_OrphansBecomeRoots(t *testing.T) {
	tree := &snapshot.ControlsTree{Nodes: []snapshot.Node{
		content("d1", "", snapshot.Rect{0, 0, 10, 10}, "d2"),
		node("d2", "d1", snapshot.Rect{0, 0, 200, 150}),
	}}
	out := FilterTree(tree, snapshot.DefaultViewport, DefaultFilterOptions())

	require.Len(t, out.Nodes, 1)
	assert.Nil(t, out.Nodes[0].Parent)
	assert.Equal(t, []string{"d2"}, out.Roots)
}

func TestFilterTree_CapsSmallChildren(t *testing.T) {
	// Only control nodes survive the size gate while still being small.
	opts := DefaultFilterOptions()
	opts.CapSmallPerParent = 2

	small := func(id string, side float64, typ string) snapshot.Node {
		n := node(id, "d1", snapshot.Rect{0, 0, side, side})
		n.Action = "type"
		n.Type = typ
		return n
	}
	tree := &snapshot.ControlsTree{Nodes: []snapshot.Node{
		node("d1", "", snapshot.Rect{0, 0, 400, 300}, "d2", "d3", "d4", "d5"),
		small("d2", 10, snapshot.NodeControl),
		small("d3", 20, snapshot.NodeControl),
		small("d4", 25, snapshot.NodeControl),
		small("d5", 30, snapshot.NodeContent),
	}}
	out := FilterTree(tree, snapshot.DefaultViewport, opts)

	assert.Equal(t, []string{"d1", "d3", "d4"}, nodeIDs(out.Nodes))
	assert.Equal(t, []string{"d3", "d4"}, out.ByID()["d1"].Children)
	assert.Equal(t, 0, out.Meta.ContentCount)
}

func writeRun(t *testing.T, tree *snapshot.ControlsTree) rundir.Dir {
	t.Helper()
	dir := rundir.Dir(t.TempDir())
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.ControlsTreeFile), tree))
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.MetaFile), snapshot.Meta{Viewport: snapshot.Viewport{Width: 1280, Height: 800}}))
	return dir
}

func TestFilterRun(t *testing.T) {
	tree := &snapshot.ControlsTree{Nodes: []snapshot.Node{
		content("d1", "", snapshot.Rect{0, 0, 10, 10}),
		node("d2", "", snapshot.Rect{0, 0, 200, 150}),
	}}

	t.Run("copy", func(t *testing.T) {
		dir := writeRun(t, tree)
		out, err := FilterRun(dir, DefaultFilterOptions())
		require.NoError(t, err)
		assert.Equal(t, dir.Path(rundir.FilteredTreeFile), out)

		filtered, err := dir.ControlsTree()
		require.NoError(t, err)
		assert.Equal(t, []string{"d2"}, nodeIDs(filtered.Nodes))
	})

	t.Run("in place keeps a backup", func(t *testing.T) {
		dir := writeRun(t, tree)
		opts := DefaultFilterOptions()
		opts.InPlace = true
		out, err := FilterRun(dir, opts)
		require.NoError(t, err)
		assert.Equal(t, dir.Path(rundir.ControlsTreeFile), out)

		var bak snapshot.ControlsTree
		require.NoError(t, rundir.ReadJSON(out+".bak", &bak))
		assert.Len(t, bak.Nodes, 2)
		_, err = os.Stat(dir.Path(rundir.FilteredTreeFile))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("empty tree", func(t *testing.T) {
		dir := writeRun(t, &snapshot.ControlsTree{})
		_, err := FilterRun(dir, DefaultFilterOptions())
		assert.ErrorContains(t, err, "has no nodes")
	})
}
