package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func TestSizeVeto(t *testing.T) {
	vp := snapshot.Viewport{Width: 1000, Height: 800}
	tests := []struct {
		box      snapshot.Rect
		expected string
	}{
		{snapshot.Rect{0, 0, 0, 100}, VetoZeroSize},
		{snapshot.Rect{0, 0, 95, 100}, VetoTooSmall},
		{snapshot.Rect{0, 0, 850, 400}, VetoTooLarge},
		{snapshot.Rect{0, 0, 800, 700}, VetoTooLarge},
		{snapshot.Rect{0, 0, 900, 85}, VetoExtremeRatio},
		{snapshot.Rect{0, 0, 400, 200}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SizeVeto(tt.box, vp), "%v", tt.box)
	}
}

func blockTree() *snapshot.ControlsTree {
	search := node("d10", "", snapshot.Rect{0, 0, 500, 200}, "d11")
	search.Selector = "#search-form"
	wrap := node("d11", "d10", snapshot.Rect{0, 0, 480, 180}, "d12", "d13")
	wrap.Selector = "div.form-wrap"
	input := node("d12", "d11", snapshot.Rect{0, 0, 300, 40})
	input.Selector = "input[name='q']"
	btn := node("d13", "d11", snapshot.Rect{0, 0, 80, 40})
	btn.Selector = "button.go"
	btn.Action = "submit"

	nav := node("d20", "", snapshot.Rect{0, 300, 600, 100}, "d21", "d22")
	nav.Selector = "ul.menu"
	nav.Text = "Menu"
	plain := node("d30", "", snapshot.Rect{0, 500, 600, 100}, "d31", "d32")
	plain.Selector = "div.cards"
	bare := node("d40", "", snapshot.Rect{0, 600, 600, 100}, "d41", "d42")
	bare.Selector = "div"

	return &snapshot.ControlsTree{Nodes: []snapshot.Node{
		search, wrap, input, btn,
		nav, node("d21", "d20", snapshot.Rect{0, 300, 100, 40}), node("d22", "d20", snapshot.Rect{100, 300, 100, 40}),
		plain, node("d31", "d30", snapshot.Rect{}), node("d32", "d30", snapshot.Rect{}),
		bare, node("d41", "d40", snapshot.Rect{}), node("d42", "d40", snapshot.Rect{}),
	}}
}

func blockElements() []snapshot.Element {
	return []snapshot.Element{
		{Index: 20, Class: "top-Nav"},
		{Index: 30, Class: "cards"},
		{Index: 40, Class: "container"},
	}
}

func TestSegmentBlocks(t *testing.T) {
	blocks := SegmentBlocks(blockTree(), blockElements(), snapshot.DefaultViewport, DefaultBlockOptions())

	assert.Equal(t, RulesStrict, blocks.Rules)
	require.Len(t, blocks.Blocks, 2)

	form := blocks.Blocks[0]
	assert.Equal(t, "d11", form.ID, "single-child chain is compressed")
	assert.Equal(t, "div.form-wrap", form.Selector)
	assert.True(t, form.Reasons.HasSubmit)
	assert.False(t, form.Reasons.InnerKW)
	assert.Equal(t, 2, form.Reasons.ChildrenCount)

	nav := blocks.Blocks[1]
	assert.Equal(t, "d20", nav.ID)
	assert.True(t, nav.Reasons.InnerKW)
	assert.Equal(t, "Menu", nav.Name)
}

func TestSegmentBlocks_MaxBlocks(t *testing.T) {
	blocks := SegmentBlocks(blockTree(), blockElements(), snapshot.DefaultViewport, BlockOptions{MaxBlocks: 1})
	require.Len(t, blocks.Blocks, 1)
	assert.Equal(t, "d11", blocks.Blocks[0].ID)
}

func TestSegmentRun(t *testing.T) {
	dir := writeRun(t, blockTree())
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.DomSummaryFile), snapshot.DomSummary{Elements: blockElements()}))

	blocks, err := SegmentRun(dir, DefaultBlockOptions())
	require.NoError(t, err)
	assert.Len(t, blocks.Blocks, 2)

	loaded, err := dir.Blocks()
	require.NoError(t, err)
	assert.Equal(t, blocks, loaded)
}
