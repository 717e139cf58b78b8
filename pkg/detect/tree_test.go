package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func el(index int, parent *int, tag string, bbox snapshot.Rect) snapshot.Element {
	return snapshot.Element{Index: index, ParentIndex: parent, Tag: tag, BBox: bbox, Visible: true}
}

func TestIsControl(t *testing.T) {
	tests := []struct {
		name     string
		e        snapshot.Element
		expected bool
	}{
		{"button tag", snapshot.Element{Tag: "BUTTON"}, true},
		{"link role", snapshot.Element{Tag: "div", Role: "Link"}, true},
		{"flagged", snapshot.Element{Tag: "div", IsControl: true}, true},
		{"score", snapshot.Element{Tag: "div", InteractiveScore: 0.5}, true},
		{"btn class", snapshot.Element{Tag: "span", Class: "x-Btn-primary"}, true},
		{"plain div", snapshot.Element{Tag: "div", InteractiveScore: 0.4}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsControl(tt.e), tt.name)
	}
}

func TestShapeFromRadius(t *testing.T) {
	box := snapshot.Rect{0, 0, 100, 40}
	assert.Equal(t, snapshot.ShapeRect, ShapeFromRadius(box, 0))
	assert.Equal(t, snapshot.ShapeRect, ShapeFromRadius(box, 9))
	assert.Equal(t, snapshot.ShapePill, ShapeFromRadius(box, 10))
	assert.Equal(t, snapshot.ShapeRound, ShapeFromRadius(box, 18))
	assert.Equal(t, snapshot.ShapeRect, ShapeFromRadius(snapshot.Rect{0, 0, 0, 40}, 18))
}

func TestParseNodeID(t *testing.T) {
	n, ok := ParseNodeID("d42")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	for _, id := range []string{"42", "d", "dx", "n42", "d-1"} {
		_, ok := ParseNodeID(id)
		assert.False(t, ok, id)
	}
}

func TestBuildControlsTree(t *testing.T) {
	form := el(1, intPtr(0), "form", snapshot.Rect{0, 0, 600, 300})
	form.IsControl = true
	form.ID = "search"
	input := el(3, intPtr(2), "input", snapshot.Rect{10, 10, 200, 30})
	input.Name = "q"
	submit := el(4, intPtr(2), "button", snapshot.Rect{220, 10, 80, 30})
	submit.Type = "submit"
	submit.Action = "submit"
	submit.Text = "  Search   now "
	submit.BorderRadius = 15
	hidden := el(5, intPtr(1), "a", snapshot.Rect{0, 0, 10, 10})
	hidden.Visible = true
	hidden.VisibleAdv = boolPtr(false)
	orphan := el(7, intPtr(99), "a", snapshot.Rect{0, 400, 100, 20})
	orphan.Href = "/help"

	elements := []snapshot.Element{
		el(0, nil, "body", snapshot.Rect{0, 0, 1280, 800}),
		form,
		el(2, intPtr(1), "div", snapshot.Rect{0, 0, 600, 50}),
		input,
		submit,
		hidden,
		el(6, intPtr(1), "button", snapshot.Rect{0, 0, 0, 0}),
		orphan,
	}

	tree := BuildControlsTree(elements)

	require.Len(t, tree.Nodes, 4)
	byID := tree.ByID()
	require.Contains(t, byID, "d1")
	assert.Nil(t, byID["d1"].Parent)
	assert.Equal(t, []string{"d3", "d4"}, byID["d1"].Children)
	assert.Equal(t, "#search", byID["d1"].Selector)

	require.NotNil(t, byID["d3"].Parent)
	assert.Equal(t, "d1", *byID["d3"].Parent)
	assert.Equal(t, "input[name='q']", byID["d3"].Selector)
	assert.Equal(t, "type", byID["d3"].Action)

	assert.Equal(t, "submit", byID["d4"].Action)
	assert.Equal(t, snapshot.ShapeRound, byID["d4"].Geom.Shape)
	assert.Equal(t, "Search now", byID["d4"].Text)

	assert.Nil(t, byID["d7"].Parent, "missing ancestor ends the walk")
	assert.Equal(t, "navigate", byID["d7"].Action)
	assert.Equal(t, []string{}, byID["d7"].Children)

	assert.Equal(t, []string{"d1", "d7"}, tree.Roots)
	assert.Equal(t, RuleVersion, tree.Meta.RuleVersion)
	assert.Equal(t, 4, tree.Meta.Count)
}

func TestBuildControlsTree_FirstIndexWins(t *testing.T) {
	a := el(1, nil, "button", snapshot.Rect{0, 0, 50, 20})
	a.ID = "first"
	b := el(1, nil, "button", snapshot.Rect{0, 100, 50, 20})
	b.ID = "second"

	tree := BuildControlsTree([]snapshot.Element{a, b})
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "#first", tree.Nodes[0].Selector)
}
