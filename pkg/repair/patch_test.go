package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatch(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		ops  []Op
		want map[string]any
	}{
		{
			name: "replace and append",
			doc:  map[string]any{"locators": map[string]any{"selector": "#a", "selector_alt": []any{"b"}}},
			ops: []Op{
				{Op: OpReplace, Path: "/locators/selector", Value: "#b"},
				{Op: OpAdd, Path: "/locators/selector_alt/-", Value: "#a"},
			},
			want: map[string]any{"locators": map[string]any{"selector": "#b", "selector_alt": []any{"b", "#a"}}},
		},
		{
			name: "creates missing containers",
			doc:  map[string]any{},
			ops: []Op{
				{Op: OpAdd, Path: "/locators/selector_alt/-", Value: "x"},
				{Op: OpAdd, Path: "/preconditions/viewport/min_width", Value: 960},
			},
			want: map[string]any{
				"locators":      map[string]any{"selector_alt": []any{"x"}},
				"preconditions": map[string]any{"viewport": map[string]any{"min_width": 960}},
			},
		},
		{
			name: "insert and remove by index",
			doc:  map[string]any{"l": []any{"a", "c"}},
			ops: []Op{
				{Op: OpAdd, Path: "/l/1", Value: "b"},
				{Op: OpRemove, Path: "/l/0"},
			},
			want: map[string]any{"l": []any{"b", "c"}},
		},
		{
			name: "escaped keys",
			doc:  map[string]any{},
			ops:  []Op{{Op: OpAdd, Path: "/a~1b/c~0d", Value: 1}},
			want: map[string]any{"a/b": map[string]any{"c~d": 1}},
		},
		{
			name: "remove key",
			doc:  map[string]any{"a": 1, "b": 2},
			ops:  []Op{{Op: OpRemove, Path: "/a"}},
			want: map[string]any{"b": 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyPatch(tt.doc, tt.ops)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyPatch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		op     Op
		reason string
	}{
		{"unsupported op", Op{Op: "move", Path: "/a"}, "unsupported op"},
		{"relative path", Op{Op: OpAdd, Path: "a"}, "invalid path"},
		{"root", Op{Op: OpAdd, Path: "/"}, "document root"},
		{"index out of range", Op{Op: OpReplace, Path: "/l/5", Value: 1}, "index out of range"},
		{"non numeric index", Op{Op: OpReplace, Path: "/l/x", Value: 1}, "expected array index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyPatch(map[string]any{"l": []any{1}}, []Op{tt.op})
			var perr *PatchError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Reason, tt.reason)
		})
	}
}
