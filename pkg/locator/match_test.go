package locator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func TestMatchSelector(t *testing.T) {
	el := snapshot.Element{Tag: "button", ID: "go", Name: "submit", Role: "button", Class: "btn btn-primary"}

	tests := []struct {
		selector string
		want     bool
	}{
		{"#go", true},
		{"#stop", false},
		{"button[name='submit']", true},
		{"input[name='q']", false},
		{"[role='button']", true},
		{"button.btn.btn-primary", true},
		{"button.btn.missing", false},
		{"a.btn", false},
		{"button.btn[role='button']", true},
		{"button.btn[role='link']", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchSelector(tt.selector, el))
		})
	}
}

func TestOverlayGuards(t *testing.T) {
	els := []snapshot.Element{
		{Class: "ant-modal-wrap"},
		{Class: "Loading-Spinner"},
		{Class: "page-tooltip"},
		{Class: "content"},
	}
	assert.Equal(t, []string{"loading", "modal", "spinner", "tooltip"}, OverlayHits(els))
	assert.Equal(t, []string{".modal,.modal-mask,.ant-modal-wrap", ".loading,.spinner,.progress,.skeleton"}, OverlayGroups(OverlayHits(els)))
	assert.Equal(t, []string{".loading,.spinner,.progress,.skeleton", ".modal,.modal-mask,.ant-modal-wrap"}, NotExistsGuards(els))
}

func TestDocument_Alive(t *testing.T) {
	doc, err := NewDocument(strings.NewReader(`<html><body>
		<form><input name="q" class="search"><button id="go" type="submit">Go</button></form>
	</body></html>`))
	require.NoError(t, err)

	assert.True(t, doc.Alive("#go"))
	assert.True(t, doc.Alive("input[name='q']"))
	assert.True(t, doc.Alive(".missing, input.search"))
	assert.False(t, doc.Alive("#gone"))
	assert.False(t, doc.Alive("[[invalid"))
	assert.Equal(t, map[string]bool{"#go": true, "#x": false}, doc.AliveMap([]string{"#go", "#x"}))

	assert.Equal(t, 2, doc.Count("input, button"))
	assert.Equal(t, 1, doc.Count("#go, button[type=submit]"))
	assert.Equal(t, 2, doc.Count(" form > * "))
}

func TestChain(t *testing.T) {
	loc := skill.Locators{
		Selector:    "#go",
		SelectorAlt: []string{"button.btn", "#go"},
		ByRole:      &skill.ByRole{Role: "button", Name: "Go", Exact: true},
		ByText:      []string{"Go"},
	}

	chain := Chain(loc)
	require.Len(t, chain, 4)
	assert.Equal(t, Entry{Kind: KindSelector, Query: "#go"}, chain[0])
	assert.Equal(t, Entry{Kind: KindSelector, Query: "button.btn"}, chain[1])
	assert.Equal(t, KindRole, chain[2].Kind)
	assert.Contains(t, chain[2].Query, "self::button")
	assert.Contains(t, chain[2].Query, "@aria-label='Go'")

	q, ok := IsXPath(chain[3].Query)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(q, "//*"))

	_, ok = IsXPath("#go")
	assert.False(t, ok)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'a'", xpathLiteral("a"))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, xpathLiteral(`a'b"c`))
}
