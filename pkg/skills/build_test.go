package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func strPtr(s string) *string { return &s }

// writeRun lays out a small run directory: a search input, a submit
// button with a captured snippet and a modal mask on the page.
func writeRun(t *testing.T) rundir.Dir {
	t.Helper()
	dir := rundir.Dir(t.TempDir())

	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.MetaFile), snapshot.Meta{
		Status: "ok", URL: "https://www.example.com/", Domain: "example.com", DomainSanitized: "example_com",
	}))
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.DomSummaryFile), snapshot.DomSummary{
		Count: 4,
		Elements: []snapshot.Element{
			{Index: 0, Tag: "div", Class: "page", BBox: snapshot.Rect{0, 0, 1280, 800}, Visible: true},
			{Index: 1, Tag: "input", ID: "q", Name: "q", Type: "text", Placeholder: "Search hotels", Action: "type", BBox: snapshot.Rect{10, 10, 300, 40}, Visible: true},
			{Index: 2, Tag: "button", Class: "btn primary", Text: "Go", Action: "submit", BBox: snapshot.Rect{320, 10, 80, 40}, Visible: true},
			{Index: 3, Tag: "div", Class: "modal-mask", BBox: snapshot.Rect{0, 0, 10, 10}},
		},
	}))
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.ControlsTreeFile), snapshot.ControlsTree{
		Nodes: []snapshot.Node{
			{ID: "d0", Type: snapshot.NodeContent, Selector: "div.page", Children: []string{"d1", "d2"}},
			{ID: "d1", Type: snapshot.NodeControl, Action: "type", Selector: "#q", Parent: strPtr("d0"), Children: []string{}},
			{ID: "d2", Type: snapshot.NodeControl, Action: "submit", Selector: "button.btn.primary", Parent: strPtr("d0"), Children: []string{}},
		},
		Roots: []string{"d0"},
	}))

	require.NoError(t, os.MkdirAll(dir.Path(rundir.SnippetsDir), 0o755))
	require.NoError(t, os.WriteFile(dir.Path(rundir.SnippetsDir, "d2.html"),
		[]byte(`<button class="btn primary" data-testid="go-btn" type="submit">Go</button>`), 0o644))
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.SnippetsDir, rundir.SnippetsIndex), rundir.SnippetIndex{
		Items: []rundir.SnippetItem{{ID: "d2", File: "d2.html"}},
	}))
	return dir
}

func TestBuild(t *testing.T) {
	dir := writeRun(t)
	built, err := Build(context.Background(), dir, DefaultBuildOptions())
	require.NoError(t, err)
	require.Len(t, built, 2)

	input := built[0]
	assert.Equal(t, "d1", input.ID)
	assert.Equal(t, "example.com", input.Domain)
	assert.Equal(t, skill.ActionType, input.Action)
	assert.Equal(t, "#q", input.Locators.Selector)
	assert.NotContains(t, input.Locators.SelectorAlt, "#q")
	assert.Equal(t, []string{URLPattern("example.com")}, input.Preconditions.URLMatches)
	assert.Equal(t, "#q", input.Preconditions.Exists[0])
	assert.Equal(t, []string{".mask,.backdrop,.MuiBackdrop-root", ".modal,.modal-mask,.ant-modal-wrap"}, input.Preconditions.NotExists)
	assert.Equal(t, DefaultMinWidth, input.Preconditions.Viewport.MinWidth)
	assert.Equal(t, "ProgramType", input.Program.Entry)
	assert.Contains(t, input.Meta.Description, "ProgramType types text into")
	assert.Equal(t, SchemaVersion, input.Meta.SchemaVersion)
	assert.Equal(t, []Arg{{Name: "text", Type: "string", Description: "Text to enter into the control"}}, SchemaArgs(input.ArgsSchema))
	assert.NoError(t, Validate(input, skill.LanguageGo))

	button := built[1]
	assert.Equal(t, "[data-testid='go-btn']", button.Locators.Selector)
	assert.Equal(t, "button.btn.primary", button.Locators.SelectorAlt[0])
	assert.Equal(t, "[data-testid='go-btn']", button.Preconditions.Exists[0])
	assert.Equal(t, filepath.Join(rundir.SnippetsDir, "d2.html"), button.Evidence.Snippet)
	assert.Equal(t, "Go", button.Label)
	assert.Empty(t, SchemaArgs(button.ArgsSchema))
}

func TestBuild_NotExistsFromBaseSummary(t *testing.T) {
	dir := writeRun(t)
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.DomSummaryScrolled), snapshot.DomSummary{
		Count: 1,
		Elements: []snapshot.Element{
			{Index: 7, Tag: "div", Class: "lazy-spinner", BBox: snapshot.Rect{0, 2000, 40, 40}},
		},
	}))

	built, err := Build(context.Background(), dir, DefaultBuildOptions())
	require.NoError(t, err)
	require.NotEmpty(t, built)
	for _, s := range built {
		assert.Equal(t, []string{".mask,.backdrop,.MuiBackdrop-root", ".modal,.modal-mask,.ant-modal-wrap"}, s.Preconditions.NotExists)
	}
}

func TestBuild_WithoutSnippets(t *testing.T) {
	dir := writeRun(t)
	opts := DefaultBuildOptions()
	opts.UseSnippets = false
	opts.Language = skill.LanguageSteps

	built, err := Build(context.Background(), dir, opts)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, "button.btn.primary", built[1].Locators.Selector)
	assert.Equal(t, skill.LanguageSteps, built[1].Program.Language)
	assert.Empty(t, built[1].Meta.Description)
}

func TestBuildForSelector(t *testing.T) {
	dir := writeRun(t)

	s, err := BuildForSelector(dir, "div.page", DefaultBuildOptions())
	require.NoError(t, err)
	assert.Equal(t, "d0", s.ID)

	_, err = BuildForSelector(dir, "#nope", DefaultBuildOptions())
	assert.ErrorContains(t, err, "not found")
}

func TestSaveBuiltAndFind(t *testing.T) {
	dir := writeRun(t)
	built, err := Build(context.Background(), dir, DefaultBuildOptions())
	require.NoError(t, err)

	paths, err := SaveBuilt(dir, built)
	require.NoError(t, err)
	assert.Equal(t, dir.Path(rundir.SkillDir, "Skill_q_d1.json"), paths[0])

	found, err := Discover(string(dir))
	require.NoError(t, err)
	assert.ElementsMatch(t, paths, found)

	p, err := FindByID(string(dir), "d2")
	require.NoError(t, err)
	assert.Equal(t, paths[1], p)

	loaded, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, built[1].Locators.Selector, loaded.Locators.Selector)
	assert.Equal(t, built[1].Locators.SelectorAlt, loaded.Locators.SelectorAlt)

	_, err = FindByID(string(dir), "d9")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindByID_ShortestPathWins(t *testing.T) {
	root := t.TempDir()
	s := &skill.Skill{ID: "d5", Locators: skill.Locators{Selector: "#a"}}
	deep := filepath.Join(root, "nested", "skill", "Skill_a_d5.json")
	shallow := filepath.Join(root, "skill", "Skill_a_d5.json")
	require.NoError(t, Save(deep, s))
	require.NoError(t, Save(shallow, s))

	got, err := FindByID(root, "d5")
	require.NoError(t, err)
	assert.Equal(t, shallow, got)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "override.com", DomainOf(&snapshot.Meta{Domain: "a.com"}, "override.com"))
	assert.Equal(t, "a_com", DomainOf(&snapshot.Meta{DomainSanitized: "a_com"}, ""))
	assert.Equal(t, "b.com:8080", DomainOf(&snapshot.Meta{URL: "https://b.com:8080/x"}, ""))
	assert.Empty(t, DomainOf(&snapshot.Meta{}, ""))
}

func TestSlugAndFileName(t *testing.T) {
	assert.Equal(t, "button_name_q", Slug("button[name='q']"))
	assert.Equal(t, "sel", Slug("###"))
	assert.Len(t, Slug(strings.Repeat("ab", 50)), 64)
	assert.Equal(t, "Skill_q_d1.json", FileName(&skill.Skill{ID: "d1", Locators: skill.Locators{Selector: "#q"}}))
}

func TestRefinedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "example.com", "d1.json"), RefinedPath("out", &skill.Skill{ID: "d1", Domain: "example.com:443"}))
	assert.Equal(t, filepath.Join("out", "unknown", "d1.json"), RefinedPath("out", &skill.Skill{ID: "d1"}))
}
