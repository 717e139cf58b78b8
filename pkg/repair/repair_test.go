package repair

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func brokenSkill() *skill.Skill {
	return &skill.Skill{
		ID:     "d3",
		Domain: "example.com",
		Action: skill.ActionClick,
		Locators: skill.Locators{
			Selector:    "#search-old",
			SelectorAlt: []string{"button.search"},
			ByRole:      &skill.ByRole{Role: "button", Name: "Search"},
			ByText:      []string{"Search"},
		},
		Preconditions: skill.Preconditions{
			URLMatches: []string{skills.URLPattern("example.com")},
			Exists:     []string{"#search-old"},
		},
		Program: skill.Program{Language: skill.LanguageGo, Entry: "ProgramClick", Code: "package skill\n"},
		Meta:    skill.Meta{SchemaVersion: skills.SchemaVersion},
	}
}

func snap(elements ...snapshot.Element) *Snapshot {
	return &Snapshot{Elements: elements}
}

var (
	oldButton = snapshot.Element{Index: 3, Tag: "button", ID: "search-old", Class: "search", Text: "Search", Role: "button"}
	newButton = snapshot.Element{Index: 0, Tag: "button", ID: "search", Class: "search primary", Text: "Find", Role: "button"}
	mask      = snapshot.Element{Index: 1, Tag: "div", Class: "ant-modal-mask"}
)

func TestDiff(t *testing.T) {
	s := brokenSkill()

	sig := Diff(snap(oldButton), snap(newButton, mask), s)
	assert.Equal(t, map[string]bool{"#search-old": false, "button.search": true}, sig.SelectorAlive)
	assert.Equal(t, []string{"mask", "modal"}, sig.OverlayHits)
	assert.False(t, sig.ElementNew)

	s.Locators.Selector = "button.search"
	sig = Diff(snap(oldButton), snap(newButton), s)
	assert.True(t, sig.TextChanged)
	assert.False(t, sig.RoleChanged)
	assert.True(t, sig.PrimaryAlive(s))

	sig = Diff(snap(), snap(newButton), s)
	assert.True(t, sig.ElementNew)
}

func TestDiagnose(t *testing.T) {
	s := brokenSkill()

	d := Diagnose(s, snap(oldButton), snap(newButton))
	assert.Equal(t, CauseMismatch, d.RootCause)
	assert.Equal(t, []string{"#search-old"}, d.Signals.MissingExists)

	d = Diagnose(s, snap(oldButton), snap(oldButton))
	assert.Equal(t, CauseDamage, d.RootCause)
	assert.Empty(t, d.Signals.MissingExists)
}

func TestCandidates(t *testing.T) {
	e := snapshot.Element{Tag: "INPUT", ID: "q", Name: "query", Role: "searchbox", Class: "field x123456789"}
	assert.Equal(t, []string{"#q", "input[name='query']", "input[role='searchbox']", "input.field"}, Candidates(e))
	assert.Empty(t, Candidates(snapshot.Element{Tag: "div"}))
}

func TestProposeLocators(t *testing.T) {
	s := brokenSkill()
	patches := ProposeLocators(s, snap(newButton, mask))
	require.Len(t, patches, 1)
	assert.Equal(t, KindLocators, patches[0].Kind)
	assert.Equal(t, []Op{
		{Op: OpReplace, Path: "/locators/selector", Value: "#search"},
		{Op: OpAdd, Path: "/locators/selector_alt/-", Value: "#search-old"},
		{Op: OpAdd, Path: "/locators/selector_alt/-", Value: "button[role='button']"},
		{Op: OpAdd, Path: "/locators/selector_alt/-", Value: "button.search.primary"},
	}, patches[0].Ops)

	assert.Nil(t, ProposeLocators(s, snap()))
}

func TestRefinePreconditions(t *testing.T) {
	s := brokenSkill()
	s.Locators.Selector = "#search"
	s.Preconditions.Exists = []string{"#search-old", ".form"}

	ops := RefinePreconditions(s, Signals{OverlayHits: []string{"spinner", "modal"}, MissingExists: []string{"#search-old"}})
	assert.Equal(t, []Op{
		{Op: OpAdd, Path: "/preconditions/exists/-", Value: "#search"},
		{Op: OpReplace, Path: "/preconditions/not_exists", Value: []string{".modal,.modal-mask,.ant-modal-wrap", ".loading,.spinner,.progress,.skeleton"}},
		{Op: OpAdd, Path: "/preconditions/viewport/min_width", Value: skills.DefaultMinWidth},
	}, ops)

	s.Preconditions.Exists = []string{".form", "#search"}
	s.Preconditions.Viewport = &skill.ViewportBounds{MinWidth: 1024}
	assert.Empty(t, RefinePreconditions(s, Signals{}), "present primary is left in place")

	s.Preconditions.Exists = nil
	ops = RefinePreconditions(s, Signals{})
	require.Len(t, ops, 1)
	patched, err := applyOps(s, ops)
	require.NoError(t, err)
	assert.Equal(t, []string{"#search"}, patched.Preconditions.Exists)
}

func TestPlanAndApply(t *testing.T) {
	s := brokenSkill()
	plan, err := PlanAndApply(s, snap(oldButton), snap(newButton, mask), skill.LanguageGo)
	require.NoError(t, err)

	out := plan.Skill
	assert.Equal(t, "#search", out.Locators.Selector)
	assert.Equal(t, []string{"#search-old", "#search"}, out.Preconditions.Exists, "old entries are kept and the primary appended")
	assert.Contains(t, out.Locators.SelectorAlt, "#search-old")
	assert.Equal(t, 960, out.Preconditions.Viewport.MinWidth)
	require.NotNil(t, out.Meta.RepairNotes)
	assert.Empty(t, out.Meta.RepairNotes.Errors)

	var diag Diagnostic
	require.NoError(t, json.Unmarshal(out.Meta.RepairNotes.Diagnostic, &diag))
	assert.Equal(t, CauseMismatch, diag.RootCause)

	// the input skill is left untouched
	assert.Equal(t, "#search-old", s.Locators.Selector)

	plan, err = PlanAndApply(s, snap(oldButton), snap(newButton), skill.LanguageSteps)
	require.NoError(t, err)
	assert.Len(t, plan.Skill.Meta.RepairNotes.Errors, 1)
}

func TestMeasure(t *testing.T) {
	before := brokenSkill()
	after := brokenSkill()
	after.Locators.Selector = "#search"
	after.Locators.SelectorAlt = []string{"button.search", "#search-old"}
	after.Preconditions.Viewport = &skill.ViewportBounds{MinWidth: 960}
	after.Program.Code = "package skill\n\nfunc Program() {}\n"

	m := Measure(before, after)
	assert.Equal(t, 1, m.PatchSize.StructureAdded.Locators.SelectorChanged)
	assert.Equal(t, 0, m.PatchSize.StructureAdded.Locators.ByRoleChanged)
	assert.Equal(t, 1, m.PatchSize.StructureAdded.Locators.SelectorAltAdded)
	assert.Equal(t, []string{"viewport"}, m.PatchSize.StructureAdded.PreconditionsAddedKeys)
	assert.Equal(t, 2, m.PatchSize.Code.LinesAdded)
	assert.Equal(t, 0, m.PatchSize.Code.LinesDeleted)
	assert.Equal(t, 1.0, m.ReuseRatio.Code)
	// selector dropped; by_role, one alt and one text kept
	assert.Equal(t, 0.75, m.ReuseRatio.Locators)
}

func TestRepair(t *testing.T) {
	oldRun := rundir.Dir(t.TempDir())
	newRun := rundir.Dir(t.TempDir())
	require.NoError(t, rundir.WriteJSON(oldRun.Path(rundir.DomSummaryFile), snapshot.DomSummary{Elements: []snapshot.Element{oldButton}}))
	require.NoError(t, rundir.WriteJSON(newRun.Path(rundir.DomSummaryFile), snapshot.DomSummary{Elements: []snapshot.Element{newButton}}))
	require.NoError(t, os.WriteFile(newRun.Path(rundir.DOMHTML), []byte(`<html><body><button id="search" class="search primary">Find</button></body></html>`), 0o644))

	s := brokenSkill()
	s.Meta.SourceDir = string(oldRun)
	skillPath := filepath.Join(t.TempDir(), "Skill_search-old_d3.json")
	require.NoError(t, skills.Save(skillPath, s))
	original, err := os.ReadFile(skillPath)
	require.NoError(t, err)

	res, err := Repair(context.Background(), Options{SkillPath: skillPath, NewRunDir: string(newRun)})
	require.NoError(t, err)
	assert.Equal(t, newRun.Path(rundir.SkillDir, "Skill_#search-old_d3_repaired.json"), res.OutPath)
	assert.True(t, strings.HasPrefix(filepath.Base(res.LogPath), "repair_d3_"))
	assert.Equal(t, string(oldRun), res.Log.OldRunDir)

	repaired, err := skills.Load(res.OutPath)
	require.NoError(t, err)
	assert.Equal(t, "#search", repaired.Locators.Selector)

	after, err := os.ReadFile(skillPath)
	require.NoError(t, err)
	assert.Equal(t, original, after)

	_, err = Repair(context.Background(), Options{SkillPath: skillPath, NewRunDir: string(newRun), OutPath: skillPath})
	assert.ErrorContains(t, err, "refusing to overwrite")
}
