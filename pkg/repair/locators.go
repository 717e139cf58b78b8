package repair

import (
	"slices"
	"strings"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Patch kinds.
const (
	KindLocators      = "locators"
	KindPreconditions = "preconditions"
)

// Candidates returns the selectors that target e, most robust first:
// #id, tag[name], tag[role], tag.classes.
func Candidates(e snapshot.Element) []string {
	tag := e.LowerTag()
	if tag == "" {
		tag = "*"
	}
	var out []string
	if e.ID != "" {
		out = append(out, "#"+e.ID)
	}
	if e.Name != "" {
		out = append(out, tag+"[name='"+e.Name+"']")
	}
	if e.Role != "" {
		out = append(out, tag+"[role='"+e.Role+"']")
	}
	if cls := locator.StableClasses(e.Class); len(cls) > 0 {
		out = append(out, tag+"."+strings.Join(cls, "."))
	}
	return out
}

// target finds the new element for the current primary: by id, then by
// name, then the first element of the snapshot.
func target(s *skill.Skill, cur *Snapshot) (snapshot.Element, bool) {
	sel := s.Locators.Selector
	if strings.HasPrefix(sel, "#") {
		for _, e := range cur.Elements {
			if e.ID != "" && locator.MatchSelector(sel, e) {
				return e, true
			}
		}
	}
	if strings.Contains(sel, "[name=") {
		for _, e := range cur.Elements {
			if e.Name != "" && locator.MatchSelector(sel, e) {
				return e, true
			}
		}
	}
	if len(cur.Elements) > 0 {
		return cur.Elements[0], true
	}
	return snapshot.Element{}, false
}

// ProposeLocators proposes a locators patch for s from the new snapshot.
// The most robust candidate becomes the primary and the old primary is kept
// as an alternative.
func ProposeLocators(s *skill.Skill, cur *Snapshot) []Patch {
	el, ok := target(s, cur)
	if !ok {
		return nil
	}
	cand := Candidates(el)
	if len(cand) == 0 {
		return nil
	}

	sel := s.Locators.Selector
	var ops []Op
	if cand[0] != sel {
		ops = append(ops, Op{Op: OpReplace, Path: "/locators/selector", Value: cand[0]})
		if sel != "" {
			ops = append(ops, Op{Op: OpAdd, Path: "/locators/selector_alt/-", Value: sel})
		}
	}
	n := 0
	for _, c := range cand[1:] {
		if c == sel || n >= 3 {
			continue
		}
		ops = append(ops, Op{Op: OpAdd, Path: "/locators/selector_alt/-", Value: c})
		n++
	}
	return []Patch{{Kind: KindLocators, Ops: ops, Reason: "deterministic locator update"}}
}

// RefinePreconditions returns operations that append the primary to exists
// when absent, refresh not_exists from overlay hits and default the
// viewport guard. Existing exists entries are kept.
func RefinePreconditions(s *skill.Skill, sig Signals) []Op {
	var ops []Op
	pre := s.Preconditions

	if primary := s.Locators.Selector; primary != "" && !slices.Contains(pre.Exists, primary) {
		ops = append(ops, Op{Op: OpAdd, Path: "/preconditions/exists/-", Value: primary})
	}

	if groups := locator.OverlayGroups(sig.OverlayHits); len(groups) > 0 {
		ops = append(ops, Op{Op: OpReplace, Path: "/preconditions/not_exists", Value: groups})
	}

	if pre.Viewport == nil || pre.Viewport.MinWidth == 0 {
		ops = append(ops, Op{Op: OpAdd, Path: "/preconditions/viewport/min_width", Value: skills.DefaultMinWidth})
	}
	return ops
}

