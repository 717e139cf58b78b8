package repair

import (
	"encoding/json"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

func toDoc(s *skill.Skill) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode skill")
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode skill document")
	}
	return doc, nil
}

func fromDoc(doc map[string]any) (*skill.Skill, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode patched document")
	}
	var s skill.Skill
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "patched document is not a skill")
	}
	return &s, nil
}

// applyOps returns a copy of s with ops applied.
func applyOps(s *skill.Skill, ops []Op) (*skill.Skill, error) {
	if len(ops) == 0 {
		return fromDocOf(s)
	}
	doc, err := toDoc(s)
	if err != nil {
		return nil, err
	}
	doc, err = ApplyPatch(doc, ops)
	if err != nil {
		return nil, err
	}
	return fromDoc(doc)
}

func fromDocOf(s *skill.Skill) (*skill.Skill, error) {
	doc, err := toDoc(s)
	if err != nil {
		return nil, err
	}
	return fromDoc(doc)
}

// Plan is the result of PlanAndApply.
type Plan struct {
	Skill      *skill.Skill
	Diagnostic Diagnostic
	Patches    []Patch
}

// PlanAndApply diagnoses s against the snapshots, applies the locator
// patch and then the preconditions refinement computed on the patched
// skill, and validates the result for language. Validation problems are
// recorded in meta.repair_notes rather than returned.
func PlanAndApply(s *skill.Skill, old, cur *Snapshot, language string) (*Plan, error) {
	diag := Diagnose(s, old, cur)
	plan := &Plan{Diagnostic: diag}

	out, err := fromDocOf(s)
	if err != nil {
		return nil, err
	}
	for _, p := range ProposeLocators(s, cur) {
		if out, err = applyOps(out, p.Ops); err != nil {
			return nil, err
		}
		plan.Patches = append(plan.Patches, p)
	}
	out.Locators.SelectorAlt = locator.Dedup(out.Locators.SelectorAlt, 3, out.Locators.Selector)

	pre := Patch{Kind: KindPreconditions, Ops: RefinePreconditions(out, diag.Signals), Reason: "preconditions refresh"}
	if out, err = applyOps(out, pre.Ops); err != nil {
		return nil, err
	}
	plan.Patches = append(plan.Patches, pre)

	rawDiag, err := json.Marshal(diag)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode diagnostic")
	}
	notes := &skill.RepairNotes{Diagnostic: rawDiag, Errors: []string{}}
	if verr := skills.Validate(out, language); verr != nil {
		var merr *multierror.Error
		if errors.As(verr, &merr) {
			for _, e := range merr.Errors {
				notes.Errors = append(notes.Errors, e.Error())
			}
		} else {
			notes.Errors = append(notes.Errors, verr.Error())
		}
	}
	out.Meta.RepairNotes = notes
	plan.Skill = out
	return plan, nil
}
