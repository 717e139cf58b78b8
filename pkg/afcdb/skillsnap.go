package afcdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/afc"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// SkillSnapshotPath returns the skill snapshot location of a run.
func SkillSnapshotPath(dir rundir.Dir) string {
	return dir.Path(rundir.AFCDir, rundir.SkillSnapshotFile)
}

// LoadSkillSnapshot reads afc/afc_skill_snapshot.json of a run.
func LoadSkillSnapshot(dir rundir.Dir) (*afc.SkillSnapshot, error) {
	var snap afc.SkillSnapshot
	if err := rundir.ReadJSON(SkillSnapshotPath(dir), &snap); err != nil {
		return nil, errors.Wrap(err, "skill snapshot not available")
	}
	return &snap, nil
}

// ControlAbstractID returns the abstract skill key of a control.
func ControlAbstractID(c afc.Control) string {
	sig := c.SemanticSignature
	return AbstractSkillID(sig.TaskGroup, sig.TaskRole, sig.NormLabel)
}

// GroupControls aggregates the controls of a page snapshot into abstract
// skills, sorted by key. Only skills present in runSkills are kept as
// concrete skills.
func GroupControls(page *afc.PageSnapshot, runSkills []*skill.Skill) []afc.AbstractSkill {
	known := make(map[string]bool, len(runSkills))
	for _, s := range runSkills {
		known[s.ID] = true
	}

	groups := map[string]*afc.AbstractSkill{}
	var keys []string
	for _, c := range page.Controls {
		sig := c.SemanticSignature
		key := ControlAbstractID(c)
		g, ok := groups[key]
		if !ok {
			action := c.Action
			if action == "" {
				action = skill.ActionNone
			}
			label := sig.NormLabel
			if label == "" {
				label = LabelUnknown
			}
			g = &afc.AbstractSkill{
				AbstractSkillID: key,
				TaskGroup:       sig.TaskGroup,
				TaskRole:        sig.TaskRole,
				NormLabel:       label,
				Action:          action,
				AfcControls:     []afc.Ref{},
				ConcreteSkills:  []afc.Ref{},
			}
			groups[key] = g
			keys = append(keys, key)
		}
		if g.SemanticSignature.SemanticText == "" && sig.SemanticText != "" {
			g.SemanticSignature.SemanticText = sig.SemanticText
		}
		if len(g.SemanticSignature.EnvSensitivity) == 0 && len(sig.EnvSensitivity) > 0 {
			g.SemanticSignature.EnvSensitivity = sig.EnvSensitivity
		}
		g.AfcControls = append(g.AfcControls, afc.Ref{ControlID: c.ControlID})
		for _, l := range c.SkillLinks {
			if !known[l.SkillID] || hasSkillRef(g.ConcreteSkills, l.SkillID) {
				continue
			}
			g.ConcreteSkills = append(g.ConcreteSkills, afc.Ref{SkillID: l.SkillID})
		}
	}

	sort.Strings(keys)
	out := make([]afc.AbstractSkill, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out
}

func hasSkillRef(refs []afc.Ref, id string) bool {
	for _, r := range refs {
		if r.SkillID == id {
			return true
		}
	}
	return false
}

// BuildSkillSnapshot groups the page snapshot of a run into abstract skills
// and writes afc/afc_skill_snapshot.json. The page snapshot is built first
// when missing.
func BuildSkillSnapshot(ctx context.Context, dir rundir.Dir) (string, *afc.SkillSnapshot, error) {
	page, err := LoadPageSnapshot(dir)
	if err != nil {
		if _, page, err = BuildPageSnapshot(ctx, dir, PageOptions{}); err != nil {
			return "", nil, err
		}
	}

	snap := &afc.SkillSnapshot{
		RunDir:         string(dir),
		Domain:         page.Domain,
		AbstractSkills: GroupControls(page, LoadRunSkills(ctx, dir)),
	}
	out := SkillSnapshotPath(dir)
	if err := rundir.WriteJSON(out, snap); err != nil {
		return "", nil, errors.Wrap(err, "failed to write skill snapshot")
	}
	logger.G(ctx).WithField("run_dir", string(dir)).
		WithField("abstract_skills", len(snap.AbstractSkills)).
		Info("skill snapshot built")
	return out, snap, nil
}

// EnsureSkillSnapshot loads the skill snapshot of a run, building it when
// missing.
func EnsureSkillSnapshot(ctx context.Context, dir rundir.Dir) (*afc.SkillSnapshot, error) {
	if rundir.Exists(SkillSnapshotPath(dir)) {
		return LoadSkillSnapshot(dir)
	}
	_, snap, err := BuildSkillSnapshot(ctx, dir)
	return snap, err
}

// FindAbstractForSkill returns the abstract skill listing skillID as a
// concrete skill, or nil.
func FindAbstractForSkill(snap *afc.SkillSnapshot, skillID string) *afc.AbstractSkill {
	if snap == nil {
		return nil
	}
	for i := range snap.AbstractSkills {
		if hasSkillRef(snap.AbstractSkills[i].ConcreteSkills, skillID) {
			return &snap.AbstractSkills[i]
		}
	}
	return nil
}
