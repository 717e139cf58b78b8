package afcdb

import (
	"context"
	"path/filepath"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// IntegrateResult counts what IntegrateRun added to the database.
type IntegrateResult struct {
	Entries  int `json:"entries"`
	Controls int `json:"controls"`
	Skills   int `json:"skills"`
	Cases    int `json:"cases"`
}

// AbsRunDir returns the absolute form of a run directory, used as the run
// key inside the database.
func AbsRunDir(dir rundir.Dir) string {
	if abs, err := filepath.Abs(string(dir)); err == nil {
		return abs
	}
	return string(dir)
}

func addControlRef(e *afc.Entry, ref afc.ControlRef) bool {
	for _, r := range e.AfcControls {
		if r == ref {
			return false
		}
	}
	e.AfcControls = append(e.AfcControls, ref)
	return true
}

func addSkillRef(e *afc.Entry, ref afc.SkillRef) bool {
	if ref.SkillID == "" {
		return false
	}
	for _, r := range e.ConcreteSkills {
		if r == ref {
			return false
		}
	}
	e.ConcreteSkills = append(e.ConcreteSkills, ref)
	return true
}

func findCase(e *afc.Entry, key [3]string) int {
	for i, c := range e.SkillCases {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

// newCase seeds a skill case for a control of a run.
func newCase(runDir, domain string, c afc.Control, skillID string, theta map[string]float64) afc.SkillCase {
	return afc.SkillCase{
		RunDir:       runDir,
		Domain:       domain,
		AfcControlID: c.ControlID,
		SkillID:      skillID,
		SInvariant:   InvariantFromControl(c),
		ThetaWeights: theta,
	}
}

// IntegrateRun merges the abstract skills of a run into the global database:
// entries are created when missing, control and skill refs are added, and
// every (control, skill) pair gets a case with default weights. Existing
// refs and cases are left untouched.
func IntegrateRun(ctx context.Context, store *Store, dir rundir.Dir) (*IntegrateResult, error) {
	page, err := LoadPageSnapshot(dir)
	if err != nil {
		if _, page, err = BuildPageSnapshot(ctx, dir, PageOptions{}); err != nil {
			return nil, err
		}
	}
	snap, err := EnsureSkillSnapshot(ctx, dir)
	if err != nil {
		return nil, err
	}

	controls := make(map[string]afc.Control, len(page.Controls))
	for _, c := range page.Controls {
		controls[c.ControlID] = c
	}
	runDir := AbsRunDir(dir)
	domain := snap.Domain
	if domain == "" {
		domain = page.Domain
	}

	res := &IntegrateResult{}
	for _, a := range snap.AbstractSkills {
		e, err := store.EnsureEntry(ctx, a.AbstractSkillID, GlobalSemanticFrom(a))
		if err != nil {
			return nil, err
		}

		for _, ref := range a.AfcControls {
			if addControlRef(e, afc.ControlRef{Domain: domain, RunDir: runDir, ControlID: ref.ControlID}) {
				res.Controls++
			}
		}
		for _, ref := range a.ConcreteSkills {
			if addSkillRef(e, afc.SkillRef{Domain: domain, RunDir: runDir, SkillID: ref.SkillID}) {
				res.Skills++
			}
		}

		skillIDs := []string{""}
		if len(a.ConcreteSkills) > 0 {
			skillIDs = skillIDs[:0]
			for _, ref := range a.ConcreteSkills {
				skillIDs = append(skillIDs, ref.SkillID)
			}
		}
		for _, ref := range a.AfcControls {
			c, ok := controls[ref.ControlID]
			if !ok {
				continue
			}
			for _, sid := range skillIDs {
				if findCase(e, [3]string{runDir, c.ControlID, sid}) >= 0 {
					continue
				}
				e.SkillCases = append(e.SkillCases, newCase(runDir, domain, c, sid, afc.DefaultTheta()))
				res.Cases++
			}
		}

		if err := store.SaveEntry(ctx, e); err != nil {
			return nil, err
		}
		res.Entries++
	}

	logger.G(ctx).WithField("run_dir", runDir).
		WithField("entries", res.Entries).
		WithField("cases", res.Cases).
		Info("run integrated into AFC database")
	return res, nil
}
