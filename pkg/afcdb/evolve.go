package afcdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// Evolution constants.
const (
	SuccessStep     = 0.05
	SuccessEnvStep  = 0.025
	FailureStep     = 0.1
	LowGradeStep    = 0.05
	MaxExternalStep = 0.5
	// MaxCasesPerEntry is how many cases an entry keeps after compression.
	MaxCasesPerEntry = 3
	// MaxNegativeSamples bounds the failures remembered per case.
	MaxNegativeSamples = 20
)

var (
	semanticFeatures = []string{afc.FeatureCleanText, afc.FeatureNormLabel, afc.FeatureAction, afc.FeatureRole}
	envFeatures      = []string{afc.FeatureURLPattern, afc.FeatureLogin}
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFeature(k string) bool {
	for _, f := range afc.Features {
		if f == k {
			return true
		}
	}
	return false
}

func bump(theta map[string]float64, keys []string, step float64) {
	for _, k := range keys {
		theta[k] += step
	}
}

// UpdateSkillCase absorbs one execution into a case: history counts, drift
// levels, rebuild grade and feature weights are updated and the execution
// is recorded in the evolve metadata.
func UpdateSkillCase(c *afc.SkillCase, exec afc.ExecutionCase) {
	if exec.ExecSuccess {
		c.RHistory.ExecSuccess++
	} else {
		c.RHistory.ExecFail++
	}

	// Levels describe the latest execution only.
	c.Levels = nil
	if exec.LS != nil && exec.LA != nil {
		c.Levels = &afc.Levels{LS: clampInt(*exec.LS, 0, 2), LA: clampInt(*exec.LA, 0, 2)}
	}
	var grade *int
	if exec.RebuildGrade != nil {
		g := clampInt(*exec.RebuildGrade, 0, 4)
		grade = &g
		c.RebuildGrade = &g
	}

	theta := make(map[string]float64, len(afc.Features))
	for _, f := range afc.Features {
		theta[f] = 1.0
	}
	for k, v := range c.ThetaWeights {
		theta[k] = v
	}

	for k, d := range exec.ThetaDelta {
		if isFeature(k) {
			theta[k] += clamp(d, -MaxExternalStep, MaxExternalStep)
		}
	}

	if exec.ExecSuccess {
		bump(theta, semanticFeatures, SuccessStep)
		if c.Levels != nil && c.Levels.LS >= 1 {
			bump(theta, envFeatures, SuccessEnvStep)
		}
	} else {
		bump(theta, afc.Features, -FailureStep)
	}

	if grade != nil && *grade <= 1 {
		bump(theta, envFeatures, LowGradeStep)
	}

	for k, v := range theta {
		theta[k] = clamp(v, 0, 1)
	}
	c.ThetaWeights = theta

	if c.EvolveMeta == nil {
		c.EvolveMeta = &afc.EvolveMeta{}
	}
	ts := exec.Timestamp
	if ts == "" {
		ts = Now()
	}
	last := &afc.LastExec{
		Success:      exec.ExecSuccess,
		SimS:         exec.SimS,
		ReuseA:       exec.ReuseA,
		RebuildGrade: grade,
		ErrorType:    exec.ErrorType,
		Timestamp:    ts,
	}
	if c.Levels != nil {
		ls, la := c.Levels.LS, c.Levels.LA
		last.LS, last.LA = &ls, &la
	}
	c.EvolveMeta.LastExec = last

	if !exec.ExecSuccess {
		c.EvolveMeta.NegativeSamples = append(c.EvolveMeta.NegativeSamples, afc.NegativeSample{
			RunDir:       exec.RunDir,
			AfcControlID: exec.AfcControlID,
			SkillID:      exec.SkillID,
			Timestamp:    ts,
			ErrorType:    exec.ErrorType,
		})
		if n := len(c.EvolveMeta.NegativeSamples); n > MaxNegativeSamples {
			c.EvolveMeta.NegativeSamples = c.EvolveMeta.NegativeSamples[n-MaxNegativeSamples:]
		}
	}
}

// caseRank orders cases for compression.
func caseRank(c afc.SkillCase) (int, int) {
	h := c.RHistory
	return 2*h.ExecSuccess - h.ExecFail, h.ExecSuccess + h.ExecFail
}

// CompressCases keeps the best n cases of an entry, ranked by 2*success -
// failure and then by total executions.
func CompressCases(e *afc.Entry, n int) bool {
	if n <= 0 || len(e.SkillCases) <= n {
		return false
	}
	sort.SliceStable(e.SkillCases, func(i, j int) bool {
		si, ti := caseRank(e.SkillCases[i])
		sj, tj := caseRank(e.SkillCases[j])
		if si != sj {
			return si > sj
		}
		return ti > tj
	})
	e.SkillCases = e.SkillCases[:n]
	return true
}

// ParseAbstractSkillID splits "group.role:label" into its parts.
func ParseAbstractSkillID(id string) (group, role, label string) {
	key, label, _ := strings.Cut(id, ":")
	group, role, _ = strings.Cut(key, ".")
	return group, role, label
}

// runContext caches the snapshots of a run referenced by an exec log.
type runContext struct {
	page     *afc.PageSnapshot
	skills   *afc.SkillSnapshot
	controls map[string]afc.Control
}

func loadRunContext(ctx context.Context, cache map[string]*runContext, runDir string) *runContext {
	if rc, ok := cache[runDir]; ok {
		return rc
	}
	rc := &runContext{controls: map[string]afc.Control{}}
	dir := rundir.Dir(runDir)
	if page, err := LoadPageSnapshot(dir); err == nil {
		rc.page = page
		for _, c := range page.Controls {
			rc.controls[c.ControlID] = c
		}
	} else {
		logger.G(ctx).WithError(err).WithField("run_dir", runDir).Debug("no page snapshot for exec log run")
	}
	if rundir.Exists(SkillSnapshotPath(dir)) {
		if snap, err := LoadSkillSnapshot(dir); err == nil {
			rc.skills = snap
		}
	}
	cache[runDir] = rc
	return rc
}

func (rc *runContext) domain() string {
	switch {
	case rc.skills != nil && rc.skills.Domain != "":
		return rc.skills.Domain
	case rc.page != nil:
		return rc.page.Domain
	}
	return ""
}

func (rc *runContext) semantic(id string, ctrl *afc.Control) afc.GlobalSemantic {
	if rc.skills != nil {
		for _, a := range rc.skills.AbstractSkills {
			if a.AbstractSkillID == id {
				return GlobalSemanticFrom(a)
			}
		}
	}
	group, role, label := ParseAbstractSkillID(id)
	sem := afc.GlobalSemantic{TaskGroup: group, TaskRole: role, NormLabel: label}
	if ctrl != nil {
		sem.Action = ctrl.Action
	}
	return sem
}

// EvolveResult counts what IntegrateWithEvolution changed.
type EvolveResult struct {
	Updated    int `json:"updated"`
	Created    int `json:"created"`
	Compressed int `json:"compressed"`
}

// IntegrateWithEvolution applies the trials of an exec log to the global
// database. Missing entries, refs and cases are created, every trial
// updates its case and the resulting weights are shared by all cases of
// the entry. Entries are then compressed to MaxCasesPerEntry cases.
func IntegrateWithEvolution(ctx context.Context, store *Store, log *afc.ExecLog) (*EvolveResult, error) {
	if log == nil {
		return nil, errors.New("exec log is required")
	}
	res := &EvolveResult{}
	cache := map[string]*runContext{}
	entries := map[string]*afc.Entry{}
	var order []string

	for _, exec := range log.SkillCases {
		id := exec.AbstractSkillID
		if id == "" {
			id = log.AbstractSkillID
		}
		runDir := exec.RunDir
		if runDir == "" {
			runDir = log.RunDir
		}
		if id == "" || runDir == "" || exec.AfcControlID == "" {
			logger.G(ctx).WithField("case", exec).Warn("skipping incomplete exec case")
			continue
		}
		exec.AbstractSkillID, exec.RunDir = id, runDir

		rc := loadRunContext(ctx, cache, runDir)
		var ctrl *afc.Control
		if c, ok := rc.controls[exec.AfcControlID]; ok {
			ctrl = &c
		}

		e, ok := entries[id]
		if !ok {
			var err error
			if e, err = store.EnsureEntry(ctx, id, rc.semantic(id, ctrl)); err != nil {
				return nil, err
			}
			entries[id] = e
			order = append(order, id)
		}

		domain := rc.domain()
		addControlRef(e, afc.ControlRef{Domain: domain, RunDir: runDir, ControlID: exec.AfcControlID})
		addSkillRef(e, afc.SkillRef{Domain: domain, RunDir: runDir, SkillID: exec.SkillID})

		idx := findCase(e, [3]string{runDir, exec.AfcControlID, exec.SkillID})
		if idx < 0 {
			theta := afc.DefaultTheta()
			if len(e.SkillCases) > 0 {
				theta = copyTheta(e.SkillCases[0].ThetaWeights)
			}
			c := afc.SkillCase{
				RunDir:       runDir,
				Domain:       domain,
				AfcControlID: exec.AfcControlID,
				SkillID:      exec.SkillID,
				ThetaWeights: theta,
			}
			if ctrl != nil {
				c.SInvariant = InvariantFromControl(*ctrl)
			}
			e.SkillCases = append(e.SkillCases, c)
			idx = len(e.SkillCases) - 1
			res.Created++
		}

		UpdateSkillCase(&e.SkillCases[idx], exec)
		shared := e.SkillCases[idx].ThetaWeights
		for i := range e.SkillCases {
			e.SkillCases[i].ThetaWeights = copyTheta(shared)
		}
		res.Updated++
	}

	for _, id := range order {
		e := entries[id]
		if CompressCases(e, MaxCasesPerEntry) {
			res.Compressed++
		}
		if err := store.SaveEntry(ctx, e); err != nil {
			return nil, err
		}
	}

	all, err := store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if _, touched := entries[all[i].AbstractSkillID]; touched {
			continue
		}
		if CompressCases(&all[i], MaxCasesPerEntry) {
			if err := store.SaveEntry(ctx, &all[i]); err != nil {
				return nil, err
			}
			res.Compressed++
		}
	}

	logger.G(ctx).WithField("updated", res.Updated).
		WithField("created", res.Created).
		WithField("compressed", res.Compressed).
		Info("exec log integrated")
	return res, nil
}

func copyTheta(theta map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(theta))
	for k, v := range theta {
		out[k] = v
	}
	return out
}

// Now is the UTC timestamp format used in exec logs.
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
