package afcdb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/program"
	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/repair"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/telemetry"
	"github.com/jingkaihe/webskill/pkg/types/afc"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Error types recorded on failed trials.
const (
	ErrorNoSelector   = "no_selector"
	ErrorPrecondition = "precondition_failed"
	ErrorAction       = "action_failed"
	ErrorExec         = "exec_error"
)

// Default matching parameters of RepairWithCases.
const (
	DefaultTopK     = 3
	DefaultMinScore = 0.0
	maxAlts         = 3
)

// SelectReferenceCase picks the case to match new pages with: cases from
// oldRunDir come first, then those with more successes, then more runs.
func SelectReferenceCase(cases []afc.SkillCase, oldRunDir string) *afc.SkillCase {
	var (
		best      *afc.SkillCase
		bestScore [3]int
	)
	for i := range cases {
		c := &cases[i]
		score := [3]int{0, c.RHistory.ExecSuccess, c.RHistory.ExecSuccess + c.RHistory.ExecFail}
		if oldRunDir != "" && c.RunDir == oldRunDir {
			score[0] = 10
		}
		if best == nil || greater(score, bestScore) {
			best, bestScore = c, score
		}
	}
	return best
}

func greater(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func cloneSkill(s *skill.Skill) (*skill.Skill, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to copy skill")
	}
	var out skill.Skill
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "failed to copy skill")
	}
	return &out, nil
}

// ProposeFromControl returns a copy of s whose locators point at a matched
// control of the new page. Only locators change: the primary becomes the
// control's first selector candidate, alternatives are filled from the
// remaining candidates when s has none, and the old primary is replaced in
// preconditions.exists. It returns nil when the control has no selector.
func ProposeFromControl(s *skill.Skill, c afc.Control) (*skill.Skill, error) {
	cands := c.StructuralSignature.SelectorCandidates
	if len(cands) == 0 || cands[0] == "" {
		return nil, nil
	}
	out, err := cloneSkill(s)
	if err != nil {
		return nil, err
	}
	oldPrimary := out.Locators.Selector
	primary := cands[0]
	out.Locators.Selector = primary

	var alts []string
	source := out.Locators.SelectorAlt
	if len(source) == 0 {
		source = cands[1:]
	}
	for _, a := range source {
		if a == "" || a == primary || contains(alts, a) {
			continue
		}
		alts = append(alts, a)
		if len(alts) == maxAlts {
			break
		}
	}
	out.Locators.SelectorAlt = alts

	var exists []string
	for _, x := range out.Preconditions.Exists {
		if x != oldPrimary {
			exists = append(exists, x)
		}
	}
	out.Preconditions.Exists = exists
	skills.EnsurePrimaryExists(out)
	return out, nil
}

// RepairOptions configure RepairWithCases.
type RepairOptions struct {
	OldRunDir string
	NewRunDir string
	SkillID   string
	// SkillPath defaults to the file of SkillID under OldRunDir.
	SkillPath string
	Task      string
	TopK      int
	MinScore  float64
	// Evolve feeds the resulting exec log back into the database.
	Evolve bool
	Args   map[string]any

	Env     browser.Env
	Runner  *program.Runner
	Options env.Options
}

// Trial is one candidate tried by RepairWithCases.
type Trial struct {
	Candidate Candidate         `json:"candidate"`
	Case      afc.ExecutionCase `json:"case"`
	Message   string            `json:"message,omitempty"`
}

// RepairResult reports a case-based repair.
type RepairResult struct {
	AbstractSkillID string         `json:"abstract_skill_id"`
	Reference       *afc.SkillCase `json:"reference,omitempty"`
	Trials          []Trial        `json:"trials"`
	ExecLogPath     string         `json:"exec_log_path"`
	// OutPath is the repaired skill written for the first successful trial.
	OutPath  string        `json:"out_path,omitempty"`
	Evolved  *EvolveResult `json:"evolved,omitempty"`
	ExitCode int           `json:"exit_code"`
}

// driftLevel grades how far a matched control drifted from the reference.
func driftLevel(sim float64) int {
	switch {
	case sim >= 0.8:
		return 0
	case sim >= 0.5:
		return 1
	}
	return 2
}

// RepairWithCases repairs a skill on a new page by case-based reasoning:
// the skill's abstract skill is looked up in the database, the controls of
// the new page most similar to a reference case are tried one by one with
// locator-only changes, and the trials are recorded as an exec log.
func RepairWithCases(ctx context.Context, store *Store, opts RepairOptions) (*RepairResult, error) {
	var res *RepairResult
	err := telemetry.WithSpan(ctx, "afc.repair", func(ctx context.Context) error {
		var err error
		res, err = repairWithCases(ctx, store, opts)
		return err
	}, attribute.String("afc.skill_id", opts.SkillID), attribute.String("afc.new_run_dir", opts.NewRunDir))
	return res, err
}

func repairWithCases(ctx context.Context, store *Store, opts RepairOptions) (*RepairResult, error) {
	if opts.Env == nil {
		return nil, errors.New("a browser environment is required")
	}
	if opts.Runner == nil {
		opts.Runner = program.NewRunner()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	oldDir, newDir := rundir.Dir(opts.OldRunDir), rundir.Dir(opts.NewRunDir)
	log := logger.G(ctx).WithField("skill_id", opts.SkillID).WithField("new_run_dir", opts.NewRunDir)

	oldSnap, err := EnsureSkillSnapshot(ctx, oldDir)
	if err != nil {
		return nil, err
	}
	abstract := FindAbstractForSkill(oldSnap, opts.SkillID)
	if abstract == nil {
		return nil, errors.Errorf("skill %s is not linked to any abstract skill in %s", opts.SkillID, opts.OldRunDir)
	}
	entry, err := store.GetEntry(ctx, abstract.AbstractSkillID)
	if err != nil {
		return nil, errors.Wrap(err, "run afc integrate on the old run first")
	}
	ref := SelectReferenceCase(entry.SkillCases, AbsRunDir(oldDir))
	if ref == nil {
		return nil, errors.Errorf("abstract skill %s has no cases", abstract.AbstractSkillID)
	}

	skillPath := opts.SkillPath
	if skillPath == "" {
		if skillPath, err = skills.FindByID(opts.OldRunDir, opts.SkillID); err != nil {
			return nil, err
		}
	}
	s, err := skills.Load(skillPath)
	if err != nil {
		return nil, err
	}

	page, err := LoadPageSnapshot(newDir)
	if err != nil {
		if _, page, err = BuildPageSnapshot(ctx, newDir, PageOptions{}); err != nil {
			return nil, err
		}
	}
	cands := FindCandidateControls(*ref, page, opts.TopK, opts.MinScore)

	res := &RepairResult{
		AbstractSkillID: abstract.AbstractSkillID,
		Reference:       ref,
		Trials:          []Trial{},
		ExitCode:        program.ExitFailed,
	}
	var trials []afc.ExecutionCase
	for _, cand := range cands {
		trial := tryCandidate(ctx, opts, s, abstract.AbstractSkillID, cand)
		res.Trials = append(res.Trials, trial.Trial)
		trials = append(trials, trial.Case)
		if trial.Case.ExecSuccess {
			out := repair.OutputPath(trial.skill, opts.NewRunDir)
			if err := skills.Save(out, trial.skill); err != nil {
				return nil, err
			}
			res.OutPath = out
			res.ExitCode = program.ExitOK
			break
		}
	}
	if len(cands) == 0 {
		log.WithField("abstract_skill_id", abstract.AbstractSkillID).Warn("no candidate controls on the new page")
	}

	execLog := BuildExecLog(newDir, abstract.AbstractSkillID, trials, opts.Task)
	if res.ExecLogPath, err = WriteExecLog(newDir, execLog); err != nil {
		return nil, err
	}
	if opts.Evolve && len(trials) > 0 {
		if res.Evolved, err = IntegrateWithEvolution(ctx, store, execLog); err != nil {
			return nil, err
		}
	}

	log.WithField("trials", len(res.Trials)).WithField("exit_code", res.ExitCode).Info("case based repair finished")
	return res, nil
}

type trialResult struct {
	Trial
	skill *skill.Skill
}

func tryCandidate(ctx context.Context, opts RepairOptions, s *skill.Skill, abstractID string, cand Candidate) trialResult {
	sim := cand.Score
	reuse := 1.0
	ls, la, grade := driftLevel(sim), 0, 1
	ec := afc.ExecutionCase{
		AbstractSkillID: abstractID,
		RunDir:          AbsRunDir(rundir.Dir(opts.NewRunDir)),
		AfcControlID:    cand.ControlID,
		SkillID:         s.ID,
		Timestamp:       Now(),
		SimS:            &sim,
		ReuseA:          &reuse,
		LS:              &ls,
		LA:              &la,
		RebuildGrade:    &grade,
	}
	tr := trialResult{Trial: Trial{Candidate: cand}}

	proposed, err := ProposeFromControl(s, cand.Control)
	if err != nil || proposed == nil {
		ec.ErrorType = ErrorNoSelector
		tr.Message = "control has no selector candidate"
		tr.Case = ec
		return tr
	}
	ec.CodeDiffSummary = map[string]any{
		"kind":         "locator_only",
		"selector_old": s.Locators.Selector,
		"selector_new": proposed.Locators.Selector,
	}

	o, err := program.Attempt(ctx, opts.Runner, opts.Env, proposed, opts.Args, opts.Options)
	switch {
	case err != nil:
		ec.ErrorType = ErrorExec
		tr.Message = err.Error()
	case o.Result.OK:
		ec.ExecSuccess = true
		tr.Message = o.Result.Message
	case o.Preconditions != nil && !o.Preconditions.OK:
		ec.ErrorType = ErrorPrecondition
		tr.Message = o.Result.Message
	default:
		ec.ErrorType = ErrorAction
		tr.Message = o.Result.Message
	}
	tr.Case = ec
	tr.skill = proposed
	return tr
}
