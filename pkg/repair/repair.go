package repair

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/telemetry"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Options configure Repair.
type Options struct {
	SkillPath string
	NewRunDir string
	// OldRunDir defaults to the skill's meta.source_dir, then NewRunDir.
	OldRunDir string
	// OutPath defaults to <new_run>/skill/Skill_<selector>_<id>_repaired.json.
	OutPath string
	// LogDir defaults to <new_run>/skill/_repair_logs.
	LogDir   string
	Language string
}

// Result reports where the repair was written.
type Result struct {
	OutPath string
	LogPath string
	Plan    *Plan
	Log     *Log
}

// OutputPath is the default location of a repaired skill.
func OutputPath(s *skill.Skill, newRunDir string) string {
	sel := s.Locators.Selector
	if sel == "" {
		sel = "selector"
	}
	sel = strings.ReplaceAll(sel, "/", "_")
	return rundir.Dir(newRunDir).Path(rundir.SkillDir, skills.FilePrefix+sel+"_"+s.ID+"_repaired.json")
}

// Repair loads a skill, repairs it against a new run and writes the
// repaired skill and a repair log. The input skill file is never written.
func Repair(ctx context.Context, opts Options) (*Result, error) {
	var res *Result
	err := telemetry.WithSpan(ctx, "repair.run", func(ctx context.Context) error {
		var err error
		res, err = repair(ctx, opts)
		return err
	}, attribute.String("repair.skill", opts.SkillPath), attribute.String("repair.new_run_dir", opts.NewRunDir))
	return res, err
}

func repair(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Language == "" {
		opts.Language = skill.LanguageGo
	}
	s, err := skills.Load(opts.SkillPath)
	if err != nil {
		return nil, err
	}

	oldDir := opts.OldRunDir
	if oldDir == "" {
		oldDir = s.Meta.SourceDir
	}
	if oldDir == "" {
		oldDir = opts.NewRunDir
	}
	log := logger.G(ctx).WithField("skill_id", s.ID).WithField("old_run_dir", oldDir).WithField("new_run_dir", opts.NewRunDir)

	old, err := LoadSnapshot(rundir.Dir(oldDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load old run")
	}
	cur, err := LoadSnapshot(rundir.Dir(opts.NewRunDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load new run")
	}

	plan, err := PlanAndApply(s, old, cur, opts.Language)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(ctx,
		attribute.String("repair.root_cause", plan.Diagnostic.RootCause),
		attribute.Int("repair.patches", len(plan.Patches)),
	)
	log.WithField("root_cause", plan.Diagnostic.RootCause).Info("diagnosed skill")

	out := opts.OutPath
	if out == "" {
		out = OutputPath(s, opts.NewRunDir)
	}
	if same, _ := samePath(out, opts.SkillPath); same {
		return nil, errors.Errorf("refusing to overwrite input skill %s", opts.SkillPath)
	}
	if err := skills.Save(out, plan.Skill); err != nil {
		return nil, err
	}

	metrics := Measure(s, plan.Skill)
	metrics.TotalSec = round4(time.Since(start).Seconds())
	now := time.Now().UTC()
	rlog := &Log{
		RunID:         uuid.NewString(),
		TS:            now.Format(time.RFC3339),
		SkillID:       plan.Skill.ID,
		Selector:      plan.Skill.Locators.Selector,
		InputSkill:    opts.SkillPath,
		OutPath:       out,
		OldRunDir:     oldDir,
		NewRunDir:     opts.NewRunDir,
		Deterministic: plan.Skill.Meta.RepairNotes,
		Patches:       plan.Patches,
		Metrics:       metrics,
	}

	logDir := opts.LogDir
	if logDir == "" {
		logDir = rundir.Dir(opts.NewRunDir).Path(rundir.SkillDir, rundir.RepairLogsDir)
	}
	logPath := filepath.Join(logDir, "repair_"+plan.Skill.ID+"_"+now.Format("20060102150405")+".json")
	if err := rundir.WriteJSON(logPath, rlog); err != nil {
		log.WithError(err).Warn("failed to write repair log")
		logPath = ""
	}

	log.WithField("out", out).Info("skill repaired")
	return &Result{OutPath: out, LogPath: logPath, Plan: plan, Log: rlog}, nil
}

func samePath(a, b string) (bool, error) {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return aa == bb, nil
}
