package program

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/precondition"
	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Exit codes of Invoke.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitNoProgram = 2
)

// Outcome is the record of one invocation.
type Outcome struct {
	RunID  string        `json:"run_id"`
	Result env.Result    `json:"result"`
	TTF    time.Duration `json:"ttf"`
	URL    string        `json:"url"`
	// Preconditions is set when guards were evaluated before running.
	Preconditions *precondition.Result `json:"preconditions,omitempty"`
}

// ExitCode maps an outcome to a process exit code.
func (o Outcome) ExitCode() int {
	if o.Result.OK {
		return ExitOK
	}
	return ExitFailed
}

// Invoke runs the program of s and reports METRIC, RESULT and ENV lines
// to w. It returns the process exit code.
func Invoke(ctx context.Context, w io.Writer, r *Runner, e browser.Env, s *skill.Skill, args map[string]any, opts env.Options) int {
	o, err := invoke(ctx, r, e, s, args, opts, false)
	return report(w, o, err)
}

// Execute evaluates the preconditions of s and, when they hold, runs its
// program. Output and exit code follow Invoke.
func Execute(ctx context.Context, w io.Writer, r *Runner, e browser.Env, s *skill.Skill, args map[string]any, opts env.Options) int {
	o, err := invoke(ctx, r, e, s, args, opts, true)
	return report(w, o, err)
}

func invoke(ctx context.Context, r *Runner, e browser.Env, s *skill.Skill, args map[string]any, opts env.Options, guard bool) (Outcome, error) {
	o := Outcome{RunID: uuid.NewString()}
	log := logger.G(ctx).WithField("run_id", o.RunID).WithField("skill_id", s.ID)

	if guard {
		pre := precondition.Evaluate(ctx, e, s.Preconditions)
		o.Preconditions = &pre
		if !pre.OK {
			parts := make([]string, 0, len(pre.Failures))
			for _, f := range pre.Failures {
				parts = append(parts, f.Kind+": "+f.Detail)
			}
			o.Result = env.Fail("preconditions failed: %s", strings.Join(parts, "; "))
			o.URL, _ = e.CurrentURL(ctx)
			log.WithField("failures", len(pre.Failures)).Info("preconditions not met")
			return o, nil
		}
	}

	start := time.Now()
	res, err := r.Run(ctx, e, s, args, opts)
	o.TTF = time.Since(start)
	if err != nil {
		return o, err
	}
	o.Result = res
	o.URL = res.FinalURL
	if o.URL == "" {
		o.URL, _ = e.CurrentURL(ctx)
	}
	log.WithField("ok", res.OK).WithField("ttf_ms", o.TTF.Milliseconds()).Info("skill invoked")
	return o, nil
}

func report(w io.Writer, o Outcome, err error) int {
	if errors.Is(err, ErrEmptyProgram) {
		fmt.Fprintf(w, "RESULT ok=false message=%q\n", err.Error())
		return ExitNoProgram
	}
	if err != nil {
		o.Result = env.Fail("%v", err)
	}
	fmt.Fprintf(w, "METRIC TTF=%d\n", o.TTF.Milliseconds())
	fmt.Fprintf(w, "RESULT ok=%t message=%q\n", o.Result.OK, o.Result.Message)
	fmt.Fprintf(w, "ENV url=%s\n", o.URL)
	return o.ExitCode()
}

// Attempt evaluates preconditions and runs the program of s, returning the
// outcome without printing.
func Attempt(ctx context.Context, r *Runner, e browser.Env, s *skill.Skill, args map[string]any, opts env.Options) (Outcome, error) {
	return invoke(ctx, r, e, s, args, opts, true)
}
