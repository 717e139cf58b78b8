// Package program executes skill programs. Go programs run in the yaegi
// interpreter against the webskill/env API; steps programs run on a small
// built-in interpreter.
package program

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"github.com/pkg/errors"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/telemetry"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// EntryFunc is the signature every Go program entry must have.
type EntryFunc = func(context.Context, env.Env, env.Locators, map[string]any, env.Options) env.Result

// ErrEmptyProgram is returned for a skill without code.
var ErrEmptyProgram = errors.New("skill program has no code")

// Runner executes skill programs.
type Runner struct{}

// NewRunner returns a Runner.
func NewRunner() *Runner { return &Runner{} }

// Run executes the program of s. The error reports problems loading the
// program; execution failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, e env.Env, s *skill.Skill, args map[string]any, opts env.Options) (env.Result, error) {
	if strings.TrimSpace(s.Program.Code) == "" {
		return env.Result{}, ErrEmptyProgram
	}
	if args == nil {
		args = map[string]any{}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var res env.Result
	err := telemetry.WithSpan(ctx, "program.run", func(ctx context.Context) error {
		log := logger.G(ctx).WithField("skill_id", s.ID).WithField("language", s.Program.Language)
		switch s.Program.Language {
		case skill.LanguageGo, "":
			fn, err := Load(s.Program)
			if err != nil {
				return err
			}
			res = call(ctx, func() env.Result { return fn(ctx, e, s.Locators, args, opts) })
		case skill.LanguageSteps:
			steps, err := ParseSteps(s.Program.Code)
			if err != nil {
				return err
			}
			res = call(ctx, func() env.Result { return RunSteps(ctx, e, s.Locators, steps, args, opts) })
		default:
			return errors.Errorf("unsupported program language %q", s.Program.Language)
		}
		log.WithField("ok", res.OK).WithField("message", res.Message).Debug("program finished")
		return nil
	}, attribute.String("skill.id", s.ID), attribute.String("program.language", s.Program.Language))
	return res, err
}

// call runs f until it returns or ctx is done. A panic is turned into a
// failed result.
func call(ctx context.Context, f func() env.Result) env.Result {
	done := make(chan env.Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- env.Fail("program panicked: %v", p)
			}
		}()
		done <- f()
	}()
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return env.Fail("program timed out: %v", ctx.Err())
	}
}

// Load interprets a Go program and returns its entry function.
func Load(p skill.Program) (EntryFunc, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "program.go", p.Code, parser.PackageClauseOnly)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse program")
	}
	pkg := f.Name.Name

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errors.Wrap(err, "failed to load stdlib symbols")
	}
	if err := i.Use(Symbols); err != nil {
		return nil, errors.Wrap(err, "failed to load env symbols")
	}
	if _, err := i.Eval(p.Code); err != nil {
		return nil, errors.Wrap(err, "failed to evaluate program")
	}

	entry := Entry(p)
	v, err := i.Eval(fmt.Sprintf("%s.%s", pkg, entry))
	if err != nil {
		return nil, errors.Wrapf(err, "entry %s not found", entry)
	}
	fn, ok := v.Interface().(EntryFunc)
	if !ok {
		return nil, errors.Errorf("entry %s has signature %s", entry, v.Type())
	}
	return fn, nil
}
