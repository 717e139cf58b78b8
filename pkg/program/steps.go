package program

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Step is one instruction of a steps program. Arg names the args key that
// supplies the step's value.
type Step struct {
	Action string `json:"action"`
	Arg    string `json:"arg,omitempty"`
	// Key is pressed by "press" steps.
	Key string `json:"key,omitempty"`
}

// DefaultSteps is the steps program performing action on the resolved
// control.
func DefaultSteps(action string) []Step {
	switch action {
	case skill.ActionType:
		return []Step{{Action: skill.ActionType, Arg: "text"}}
	case skill.ActionSelect:
		return []Step{{Action: skill.ActionSelect, Arg: "value"}}
	case skill.ActionNavigate:
		return []Step{{Action: skill.ActionNavigate, Arg: "url"}}
	case skill.ActionToggle, skill.ActionSubmit:
		return []Step{{Action: action}}
	}
	return []Step{{Action: skill.ActionClick}}
}

// ParseSteps decodes a steps program.
func ParseSteps(code string) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal([]byte(code), &steps); err != nil {
		return nil, errors.Wrap(err, "invalid steps program")
	}
	if len(steps) == 0 {
		return nil, errors.New("steps program is empty")
	}
	return steps, nil
}

// RunSteps resolves the locator chain once and performs each step on it.
func RunSteps(ctx context.Context, e env.Env, loc env.Locators, steps []Step, args map[string]any, opts env.Options) env.Result {
	sel, err := env.Resolve(ctx, e, loc, opts)
	if err != nil {
		return env.Fail("resolve: %v", err)
	}

	var last string
	for i, st := range steps {
		action := strings.ToLower(st.Action)
		switch action {
		case skill.ActionClick, skill.ActionToggle, skill.ActionSubmit:
			err = e.Click(ctx, sel)
		case skill.ActionType:
			err = e.Type(ctx, sel, env.Arg(args, argKey(st, "text")))
		case skill.ActionSelect:
			err = e.Select(ctx, sel, env.Arg(args, argKey(st, "value")))
		case skill.ActionNavigate:
			if u := env.Arg(args, argKey(st, "url")); u != "" {
				err = e.Navigate(ctx, u)
			} else {
				err = e.Click(ctx, sel)
			}
		case "press":
			err = e.Press(ctx, sel, st.Key)
		default:
			return env.Fail("step %d: unknown action %q", i, st.Action)
		}
		if err != nil {
			return env.Fail("step %d %s: %v", i, action, err)
		}
		last = action
	}
	return env.Done(ctx, e, doneMessage(last))
}

func argKey(st Step, def string) string {
	if st.Arg != "" {
		return st.Arg
	}
	return def
}
