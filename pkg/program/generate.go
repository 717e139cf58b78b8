package program

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// DefaultEntry is used when a program names no entry and defines no
// Program* function.
const DefaultEntry = "Program"

var entryFuncRe = regexp.MustCompile(`(?m)^func\s+(Program\w*)\s*\(`)

// EntryName returns the generated entry function for an action, e.g.
// ProgramClick.
func EntryName(action string) string {
	var b strings.Builder
	b.WriteString(DefaultEntry)
	upper := true
	for _, r := range action {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Entry returns the function a program starts at: program.entry, else the
// first Program* function in the code, else Program.
func Entry(p skill.Program) string {
	if e := strings.TrimSpace(p.Entry); e != "" {
		return e
	}
	if m := entryFuncRe.FindStringSubmatch(p.Code); m != nil {
		return m[1]
	}
	return DefaultEntry
}

var goTemplate = template.Must(template.New("program").Parse(`package skill

import (
	"context"

	"webskill/env"
)

// {{.Entry}} {{.Summary}}
func {{.Entry}}(ctx context.Context, e env.Env, loc env.Locators, args map[string]any, opts env.Options) env.Result {
	sel, err := env.Resolve(ctx, e, loc, opts)
	if err != nil {
		return env.Fail("resolve: %v", err)
	}
{{- if eq .Action "type"}}
	if err := e.Type(ctx, sel, env.Arg(args, "text")); err != nil {
		return env.Fail("type: %v", err)
	}
{{- else if eq .Action "select"}}
	if err := e.Select(ctx, sel, env.Arg(args, "value")); err != nil {
		return env.Fail("select: %v", err)
	}
{{- else if eq .Action "navigate"}}
	if u := env.Arg(args, "url"); u != "" {
		if err := e.Navigate(ctx, u); err != nil {
			return env.Fail("navigate: %v", err)
		}
		return env.Done(ctx, e, "navigated")
	}
	if err := e.Click(ctx, sel); err != nil {
		return env.Fail("click: %v", err)
	}
{{- else}}
	if err := e.Click(ctx, sel); err != nil {
		return env.Fail("click: %v", err)
	}
{{- end}}
	return env.Done(ctx, e, "{{.Done}}")
}
`))

var verbs = map[string]string{
	skill.ActionClick:    "clicks",
	skill.ActionType:     "types text into",
	skill.ActionSelect:   "selects an option of",
	skill.ActionNavigate: "follows",
	skill.ActionToggle:   "toggles",
	skill.ActionSubmit:   "submits",
}

func summary(s *skill.Skill) string {
	verb, ok := verbs[s.Action]
	if !ok {
		verb = "clicks"
	}
	target := strings.Join(strings.Fields(s.Label), " ")
	if target == "" {
		target = s.Locators.Selector
	}
	target = strings.ReplaceAll(target, "*/", "")
	out := verb + " " + target
	if s.Domain != "" {
		out += " on " + s.Domain
	}
	return out + "."
}

func doneMessage(action string) string {
	switch action {
	case skill.ActionType:
		return "typed"
	case skill.ActionSelect:
		return "selected"
	case skill.ActionNavigate:
		return "navigated"
	case skill.ActionToggle:
		return "toggled"
	case skill.ActionSubmit:
		return "submitted"
	}
	return "clicked"
}

// Generate produces the default program of s in language ("go" or "steps").
func Generate(s *skill.Skill, language string) (skill.Program, error) {
	if language == "" {
		language = skill.LanguageGo
	}
	entry := EntryName(s.Action)
	switch language {
	case skill.LanguageGo:
		var buf bytes.Buffer
		err := goTemplate.Execute(&buf, map[string]string{
			"Entry":   entry,
			"Action":  s.Action,
			"Summary": summary(s),
			"Done":    doneMessage(s.Action),
		})
		if err != nil {
			return skill.Program{}, errors.Wrap(err, "failed to render program")
		}
		return skill.Program{Language: language, Entry: entry, Code: buf.String()}, nil
	case skill.LanguageSteps:
		data, err := json.MarshalIndent(DefaultSteps(s.Action), "", "  ")
		if err != nil {
			return skill.Program{}, errors.Wrap(err, "failed to marshal steps")
		}
		return skill.Program{Language: language, Entry: entry, Code: string(data)}, nil
	}
	return skill.Program{}, errors.Errorf("unsupported program language %q", language)
}
